package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/buildforge/buildforge/internal/config"
	"github.com/buildforge/buildforge/internal/scheduler"
	"github.com/buildforge/buildforge/internal/server"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run only the commit-to-build fan-out worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		db, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		nudger := server.NewHTTPNudger("", cfg.Peers.AgentLinuxAddr, cfg.Peers.AgentWindowsAddr)
		s := scheduler.New(db, nudger)
		s.Runner().Start(nil)

		srv := server.New(cfg.Server.Addr, nil, s, nil)
		return runUntilCancelled(ctx, srv, s.Runner())
	},
}
