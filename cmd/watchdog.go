package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/buildforge/buildforge/internal/config"
	"github.com/buildforge/buildforge/internal/server"
	"github.com/buildforge/buildforge/internal/watchdog"
)

var watchdogCmd = &cobra.Command{
	Use:   "watchdog",
	Short: "Run only the stall-detection worker",
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
		b := openBus(cfg)
		defer b.Close()

		nudger := server.NewHTTPNudger("", cfg.Peers.AgentLinuxAddr, cfg.Peers.AgentWindowsAddr)
		w := watchdog.New(db, b, nudger, cfg.Watchdog.PeriodSeconds, cfg.Watchdog.StallSeconds)
		w.Runner().Start(nil)

		srv := server.New(cfg.Server.Addr, nil, nil, nil)
		return runUntilCancelled(ctx, srv, w.Runner())
	},
}
