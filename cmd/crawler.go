package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/buildforge/buildforge/internal/config"
	"github.com/buildforge/buildforge/internal/crawler"
	"github.com/buildforge/buildforge/internal/server"
)

var crawlerCmd = &cobra.Command{
	Use:   "crawler",
	Short: "Run only the repo-crawling worker",
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

		nudger := server.NewHTTPNudger(cfg.Peers.SchedulerAddr, "", "")
		c := crawler.New(db, b, nudger, cfg.Crawler.DataDir, cfg.Crawler.PeriodSeconds)
		c.Start()

		srv := server.New(cfg.Server.Addr, c, nil, nil)
		return runUntilCancelled(ctx, srv, c.Runner())
	},
}
