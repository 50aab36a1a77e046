package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/buildforge/buildforge/internal/config"
	"github.com/buildforge/buildforge/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run only the nudge RPC server (no workers)",
	Long: `serve runs the nudge RPC HTTP server with every nudge endpoint
answering 503 (GET /health answers 200), useful only for health-checking
the listener address itself -- in
practice the nudge RPC is always started alongside the worker(s) it fronts
via the other subcommands or "buildforge run".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := server.New(cfg.Server.Addr, nil, nil, nil)
		return runUntilCancelled(ctx, srv)
	},
}
