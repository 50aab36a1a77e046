package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	dockerclient "github.com/fsouza/go-dockerclient"

	"github.com/buildforge/buildforge/internal/bus"
	"github.com/buildforge/buildforge/internal/config"
	"github.com/buildforge/buildforge/internal/server"
	"github.com/buildforge/buildforge/internal/store"
	"github.com/buildforge/buildforge/internal/worker"
)

// shutdownGrace bounds how long the nudge RPC server gets to drain
// in-flight requests on shutdown.
const shutdownGrace = 5 * time.Second

// openStore opens and migrates the configured database.
func openStore(ctx context.Context, cfg *config.Config) (store.DB, error) {
	db, err := store.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return db, nil
}

// openBus connects to Redis for change-notification publishing.
func openBus(cfg *config.Config) bus.Bus {
	return bus.New(cfg.Bus.Addr, cfg.Bus.Password, cfg.Bus.DB)
}

// openDocker builds a Docker Engine API client, honoring an explicit
// DockerHost override or falling back to the environment (DOCKER_HOST etc).
func openDocker(cfg *config.Config) (*dockerclient.Client, error) {
	if cfg.Agent.DockerHost != "" {
		return dockerclient.NewClient(cfg.Agent.DockerHost)
	}
	return dockerclient.NewClientFromEnv()
}

// runUntilCancelled binds srv (if non-nil) and blocks until ctx is
// cancelled, then shuts everything down: the HTTP server gets a graceful
// Shutdown, and every runner is cancelled and waited on, mirroring the
// teacher's Start(ctx)-blocks-until-shutdown gateway pattern.
func runUntilCancelled(ctx context.Context, srv *server.Server, runners ...*worker.Runner) error {
	var httpServer *http.Server
	errCh := make(chan error, 1)
	if srv != nil {
		httpServer = &http.Server{Addr: srv.Addr(), Handler: srv.Handler()}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		slog.Error("Nudge RPC server failed", "error", err)
	}

	slog.Info("Shutting down")
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Shutting down nudge RPC server", "error", err)
		}
	}
	for _, r := range runners {
		r.Cancel()
	}
	for _, r := range runners {
		<-r.Done()
	}
	return nil
}
