package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/buildforge/buildforge/internal/agent"
	"github.com/buildforge/buildforge/internal/config"
	"github.com/buildforge/buildforge/internal/model"
	"github.com/buildforge/buildforge/internal/server"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run only the build-execution worker for this host's platform",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		platform := model.Platform(cfg.Agent.Platform)
		if platform != model.PlatformLinux && platform != model.PlatformWindows {
			return fmt.Errorf("agent.platform must be %q or %q, got %q", model.PlatformLinux, model.PlatformWindows, cfg.Agent.Platform)
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
		docker, err := openDocker(cfg)
		if err != nil {
			return fmt.Errorf("connecting to docker: %w", err)
		}

		nudger := server.NewHTTPNudger(cfg.Peers.SchedulerAddr, "", "")
		a := agent.New(db, b, nudger, docker, platform, cfg.Agent.MTU)
		a.Runner().Start(nil)

		agentAddr := map[model.Platform]bool{platform: true}
		srv := server.New(cfg.Server.Addr, nil, nil, singlePlatformAgents{agent: a, platforms: agentAddr})
		return runUntilCancelled(ctx, srv, a.Runner())
	},
}

// singlePlatformAgents adapts a single Agent to the server.Agents interface,
// which fans /process_builds out to both platforms; a standalone Agent
// process only nudges itself if its platform is one of the ones asked for,
// since it has no Windows (or Linux) Agent of its own to wake.
type singlePlatformAgents struct {
	agent     *agent.Agent
	platforms map[model.Platform]bool
}

func (s singlePlatformAgents) NudgeLinux() {
	if s.platforms[model.PlatformLinux] {
		s.agent.Nudge()
	}
}

func (s singlePlatformAgents) NudgeWindows() {
	if s.platforms[model.PlatformWindows] {
		s.agent.Nudge()
	}
}
