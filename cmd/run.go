package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/buildforge/buildforge/internal/agent"
	"github.com/buildforge/buildforge/internal/config"
	"github.com/buildforge/buildforge/internal/crawler"
	"github.com/buildforge/buildforge/internal/model"
	"github.com/buildforge/buildforge/internal/scheduler"
	"github.com/buildforge/buildforge/internal/server"
	"github.com/buildforge/buildforge/internal/watchdog"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every worker (crawler, scheduler, agent for both platforms, watchdog) in one process",
	Long: `run is the small-deployment mode: every coordination-plane worker
shares one database connection and one Redis connection, wired directly to
each other in-process instead of over the nudge RPC. It still exposes the
nudge RPC server so that external callers (e.g. a webhook receiver) can
reach /process_repo/{id}.`,
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
		docker, err := openDocker(cfg)
		if err != nil {
			return fmt.Errorf("connecting to docker: %w", err)
		}

		fleet := &agentFleet{}
		sched := scheduler.New(db, fleet)
		c := crawler.New(db, b, sched, cfg.Crawler.DataDir, cfg.Crawler.PeriodSeconds)
		linux := agent.New(db, b, sched, docker, model.PlatformLinux, cfg.Agent.MTU)
		windows := agent.New(db, b, sched, docker, model.PlatformWindows, cfg.Agent.MTU)
		fleet.linux, fleet.windows = linux, windows
		wd := watchdog.New(db, b, fleet, cfg.Watchdog.PeriodSeconds, cfg.Watchdog.StallSeconds)

		c.Start()
		sched.Runner().Start(nil)
		linux.Runner().Start(nil)
		windows.Runner().Start(nil)
		wd.Runner().Start(nil)

		srv := server.New(cfg.Server.Addr, c, sched, fleet)
		return runUntilCancelled(ctx, srv, c.Runner(), sched.Runner(), linux.Runner(), windows.Runner(), wd.Runner())
	},
}

// agentFleet fans scheduler.AgentNudger/watchdog.AgentNudger/server.Agents
// calls out to both in-process per-platform Agents, letting run wire a
// single nudger everywhere instead of threading two Agent references
// through the Scheduler and Watchdog constructors.
type agentFleet struct {
	linux, windows *agent.Agent
}

func (f *agentFleet) NudgeAgent(platform model.Platform) {
	if platform == model.PlatformWindows {
		f.windows.Nudge()
		return
	}
	f.linux.Nudge()
}

func (f *agentFleet) NudgeLinux()   { f.linux.Nudge() }
func (f *agentFleet) NudgeWindows() { f.windows.Nudge() }
