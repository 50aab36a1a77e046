// Package agent leases new Builds for one Platform and drives each through
// an ephemeral Docker container via internal/agent/builder, delegating the
// Conan-output interpretation to internal/resultmanager. It is the Go
// translation of agent.py's Worker subclass: a single-build-at-a-time loop
// with a periodic supervisor tick that drains container logs and watches
// for an operator-requested stop.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	dockerclient "github.com/fsouza/go-dockerclient"

	"github.com/buildforge/buildforge/internal/agent/builder"
	"github.com/buildforge/buildforge/internal/bus"
	"github.com/buildforge/buildforge/internal/model"
	"github.com/buildforge/buildforge/internal/resultmanager"
	"github.com/buildforge/buildforge/internal/store"
	"github.com/buildforge/buildforge/internal/worker"
)

// supervisorTick is how often Run's goroutine is polled for completion and
// the build's row is checked for an operator-requested stop, matching the
// teacher's `asyncio.wait(timeout=10)`.
const supervisorTick = 10 * time.Second

// retryDelay is how long the worker sleeps before trying again after an
// infrastructure error (a database hiccup, not a build failure).
const retryDelay = 10 * time.Second

// SchedulerNudger lets the Agent wake the Scheduler after a successful
// build produced a package that might unblock further commits, without
// importing the scheduler package directly.
type SchedulerNudger interface {
	NudgeScheduler()
}

// Agent is the per-platform build-execution worker. Call New then
// Runner().Start(nil); Nudge wakes it (e.g. from the Scheduler or the nudge
// RPC server) to go check for newly-leasable Builds.
type Agent struct {
	db       store.DB
	bus      bus.Bus
	manager  *resultmanager.Manager
	nudger   SchedulerNudger
	docker   *dockerclient.Client
	platform model.Platform
	mtu      int

	runner *worker.Runner

	activeBuildID int64
	activeRunID   int64
}

// New builds an Agent. docker may be nil only in tests that never reach
// processBuild.
func New(db store.DB, b bus.Bus, nudger SchedulerNudger, dockerClient *dockerclient.Client, platform model.Platform, mtu int) *Agent {
	a := &Agent{
		db:       db,
		bus:      b,
		manager:  resultmanager.New(db, b),
		nudger:   nudger,
		docker:   dockerClient,
		platform: platform,
		mtu:      mtu,
	}
	a.runner = worker.New("agent-"+string(platform), a.work, a.cleanup)
	return a
}

// Runner exposes the underlying cooperative worker.
func (a *Agent) Runner() *worker.Runner { return a.runner }

// Nudge wakes the Agent to check for newly-leasable Builds.
func (a *Agent) Nudge() { a.runner.Trigger(nil) }

func (a *Agent) work(ctx context.Context, _ any) {
	for {
		more, err := a.processOneBuild(ctx)
		if err != nil {
			slog.Error("Processing builds failed", "platform", a.platform, "error", err)
			slog.Info("Retrying", "seconds", int(retryDelay.Seconds()))
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}
		if !more {
			return
		}
	}
}

// processOneBuild leases and fully drives at most one Build, returning true
// if the caller's loop should immediately try for another (a build was
// leased, regardless of outcome) and false once there is nothing left to
// lease.
func (a *Agent) processOneBuild(ctx context.Context) (bool, error) {
	slog.Info("Checking for new builds", "platform", a.platform)

	build, buildCtx, err := a.lease(ctx)
	if err != nil {
		return false, err
	}
	if build == nil {
		slog.Info("No new builds", "platform", a.platform)
		return false, nil
	}

	a.activeBuildID = build.ID
	defer func() { a.activeBuildID = 0 }()

	params, err := buildParams(ctx, a.db, build, buildCtx.commit, buildCtx.repo, buildCtx.profile, buildCtx.ecosystem, buildCtx.channel, a.mtu)
	if err != nil {
		return true, fmt.Errorf("assembling build parameters: %w", err)
	}

	b := builder.New(a.docker, builderPlatform(a.platform), buildCtx.profile.Container)
	if err := a.drive(ctx, build.ID, b, params); err != nil {
		slog.Error("Driving build failed", "build_id", build.ID, "error", err)
	}
	b.Close()
	return true, nil
}

type buildContext struct {
	commit    *model.Commit
	repo      *model.Repo
	profile   *model.Profile
	channel   *model.Channel
	ecosystem *model.Ecosystem
}

// lease atomically finds and marks active the oldest new Build for this
// Agent's platform, then loads everything the rest of processOneBuild needs
// about it. Returns a nil build (not an error) when none is available.
func (a *Agent) lease(ctx context.Context) (*model.Build, *buildContext, error) {
	var build *model.Build
	var bctx *buildContext
	err := a.db.WithTx(ctx, func(tx store.DB) error {
		leased, err := store.LeaseBuild(ctx, tx, a.platform)
		if err != nil {
			return err
		}
		if leased == nil {
			return nil
		}
		commit, err := store.CommitByID(ctx, tx, leased.CommitID)
		if err != nil {
			return err
		}
		repo, err := store.RepoByID(ctx, tx, commit.RepoID)
		if err != nil {
			return err
		}
		profile, err := store.ProfileByID(ctx, tx, leased.ProfileID)
		if err != nil {
			return err
		}
		channel, err := store.ChannelByID(ctx, tx, commit.ChannelID)
		if err != nil {
			return err
		}
		ecosystem, err := store.GetEcosystem(ctx, tx)
		if err != nil {
			return err
		}
		build = leased
		bctx = &buildContext{commit: commit, repo: repo, profile: profile, channel: channel, ecosystem: ecosystem}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return build, bctx, nil
}

// drive runs the pull/setup/run sequence and reports the outcome back to
// the store, publishing bus updates and draining container logs every
// supervisorTick -- the Go equivalent of agent.py's asyncio.wait loop.
func (a *Agent) drive(ctx context.Context, buildID int64, b *builder.Builder, params builder.Params) error {
	runID, err := store.InsertRun(ctx, a.db, buildID)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	a.activeRunID = runID
	defer func() { a.activeRunID = 0 }()
	a.publishRun(ctx, buildID, runID)

	if err := b.Pull(ctx, params); err != nil {
		return a.finishFailed(ctx, buildID, runID, b, err)
	}
	if err := b.Setup(ctx, params); err != nil {
		return a.finishFailed(ctx, buildID, runID, b, err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- b.Run(ctx) }()

	ticker := time.NewTicker(supervisorTick)
	defer ticker.Stop()
	for {
		select {
		case err := <-runErr:
			a.drainLogs(ctx, runID, b)
			if err != nil {
				return a.finishFailed(ctx, buildID, runID, b, err)
			}
			return a.finishSucceeded(ctx, buildID, runID, b)

		case <-ticker.C:
			a.drainLogs(ctx, runID, b)
			stopping, err := a.checkStopping(ctx, buildID)
			if err != nil {
				slog.Error("Checking for a stop request", "build_id", buildID, "error", err)
				continue
			}
			if stopping {
				b.Cancel()
				if err := store.SetBuildStatus(ctx, a.db, buildID, model.BuildStopped); err != nil {
					slog.Error("Marking build stopped", "build_id", buildID, "error", err)
				}
				if err := store.SetRunStatus(ctx, a.db, runID, model.RunStopped); err != nil {
					slog.Error("Marking run stopped", "build_id", buildID, "error", err)
				}
				return nil
			}

		case <-ctx.Done():
			b.Cancel()
			return ctx.Err()
		}
	}
}

func (a *Agent) checkStopping(ctx context.Context, buildID int64) (bool, error) {
	build, err := store.BuildByID(ctx, a.db, buildID)
	if err != nil {
		return false, err
	}
	return build.Status == model.BuildStopping, nil
}

func (a *Agent) drainLogs(ctx context.Context, runID int64, b *builder.Builder) {
	lines := b.GetLogLines()
	if len(lines) == 0 {
		return
	}
	byteLines := make([][]byte, len(lines))
	for i, l := range lines {
		byteLines[i] = []byte(l)
	}
	startNumber, err := store.CountLogLines(ctx, a.db, runID)
	if err != nil {
		slog.Error("Counting existing log lines", "run_id", runID, "error", err)
		return
	}
	lastID, err := store.AppendLogLines(ctx, a.db, runID, startNumber, byteLines)
	if err != nil {
		slog.Error("Appending log lines", "run_id", runID, "error", err)
		return
	}
	if err := store.TouchRun(ctx, a.db, runID, model.RunActive); err != nil {
		slog.Error("Touching run", "run_id", runID, "error", err)
	}
	if a.bus != nil {
		a.bus.PublishLogLineUpdate(ctx, runID, lastID)
	}
}

func (a *Agent) finishSucceeded(ctx context.Context, buildID, runID int64, b *builder.Builder) error {
	slog.Info("Build succeeded", "build_id", buildID)
	newBuilds, err := a.manager.ProcessSuccess(ctx, buildID, b.BuildOutput)
	if err != nil {
		return fmt.Errorf("processing successful build output: %w", err)
	}
	if err := store.SetBuildStatus(ctx, a.db, buildID, model.BuildSuccess); err != nil {
		return fmt.Errorf("marking build success: %w", err)
	}
	if err := store.SetRunStatus(ctx, a.db, runID, model.RunSuccess); err != nil {
		return fmt.Errorf("marking run success: %w", err)
	}
	a.publishBuild(ctx, buildID)
	if newBuilds && a.nudger != nil {
		a.nudger.NudgeScheduler()
	}
	return nil
}

func (a *Agent) finishFailed(ctx context.Context, buildID, runID int64, b *builder.Builder, cause error) error {
	slog.Info("Build failed", "build_id", buildID, "error", cause)
	if err := a.manager.ProcessFailure(ctx, buildID, b.BuildOutput); err != nil {
		slog.Error("Processing failed build output", "build_id", buildID, "error", err)
	}
	if err := store.SetBuildStatus(ctx, a.db, buildID, model.BuildError); err != nil {
		slog.Error("Marking build error", "build_id", buildID, "error", err)
	}
	if err := store.SetRunStatus(ctx, a.db, runID, model.RunError); err != nil {
		slog.Error("Marking run error", "build_id", buildID, "error", err)
	}
	a.publishBuild(ctx, buildID)
	return cause
}

func (a *Agent) publishBuild(ctx context.Context, buildID int64) {
	if a.bus == nil {
		return
	}
	build, err := store.BuildByID(ctx, a.db, buildID)
	if err != nil {
		return
	}
	commit, err := store.CommitByID(ctx, a.db, build.CommitID)
	if err != nil {
		return
	}
	a.bus.PublishBuildUpdate(ctx, commit.RepoID, buildID)
}

func (a *Agent) publishRun(ctx context.Context, buildID, runID int64) {
	if a.bus == nil {
		return
	}
	a.bus.PublishRunUpdate(ctx, buildID, runID)
}

// cleanup reverts an in-flight build to "new" and its in-flight run to
// "stopped" so another Agent (or this one, after a restart) can pick the
// build back up and Watchdog's stalled-run sweep stops tracking the
// orphaned run, matching agent.py's Worker.cleanup.
func (a *Agent) cleanup() {
	if a.activeBuildID == 0 {
		return
	}
	slog.Info("Reverting active build to new on shutdown", "build_id", a.activeBuildID)
	if err := store.SetBuildStatus(context.Background(), a.db, a.activeBuildID, model.BuildNew); err != nil {
		slog.Error("Reverting build status", "build_id", a.activeBuildID, "error", err)
	}
	if a.activeRunID != 0 {
		slog.Info("Marking active run stopped on shutdown", "run_id", a.activeRunID)
		if err := store.SetRunStatus(context.Background(), a.db, a.activeRunID, model.RunStopped); err != nil {
			slog.Error("Reverting run status", "run_id", a.activeRunID, "error", err)
		}
	}
}

func builderPlatform(p model.Platform) builder.Platform {
	if p == model.PlatformWindows {
		return builder.PlatformWindows
	}
	return builder.PlatformLinux
}
