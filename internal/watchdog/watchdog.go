// Package watchdog periodically sweeps for Runs that have gone quiet --
// no log line or status update within its stall window -- and recovers
// them: an active build is restarted from scratch, a stopping build is
// given up on and marked stopped. Unlike every other worker in this repo it
// reschedules itself unconditionally, matching the teacher's periodic
// self-rescheduling Worker.
package watchdog

import (
	"context"
	"log/slog"
	"time"

	"github.com/buildforge/buildforge/internal/bus"
	"github.com/buildforge/buildforge/internal/model"
	"github.com/buildforge/buildforge/internal/store"
	"github.com/buildforge/buildforge/internal/worker"
)

// AgentNudger lets the watchdog wake both platforms' Agents after
// restarting a build, without importing the agent package directly.
type AgentNudger interface {
	NudgeAgent(platform model.Platform)
}

// Watchdog is the stall-recovery worker.
type Watchdog struct {
	db       store.DB
	bus      bus.Bus
	nudger   AgentNudger
	periodS  int
	stallS   int
	runner   *worker.Runner
}

// New builds a Watchdog that sweeps every periodSeconds for Runs stalled
// longer than stallSeconds.
func New(db store.DB, b bus.Bus, nudger AgentNudger, periodSeconds, stallSeconds int) *Watchdog {
	w := &Watchdog{db: db, bus: b, nudger: nudger, periodS: periodSeconds, stallS: stallSeconds}
	w.runner = worker.New("watchdog", w.work, nil)
	return w
}

// Runner exposes the underlying cooperative worker.
func (w *Watchdog) Runner() *worker.Runner { return w.runner }

func (w *Watchdog) work(ctx context.Context, _ any) {
	if err := w.sweep(ctx); err != nil {
		slog.Error("Watchdog sweep failed", "error", err)
	}
	w.runner.Reschedule(time.Duration(w.periodS)*time.Second, nil)
}

// sweep implements the teacher's two-query recovery pass: first active
// builds whose Run has stalled are restarted (Run -> stalled, Build ->
// new); separately, stopping builds whose Run has stalled are given up on
// (Run -> stalled, Build -> stopped). Only the restarted half nudges the
// Agents, matching the Python original's builds_were_restarted flag.
func (w *Watchdog) sweep(ctx context.Context) error {
	stallBefore := time.Now().UTC().Add(-time.Duration(w.stallS) * time.Second)

	restarted, err := w.recoverStalled(ctx, model.BuildActive, model.BuildNew, stallBefore)
	if err != nil {
		return err
	}
	gaveUp, err := w.recoverStalled(ctx, model.BuildStopping, model.BuildStopped, stallBefore)
	if err != nil {
		return err
	}

	for _, buildID := range append(append([]int64{}, restarted...), gaveUp...) {
		w.publishBuild(ctx, buildID)
	}

	if len(restarted) > 0 && w.nudger != nil {
		slog.Info("Triggering agents after restarting stalled builds", "count", len(restarted))
		w.nudger.NudgeAgent(model.PlatformLinux)
		w.nudger.NudgeAgent(model.PlatformWindows)
	}
	return nil
}

// recoverStalled marks every stalled Run of a Build in fromStatus as
// RunStalled and moves its Build to toStatus, returning the affected build
// ids.
func (w *Watchdog) recoverStalled(ctx context.Context, fromStatus, toStatus model.BuildStatus, stallBefore time.Time) ([]int64, error) {
	runs, err := store.StalledRuns(ctx, w.db, fromStatus, stallBefore)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(runs))
	for _, run := range runs {
		slog.Info("Run stalled", "run_id", run.ID, "build_id", run.BuildID, "from", fromStatus, "to", toStatus)
		if err := store.SetRunStatus(ctx, w.db, run.ID, model.RunStalled); err != nil {
			return nil, err
		}
		if err := store.SetBuildStatus(ctx, w.db, run.BuildID, toStatus); err != nil {
			return nil, err
		}
		ids = append(ids, run.BuildID)
	}
	return ids, nil
}

func (w *Watchdog) publishBuild(ctx context.Context, buildID int64) {
	if w.bus == nil {
		return
	}
	build, err := store.BuildByID(ctx, w.db, buildID)
	if err != nil {
		return
	}
	commit, err := store.CommitByID(ctx, w.db, build.CommitID)
	if err != nil {
		return
	}
	w.bus.PublishBuildUpdate(ctx, commit.RepoID, buildID)
}
