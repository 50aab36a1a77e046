// Package scheduler fans new commits out into builds: for every commit in
// status "new" and every profile whose required labels aren't excluded by
// the commit's repo, it creates a Build in status "new", then nudges every
// platform's Agent to go lease them.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/buildforge/buildforge/internal/model"
	"github.com/buildforge/buildforge/internal/store"
	"github.com/buildforge/buildforge/internal/worker"
)

// AgentNudger lets the scheduler wake every platform's Agent once builds
// exist for it to lease, without importing the agent package directly.
type AgentNudger interface {
	NudgeAgent(platform model.Platform)
}

// Scheduler is the commit-to-build fan-out worker. Unlike the crawler and
// watchdog it is purely nudge-driven: it never reschedules itself.
type Scheduler struct {
	db     store.DB
	nudger AgentNudger
	runner *worker.Runner
}

// New builds a Scheduler. Call Runner().Start(nil) to begin accepting nudges.
func New(db store.DB, nudger AgentNudger) *Scheduler {
	s := &Scheduler{db: db, nudger: nudger}
	s.runner = worker.New("scheduler", s.work, nil)
	return s
}

// NudgeScheduler implements crawler.Nudger: call after recording new commits.
func (s *Scheduler) NudgeScheduler() { s.runner.Trigger(nil) }

// Runner exposes the underlying cooperative worker.
func (s *Scheduler) Runner() *worker.Runner { return s.runner }

func (s *Scheduler) work(ctx context.Context, _ any) {
	// Keep fanning out while new commits keep appearing -- commits recorded
	// mid-iteration are picked up by this loop (a nudge sent meanwhile still
	// queues one more iteration), matching the teacher's "while new_commits"
	// pump.
	for {
		newCommits, err := s.processCommits(ctx)
		if err != nil {
			slog.Error("Processing commits", "error", err)
			return
		}
		if !newCommits {
			return
		}
	}
}

// processCommits returns true if it created at least one Build, so the
// caller's loop keeps draining newly-discovered commits.
func (s *Scheduler) processCommits(ctx context.Context) (bool, error) {
	commits, err := store.NewCommits(ctx, s.db)
	if err != nil {
		return false, err
	}
	if len(commits) == 0 {
		return false, nil
	}

	ecosystem, err := store.GetEcosystem(ctx, s.db)
	if err != nil {
		return false, err
	}
	profiles, err := store.AllProfiles(ctx, s.db, ecosystem.ID)
	if err != nil {
		return false, err
	}

	anyBuilds := false
	for _, commit := range commits {
		excludeLabels, err := store.RepoExcludeLabels(ctx, s.db, commit.RepoID)
		if err != nil {
			return false, err
		}
		excludeSet := toSet(excludeLabels)

		for _, profile := range profiles {
			profileLabels, err := store.ProfileLabels(ctx, s.db, profile.ID)
			if err != nil {
				return false, err
			}
			if intersects(toSet(profileLabels), excludeSet) {
				slog.Debug("Excluding build", "commit_id", commit.ID, "profile_id", profile.ID)
				continue
			}
			if _, err := store.InsertBuild(ctx, s.db, commit.ID, profile.ID); err != nil {
				return false, err
			}
			anyBuilds = true
		}

		if err := store.SetCommitStatus(ctx, s.db, commit.ID, model.CommitBuilding); err != nil {
			return false, err
		}
	}

	newBuildCount, err := store.CountBuildsByStatus(ctx, s.db, model.BuildNew)
	if err != nil {
		return false, err
	}
	if newBuildCount == 0 {
		return anyBuilds, nil
	}

	if s.nudger != nil {
		s.nudger.NudgeAgent(model.PlatformLinux)
		s.nudger.NudgeAgent(model.PlatformWindows)
	}
	return anyBuilds, nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func intersects(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}
