package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/buildforge/buildforge/internal/config"
	"github.com/buildforge/buildforge/internal/model"
	"github.com/buildforge/buildforge/internal/store"
)

type fakeNudger struct {
	nudged []model.Platform
}

func (f *fakeNudger) NudgeAgent(platform model.Platform) {
	f.nudged = append(f.nudged, platform)
}

func newTestDB(t *testing.T) store.DB {
	t.Helper()
	db, err := store.New(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedStalledRun(t *testing.T, db store.DB, buildStatus model.BuildStatus, updated time.Time) (buildID, runID int64) {
	t.Helper()
	ctx := context.Background()

	e := &model.Ecosystem{Name: "test"}
	if err := store.UpsertEcosystem(ctx, db, e); err != nil {
		t.Fatalf("seeding ecosystem: %v", err)
	}
	repoID, err := db.Insert(ctx, "repo", &model.Repo{EcosystemID: e.ID, Name: "widget", URL: "git@example.com:widget.git"})
	if err != nil {
		t.Fatalf("seeding repo: %v", err)
	}
	channelID, err := db.Insert(ctx, "channel", &model.Channel{EcosystemID: e.ID, Name: "stable", RefPattern: "heads/main"})
	if err != nil {
		t.Fatalf("seeding channel: %v", err)
	}
	profileID, err := db.Insert(ctx, "profile", &model.Profile{EcosystemID: e.ID, Name: "default", Platform: model.PlatformLinux, ConanProfile: "default"})
	if err != nil {
		t.Fatalf("seeding profile: %v", err)
	}
	commitID, err := db.Insert(ctx, "commit_", &model.Commit{SHA: "abc", RepoID: repoID, ChannelID: channelID, Status: model.CommitBuilding})
	if err != nil {
		t.Fatalf("seeding commit: %v", err)
	}
	buildID, err = db.Insert(ctx, "build", &model.Build{Status: buildStatus, CommitID: commitID, ProfileID: profileID})
	if err != nil {
		t.Fatalf("seeding build: %v", err)
	}
	runID, err = db.Insert(ctx, "run", &model.Run{Started: updated, Updated: updated, Status: model.RunActive, BuildID: buildID})
	if err != nil {
		t.Fatalf("seeding run: %v", err)
	}
	return buildID, runID
}

func TestSweepRestartsStalledActiveBuild(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	stale := time.Now().UTC().Add(-2 * time.Minute)
	buildID, runID := seedStalledRun(t, db, model.BuildActive, stale)

	nudger := &fakeNudger{}
	w := New(db, nil, nudger, 60, 60)
	if err := w.sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	build, err := store.BuildByID(ctx, db, buildID)
	if err != nil {
		t.Fatalf("BuildByID: %v", err)
	}
	if build.Status != model.BuildNew {
		t.Fatalf("build status = %s, want new", build.Status)
	}

	var run model.Run
	if err := db.Get(ctx, &run, `SELECT id, started, updated, status, build_id FROM run WHERE id = ?`, runID); err != nil {
		t.Fatalf("loading run: %v", err)
	}
	if run.Status != model.RunStalled {
		t.Fatalf("run status = %s, want stalled", run.Status)
	}

	if len(nudger.nudged) != 2 {
		t.Fatalf("nudged %d platforms, want 2", len(nudger.nudged))
	}
}

func TestSweepGivesUpOnStalledStoppingBuildWithoutNudging(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	stale := time.Now().UTC().Add(-2 * time.Minute)
	buildID, _ := seedStalledRun(t, db, model.BuildStopping, stale)

	nudger := &fakeNudger{}
	w := New(db, nil, nudger, 60, 60)
	if err := w.sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	build, err := store.BuildByID(ctx, db, buildID)
	if err != nil {
		t.Fatalf("BuildByID: %v", err)
	}
	if build.Status != model.BuildStopped {
		t.Fatalf("build status = %s, want stopped", build.Status)
	}
	if len(nudger.nudged) != 0 {
		t.Fatalf("nudged %d platforms, want 0 (only restarts trigger agents)", len(nudger.nudged))
	}
}

func TestSweepLeavesFreshRunsAlone(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	buildID, _ := seedStalledRun(t, db, model.BuildActive, time.Now().UTC())

	w := New(db, nil, &fakeNudger{}, 60, 60)
	if err := w.sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	build, err := store.BuildByID(ctx, db, buildID)
	if err != nil {
		t.Fatalf("BuildByID: %v", err)
	}
	if build.Status != model.BuildActive {
		t.Fatalf("build status = %s, want unchanged active", build.Status)
	}
}
