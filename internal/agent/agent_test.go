package agent

import (
	"context"
	"sync"
	"testing"

	"github.com/buildforge/buildforge/internal/config"
	"github.com/buildforge/buildforge/internal/model"
	"github.com/buildforge/buildforge/internal/store"
)

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

func seedLeasableBuilds(t *testing.T, db store.DB, n int) {
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

	for i := 0; i < n; i++ {
		commitID, err := db.Insert(ctx, "commit_", &model.Commit{SHA: "abc", RepoID: repoID, ChannelID: channelID, Status: model.CommitBuilding})
		if err != nil {
			t.Fatalf("seeding commit: %v", err)
		}
		if _, err := store.InsertBuild(ctx, db, commitID, profileID); err != nil {
			t.Fatalf("seeding build: %v", err)
		}
	}
}

// TestLeaseIsUniqueAcrossConcurrentAgents drives spec.md's "no double-lease"
// property directly: N agents racing to lease from a shared pool of M
// builds must between them lease each build exactly once.
func TestLeaseIsUniqueAcrossConcurrentAgents(t *testing.T) {
	db := newTestDB(t)
	const numBuilds = 20
	const numAgents = 5
	seedLeasableBuilds(t, db, numBuilds)

	ctx := context.Background()
	agents := make([]*Agent, numAgents)
	for i := range agents {
		agents[i] = New(db, nil, nil, nil, model.PlatformLinux, 0)
	}

	var mu sync.Mutex
	leased := make(map[int64]int)

	var wg sync.WaitGroup
	for _, a := range agents {
		a := a
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				build, _, err := a.lease(ctx)
				if err != nil {
					t.Errorf("lease: %v", err)
					return
				}
				if build == nil {
					return
				}
				mu.Lock()
				leased[build.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(leased) != numBuilds {
		t.Fatalf("leased %d distinct builds, want %d", len(leased), numBuilds)
	}
	for buildID, count := range leased {
		if count != 1 {
			t.Fatalf("build %d leased %d times, want 1", buildID, count)
		}
	}
}

// TestCleanupRevertsBuildAndRunOnCancellation exercises the "Stop while
// active" scenario: a build mid-flight when the Agent is cancelled/shut down
// must come back as a new Build with its Run marked stopped, so Watchdog
// stops tracking it as a stalled active run.
func TestCleanupRevertsBuildAndRunOnCancellation(t *testing.T) {
	db := newTestDB(t)
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
	buildID, err := store.InsertBuild(ctx, db, commitID, profileID)
	if err != nil {
		t.Fatalf("seeding build: %v", err)
	}
	if err := store.SetBuildStatus(ctx, db, buildID, model.BuildActive); err != nil {
		t.Fatalf("marking build active: %v", err)
	}
	runID, err := store.InsertRun(ctx, db, buildID)
	if err != nil {
		t.Fatalf("seeding run: %v", err)
	}

	a := New(db, nil, nil, nil, model.PlatformLinux, 0)
	a.activeBuildID = buildID
	a.activeRunID = runID
	a.cleanup()

	build, err := store.BuildByID(ctx, db, buildID)
	if err != nil {
		t.Fatalf("BuildByID: %v", err)
	}
	if build.Status != model.BuildNew {
		t.Fatalf("build status = %q, want %q", build.Status, model.BuildNew)
	}

	var run model.Run
	if err := db.Get(ctx, &run, `SELECT id, started, updated, status, build_id FROM run WHERE id = ?`, runID); err != nil {
		t.Fatalf("loading run: %v", err)
	}
	if run.Status != model.RunStopped {
		t.Fatalf("run status = %q, want %q", run.Status, model.RunStopped)
	}
}
