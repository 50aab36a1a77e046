package scheduler

import (
	"context"
	"testing"

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

func seedEcosystem(t *testing.T, db store.DB) int64 {
	t.Helper()
	ctx := context.Background()
	e := &model.Ecosystem{Name: "test"}
	if err := store.UpsertEcosystem(ctx, db, e); err != nil {
		t.Fatalf("seeding ecosystem: %v", err)
	}
	return e.ID
}

func seedRepo(t *testing.T, db store.DB, ecosystemID int64) int64 {
	t.Helper()
	ctx := context.Background()
	r := model.Repo{EcosystemID: ecosystemID, Name: "widget", URL: "git@example.com:widget.git"}
	id, err := db.Insert(ctx, "repo", &r)
	if err != nil {
		t.Fatalf("seeding repo: %v", err)
	}
	return id
}

func seedChannel(t *testing.T, db store.DB, ecosystemID int64) int64 {
	t.Helper()
	ctx := context.Background()
	c := model.Channel{EcosystemID: ecosystemID, Name: "stable", RefPattern: "heads/main"}
	id, err := db.Insert(ctx, "channel", &c)
	if err != nil {
		t.Fatalf("seeding channel: %v", err)
	}
	return id
}

func seedProfile(t *testing.T, db store.DB, ecosystemID int64, platform model.Platform) int64 {
	t.Helper()
	ctx := context.Background()
	p := model.Profile{EcosystemID: ecosystemID, Name: "default", Platform: platform, ConanProfile: "default"}
	id, err := db.Insert(ctx, "profile", &p)
	if err != nil {
		t.Fatalf("seeding profile: %v", err)
	}
	return id
}

func seedLabel(t *testing.T, db store.DB, value string) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := db.Insert(ctx, "label", &model.Label{Value: value})
	if err != nil {
		t.Fatalf("seeding label: %v", err)
	}
	return id
}

func TestProcessCommitsCreatesBuildAndMarksCommitBuilding(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ecosystemID := seedEcosystem(t, db)
	repoID := seedRepo(t, db, ecosystemID)
	channelID := seedChannel(t, db, ecosystemID)
	seedProfile(t, db, ecosystemID, model.PlatformLinux)

	commit := model.Commit{SHA: "abc123", RepoID: repoID, ChannelID: channelID}
	commitID, err := store.InsertCommit(ctx, db, &commit)
	if err != nil {
		t.Fatalf("inserting commit: %v", err)
	}

	nudger := &fakeNudger{}
	s := New(db, nudger)

	created, err := s.processCommits(ctx)
	if err != nil {
		t.Fatalf("processCommits: %v", err)
	}
	if !created {
		t.Fatal("expected processCommits to report new builds")
	}

	count, err := store.CountBuildsByStatus(ctx, db, model.BuildNew)
	if err != nil {
		t.Fatalf("counting builds: %v", err)
	}
	if count != 1 {
		t.Fatalf("build count = %d, want 1", count)
	}

	var reloaded model.Commit
	if err := db.Get(ctx, &reloaded, `SELECT id, status, sha, message, user_name, user_email, repo_id, channel_id FROM commit_ WHERE id = ?`, commitID); err != nil {
		t.Fatalf("reloading commit: %v", err)
	}
	if reloaded.Status != model.CommitBuilding {
		t.Fatalf("commit status = %s, want building", reloaded.Status)
	}

	if len(nudger.nudged) != 2 {
		t.Fatalf("nudged %d platforms, want 2 (linux+windows)", len(nudger.nudged))
	}
}

func TestProcessCommitsExcludesProfilesWithOverlappingLabels(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ecosystemID := seedEcosystem(t, db)
	repoID := seedRepo(t, db, ecosystemID)
	channelID := seedChannel(t, db, ecosystemID)
	profileID := seedProfile(t, db, ecosystemID, model.PlatformLinux)

	labelID := seedLabel(t, db, "deprecated")
	if err := db.Exec(ctx, `INSERT INTO repo_label (repo_id, label_id) VALUES (?, ?)`, repoID, labelID); err != nil {
		t.Fatalf("linking repo label: %v", err)
	}
	if err := db.Exec(ctx, `INSERT INTO profile_label (profile_id, label_id) VALUES (?, ?)`, profileID, labelID); err != nil {
		t.Fatalf("linking profile label: %v", err)
	}

	commit := model.Commit{SHA: "def456", RepoID: repoID, ChannelID: channelID}
	if _, err := store.InsertCommit(ctx, db, &commit); err != nil {
		t.Fatalf("inserting commit: %v", err)
	}

	s := New(db, &fakeNudger{})
	if _, err := s.processCommits(ctx); err != nil {
		t.Fatalf("processCommits: %v", err)
	}

	count, err := store.CountBuildsByStatus(ctx, db, model.BuildNew)
	if err != nil {
		t.Fatalf("counting builds: %v", err)
	}
	if count != 0 {
		t.Fatalf("build count = %d, want 0 (excluded by overlapping label)", count)
	}
}

func TestProcessCommitsNoopsWhenNoNewCommits(t *testing.T) {
	db := newTestDB(t)
	s := New(db, &fakeNudger{})

	created, err := s.processCommits(context.Background())
	if err != nil {
		t.Fatalf("processCommits: %v", err)
	}
	if created {
		t.Fatal("expected no new builds with zero commits")
	}
}
