package resultmanager

import (
	"context"
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

func seedProfile(t *testing.T, db store.DB, ecosystemID int64) int64 {
	t.Helper()
	ctx := context.Background()
	p := model.Profile{EcosystemID: ecosystemID, Name: "default", Platform: model.PlatformLinux, ConanProfile: "default"}
	id, err := db.Insert(ctx, "profile", &p)
	if err != nil {
		t.Fatalf("seeding profile: %v", err)
	}
	return id
}

// seedBuild inserts a Commit (status=building) and a Build under it, returning
// both ids so a test can drive ProcessSuccess/ProcessFailure against them.
func seedBuild(t *testing.T, db store.DB, repoID, channelID, profileID int64, status model.BuildStatus) (commitID, buildID int64) {
	t.Helper()
	ctx := context.Background()
	commit := model.Commit{SHA: "abc123", RepoID: repoID, ChannelID: channelID, Status: model.CommitBuilding}
	commitID, err := db.Insert(ctx, "commit_", &commit)
	if err != nil {
		t.Fatalf("seeding commit: %v", err)
	}
	b := model.Build{Status: status, CommitID: commitID, ProfileID: profileID}
	buildID, err = db.Insert(ctx, "build", &b)
	if err != nil {
		t.Fatalf("seeding build: %v", err)
	}
	return commitID, buildID
}

func buildStatus(t *testing.T, db store.DB, buildID int64) model.BuildStatus {
	t.Helper()
	b, err := store.BuildByID(context.Background(), db, buildID)
	if err != nil {
		t.Fatalf("loading build: %v", err)
	}
	return b.Status
}

const sampleCreateJSON = `{
	"installed": [
		{
			"recipe": {"id": "zlib/1.3@user/stable#rev1", "name": "zlib", "version": "1.3", "user": "user", "channel": "stable", "dependency": false},
			"packages": [{"id": "pkgid1"}]
		}
	]
}`

const sampleLockJSON = `{
	"graph_lock": {
		"nodes": {
			"0": {"ref": "app/1.0@user/stable", "requires": ["1"]},
			"1": {"ref": "zlib/1.3@user/stable#rev1", "package_id": "pkgid1"}
		}
	}
}`

func TestProcessSuccessCreatesRecipeRevisionAndPackage(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ecosystemID := seedEcosystem(t, db)
	repoID := seedRepo(t, db, ecosystemID)
	channelID := seedChannel(t, db, ecosystemID)
	profileID := seedProfile(t, db, ecosystemID)
	_, buildID := seedBuild(t, db, repoID, channelID, profileID, model.BuildActive)

	m := New(db, nil)
	_, err := m.ProcessSuccess(ctx, buildID, map[string][]byte{
		"create": []byte(sampleCreateJSON),
		"lock":   []byte(sampleLockJSON),
	})
	if err != nil {
		t.Fatalf("ProcessSuccess: %v", err)
	}

	recipe, err := store.FindRecipe(ctx, db, ecosystemID, "zlib", "1.3", "user", "stable")
	if err != nil {
		t.Fatalf("FindRecipe: %v", err)
	}
	if recipe == nil {
		t.Fatal("expected zlib recipe to be created")
	}
	if recipe.CurrentRevisionID == nil {
		t.Fatal("expected current_revision_id to be set for a still-building commit")
	}

	revision, err := store.FindRecipeRevision(ctx, db, recipe.ID, "rev1")
	if err != nil {
		t.Fatalf("FindRecipeRevision: %v", err)
	}
	if revision == nil {
		t.Fatal("expected recipe revision rev1 to exist")
	}

	pkg, err := store.FindPackage(ctx, db, "pkgid1", revision.ID)
	if err != nil {
		t.Fatalf("FindPackage: %v", err)
	}
	if pkg == nil {
		t.Fatal("expected package pkgid1 to exist")
	}

	build, err := store.BuildByID(ctx, db, buildID)
	if err != nil {
		t.Fatalf("BuildByID: %v", err)
	}
	if build.PackageID == nil || *build.PackageID != pkg.ID {
		t.Fatalf("expected build.package_id = %d, got %v", pkg.ID, build.PackageID)
	}
}

const recipeOnlyCreateJSON = `{
	"installed": [
		{
			"recipe": {"id": "zlib/1.3@user/stable#rev1", "name": "zlib", "version": "1.3", "user": "user", "channel": "stable", "dependency": false},
			"packages": []
		}
	]
}`

func TestProcessSuccessStoresRecipeRevisionWhenNoPackageProduced(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ecosystemID := seedEcosystem(t, db)
	repoID := seedRepo(t, db, ecosystemID)
	channelID := seedChannel(t, db, ecosystemID)
	profileID := seedProfile(t, db, ecosystemID)
	_, buildID := seedBuild(t, db, repoID, channelID, profileID, model.BuildActive)

	m := New(db, nil)
	_, err := m.ProcessSuccess(ctx, buildID, map[string][]byte{
		"create": []byte(recipeOnlyCreateJSON),
		"lock":   []byte(`{"graph_lock": {"nodes": {}}}`),
	})
	if err != nil {
		t.Fatalf("ProcessSuccess: %v", err)
	}

	recipe, err := store.FindRecipe(ctx, db, ecosystemID, "zlib", "1.3", "user", "stable")
	if err != nil {
		t.Fatalf("FindRecipe: %v", err)
	}
	if recipe == nil {
		t.Fatal("expected zlib recipe to be created")
	}
	revision, err := store.FindRecipeRevision(ctx, db, recipe.ID, "rev1")
	if err != nil {
		t.Fatalf("FindRecipeRevision: %v", err)
	}
	if revision == nil {
		t.Fatal("expected recipe revision rev1 to exist")
	}

	build, err := store.BuildByID(ctx, db, buildID)
	if err != nil {
		t.Fatalf("BuildByID: %v", err)
	}
	if build.PackageID != nil {
		t.Fatalf("expected build.package_id to stay unset, got %v", build.PackageID)
	}
	if build.RecipeRevisionID == nil || *build.RecipeRevisionID != revision.ID {
		t.Fatalf("expected build.recipe_revision_id = %d, got %v", revision.ID, build.RecipeRevisionID)
	}
}

func TestProcessFailureStoresRecipeRevisionWhenNoPackageProduced(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ecosystemID := seedEcosystem(t, db)
	repoID := seedRepo(t, db, ecosystemID)
	channelID := seedChannel(t, db, ecosystemID)
	profileID := seedProfile(t, db, ecosystemID)
	_, buildID := seedBuild(t, db, repoID, channelID, profileID, model.BuildActive)

	m := New(db, nil)
	if err := m.ProcessFailure(ctx, buildID, map[string][]byte{
		"create": []byte(recipeOnlyCreateJSON),
	}); err != nil {
		t.Fatalf("ProcessFailure: %v", err)
	}

	recipe, err := store.FindRecipe(ctx, db, ecosystemID, "zlib", "1.3", "user", "stable")
	if err != nil {
		t.Fatalf("FindRecipe: %v", err)
	}
	if recipe == nil {
		t.Fatal("expected zlib recipe to be created")
	}
	revision, err := store.FindRecipeRevision(ctx, db, recipe.ID, "rev1")
	if err != nil {
		t.Fatalf("FindRecipeRevision: %v", err)
	}
	if revision == nil {
		t.Fatal("expected recipe revision rev1 to exist")
	}

	build, err := store.BuildByID(ctx, db, buildID)
	if err != nil {
		t.Fatalf("BuildByID: %v", err)
	}
	if build.RecipeRevisionID == nil || *build.RecipeRevisionID != revision.ID {
		t.Fatalf("expected build.recipe_revision_id = %d, got %v", revision.ID, build.RecipeRevisionID)
	}
}

func TestProcessSuccessRetriggersBuildWaitingOnRecipe(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ecosystemID := seedEcosystem(t, db)
	repoID := seedRepo(t, db, ecosystemID)
	channelID := seedChannel(t, db, ecosystemID)
	profileID := seedProfile(t, db, ecosystemID)

	recipe, err := store.UpsertRecipe(ctx, db, ecosystemID, "zlib", "1.3", "user", "stable")
	if err != nil {
		t.Fatalf("UpsertRecipe: %v", err)
	}
	_, waitingBuildID := seedBuild(t, db, repoID, channelID, profileID, model.BuildError)
	if err := store.AddMissingRecipe(ctx, db, waitingBuildID, recipe.ID); err != nil {
		t.Fatalf("AddMissingRecipe: %v", err)
	}

	_, producingBuildID := seedBuild(t, db, repoID, channelID, profileID, model.BuildActive)

	m := New(db, nil)
	triggered, err := m.ProcessSuccess(ctx, producingBuildID, map[string][]byte{
		"create": []byte(sampleCreateJSON),
		"lock":   []byte(sampleLockJSON),
	})
	if err != nil {
		t.Fatalf("ProcessSuccess: %v", err)
	}
	if !triggered {
		t.Fatal("expected ProcessSuccess to report a re-triggered build")
	}

	if got := buildStatus(t, db, waitingBuildID); got != model.BuildNew {
		t.Fatalf("waiting build status = %s, want new", got)
	}
}

func TestProcessSuccessRetriggersCrossRevisionPackageWait(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ecosystemID := seedEcosystem(t, db)
	repoID := seedRepo(t, db, ecosystemID)
	channelID := seedChannel(t, db, ecosystemID)
	profileID := seedProfile(t, db, ecosystemID)

	recipe, err := store.UpsertRecipe(ctx, db, ecosystemID, "zlib", "1.3", "user", "stable")
	if err != nil {
		t.Fatalf("UpsertRecipe: %v", err)
	}
	oldRevision, err := store.UpsertRecipeRevision(ctx, db, recipe.ID, "oldrev")
	if err != nil {
		t.Fatalf("UpsertRecipeRevision: %v", err)
	}
	oldPkg, err := store.UpsertPackage(ctx, db, "some-other-pkgid", oldRevision.ID)
	if err != nil {
		t.Fatalf("UpsertPackage: %v", err)
	}

	_, waitingBuildID := seedBuild(t, db, repoID, channelID, profileID, model.BuildError)
	if err := store.AddMissingPackage(ctx, db, waitingBuildID, oldPkg.ID); err != nil {
		t.Fatalf("AddMissingPackage: %v", err)
	}

	_, producingBuildID := seedBuild(t, db, repoID, channelID, profileID, model.BuildActive)

	m := New(db, nil)
	// The new build produces pkgid1 under rev1, a different revision than the
	// one the waiting build's missing package ("some-other-pkgid") belongs
	// to -- this must still unblock it since a different revision may
	// compute package-ids differently.
	triggered, err := m.ProcessSuccess(ctx, producingBuildID, map[string][]byte{
		"create": []byte(sampleCreateJSON),
		"lock":   []byte(sampleLockJSON),
	})
	if err != nil {
		t.Fatalf("ProcessSuccess: %v", err)
	}
	if !triggered {
		t.Fatal("expected ProcessSuccess to report a re-triggered build")
	}
	if got := buildStatus(t, db, waitingBuildID); got != model.BuildNew {
		t.Fatalf("waiting build status = %s, want new", got)
	}
}

const missingRecipeFailureJSON = `{
	"installed": [
		{
			"recipe": {"id": "boost/1.80@user/stable", "name": "boost", "version": "1.80", "user": "user", "channel": "stable", "dependency": true, "error": {"type": "missing"}},
			"packages": []
		}
	]
}`

func TestProcessFailureRecordsMissingRecipe(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ecosystemID := seedEcosystem(t, db)
	repoID := seedRepo(t, db, ecosystemID)
	channelID := seedChannel(t, db, ecosystemID)
	profileID := seedProfile(t, db, ecosystemID)
	_, buildID := seedBuild(t, db, repoID, channelID, profileID, model.BuildError)

	m := New(db, nil)
	if err := m.ProcessFailure(ctx, buildID, map[string][]byte{
		"create": []byte(missingRecipeFailureJSON),
	}); err != nil {
		t.Fatalf("ProcessFailure: %v", err)
	}

	recipe, err := store.FindRecipe(ctx, db, ecosystemID, "boost", "1.80", "user", "stable")
	if err != nil {
		t.Fatalf("FindRecipe: %v", err)
	}
	if recipe == nil {
		t.Fatal("expected boost recipe to be created")
	}

	var rows []struct {
		BuildID  int64 `db:"build_id"`
		RecipeID int64 `db:"recipe_id"`
	}
	if err := db.Select(ctx, &rows, `SELECT build_id, recipe_id FROM missing_recipe WHERE build_id = ?`, buildID); err != nil {
		t.Fatalf("querying missing_recipe: %v", err)
	}
	if len(rows) != 1 || rows[0].RecipeID != recipe.ID {
		t.Fatalf("missing_recipe rows = %+v, want one row for recipe %d", rows, recipe.ID)
	}
}

const missingPackageFailureJSON = `{
	"installed": [
		{
			"recipe": {"id": "zlib/1.3@user/stable#rev1", "name": "zlib", "version": "1.3", "user": "user", "channel": "stable", "dependency": true},
			"packages": [{"id": "pkgid-missing", "error": {"type": "missing"}}]
		}
	]
}`

func TestProcessFailureRecordsMissingPackage(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ecosystemID := seedEcosystem(t, db)
	repoID := seedRepo(t, db, ecosystemID)
	channelID := seedChannel(t, db, ecosystemID)
	profileID := seedProfile(t, db, ecosystemID)
	_, buildID := seedBuild(t, db, repoID, channelID, profileID, model.BuildError)

	m := New(db, nil)
	if err := m.ProcessFailure(ctx, buildID, map[string][]byte{
		"create": []byte(missingPackageFailureJSON),
	}); err != nil {
		t.Fatalf("ProcessFailure: %v", err)
	}

	recipe, err := store.FindRecipe(ctx, db, ecosystemID, "zlib", "1.3", "user", "stable")
	if err != nil {
		t.Fatalf("FindRecipe: %v", err)
	}
	if recipe == nil {
		t.Fatal("expected zlib recipe to exist")
	}
	revision, err := store.FindRecipeRevision(ctx, db, recipe.ID, "rev1")
	if err != nil {
		t.Fatalf("FindRecipeRevision: %v", err)
	}
	if revision == nil {
		t.Fatal("expected recipe revision rev1 to exist")
	}
	pkg, err := store.FindPackage(ctx, db, "pkgid-missing", revision.ID)
	if err != nil {
		t.Fatalf("FindPackage: %v", err)
	}
	if pkg == nil {
		t.Fatal("expected package pkgid-missing to exist")
	}

	var rows []struct {
		PackageID int64 `db:"package_id"`
	}
	if err := db.Select(ctx, &rows, `SELECT package_id FROM missing_package WHERE build_id = ?`, buildID); err != nil {
		t.Fatalf("querying missing_package: %v", err)
	}
	if len(rows) != 1 || rows[0].PackageID != pkg.ID {
		t.Fatalf("missing_package rows = %+v, want one row for package %d", rows, pkg.ID)
	}
}

func TestProcessFailureWithNoCreateOutputIsNoop(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ecosystemID := seedEcosystem(t, db)
	repoID := seedRepo(t, db, ecosystemID)
	channelID := seedChannel(t, db, ecosystemID)
	profileID := seedProfile(t, db, ecosystemID)
	_, buildID := seedBuild(t, db, repoID, channelID, profileID, model.BuildError)

	m := New(db, nil)
	if err := m.ProcessFailure(ctx, buildID, map[string][]byte{}); err != nil {
		t.Fatalf("ProcessFailure: %v", err)
	}
}
