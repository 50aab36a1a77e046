package store

import (
	"context"
	"fmt"
	"time"

	"github.com/buildforge/buildforge/internal/model"
)

// GetEcosystem returns the process-wide Ecosystem row. Exactly one row is
// expected to exist (id = 1); callers that need to seed it use
// UpsertEcosystem.
func GetEcosystem(ctx context.Context, db DB) (*model.Ecosystem, error) {
	var e model.Ecosystem
	if err := db.Get(ctx, &e, `SELECT id, name, user, public_ssh_key, ssh_key, known_hosts,
		conan_config_url, conan_config_path, conan_config_branch, conan_remote, conan_user, conan_password
		FROM ecosystem ORDER BY id LIMIT 1`); err != nil {
		return nil, fmt.Errorf("loading ecosystem: %w", err)
	}
	return &e, nil
}

// UpsertEcosystem writes the singleton Ecosystem row, always as id = 1.
func UpsertEcosystem(ctx context.Context, db DB, e *model.Ecosystem) error {
	e.ID = 1
	return db.Upsert(ctx, "ecosystem", e, []string{"id"})
}

// GitCredentials returns the HTTP git credentials configured for an
// ecosystem, used by the crawler for HTTP basic auth and by the Builder's
// git credential helper script.
func GitCredentials(ctx context.Context, db DB, ecosystemID int64) ([]model.GitCredential, error) {
	var creds []model.GitCredential
	err := db.Select(ctx, &creds,
		`SELECT id, ecosystem_id, url, username, password FROM git_credential WHERE ecosystem_id = ?`,
		ecosystemID)
	return creds, err
}

// DockerCredentials returns the registry credentials configured for an
// ecosystem, used by the Builder to authenticate image pulls.
func DockerCredentials(ctx context.Context, db DB, ecosystemID int64) ([]model.DockerCredential, error) {
	var creds []model.DockerCredential
	err := db.Select(ctx, &creds,
		`SELECT id, ecosystem_id, server, username, password FROM docker_credential WHERE ecosystem_id = ?`,
		ecosystemID)
	return creds, err
}

// AllRepos returns every configured Repo, in id order.
func AllRepos(ctx context.Context, db DB) ([]model.Repo, error) {
	var repos []model.Repo
	err := db.Select(ctx, &repos,
		`SELECT id, ecosystem_id, name, url, path, version FROM repo ORDER BY id`)
	return repos, err
}

// RepoByID loads a single Repo.
func RepoByID(ctx context.Context, db DB, id int64) (*model.Repo, error) {
	var r model.Repo
	if err := db.Get(ctx, &r,
		`SELECT id, ecosystem_id, name, url, path, version FROM repo WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("loading repo %d: %w", id, err)
	}
	return &r, nil
}

// RepoExcludeLabels returns the label values a Repo excludes, via repo_label.
func RepoExcludeLabels(ctx context.Context, db DB, repoID int64) ([]string, error) {
	var values []string
	rows, err := selectStrings(ctx, db,
		`SELECT label.value FROM label JOIN repo_label ON repo_label.label_id = label.id
		 WHERE repo_label.repo_id = ?`, repoID)
	if err != nil {
		return nil, err
	}
	values = append(values, rows...)
	return values, nil
}

// ProfileLabels returns the label values required by a Profile, via profile_label.
func ProfileLabels(ctx context.Context, db DB, profileID int64) ([]string, error) {
	return selectStrings(ctx, db,
		`SELECT label.value FROM label JOIN profile_label ON profile_label.label_id = label.id
		 WHERE profile_label.profile_id = ?`, profileID)
}

// RepoOptions returns the conan options configured on a Repo.
func RepoOptions(ctx context.Context, db DB, repoID int64) ([]model.Option, error) {
	var opts []model.Option
	err := db.Select(ctx, &opts,
		`SELECT id, key, value, repo_id FROM option WHERE repo_id = ?`, repoID)
	return opts, err
}

// UpsertLabel finds or creates the label row for value, returning its id.
func UpsertLabel(ctx context.Context, db DB, value string) (int64, error) {
	var existing struct {
		ID int64 `db:"id"`
	}
	err := db.Get(ctx, &existing, `SELECT id FROM label WHERE value = ?`, value)
	if err == nil {
		return existing.ID, nil
	}
	return db.Insert(ctx, "label", &model.Label{Value: value})
}

// AddRepoExcludeLabel attaches value to repoID's exclude list.
func AddRepoExcludeLabel(ctx context.Context, db DB, repoID int64, value string) error {
	labelID, err := UpsertLabel(ctx, db, value)
	if err != nil {
		return err
	}
	return db.Exec(ctx, `INSERT INTO repo_label (repo_id, label_id) VALUES (?, ?)`, repoID, labelID)
}

// AddProfileLabel attaches value to profileID's required-label set.
func AddProfileLabel(ctx context.Context, db DB, profileID int64, value string) error {
	labelID, err := UpsertLabel(ctx, db, value)
	if err != nil {
		return err
	}
	return db.Exec(ctx, `INSERT INTO profile_label (profile_id, label_id) VALUES (?, ?)`, profileID, labelID)
}

// selectStrings is a small helper for single-column string queries that
// don't warrant their own struct type.
func selectStrings(ctx context.Context, db DB, query string, args ...interface{}) ([]string, error) {
	type row struct {
		Value string `db:"value"`
	}
	var rows []row
	if err := db.Select(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Value
	}
	return out, nil
}

// AllChannels returns every Channel for an ecosystem.
func AllChannels(ctx context.Context, db DB, ecosystemID int64) ([]model.Channel, error) {
	var channels []model.Channel
	err := db.Select(ctx, &channels,
		`SELECT id, ecosystem_id, name, ref_pattern FROM channel WHERE ecosystem_id = ?`, ecosystemID)
	return channels, err
}

// AllProfiles returns every Profile for an ecosystem.
func AllProfiles(ctx context.Context, db DB, ecosystemID int64) ([]model.Profile, error) {
	var profiles []model.Profile
	err := db.Select(ctx, &profiles,
		`SELECT id, ecosystem_id, name, platform, conan_profile, container FROM profile WHERE ecosystem_id = ?`,
		ecosystemID)
	return profiles, err
}

// ChannelByID loads a single Channel, used by the Agent to resolve a
// leased Build's commit back to the conan channel name it builds under.
func ChannelByID(ctx context.Context, db DB, id int64) (*model.Channel, error) {
	var c model.Channel
	if err := db.Get(ctx, &c,
		`SELECT id, ecosystem_id, name, ref_pattern FROM channel WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("loading channel %d: %w", id, err)
	}
	return &c, nil
}

// ProfileByID loads a single Profile, used by the Agent to resolve a leased
// Build's container image and conan profile name.
func ProfileByID(ctx context.Context, db DB, id int64) (*model.Profile, error) {
	var p model.Profile
	if err := db.Get(ctx, &p,
		`SELECT id, ecosystem_id, name, platform, conan_profile, container FROM profile WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("loading profile %d: %w", id, err)
	}
	return &p, nil
}

// ExistingCommit returns the id of a stored Commit matching repo/channel/sha, or 0 if none exists.
func ExistingCommit(ctx context.Context, db DB, repoID, channelID int64, sha string) (int64, error) {
	type row struct {
		ID int64 `db:"id"`
	}
	var rows []row
	if err := db.Select(ctx, &rows,
		`SELECT id FROM commit_ WHERE repo_id = ? AND channel_id = ? AND sha = ?`, repoID, channelID, sha); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].ID, nil
}

// OldCommits returns commits on the same repo/channel with a different sha
// that have not yet been marked old; used by the crawler's supersede check.
func OldCommits(ctx context.Context, db DB, repoID, channelID int64, sha string) ([]model.Commit, error) {
	var commits []model.Commit
	err := db.Select(ctx, &commits,
		`SELECT id, status, sha, message, user_name, user_email, repo_id, channel_id FROM commit_
		 WHERE repo_id = ? AND channel_id = ? AND sha != ? AND status != ?`,
		repoID, channelID, sha, model.CommitOld)
	return commits, err
}

// MarkCommitOld sets a commit's status to old.
func MarkCommitOld(ctx context.Context, db DB, commitID int64) error {
	return db.Exec(ctx, `UPDATE commit_ SET status = ? WHERE id = ?`, model.CommitOld, commitID)
}

// InsertCommit records a newly-discovered commit with status "new".
func InsertCommit(ctx context.Context, db DB, c *model.Commit) (int64, error) {
	c.Status = model.CommitNew
	return db.Insert(ctx, "commit_", c)
}

// NewCommits returns every Commit with status "new", for the scheduler's fan-out.
func NewCommits(ctx context.Context, db DB) ([]model.Commit, error) {
	var commits []model.Commit
	err := db.Select(ctx, &commits,
		`SELECT id, status, sha, message, user_name, user_email, repo_id, channel_id FROM commit_ WHERE status = ?`,
		model.CommitNew)
	return commits, err
}

// CommitByID loads a single Commit.
func CommitByID(ctx context.Context, db DB, id int64) (*model.Commit, error) {
	var c model.Commit
	if err := db.Get(ctx, &c,
		`SELECT id, status, sha, message, user_name, user_email, repo_id, channel_id FROM commit_ WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("loading commit %d: %w", id, err)
	}
	return &c, nil
}

// SetCommitStatus updates a commit's status.
func SetCommitStatus(ctx context.Context, db DB, commitID int64, status model.CommitStatus) error {
	return db.Exec(ctx, `UPDATE commit_ SET status = ? WHERE id = ?`, status, commitID)
}

// InsertBuild records a new Build in status "new".
func InsertBuild(ctx context.Context, db DB, commitID, profileID int64) (int64, error) {
	b := model.Build{
		Created:   time.Now().UTC(),
		Status:    model.BuildNew,
		CommitID:  commitID,
		ProfileID: profileID,
	}
	return db.Insert(ctx, "build", &b)
}

// CountBuildsByStatus returns how many builds currently have the given status.
func CountBuildsByStatus(ctx context.Context, db DB, status model.BuildStatus) (int, error) {
	type row struct {
		N int `db:"n"`
	}
	var rows []row
	if err := db.Select(ctx, &rows, `SELECT COUNT(*) AS n FROM build WHERE status = ?`, status); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].N, nil
}

// LeaseBuild atomically finds the oldest new Build for a Profile platform
// and marks it active, returning nil if none are available. It must be
// called within db.WithTx so the underlying SELECT ... FOR UPDATE SKIP
// LOCKED (or SQLite's equivalent single-writer serialization) excludes the
// row from other Agents racing for work.
func LeaseBuild(ctx context.Context, tx DB, platform model.Platform) (*model.Build, error) {
	var rows []model.Build
	query := leaseBuildQuery(tx.Driver())
	if err := tx.Select(ctx, &rows, query, platform); err != nil {
		return nil, fmt.Errorf("leasing build: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	build := rows[0]
	if err := tx.Exec(ctx, `UPDATE build SET status = ? WHERE id = ?`, model.BuildActive, build.ID); err != nil {
		return nil, fmt.Errorf("marking build %d active: %w", build.ID, err)
	}
	build.Status = model.BuildActive
	return &build, nil
}

func leaseBuildQuery(driver string) string {
	base := `SELECT build.id, build.created, build.status, build.commit_id, build.package_id, build.recipe_revision_id, build.profile_id
		FROM build JOIN profile ON profile.id = build.profile_id
		WHERE build.status = 'new' AND profile.platform = ?
		ORDER BY build.created ASC LIMIT 1`
	if driver == "mysql" {
		return base + ` FOR UPDATE SKIP LOCKED`
	}
	// SQLite's single connection/single-writer pool already serializes
	// concurrent transactions; SKIP LOCKED has no SQLite equivalent and
	// isn't needed for a single-process deployment.
	return base
}

// BuildByID loads a single Build.
func BuildByID(ctx context.Context, db DB, id int64) (*model.Build, error) {
	var b model.Build
	if err := db.Get(ctx, &b,
		`SELECT id, created, status, commit_id, package_id, recipe_revision_id, profile_id FROM build WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("loading build %d: %w", id, err)
	}
	return &b, nil
}

// SetBuildStatus updates a build's status.
func SetBuildStatus(ctx context.Context, db DB, buildID int64, status model.BuildStatus) error {
	return db.Exec(ctx, `UPDATE build SET status = ? WHERE id = ?`, status, buildID)
}

// ClearBuildDependencyState removes a build's package/missing-recipe/
// missing-package associations before the result manager recomputes them.
func ClearBuildDependencyState(ctx context.Context, db DB, buildID int64) error {
	if err := db.Exec(ctx, `UPDATE build SET package_id = NULL, recipe_revision_id = NULL WHERE id = ?`, buildID); err != nil {
		return err
	}
	if err := db.Exec(ctx, `DELETE FROM missing_recipe WHERE build_id = ?`, buildID); err != nil {
		return err
	}
	return db.Exec(ctx, `DELETE FROM missing_package WHERE build_id = ?`, buildID)
}

// SetBuildPackage records the Package a build produced.
func SetBuildPackage(ctx context.Context, db DB, buildID, packageID int64) error {
	return db.Exec(ctx, `UPDATE build SET package_id = ? WHERE id = ?`, packageID, buildID)
}

// SetBuildRecipeRevision records a build's recipe revision directly, for the
// recipe-only outcome where Conan produced no package node to hang it off
// of via SetBuildPackage.
func SetBuildRecipeRevision(ctx context.Context, db DB, buildID, recipeRevisionID int64) error {
	return db.Exec(ctx, `UPDATE build SET recipe_revision_id = ? WHERE id = ?`, recipeRevisionID, buildID)
}

// AddMissingRecipe records that a build is waiting on a Recipe.
func AddMissingRecipe(ctx context.Context, db DB, buildID, recipeID int64) error {
	return db.Exec(ctx, `INSERT INTO missing_recipe (build_id, recipe_id) VALUES (?, ?)`, buildID, recipeID)
}

// AddMissingPackage records that a build is waiting on a Package.
func AddMissingPackage(ctx context.Context, db DB, buildID, packageID int64) error {
	return db.Exec(ctx, `INSERT INTO missing_package (build_id, package_id) VALUES (?, ?)`, buildID, packageID)
}

// InsertRun records a new Run for a Build.
func InsertRun(ctx context.Context, db DB, buildID int64) (int64, error) {
	now := time.Now().UTC()
	r := model.Run{Started: now, Updated: now, Status: model.RunActive, BuildID: buildID}
	return db.Insert(ctx, "run", &r)
}

// TouchRun bumps a Run's Updated timestamp (called on every log batch) and
// optionally its status.
func TouchRun(ctx context.Context, db DB, runID int64, status model.RunStatus) error {
	return db.Exec(ctx, `UPDATE run SET updated = ?, status = ? WHERE id = ?`, time.Now().UTC(), status, runID)
}

// CountLogLines returns how many log lines a Run already has, used to
// number the next append batch contiguously.
func CountLogLines(ctx context.Context, db DB, runID int64) (int, error) {
	type row struct {
		N int `db:"n"`
	}
	var rows []row
	if err := db.Select(ctx, &rows, `SELECT COUNT(*) AS n FROM log_line WHERE run_id = ?`, runID); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].N, nil
}

// maxLogLineBytes bounds the stored content of a single log line.
const maxLogLineBytes = 64 * 1024

// AppendLogLines inserts a batch of log lines for a Run, numbered
// sequentially starting at startNumber, and returns the id of the last line
// inserted (0 if lines is empty) so the caller can publish a precise bus
// update. Lines longer than maxLogLineBytes are truncated.
func AppendLogLines(ctx context.Context, db DB, runID int64, startNumber int, lines [][]byte) (int64, error) {
	now := time.Now().UTC()
	var lastID int64
	for i, content := range lines {
		if len(content) > maxLogLineBytes {
			content = content[:maxLogLineBytes]
		}
		ll := model.LogLine{
			Number:  startNumber + i,
			Time:    now,
			Content: content,
			RunID:   runID,
		}
		id, err := db.Insert(ctx, "log_line", &ll)
		if err != nil {
			return 0, fmt.Errorf("appending log line: %w", err)
		}
		lastID = id
	}
	return lastID, nil
}

// StalledRuns returns Runs whose Updated timestamp is older than stallAfter
// and whose Build has the given status, joined for the watchdog sweep.
func StalledRuns(ctx context.Context, db DB, buildStatus model.BuildStatus, stallAfter time.Time) ([]model.Run, error) {
	var runs []model.Run
	err := db.Select(ctx, &runs,
		`SELECT run.id, run.started, run.updated, run.status, run.build_id FROM run
		 JOIN build ON build.id = run.build_id
		 WHERE run.updated < ? AND build.status = ?`, stallAfter, buildStatus)
	return runs, err
}

// SetRunStatus updates a run's status.
func SetRunStatus(ctx context.Context, db DB, runID int64, status model.RunStatus) error {
	return db.Exec(ctx, `UPDATE run SET status = ? WHERE id = ?`, status, runID)
}

// FindRecipe finds a Recipe by its exact coordinates within an ecosystem.
func FindRecipe(ctx context.Context, db DB, ecosystemID int64, name, version, user, channel string) (*model.Recipe, error) {
	var recipes []model.Recipe
	if err := db.Select(ctx, &recipes,
		`SELECT id, ecosystem_id, name, version, user, channel, current_revision_id FROM recipe
		 WHERE ecosystem_id = ? AND name = ? AND version = ? AND user = ? AND channel = ?`,
		ecosystemID, name, version, user, channel); err != nil {
		return nil, err
	}
	if len(recipes) == 0 {
		return nil, nil
	}
	return &recipes[0], nil
}

// SetRecipeCurrentRevision records the RecipeRevision a still-building
// commit most recently produced for this Recipe.
func SetRecipeCurrentRevision(ctx context.Context, db DB, recipeID, revisionID int64) error {
	return db.Exec(ctx, `UPDATE recipe SET current_revision_id = ? WHERE id = ?`, revisionID, recipeID)
}

// UpsertRecipe finds or creates a Recipe by coordinates.
func UpsertRecipe(ctx context.Context, db DB, ecosystemID int64, name, version, user, channel string) (*model.Recipe, error) {
	existing, err := FindRecipe(ctx, db, ecosystemID, name, version, user, channel)
	if err != nil {
		return nil, fmt.Errorf("looking up recipe: %w", err)
	}
	if existing != nil {
		return existing, nil
	}
	r := model.Recipe{EcosystemID: ecosystemID, Name: name, Version: version, User: user, Channel: channel}
	id, err := db.Insert(ctx, "recipe", &r)
	if err != nil {
		return nil, fmt.Errorf("inserting recipe: %w", err)
	}
	r.ID = id
	return &r, nil
}

// FindRecipeRevision finds a RecipeRevision by recipe + revision string.
func FindRecipeRevision(ctx context.Context, db DB, recipeID int64, revision string) (*model.RecipeRevision, error) {
	var revisions []model.RecipeRevision
	if err := db.Select(ctx, &revisions,
		`SELECT id, recipe_id, revision FROM recipe_revision WHERE recipe_id = ? AND revision = ?`,
		recipeID, revision); err != nil {
		return nil, err
	}
	if len(revisions) == 0 {
		return nil, nil
	}
	return &revisions[0], nil
}

// UpsertRecipeRevision finds or creates a RecipeRevision.
func UpsertRecipeRevision(ctx context.Context, db DB, recipeID int64, revision string) (*model.RecipeRevision, error) {
	existing, err := FindRecipeRevision(ctx, db, recipeID, revision)
	if err != nil {
		return nil, fmt.Errorf("looking up recipe revision: %w", err)
	}
	if existing != nil {
		return existing, nil
	}
	rr := model.RecipeRevision{RecipeID: recipeID, Revision: revision}
	id, err := db.Insert(ctx, "recipe_revision", &rr)
	if err != nil {
		return nil, fmt.Errorf("inserting recipe revision: %w", err)
	}
	rr.ID = id
	return &rr, nil
}

// FindPackage finds a Package by package-id + recipe revision.
func FindPackage(ctx context.Context, db DB, packageID string, recipeRevisionID int64) (*model.Package, error) {
	var packages []model.Package
	if err := db.Select(ctx, &packages,
		`SELECT id, package_id, recipe_revision_id FROM package WHERE package_id = ? AND recipe_revision_id = ?`,
		packageID, recipeRevisionID); err != nil {
		return nil, err
	}
	if len(packages) == 0 {
		return nil, nil
	}
	return &packages[0], nil
}

// UpsertPackage finds or creates a Package.
func UpsertPackage(ctx context.Context, db DB, packageID string, recipeRevisionID int64) (*model.Package, error) {
	existing, err := FindPackage(ctx, db, packageID, recipeRevisionID)
	if err != nil {
		return nil, fmt.Errorf("looking up package: %w", err)
	}
	if existing != nil {
		return existing, nil
	}
	p := model.Package{PackageID: packageID, RecipeRevisionID: recipeRevisionID}
	id, err := db.Insert(ctx, "package", &p)
	if err != nil {
		return nil, fmt.Errorf("inserting package: %w", err)
	}
	p.ID = id
	return &p, nil
}

// SetPackageRequirements replaces the requirement edges for a Package.
func SetPackageRequirements(ctx context.Context, db DB, packageID int64, requirementIDs []int64) error {
	if err := db.Exec(ctx, `DELETE FROM package_requirement WHERE package_id = ?`, packageID); err != nil {
		return err
	}
	for _, reqID := range requirementIDs {
		if err := db.Exec(ctx,
			`INSERT INTO package_requirement (package_id, requirement_id) VALUES (?, ?)`,
			packageID, reqID); err != nil {
			return err
		}
	}
	return nil
}

// BuildsWaitingOnRecipe returns error-status builds of still-building commits
// that are waiting on recipeID.
func BuildsWaitingOnRecipe(ctx context.Context, db DB, recipeID int64) ([]model.Build, error) {
	var builds []model.Build
	err := db.Select(ctx, &builds,
		`SELECT build.id, build.created, build.status, build.commit_id, build.package_id, build.recipe_revision_id, build.profile_id
		 FROM build
		 JOIN missing_recipe ON missing_recipe.build_id = build.id
		 JOIN commit_ ON commit_.id = build.commit_id
		 WHERE build.status = ? AND missing_recipe.recipe_id = ? AND commit_.status = ?`,
		model.BuildError, recipeID, model.CommitBuilding)
	return builds, err
}

// BuildsWaitingOnPackageExact returns error-status builds waiting on the
// exact package (same recipe revision, same package-id).
func BuildsWaitingOnPackageExact(ctx context.Context, db DB, packageID int64) ([]model.Build, error) {
	var builds []model.Build
	err := db.Select(ctx, &builds,
		`SELECT build.id, build.created, build.status, build.commit_id, build.package_id, build.recipe_revision_id, build.profile_id
		 FROM build
		 JOIN missing_package ON missing_package.build_id = build.id
		 JOIN commit_ ON commit_.id = build.commit_id
		 WHERE build.status = ? AND missing_package.package_id = ? AND commit_.status = ?`,
		model.BuildError, packageID, model.CommitBuilding)
	return builds, err
}

// BuildsWaitingOnPackageCrossRevision returns error-status builds waiting on
// any package-id of the same recipe, but under a different recipe revision
// than the one supplied. A build is triggered regardless of the exact
// package-id because the package-id may be computed differently for a
// different recipe revision.
func BuildsWaitingOnPackageCrossRevision(ctx context.Context, db DB, recipeID int64, revision string) ([]model.Build, error) {
	var builds []model.Build
	err := db.Select(ctx, &builds,
		`SELECT DISTINCT build.id, build.created, build.status, build.commit_id, build.package_id, build.recipe_revision_id, build.profile_id
		 FROM build
		 JOIN missing_package ON missing_package.build_id = build.id
		 JOIN commit_ ON commit_.id = build.commit_id
		 JOIN package ON package.id = missing_package.package_id
		 JOIN recipe_revision ON recipe_revision.id = package.recipe_revision_id
		 WHERE build.status = ? AND commit_.status = ?
		   AND recipe_revision.recipe_id = ? AND recipe_revision.revision != ?`,
		model.BuildError, model.CommitBuilding, recipeID, revision)
	return builds, err
}
