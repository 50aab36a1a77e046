package model

import "time"

// BuildStatus is the state machine driven jointly by the Agent (new ->
// active -> success|error, or active -> stopping -> stopped) and the
// Watchdog (active -> new on a stall, to retry; stopping -> stopped on a
// stall, to give up cleanly).
type BuildStatus string

const (
	BuildNew      BuildStatus = "new"
	BuildActive   BuildStatus = "active"
	BuildError    BuildStatus = "error"
	BuildSuccess  BuildStatus = "success"
	BuildStopping BuildStatus = "stopping"
	BuildStopped  BuildStatus = "stopped"
)

// Build is one attempt (possibly retried across several Runs) to build a
// Commit with a Profile. MissingRecipeIDs/MissingPackageIDs record, for a
// build that ended in error because a dependency recipe or package-id
// wasn't yet available, exactly what is being waited on so the result
// manager can re-trigger this build the moment that dependency appears.
type Build struct {
	ID               int64       `json:"id"                 db:"id"`
	Created          time.Time   `json:"created"            db:"created"`
	Status           BuildStatus `json:"status"             db:"status"`
	CommitID         int64       `json:"commit_id"          db:"commit_id"`
	PackageID        *int64      `json:"package_id"         db:"package_id"`
	RecipeRevisionID *int64      `json:"recipe_revision_id" db:"recipe_revision_id"`
	ProfileID        int64       `json:"profile_id"         db:"profile_id"`
}

// MissingRecipe associates a Build with a Recipe it is waiting on (no
// RecipeRevision of that Recipe exists yet).
type MissingRecipe struct {
	BuildID  int64 `json:"build_id"  db:"build_id"`
	RecipeID int64 `json:"recipe_id" db:"recipe_id"`
}

// MissingPackage associates a Build with a specific Package (a package-id
// under a RecipeRevision) it is waiting on.
type MissingPackage struct {
	BuildID   int64 `json:"build_id"   db:"build_id"`
	PackageID int64 `json:"package_id" db:"package_id"`
}

// RunStatus mirrors BuildStatus for the lifetime of a single container
// execution; "stalled" is Run-only and is how the Watchdog marks a Run it
// gave up waiting on.
type RunStatus string

const (
	RunActive  RunStatus = "active"
	RunError   RunStatus = "error"
	RunSuccess RunStatus = "success"
	RunStopped RunStatus = "stopped"
	RunStalled RunStatus = "stalled"
)

// Run is one container execution attempt of a Build. Updated is bumped on
// every log line and status change; the Watchdog treats a Run whose Updated
// timestamp is older than its stall period as stuck.
type Run struct {
	ID      int64     `json:"id"      db:"id"`
	Started time.Time `json:"started" db:"started"`
	Updated time.Time `json:"updated" db:"updated"`
	Status  RunStatus `json:"status"  db:"status"`
	BuildID int64     `json:"build_id" db:"build_id"`
}

// LogLine is one line of build output, numbered within its Run so a client
// can resume tailing from an offset.
type LogLine struct {
	ID      int64     `json:"id"      db:"id"`
	Number  int       `json:"number"  db:"number"`
	Time    time.Time `json:"time"    db:"time"`
	Content []byte    `json:"content" db:"content"` // binary-safe; the store truncates a line at 64KiB
	RunID   int64     `json:"run_id"  db:"run_id"`
}
