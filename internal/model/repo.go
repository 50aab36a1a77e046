package model

// Label is a free-form string tag attached to a Repo (as an exclusion) or a
// Profile (as a build requirement). The many-to-many join tables are
// repo_label and profile_label.
type Label struct {
	ID    int64  `json:"id"    db:"id"`
	Value string `json:"value" db:"value"`
}

// Option is a repo-scoped conan configuration override, stored as a plain
// key/value pair (e.g. "build_type=Debug").
type Option struct {
	ID     int64  `json:"id"     db:"id"`
	RepoID int64  `json:"repo_id" db:"repo_id"`
	Key    string `json:"key"    db:"key"`
	Value  string `json:"value"  db:"value"`
}

// Repo is a single cloneable source repository. Path, when set, scopes the
// crawler's has-diff check to a subdirectory: a commit that doesn't touch
// Path is not built, matching a monorepo layout where many recipes live
// side by side.
type Repo struct {
	ID          int64  `json:"id"          db:"id"`
	EcosystemID int64  `json:"ecosystem_id" db:"ecosystem_id"`
	Name        string `json:"name"        db:"name"`
	URL         string `json:"url"         db:"url"`
	Path        string `json:"path"        db:"path"`
	Version     string `json:"version"     db:"version"`
}

// Channel names a ref pattern within an Ecosystem: in each of its Repos,
// every branch or tag matching
// RefPattern is crawled and, on a new commit, built under this Channel. The
// legacy conan_channel/branch pair from earlier schema revisions is
// deprecated in favor of RefPattern and is not implemented.
type Channel struct {
	ID          int64  `json:"id"          db:"id"`
	EcosystemID int64  `json:"ecosystem_id" db:"ecosystem_id"`
	Name        string `json:"name"        db:"name"`
	RefPattern  string `json:"ref_pattern" db:"ref_pattern"`
}

// Platform identifies which Agent builds a Profile.
type Platform string

const (
	PlatformLinux   Platform = "linux"
	PlatformWindows Platform = "windows"
)

// Profile is one build configuration: a conan profile name, the container
// image to build it in, and the set of labels a Repo's exclude list is
// checked against before scheduling.
type Profile struct {
	ID           int64    `json:"id"            db:"id"`
	EcosystemID  int64    `json:"ecosystem_id"  db:"ecosystem_id"`
	Name         string   `json:"name"          db:"name"`
	Platform     Platform `json:"platform"      db:"platform"`
	ConanProfile string   `json:"conan_profile" db:"conan_profile"`
	Container    string   `json:"container"     db:"container"`
}
