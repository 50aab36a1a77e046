package builder

import "github.com/buildforge/buildforge/internal/model"

// Credential is one HTTP git credential handed to the build container's
// credential helper script; it is the container-facing copy of
// model.GitCredential, kept separate so the builder package never imports
// the store layer.
type Credential struct {
	URL      string
	Username string
	Password string
}

// Params is everything the build container needs to check out, configure,
// and build a single commit -- the Go analogue of agent.py's `parameters`
// dict, materialized as a struct so the template and the credential
// renderer share one source of truth.
type Params struct {
	ConanConfigURL    string
	ConanConfigPath   string
	ConanConfigBranch string
	ConanRemote       string
	ConanUser         string
	ConanPassword     string
	ConanProfile      string
	ConanOptions      string // pre-joined "-o key=value -o key2=value2"

	GitURL         string
	GitSHA         string
	GitCredentials []Credential

	SonjaUser string
	Channel   string
	Version   string
	Path      string // path to conanfile.py, relative to the repo root

	SSHKey     string // base64
	KnownHosts string // base64

	DockerUser     string
	DockerPassword string

	MTU int
}

// renderParams is Params plus the OS-specific paths the setup phase derives;
// these are computed once Builder knows build_os and therefore live
// separately from the caller-supplied Params.
type renderParams struct {
	Params

	BuildPackageDir         string
	EscapedBuildPackageDir  string
	BuildOutputDir          string
	CreateReference         string
	InfoReference           string
	LockArgs                string
	ConanConfigArgs         string
}

// Platform identifies which script template and path conventions a Builder
// uses; it mirrors model.Platform without importing the model package (the
// builder is a generic container driver, not domain-aware).
type Platform string

const (
	PlatformLinux   Platform = "linux"
	PlatformWindows Platform = "windows"
)
