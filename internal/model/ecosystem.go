// Package model defines the persisted entities of the coordination plane:
// the Conan-style recipe/package dependency graph and the repo/commit/build
// pipeline that produces it.
package model

// Ecosystem is the process-wide root configuration: the Conan remote, the
// SSH identity used to clone repositories, and the credentials handed to
// build containers. Exactly one row is expected to exist; see
// store.GetEcosystem.
type Ecosystem struct {
	ID                int64  `json:"id"                  db:"id"`
	Name              string `json:"name"                db:"name"`
	User              string `json:"user"                db:"user"`
	PublicSSHKey      string `json:"public_ssh_key"      db:"public_ssh_key"`
	SSHKey            string `json:"-"                   db:"ssh_key"` // base64, never serialized back over the API
	KnownHosts        string `json:"-"                   db:"known_hosts"`
	ConanConfigURL    string `json:"conan_config_url"    db:"conan_config_url"`
	ConanConfigPath   string `json:"conan_config_path"   db:"conan_config_path"`
	ConanConfigBranch string `json:"conan_config_branch" db:"conan_config_branch"`
	ConanRemote       string `json:"conan_remote"        db:"conan_remote"`
	ConanUser         string `json:"conan_user"          db:"conan_user"`
	ConanPassword     string `json:"-"                   db:"conan_password"`
}

// GitCredential is an HTTP(S) git credential scoped to an Ecosystem, used
// as HTTP basic auth by the crawler and rendered into a git credential
// helper script for the build container.
type GitCredential struct {
	ID          int64  `json:"id"          db:"id"`
	EcosystemID int64  `json:"ecosystem_id" db:"ecosystem_id"`
	URL         string `json:"url"         db:"url"`
	Username    string `json:"username"    db:"username"`
	Password    string `json:"-"           db:"password"`
}

// DockerCredential is a registry login scoped to an Ecosystem, matched by
// host prefix against the image reference a Profile builds with.
type DockerCredential struct {
	ID          int64  `json:"id"          db:"id"`
	EcosystemID int64  `json:"ecosystem_id" db:"ecosystem_id"`
	Server      string `json:"server"      db:"server"`
	Username    string `json:"username"    db:"username"`
	Password    string `json:"-"           db:"password"`
}
