package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/buildforge/buildforge/internal/agent/builder"
	"github.com/buildforge/buildforge/internal/model"
	"github.com/buildforge/buildforge/internal/store"
)

// buildParams assembles everything the build container needs from the
// domain rows surrounding a leased Build, mirroring the `parameters` dict
// agent.py builds while leasing. Channel's conan channel name is
// Channel.Name itself (the deprecated conan_channel/branch split from the
// original schema is not implemented; see the ref_pattern decision).
func buildParams(ctx context.Context, db store.DB, build *model.Build, commit *model.Commit, repo *model.Repo, profile *model.Profile, ecosystem *model.Ecosystem, channel *model.Channel, mtu int) (builder.Params, error) {
	options, err := store.RepoOptions(ctx, db, repo.ID)
	if err != nil {
		return builder.Params{}, fmt.Errorf("loading repo options: %w", err)
	}
	optionArgs := make([]string, 0, len(options))
	for _, o := range options {
		optionArgs = append(optionArgs, fmt.Sprintf("-o %s=%s", o.Key, o.Value))
	}

	gitCreds, err := store.GitCredentials(ctx, db, ecosystem.ID)
	if err != nil {
		return builder.Params{}, fmt.Errorf("loading git credentials: %w", err)
	}
	creds := make([]builder.Credential, len(gitCreds))
	for i, c := range gitCreds {
		creds[i] = builder.Credential{URL: c.URL, Username: c.Username, Password: c.Password}
	}

	dockerUser, dockerPassword, err := dockerCredentialsFor(ctx, db, ecosystem.ID, profile.Container)
	if err != nil {
		return builder.Params{}, err
	}

	return builder.Params{
		ConanConfigURL:    ecosystem.ConanConfigURL,
		ConanConfigPath:   ecosystem.ConanConfigPath,
		ConanConfigBranch: ecosystem.ConanConfigBranch,
		ConanRemote:       ecosystem.ConanRemote,
		ConanUser:         ecosystem.ConanUser,
		ConanPassword:     ecosystem.ConanPassword,
		ConanProfile:      profile.ConanProfile,
		ConanOptions:      strings.Join(optionArgs, " "),

		GitURL:         repo.URL,
		GitSHA:         commit.SHA,
		GitCredentials: creds,

		SonjaUser: ecosystem.User,
		Channel:   channel.Name,
		Version:   repo.Version,
		Path:      conanfilePath(repo.Path),

		SSHKey:     ecosystem.SSHKey,
		KnownHosts: ecosystem.KnownHosts,

		DockerUser:     dockerUser,
		DockerPassword: dockerPassword,

		MTU: mtu,
	}, nil
}

func conanfilePath(repoPath string) string {
	if repoPath == "" {
		return "./conanfile.py"
	}
	return fmt.Sprintf("./%s/conanfile.py", repoPath)
}

// dockerCredentialsFor matches the build profile's container image against
// the ecosystem's configured registry logins by host prefix -- grounded on
// builder.py's `next(c for c in docker_credentials if c["server"] == server)`
// lookup. There is no docker_user/docker_password column on Profile in this
// schema (unlike agent.py's parameter dict, which reads them off
// build.profile directly); registry credentials are a property of the
// registry, not of the profile using it, so they live on DockerCredential.
func dockerCredentialsFor(ctx context.Context, db store.DB, ecosystemID int64, image string) (user, password string, err error) {
	creds, err := store.DockerCredentials(ctx, db, ecosystemID)
	if err != nil {
		return "", "", fmt.Errorf("loading docker credentials: %w", err)
	}
	for _, c := range creds {
		if c.Server != "" && strings.HasPrefix(image, c.Server) {
			return c.Username, c.Password, nil
		}
	}
	return "", "", nil
}
