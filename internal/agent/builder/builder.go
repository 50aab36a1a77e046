// Package builder drives a single build to completion inside an ephemeral
// Docker container: pull the image, upload a self-contained build package
// (script + credentials), run it to completion while streaming its log
// output, and collect the Conan JSON files it produced. It is the Go
// analogue of the teacher's container driver, generalized from a Kubernetes
// pod-exec model to a plain `docker run` model since the coordination plane
// here has no cluster to schedule onto.
package builder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	docker "github.com/fsouza/go-dockerclient"
)

// imagePattern splits a docker image reference into (repository, tag),
// tolerating an optional registry host segment. Mirrors the teacher's own
// `docker_image_pattern`.
var imagePattern = regexp.MustCompile(`^(([a-z0-9-]+\.[a-z0-9.-]+(:[0-9]+)?/)?[a-z0-9./-]+)[:@]([a-z0-9.-]+)$`)

// Failed is returned for any error encountered once the container has
// started running the build script -- as opposed to setup/infra errors,
// which are returned as plain wrapped errors. The Agent treats a Failed
// build as "ran and produced a verdict", not "the coordination plane is
// unhealthy".
type Failed struct {
	Err        error
	StatusCode int
}

func (f *Failed) Error() string { return f.Err.Error() }
func (f *Failed) Unwrap() error { return f.Err }

// Builder drives one container's lifetime: Pull, Setup, Run, then Close (or
// Cancel mid-Run) to tear the container down. A Builder is single-use.
type Builder struct {
	client   *docker.Client
	platform Platform
	image    string

	containerID string

	mu        sync.Mutex
	cancelled bool
	logReader *io.PipeReader
	logWriter *io.PipeWriter

	logLines   chan string
	logPending bytes.Buffer

	BuildOutput map[string][]byte
}

// New opens a Builder against the given Docker client for one build.
func New(client *docker.Client, platform Platform, image string) *Builder {
	return &Builder{
		client:      client,
		platform:    platform,
		image:       image,
		BuildOutput: make(map[string][]byte),
		logLines:    make(chan string, 256),
	}
}

func (b *Builder) buildPackageDir() string {
	if b.platform == PlatformWindows {
		return `C:\conan_build_package`
	}
	return "/conan_build_package"
}

func (b *Builder) rootDir() string {
	if b.platform == PlatformWindows {
		return `C:\`
	}
	return "/"
}

func (b *Builder) buildOutputDir() string {
	if b.platform == PlatformWindows {
		return `C:\conan_output`
	}
	return "/tmp/conan_output"
}

func (b *Builder) buildCommand() []string {
	if b.platform == PlatformWindows {
		return []string{"cmd", "/s", "/c", fmt.Sprintf(`powershell -File %s\build.ps1`, b.buildPackageDir())}
	}
	return []string{"sh", fmt.Sprintf("%s/build.sh", b.buildPackageDir())}
}

// Pull fetches the build image unless its tag is literally "local" (an
// operator-built image already present on the Docker host), matching the
// teacher's pull-skip rule for local development images.
func (b *Builder) Pull(ctx context.Context, params Params) error {
	m := imagePattern.FindStringSubmatch(b.image)
	if m == nil {
		return fmt.Errorf("%q is not a valid docker image reference", b.image)
	}
	repository, server, tag := m[1], strings.TrimSuffix(m[2], "/"), m[4]
	if tag == "local" {
		slog.Info("Skipping pull of local image", "image", b.image)
		return nil
	}

	var auth docker.AuthConfiguration
	if server != "" && params.DockerUser != "" {
		auth = docker.AuthConfiguration{
			Username:      params.DockerUser,
			Password:      params.DockerPassword,
			ServerAddress: server,
		}
	}

	slog.Info("Pulling build image", "image", b.image)
	if err := b.client.PullImage(docker.PullImageOptions{
		Context:    ctx,
		Repository: repository,
		Tag:        tag,
	}, auth); err != nil {
		return fmt.Errorf("pulling image %q: %w", b.image, err)
	}
	return nil
}

// Setup creates the container and uploads the rendered build package into
// it but does not start it.
func (b *Builder) Setup(ctx context.Context, params Params) error {
	container, err := b.client.CreateContainer(docker.CreateContainerOptions{
		Context: ctx,
		Config: &docker.Config{
			Image: b.image,
			Cmd:   b.buildCommand(),
		},
		HostConfig: &docker.HostConfig{
			NetworkMode: "bridge",
		},
	})
	if err != nil {
		return fmt.Errorf("creating container from image %q: %w", b.image, err)
	}
	b.containerID = container.ID
	slog.Info("Created build container", "container_id", b.containerID[:12])

	rp := renderParams{
		Params:                 params,
		BuildPackageDir:        b.buildPackageDir(),
		EscapedBuildPackageDir: strings.ReplaceAll(b.buildPackageDir(), `\`, `\\`),
		BuildOutputDir:         b.buildOutputDir(),
		CreateReference:        createReference(params),
		InfoReference:          infoReference(params),
		LockArgs:               lockArgs(params),
		ConanConfigArgs:        conanConfigArgs(params),
	}

	tarball, err := createBuildTar(b.platform, rp)
	if err != nil {
		return fmt.Errorf("building upload archive: %w", err)
	}
	if err := b.client.UploadToContainer(b.containerID, docker.UploadToContainerOptions{
		Context:     ctx,
		InputStream: tarball,
		Path:        b.rootDir(),
	}); err != nil {
		return fmt.Errorf("uploading build files to container %q: %w", b.containerID[:12], err)
	}
	slog.Info("Uploaded build files", "container_id", b.containerID[:12])
	return nil
}

// Run starts the container and blocks until it exits, streaming its combined
// stdout/stderr into the buffer GetLogLines drains as it goes. Call it from its own goroutine (or
// executor, in the teacher's asyncio terms) since it blocks for the
// lifetime of the build.
func (b *Builder) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.cancelled {
		b.mu.Unlock()
		slog.Info("Build was cancelled before it started")
		return nil
	}
	b.logReader, b.logWriter = io.Pipe()
	b.mu.Unlock()

	go b.scanLogLines(b.logReader)

	slog.Info("Starting build container", "container_id", b.containerID[:12])
	if err := b.client.StartContainer(b.containerID, nil); err != nil {
		b.closeLogWriter()
		return fmt.Errorf("starting container %q: %w", b.containerID[:12], err)
	}

	logErr := make(chan error, 1)
	go func() {
		logErr <- b.client.Logs(docker.LogsOptions{
			Context:      ctx,
			Container:    b.containerID,
			OutputStream: b.logWriter,
			ErrorStream:  b.logWriter,
			Stdout:       true,
			Stderr:       true,
			Stream:       true,
			Follow:       true,
		})
	}()
	if err := <-logErr; err != nil {
		slog.Warn("Streaming container logs ended with an error", "error", err)
	}
	b.closeLogWriter()

	b.mu.Lock()
	cancelled := b.cancelled
	b.mu.Unlock()
	if cancelled {
		slog.Info("Build was cancelled")
		return nil
	}

	statusCode, err := b.client.WaitContainer(b.containerID)
	if err != nil {
		return fmt.Errorf("waiting for container %q: %w", b.containerID[:12], err)
	}

	output, err := b.downloadOutput(ctx)
	if err != nil {
		return fmt.Errorf("collecting build output from container %q: %w", b.containerID[:12], err)
	}
	b.BuildOutput = output

	if statusCode != 0 {
		return &Failed{
			Err:        fmt.Errorf("build container %q exited with status %d", b.containerID[:12], statusCode),
			StatusCode: statusCode,
		}
	}
	return nil
}

func (b *Builder) downloadOutput(ctx context.Context) (map[string][]byte, error) {
	var buf bytes.Buffer
	if err := b.client.DownloadFromContainer(b.containerID, docker.DownloadFromContainerOptions{
		Context:      ctx,
		OutputStream: &buf,
		Path:         b.buildOutputDir(),
	}); err != nil {
		return nil, err
	}
	return extractOutputTar(&buf)
}

func (b *Builder) scanLogLines(r io.Reader) {
	buf := make([]byte, 4096)
	var partial []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			partial = append(partial, buf[:n]...)
			for {
				i := bytes.IndexByte(partial, '\n')
				if i < 0 {
					break
				}
				line := strings.TrimRight(string(partial[:i]), "\r")
				select {
				case b.logLines <- line:
				default:
					// Buffer full (slow consumer): this line is dropped
					// rather than blocking container log streaming;
					// GetLogLines drains what's buffered.
				}
				partial = partial[i+1:]
			}
		}
		if err != nil {
			return
		}
	}
}

func (b *Builder) closeLogWriter() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.logWriter != nil {
		_ = b.logWriter.Close()
		b.logWriter = nil
	}
}

// GetLogLines drains every log line buffered since the last call, matching
// the teacher's SimpleQueue-based drain-without-blocking semantics used by
// the Agent's 10-second supervisor tick.
func (b *Builder) GetLogLines() []string {
	var lines []string
	for {
		select {
		case line := <-b.logLines:
			lines = append(lines, line)
		default:
			return lines
		}
	}
}

// Cancel stops accepting new log output and, if the container is mid-Run,
// unblocks the log stream so Run can return. The container itself is torn
// down by Close.
func (b *Builder) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = true
	if b.logReader != nil {
		_ = b.logReader.Close()
	}
}

// Close stops and removes the container. It is safe to call even if Setup
// never created one.
func (b *Builder) Close() {
	if b.containerID == "" {
		return
	}
	if err := b.client.StopContainer(b.containerID, 10); err != nil {
		slog.Warn("Stopping build container", "container_id", b.containerID[:12], "error", err)
	}
	if err := b.client.RemoveContainer(docker.RemoveContainerOptions{ID: b.containerID, Force: true}); err != nil {
		slog.Warn("Removing build container", "container_id", b.containerID[:12], "error", err)
	}
}

func conanConfigArgs(p Params) string {
	args := []string{fmt.Sprintf("%s --type=git", p.ConanConfigURL)}
	if p.ConanConfigBranch != "" {
		args = append(args, fmt.Sprintf(`--args "-b %s"`, p.ConanConfigBranch))
	}
	if p.ConanConfigPath != "" {
		args = append(args, fmt.Sprintf("-sf %s", p.ConanConfigPath))
	}
	return strings.Join(args, " ")
}

func userChannel(p Params) string {
	if p.SonjaUser == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s", p.SonjaUser, p.Channel)
}

func createReference(p Params) string {
	uc := userChannel(p)
	if p.Version == "" && uc == "" {
		return ""
	}
	return fmt.Sprintf("%s@%s", p.Version, uc)
}

func infoReference(p Params) string {
	return userChannel(p)
}

func lockArgs(p Params) string {
	var args []string
	if p.Version != "" {
		args = append(args, fmt.Sprintf("--version %s", p.Version))
	}
	if p.SonjaUser != "" {
		args = append(args, fmt.Sprintf("--user %s --channel %s", p.SonjaUser, p.Channel))
	}
	return strings.Join(args, " ")
}
