package builder

import (
	"archive/tar"
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"io"
	"text/template"
)

//go:embed scripts/build.sh.in scripts/build.ps1.in
var scriptFS embed.FS

const (
	buildPackageDirName = "conan_build_package"
	buildOutputDirName  = "conan_output"
)

func scriptTemplateName(platform Platform) string {
	if platform == PlatformWindows {
		return "scripts/build.ps1.in"
	}
	return "scripts/build.sh.in"
}

// scriptName is the in-container file name the template renders to: the
// ".in" suffix is stripped, matching the teacher's template naming.
func scriptName(platform Platform) string {
	if platform == PlatformWindows {
		return "build.ps1"
	}
	return "build.sh"
}

// createBuildTar renders the platform build script from rp and packs it,
// alongside the credential helper and the ecosystem's SSH identity, into a
// tar archive ready for Builder.Setup to upload via UploadToContainer.
func createBuildTar(platform Platform, rp renderParams) (io.Reader, error) {
	tmplName := scriptTemplateName(platform)
	raw, err := scriptFS.ReadFile(tmplName)
	if err != nil {
		return nil, fmt.Errorf("reading build script template: %w", err)
	}
	tmpl, err := template.New(tmplName).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing build script template: %w", err)
	}
	var script bytes.Buffer
	if err := tmpl.Execute(&script, rp); err != nil {
		return nil, fmt.Errorf("rendering build script: %w", err)
	}

	sshKey, err := base64.StdEncoding.DecodeString(rp.SSHKey)
	if err != nil {
		return nil, fmt.Errorf("decoding ssh key: %w", err)
	}
	knownHosts, err := base64.StdEncoding.DecodeString(rp.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("decoding known_hosts: %w", err)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	add := func(name string, content []byte, mode int64) error {
		hdr := &tar.Header{
			Name: buildPackageDirName + "/" + name,
			Mode: mode,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		_, err := tw.Write(content)
		return err
	}

	if err := add(scriptName(platform), script.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("adding build script: %w", err)
	}
	if err := add("credential_helper.sh", []byte(renderCredentialHelper(rp.GitCredentials)), 0o555); err != nil {
		return nil, fmt.Errorf("adding credential helper: %w", err)
	}
	if err := add("id_rsa", sshKey, 0o600); err != nil {
		return nil, fmt.Errorf("adding ssh key: %w", err)
	}
	if err := add("known_hosts", knownHosts, 0o644); err != nil {
		return nil, fmt.Errorf("adding known_hosts: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing build tar: %w", err)
	}

	return &buf, nil
}

// extractOutputTar reads create.json/info.json/lock.json out of a tar stream
// rooted at buildOutputDirName, as returned by DownloadFromContainer. A
// missing entry is simply absent from the result, matching the Python
// original's best-effort extraction (info.json in particular is optional).
func extractOutputTar(r io.Reader) (map[string][]byte, error) {
	result := make(map[string][]byte)
	tr := tar.NewReader(r)
	wanted := map[string]string{
		buildOutputDirName + "/create.json": "create",
		buildOutputDirName + "/info.json":   "info",
		buildOutputDirName + "/lock.json":   "lock",
	}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading build output tar: %w", err)
		}
		key, ok := wanted[hdr.Name]
		if !ok {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("reading %s from output tar: %w", hdr.Name, err)
		}
		result[key] = data
	}
	return result, nil
}
