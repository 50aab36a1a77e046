package builder

import (
	"strings"
	"testing"
)

func TestConanConfigArgsOmitsOptionalPieces(t *testing.T) {
	got := conanConfigArgs(Params{ConanConfigURL: "https://example.com/config.git"})
	want := "https://example.com/config.git --type=git"
	if got != want {
		t.Fatalf("conanConfigArgs() = %q, want %q", got, want)
	}
}

func TestConanConfigArgsIncludesBranchAndPath(t *testing.T) {
	got := conanConfigArgs(Params{
		ConanConfigURL:    "https://example.com/config.git",
		ConanConfigBranch: "release",
		ConanConfigPath:   "default",
	})
	if !strings.Contains(got, `--args "-b release"`) {
		t.Fatalf("conanConfigArgs() = %q, missing branch arg", got)
	}
	if !strings.Contains(got, "-sf default") {
		t.Fatalf("conanConfigArgs() = %q, missing path arg", got)
	}
}

func TestUserChannelEmptyWithoutUser(t *testing.T) {
	if got := userChannel(Params{Channel: "stable"}); got != "" {
		t.Fatalf("userChannel() = %q, want empty", got)
	}
}

func TestUserChannelJoinsUserAndChannel(t *testing.T) {
	got := userChannel(Params{SonjaUser: "agent", Channel: "stable"})
	if got != "agent/stable" {
		t.Fatalf("userChannel() = %q, want agent/stable", got)
	}
}

func TestCreateReferenceEmptyWithNoVersionOrUser(t *testing.T) {
	if got := createReference(Params{}); got != "" {
		t.Fatalf("createReference() = %q, want empty", got)
	}
}

func TestCreateReferenceCombinesVersionAndUserChannel(t *testing.T) {
	got := createReference(Params{Version: "1.2.3", SonjaUser: "agent", Channel: "stable"})
	if got != "1.2.3@agent/stable" {
		t.Fatalf("createReference() = %q, want 1.2.3@agent/stable", got)
	}
}

func TestLockArgsCombinesVersionUserChannel(t *testing.T) {
	got := lockArgs(Params{Version: "1.2.3", SonjaUser: "agent", Channel: "stable"})
	want := "--version 1.2.3 --user agent --channel stable"
	if got != want {
		t.Fatalf("lockArgs() = %q, want %q", got, want)
	}
}

func TestLockArgsEmptyWithNoVersionOrUser(t *testing.T) {
	if got := lockArgs(Params{}); got != "" {
		t.Fatalf("lockArgs() = %q, want empty", got)
	}
}

func TestRenderCredentialHelperMatchesByHost(t *testing.T) {
	script := renderCredentialHelper([]Credential{
		{URL: "https://github.com", Username: "agent", Password: `p"ss`},
	})
	if !strings.Contains(script, `if [ "$host" = "github.com" ]; then`) {
		t.Fatalf("script missing host match: %s", script)
	}
	if !strings.Contains(script, `echo "username=agent"`) {
		t.Fatalf("script missing username line: %s", script)
	}
	if !strings.Contains(script, `echo "password=p\"ss"`) {
		t.Fatalf("script did not escape embedded quote: %s", script)
	}
}

func TestHostOfFallsBackToRawStringOnUnparseableURL(t *testing.T) {
	if got := hostOf("git@github.com:org/repo.git"); got != "git@github.com:org/repo.git" {
		t.Fatalf("hostOf() = %q", got)
	}
}

func TestHostOfExtractsHostFromHTTPURL(t *testing.T) {
	if got := hostOf("https://example.com/path"); got != "example.com" {
		t.Fatalf("hostOf() = %q, want example.com", got)
	}
}

func TestScriptNameMatchesPlatform(t *testing.T) {
	if got := scriptName(PlatformLinux); got != "build.sh" {
		t.Fatalf("scriptName(linux) = %q", got)
	}
	if got := scriptName(PlatformWindows); got != "build.ps1" {
		t.Fatalf("scriptName(windows) = %q", got)
	}
}
