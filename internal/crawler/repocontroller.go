package crawler

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/buildforge/buildforge/internal/model"
)

// maxFieldLen is the length commit metadata is truncated to before it is
// stored.
const maxFieldLen = 255

// RepoController drives a single local clone of a Repo: cloning it if
// absent, fetching new refs, and walking commits/refs for the crawler's
// discovery sweep.
type RepoController struct {
	repo     *git.Repository
	localDir string
	auth     transport.AuthMethod
}

// OpenOrClone opens the repo already checked out at localDir, or clones url
// into it if it doesn't exist yet.
func OpenOrClone(localDir, url string, auth transport.AuthMethod) (*RepoController, error) {
	repo, err := git.PlainOpen(localDir)
	if err == nil {
		return &RepoController{repo: repo, localDir: localDir, auth: auth}, nil
	}
	if err != git.ErrRepositoryNotExists {
		return nil, fmt.Errorf("opening %s: %w", localDir, err)
	}

	if err := os.MkdirAll(filepath.Dir(localDir), 0o700); err != nil {
		return nil, fmt.Errorf("creating clone parent: %w", err)
	}
	repo, err = git.PlainClone(localDir, false, &git.CloneOptions{
		URL:  url,
		Auth: auth,
	})
	if err != nil {
		return nil, fmt.Errorf("cloning %s: %w", url, err)
	}
	return &RepoController{repo: repo, localDir: localDir, auth: auth}, nil
}

// Fetch pulls new refs from origin. A "already up-to-date" response is not
// an error.
func (c *RepoController) Fetch() error {
	err := c.repo.Fetch(&git.FetchOptions{
		RemoteName: "origin",
		Auth:       c.auth,
		Force:      true,
		Tags:       git.AllTags,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return fmt.Errorf("fetching: %w", err)
	}
	return nil
}

// CheckoutSHA checks the worktree out at sha, returning false (not an
// error) if sha doesn't resolve to a known object -- the crawler treats an
// unresolvable sha from a webhook payload as "not yet fetched", not fatal.
func (c *RepoController) CheckoutSHA(sha string) (bool, error) {
	hash := plumbing.NewHash(sha)
	if _, err := c.repo.CommitObject(hash); err != nil {
		return false, nil
	}
	wt, err := c.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return false, fmt.Errorf("checking out %s: %w", sha, err)
	}
	return true, nil
}

// CheckoutMatchingRefs checks out, one at a time, every remote branch and
// tag whose normalized name ("heads/<name>" or "tags/<name>") matches
// refPattern, invoking visit after each checkout. Matching mirrors the
// teacher's ref-discovery sweep: branches are read from refs/remotes/origin
// and reported without the remote prefix, tags are read as-is.
func (c *RepoController) CheckoutMatchingRefs(refPattern string, visit func(ref string) error) error {
	re, err := regexp.Compile(refPattern)
	if err != nil {
		return fmt.Errorf("compiling ref pattern %q: %w", refPattern, err)
	}

	refs, err := c.repo.References()
	if err != nil {
		return fmt.Errorf("listing references: %w", err)
	}

	type matchedRef struct {
		normalized string
		hash       plumbing.Hash
	}
	var matches []matchedRef
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		name := ref.Name()
		var normalized string
		switch {
		case strings.HasPrefix(name.String(), "refs/remotes/origin/"):
			normalized = "heads/" + strings.TrimPrefix(name.String(), "refs/remotes/origin/")
		case name.IsTag():
			normalized = "tags/" + name.Short()
		default:
			return nil
		}
		if re.MatchString(normalized) {
			matches = append(matches, matchedRef{normalized: normalized, hash: ref.Hash()})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking references: %w", err)
	}

	wt, err := c.repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}
	for _, m := range matches {
		if err := wt.Checkout(&git.CheckoutOptions{Hash: m.hash, Force: true}); err != nil {
			return fmt.Errorf("checking out %s: %w", m.normalized, err)
		}
		if err := visit(m.normalized); err != nil {
			return err
		}
	}
	return nil
}

// GetSHA returns HEAD's commit hash.
func (c *RepoController) GetSHA() (string, error) {
	head, err := c.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

func (c *RepoController) headCommit() (*object.Commit, error) {
	head, err := c.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	return c.repo.CommitObject(head.Hash())
}

// GetMessage returns HEAD's commit message, truncated to 255 characters.
func (c *RepoController) GetMessage() (string, error) {
	commit, err := c.headCommit()
	if err != nil {
		return "", err
	}
	return truncate(commit.Message), nil
}

// GetUserName returns HEAD's author name, truncated to 255 characters.
func (c *RepoController) GetUserName() (string, error) {
	commit, err := c.headCommit()
	if err != nil {
		return "", err
	}
	return truncate(commit.Author.Name), nil
}

// GetUserEmail returns HEAD's author email, truncated to 255 characters.
func (c *RepoController) GetUserEmail() (string, error) {
	commit, err := c.headCommit()
	if err != nil {
		return "", err
	}
	return truncate(commit.Author.Email), nil
}

// HasDiff reports whether anything under path has changed between pastSHA
// (an earlier commit we've already seen on this repo/channel) and the
// current HEAD -- the monorepo path-scoping check. An unresolvable pastSHA
// (e.g. a shallow clone that no longer has the object) is treated as "has a
// diff" so the crawler errs on the side of building rather than silently
// skipping.
func (c *RepoController) HasDiff(pastSHA, path string) (bool, error) {
	if path == "" {
		return true, nil
	}

	head, err := c.headCommit()
	if err != nil {
		return true, nil
	}

	past, err := c.repo.CommitObject(plumbing.NewHash(pastSHA))
	if err != nil {
		return true, nil
	}

	patch, err := past.Patch(head)
	if err != nil {
		return false, fmt.Errorf("diffing %s: %w", pastSHA, err)
	}

	for _, fp := range patch.FilePatches() {
		from, to := fp.Files()
		if from != nil && withinPath(from.Path(), path) {
			return true, nil
		}
		if to != nil && withinPath(to.Path(), path) {
			return true, nil
		}
	}
	return false, nil
}

func withinPath(filePath, scopedPath string) bool {
	clean := strings.TrimPrefix(strings.TrimSuffix(scopedPath, "/"), "./")
	return filePath == clean || strings.HasPrefix(filePath, clean+"/")
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxFieldLen {
		return s[:maxFieldLen]
	}
	return s
}

// ecosystemAuth builds the SSH/HTTP auth methods for a Repo's URL, scoped to
// scratch directory dir for any on-disk key material.
func ecosystemAuth(dir, repoURL string, e *model.Ecosystem, httpCreds []model.GitCredential) (transport.AuthMethod, error) {
	if strings.HasPrefix(repoURL, "git@") || strings.HasPrefix(repoURL, "ssh://") {
		return setupSSH(dir, e)
	}
	return httpAuthFor(repoURL, httpCreds), nil
}
