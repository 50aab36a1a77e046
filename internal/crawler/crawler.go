// Package crawler discovers new commits across configured repositories and
// channels, turning each into a Commit row the scheduler can fan out into
// builds. It mirrors the teacher's pull-then-fan-out worker shape, wrapping
// internal/worker.Runner instead of asyncio.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/buildforge/buildforge/internal/bus"
	"github.com/buildforge/buildforge/internal/model"
	"github.com/buildforge/buildforge/internal/store"
	"github.com/buildforge/buildforge/internal/worker"
)

// allRepos is the trigger payload that requests a full sweep of every
// configured repo, as opposed to a single webhook-scoped repoUpdate.
const allRepos = "all_repos"

// repoUpdate is a manually-triggered, webhook-scoped crawl: exactly one sha
// on exactly one ref needs to be checked out and processed.
type repoUpdate struct {
	repoID int64
	sha    string
	ref    string
}

// Nudger lets the crawler wake the scheduler once new commits are recorded,
// without importing the scheduler package directly.
type Nudger interface {
	NudgeScheduler()
}

// Crawler is the repo-discovery worker. Call New then Start.
type Crawler struct {
	db      store.DB
	bus     bus.Bus
	nudger  Nudger
	dataDir string

	mu      sync.Mutex
	queue   []repoUpdate
	runner  *worker.Runner
	periodS int
}

// New builds a Crawler rooted at dataDir (where repo clones are kept) that
// re-sweeps every periodSeconds.
func New(db store.DB, b bus.Bus, nudger Nudger, dataDir string, periodSeconds int) *Crawler {
	c := &Crawler{db: db, bus: b, nudger: nudger, dataDir: dataDir, periodS: periodSeconds}
	c.runner = worker.New("crawler", c.work, c.cleanup)
	return c
}

// Runner exposes the underlying cooperative worker for Start/Trigger/Cancel.
func (c *Crawler) Runner() *worker.Runner { return c.runner }

// Start begins the periodic full sweep.
func (c *Crawler) Start() {
	if err := os.MkdirAll(c.dataDir, 0o700); err != nil {
		slog.Error("Creating crawler data dir", "dir", c.dataDir, "error", err)
	}
	c.runner.Start(allRepos)
}

// ProcessRepo enqueues a single webhook-triggered repo/sha/ref to crawl
// outside the periodic sweep.
func (c *Crawler) ProcessRepo(repoID int64, sha, ref string) {
	c.mu.Lock()
	c.queue = append(c.queue, repoUpdate{repoID: repoID, sha: sha, ref: ref})
	c.mu.Unlock()
	c.runner.Trigger(nil)
}

func (c *Crawler) work(ctx context.Context, payload any) {
	if payload == allRepos {
		c.processAllRepos(ctx)
		c.runner.Reschedule(secondsToDuration(c.periodS), allRepos)
		return
	}
	c.processQueuedUpdates(ctx)
}

func (c *Crawler) processQueuedUpdates(ctx context.Context) {
	c.mu.Lock()
	pending := c.queue
	c.queue = nil
	c.mu.Unlock()

	for _, u := range pending {
		if err := c.processUpdate(ctx, u); err != nil {
			slog.Error("Processing webhook repo update", "repo_id", u.repoID, "error", err)
		}
	}
}

func (c *Crawler) processAllRepos(ctx context.Context) {
	repos, err := store.AllRepos(ctx, c.db)
	if err != nil {
		slog.Error("Listing repos", "error", err)
		return
	}
	for _, repo := range repos {
		if err := c.processRepo(ctx, &repo, "", ""); err != nil {
			slog.Error("Processing repo", "repo_id", repo.ID, "error", err)
		}
	}
}

func (c *Crawler) processUpdate(ctx context.Context, u repoUpdate) error {
	repo, err := store.RepoByID(ctx, c.db, u.repoID)
	if err != nil {
		return err
	}
	return c.processRepo(ctx, repo, u.sha, u.ref)
}

// processRepo is the core of the teacher's crawl loop: set up credentials,
// fetch, then either check out the single webhook-identified sha (ref
// given) or sweep every channel's matching refs, recording a Commit for
// each new state and nudging the scheduler if anything changed.
func (c *Crawler) processRepo(ctx context.Context, repo *model.Repo, sha, ref string) error {
	ecosystem, err := store.GetEcosystem(ctx, c.db)
	if err != nil {
		return fmt.Errorf("loading ecosystem: %w", err)
	}
	gitCreds, err := store.GitCredentials(ctx, c.db, ecosystem.ID)
	if err != nil {
		return fmt.Errorf("loading git credentials: %w", err)
	}

	localDir := filepath.Join(c.dataDir, fmt.Sprintf("repo-%d", repo.ID))
	auth, err := ecosystemAuth(localDir, repo.URL, ecosystem, gitCreds)
	if err != nil {
		return fmt.Errorf("setting up credentials: %w", err)
	}

	rc, err := OpenOrClone(localDir, repo.URL, auth)
	if err != nil {
		return fmt.Errorf("opening repo: %w", err)
	}
	if err := rc.Fetch(); err != nil {
		return fmt.Errorf("fetching: %w", err)
	}

	anyNew := false

	if sha != "" && ref != "" {
		channel, err := c.channelForRef(ctx, repo.EcosystemID, ref)
		if err != nil {
			return err
		}
		if channel == nil {
			slog.Warn("Webhook ref matched no channel", "repo_id", repo.ID, "ref", ref)
			return nil
		}
		ok, err := rc.CheckoutSHA(sha)
		if err != nil {
			return err
		}
		if !ok {
			slog.Warn("Webhook sha not found locally after fetch", "repo_id", repo.ID, "sha", sha)
			return nil
		}
		created, err := c.processCommit(ctx, rc, repo, channel)
		if err != nil {
			return err
		}
		anyNew = anyNew || created
	} else {
		channels, err := store.AllChannels(ctx, c.db, repo.EcosystemID)
		if err != nil {
			return err
		}
		for _, channel := range channels {
			ch := channel
			err := rc.CheckoutMatchingRefs(ch.RefPattern, func(string) error {
				created, err := c.processCommit(ctx, rc, repo, &ch)
				if err != nil {
					return err
				}
				anyNew = anyNew || created
				return nil
			})
			if err != nil {
				return err
			}
		}
	}

	if anyNew && c.nudger != nil {
		c.nudger.NudgeScheduler()
	}
	return nil
}

func (c *Crawler) channelForRef(ctx context.Context, ecosystemID int64, ref string) (*model.Channel, error) {
	channels, err := store.AllChannels(ctx, c.db, ecosystemID)
	if err != nil {
		return nil, err
	}
	for i := range channels {
		matched, err := refMatches(channels[i].RefPattern, ref)
		if err != nil {
			return nil, err
		}
		if matched {
			return &channels[i], nil
		}
	}
	return nil, nil
}

// processCommit implements the path-scoping and supersede invariants: a new
// sha on a channel is recorded as a Commit only if either the repo isn't
// path-scoped, there are no prior (non-old) commits to compare against, or
// at least one prior commit's diff touches repo.Path; recording it always
// marks every prior non-old commit on this repo/channel as old.
func (c *Crawler) processCommit(ctx context.Context, rc *RepoController, repo *model.Repo, channel *model.Channel) (bool, error) {
	sha, err := rc.GetSHA()
	if err != nil {
		return false, err
	}

	existingID, err := store.ExistingCommit(ctx, c.db, repo.ID, channel.ID, sha)
	if err != nil {
		return false, err
	}
	if existingID != 0 {
		return false, nil
	}

	oldCommits, err := store.OldCommits(ctx, c.db, repo.ID, channel.ID, sha)
	if err != nil {
		return false, err
	}

	if repo.Path != "" && len(oldCommits) > 0 {
		anyDiff := false
		for _, oc := range oldCommits {
			diff, err := rc.HasDiff(oc.SHA, repo.Path)
			if err != nil {
				return false, err
			}
			if diff {
				anyDiff = true
				break
			}
		}
		if !anyDiff {
			return false, nil
		}
	}

	message, err := rc.GetMessage()
	if err != nil {
		return false, err
	}
	userName, err := rc.GetUserName()
	if err != nil {
		return false, err
	}
	userEmail, err := rc.GetUserEmail()
	if err != nil {
		return false, err
	}

	commit := &model.Commit{
		SHA:       sha,
		Message:   message,
		UserName:  userName,
		UserEmail: userEmail,
		RepoID:    repo.ID,
		ChannelID: channel.ID,
	}
	if _, err := store.InsertCommit(ctx, c.db, commit); err != nil {
		return false, fmt.Errorf("inserting commit: %w", err)
	}

	for _, oc := range oldCommits {
		if err := store.MarkCommitOld(ctx, c.db, oc.ID); err != nil {
			return false, fmt.Errorf("superseding commit %d: %w", oc.ID, err)
		}
	}

	return true, nil
}

func (c *Crawler) cleanup() {
	// Scratch clones live under c.dataDir for reuse across sweeps; nothing
	// to tear down when the worker stops.
}
