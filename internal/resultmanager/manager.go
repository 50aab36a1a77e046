// Package resultmanager updates the Conan recipe/package dependency graph
// from a finished build's Conan output and re-triggers any builds that were
// waiting on what just became available. This is the unblocking half of the
// coordination plane: the Agent drives containers, the result manager
// decides what that container's output means for every other stalled build.
package resultmanager

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/buildforge/buildforge/internal/bus"
	"github.com/buildforge/buildforge/internal/model"
	"github.com/buildforge/buildforge/internal/store"
)

// recipeIDPattern extracts the optional revision suffix ("#<hash>") off a
// Conan recipe reference such as "zlib/1.3@user/channel#a1b2c3".
var recipeIDPattern = regexp.MustCompile(`^[\w+.-]+/[\w+.-]+(?:@\w+/\w+)?(#(\w+))?`)

// refPattern parses a full Conan reference into its coordinates, used when
// walking lock.json's requirement graph.
var refPattern = regexp.MustCompile(`^([\w+.-]+)/([\w+.-]+)(?:@(\w+)/(\w+))?(#(\w+))?`)

// Manager owns the graph-update + re-trigger algorithm.
type Manager struct {
	db  store.DB
	bus bus.Bus
}

// New builds a Manager.
func New(db store.DB, b bus.Bus) *Manager {
	return &Manager{db: db, bus: b}
}

func revisionFromRecipeID(recipeID string) (string, error) {
	m := recipeIDPattern.FindStringSubmatch(recipeID)
	if m == nil {
		return "", fmt.Errorf("invalid recipe id %q", recipeID)
	}
	return m[2], nil
}

// ProcessSuccess updates the graph from a successful build's create.json and
// lock.json, returning true if any other build was re-triggered as a
// result.
func (m *Manager) ProcessSuccess(ctx context.Context, buildID int64, buildOutput map[string][]byte) (bool, error) {
	createRaw, ok := buildOutput["create"]
	if !ok {
		return false, fmt.Errorf("build %d: missing create.json output", buildID)
	}
	lockRaw, ok := buildOutput["lock"]
	if !ok {
		return false, fmt.Errorf("build %d: missing lock.json output", buildID)
	}

	create, err := parseCreateOutput(createRaw)
	if err != nil {
		return false, fmt.Errorf("parsing create.json for build %d: %w", buildID, err)
	}
	lock, err := parseLockOutput(lockRaw)
	if err != nil {
		return false, fmt.Errorf("parsing lock.json for build %d: %w", buildID, err)
	}

	newBuilds := false
	err = m.db.WithTx(ctx, func(tx store.DB) error {
		commit, ecosystemID, err := m.loadBuildContext(ctx, tx, buildID)
		if err != nil {
			return err
		}
		if err := store.ClearBuildDependencyState(ctx, tx, buildID); err != nil {
			return err
		}

		var lastPackage *model.Package
		for _, compound := range create.Installed {
			if compound.Recipe.Dependency {
				continue
			}

			revision, err := revisionFromRecipeID(compound.Recipe.ID)
			if err != nil {
				slog.Error("Parsing recipe id", "build_id", buildID, "error", err)
				continue
			}
			recipeRevision, recipe, err := m.upsertRevision(ctx, tx, ecosystemID, compound.Recipe, revision)
			if err != nil {
				return err
			}

			if commit.Status == model.CommitBuilding {
				if err := store.SetRecipeCurrentRevision(ctx, tx, recipe.ID, recipeRevision.ID); err != nil {
					return err
				}
			}

			for _, pd := range compound.Packages {
				pkg, err := store.UpsertPackage(ctx, tx, pd.ID, recipeRevision.ID)
				if err != nil {
					return err
				}
				lastPackage = pkg
				if err := store.SetBuildPackage(ctx, tx, buildID, pkg.ID); err != nil {
					return err
				}

				triggered, err := m.triggerBuildsForPackage(ctx, tx, pkg, recipeRevision)
				if err != nil {
					return err
				}
				if len(triggered) > 0 {
					newBuilds = true
				}
			}
			if len(compound.Packages) == 0 {
				if err := store.SetBuildRecipeRevision(ctx, tx, buildID, recipeRevision.ID); err != nil {
					return err
				}
			}

			triggered, err := m.triggerBuildsForRecipe(ctx, tx, recipe)
			if err != nil {
				return err
			}
			if len(triggered) > 0 {
				newBuilds = true
			}
		}

		if lastPackage != nil {
			requirements, err := m.extractRequiredPackages(ctx, tx, ecosystemID, lock)
			if err != nil {
				return err
			}
			ids := make([]int64, len(requirements))
			for i, r := range requirements {
				ids[i] = r.ID
			}
			if err := store.SetPackageRequirements(ctx, tx, lastPackage.ID, ids); err != nil {
				return err
			}
		}

		slog.Info("Updated dependency graph for successful build", "build_id", buildID)
		return nil
	})
	return newBuilds, err
}

// ProcessFailure updates the graph from a failed build's create.json,
// recording which recipes/packages it was waiting on so a later success
// elsewhere can re-trigger it. A build that failed before Conan produced any
// installed-recipe data (e.g. a container/network error) leaves the graph
// untouched.
func (m *Manager) ProcessFailure(ctx context.Context, buildID int64, buildOutput map[string][]byte) error {
	createRaw, ok := buildOutput["create"]
	if !ok {
		slog.Info("Failed build has no Conan create output", "build_id", buildID)
		return nil
	}
	create, err := parseCreateOutput(createRaw)
	if err != nil {
		return fmt.Errorf("parsing create.json for build %d: %w", buildID, err)
	}

	var lock *lockOutput
	if lockRaw, ok := buildOutput["lock"]; ok {
		lock, err = parseLockOutput(lockRaw)
		if err != nil {
			slog.Info("Failed build has unparsable lock output", "build_id", buildID, "error", err)
			lock = nil
		}
	}

	return m.db.WithTx(ctx, func(tx store.DB) error {
		commit, ecosystemID, err := m.loadBuildContext(ctx, tx, buildID)
		if err != nil {
			return err
		}
		if err := store.ClearBuildDependencyState(ctx, tx, buildID); err != nil {
			return err
		}

		for _, compound := range create.Installed {
			recipeData := compound.Recipe

			if !recipeData.Dependency {
				revision, err := revisionFromRecipeID(recipeData.ID)
				if err != nil {
					slog.Error("Parsing recipe id", "build_id", buildID, "error", err)
					continue
				}
				recipeRevision, recipe, err := m.upsertRevision(ctx, tx, ecosystemID, recipeData, revision)
				if err != nil {
					return err
				}
				if commit.Status == model.CommitBuilding {
					if err := store.SetRecipeCurrentRevision(ctx, tx, recipe.ID, recipeRevision.ID); err != nil {
						return err
					}
				}
				for _, pd := range compound.Packages {
					pkg, err := store.UpsertPackage(ctx, tx, pd.ID, recipeRevision.ID)
					if err != nil {
						return err
					}
					if lock != nil {
						requirements, err := m.extractRequiredPackages(ctx, tx, ecosystemID, lock)
						if err != nil {
							return err
						}
						ids := make([]int64, len(requirements))
						for i, r := range requirements {
							ids[i] = r.ID
						}
						if err := store.SetPackageRequirements(ctx, tx, pkg.ID, ids); err != nil {
							return err
						}
					}
					if err := store.SetBuildPackage(ctx, tx, buildID, pkg.ID); err != nil {
						return err
					}
				}
				if len(compound.Packages) == 0 {
					if err := store.SetBuildRecipeRevision(ctx, tx, buildID, recipeRevision.ID); err != nil {
						return err
					}
				}
				continue
			}

			if recipeData.Error != nil && recipeData.Error.Type == "missing" {
				recipe, err := store.UpsertRecipe(ctx, tx, ecosystemID, recipeData.Name, recipeData.Version, recipeData.User, recipeData.Channel)
				if err != nil {
					return err
				}
				if err := store.AddMissingRecipe(ctx, tx, buildID, recipe.ID); err != nil {
					return err
				}
				continue
			}

			revision, err := revisionFromRecipeID(recipeData.ID)
			if err != nil {
				slog.Error("Parsing recipe id", "build_id", buildID, "error", err)
				continue
			}
			recipeRevision, _, err := m.upsertRevision(ctx, tx, ecosystemID, recipeData, revision)
			if err != nil {
				return err
			}
			for _, pd := range compound.Packages {
				if pd.Error != nil && pd.Error.Type == "missing" {
					pkg, err := store.UpsertPackage(ctx, tx, pd.ID, recipeRevision.ID)
					if err != nil {
						return err
					}
					if err := store.AddMissingPackage(ctx, tx, buildID, pkg.ID); err != nil {
						return err
					}
				}
			}
		}
		slog.Info("Updated dependency graph for failed build", "build_id", buildID)
		return nil
	})
}

func (m *Manager) upsertRevision(ctx context.Context, tx store.DB, ecosystemID int64, r conanRecipe, revision string) (*model.RecipeRevision, *model.Recipe, error) {
	recipe, err := store.UpsertRecipe(ctx, tx, ecosystemID, r.Name, r.Version, r.User, r.Channel)
	if err != nil {
		return nil, nil, err
	}
	recipeRevision, err := store.UpsertRecipeRevision(ctx, tx, recipe.ID, revision)
	if err != nil {
		return nil, nil, err
	}
	return recipeRevision, recipe, nil
}

// loadBuildContext loads a Build's Commit and its ecosystem ID (via the
// process-wide singleton) in one place since every code path below needs
// both.
func (m *Manager) loadBuildContext(ctx context.Context, tx store.DB, buildID int64) (*model.Commit, int64, error) {
	build, err := store.BuildByID(ctx, tx, buildID)
	if err != nil {
		return nil, 0, err
	}
	var commit model.Commit
	if err := tx.Get(ctx, &commit,
		`SELECT id, status, sha, message, user_name, user_email, repo_id, channel_id FROM commit_ WHERE id = ?`,
		build.CommitID); err != nil {
		return nil, 0, fmt.Errorf("loading commit for build %d: %w", buildID, err)
	}
	ecosystem, err := store.GetEcosystem(ctx, tx)
	if err != nil {
		return nil, 0, err
	}
	return &commit, ecosystem.ID, nil
}

// extractRequiredPackages walks lock.json's graph starting from node "0"
// (the build's own root), upserting a RecipeRevision+Package for every
// requires/build_requires entry and returning the flat list -- this becomes
// the built package's own dependency edges.
func (m *Manager) extractRequiredPackages(ctx context.Context, tx store.DB, ecosystemID int64, lock *lockOutput) ([]*model.Package, error) {
	root, ok := lock.GraphLock.Nodes["0"]
	if !ok {
		return nil, fmt.Errorf("lock graph has no root node \"0\"")
	}

	var packages []*model.Package
	deps := append(append([]string{}, root.Requires...), root.BuildRequires...)
	for _, nodeKey := range deps {
		node, ok := lock.GraphLock.Nodes[nodeKey]
		if !ok {
			continue
		}
		m2 := refPattern.FindStringSubmatch(node.Ref)
		if m2 == nil {
			return nil, fmt.Errorf("invalid recipe ref %q", node.Ref)
		}
		name, version, user, channel, revision := m2[1], m2[2], m2[3], m2[4], m2[6]

		recipe, err := store.UpsertRecipe(ctx, tx, ecosystemID, name, version, user, channel)
		if err != nil {
			return nil, err
		}
		recipeRevision, err := store.UpsertRecipeRevision(ctx, tx, recipe.ID, revision)
		if err != nil {
			return nil, err
		}
		pkg, err := store.UpsertPackage(ctx, tx, node.PackageID, recipeRevision.ID)
		if err != nil {
			return nil, err
		}
		packages = append(packages, pkg)
	}
	return packages, nil
}

// triggerBuildsForRecipe re-triggers failed, still-relevant builds that were
// waiting on recipe (no revision of it existed yet).
func (m *Manager) triggerBuildsForRecipe(ctx context.Context, tx store.DB, recipe *model.Recipe) ([]model.Build, error) {
	builds, err := store.BuildsWaitingOnRecipe(ctx, tx, recipe.ID)
	if err != nil {
		return nil, err
	}
	return m.retriggerAndPublish(ctx, tx, builds)
}

// triggerBuildsForPackage re-triggers builds waiting on the exact package
// and, separately, builds waiting on any package of the same recipe but a
// different revision (a different revision may compute package-ids
// differently, so an exact match can't be required there).
func (m *Manager) triggerBuildsForPackage(ctx context.Context, tx store.DB, pkg *model.Package, recipeRevision *model.RecipeRevision) ([]model.Build, error) {
	exact, err := store.BuildsWaitingOnPackageExact(ctx, tx, pkg.ID)
	if err != nil {
		return nil, err
	}
	crossRevision, err := store.BuildsWaitingOnPackageCrossRevision(ctx, tx, recipeRevision.RecipeID, recipeRevision.Revision)
	if err != nil {
		return nil, err
	}
	return m.retriggerAndPublish(ctx, tx, append(exact, crossRevision...))
}

func (m *Manager) retriggerAndPublish(ctx context.Context, tx store.DB, builds []model.Build) ([]model.Build, error) {
	for _, b := range builds {
		slog.Info("Re-triggering build", "build_id", b.ID)
		if err := store.SetBuildStatus(ctx, tx, b.ID, model.BuildNew); err != nil {
			return nil, err
		}
		if m.bus != nil {
			var commit model.Commit
			if err := tx.Get(ctx, &commit,
				`SELECT id, status, sha, message, user_name, user_email, repo_id, channel_id FROM commit_ WHERE id = ?`,
				b.CommitID); err == nil {
				m.bus.PublishBuildUpdate(ctx, commit.RepoID, b.ID)
			}
		}
	}
	return builds, nil
}
