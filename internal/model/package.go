package model

// Recipe identifies a conan recipe by its coordinates (name/version/user/
// channel); the exact content hash is tracked per RecipeRevision below it.
// CurrentRevisionID points at the RecipeRevision a still-building Commit most
// recently produced, so a dependent build failing on a stale revision can
// tell "not yet built" apart from "built under a revision I haven't seen".
type Recipe struct {
	ID                int64  `json:"id"                  db:"id"`
	EcosystemID       int64  `json:"ecosystem_id"        db:"ecosystem_id"`
	Name              string `json:"name"                db:"name"`
	Version           string `json:"version"             db:"version"`
	User              string `json:"user"                db:"user"`
	Channel           string `json:"channel"             db:"channel"`
	CurrentRevisionID *int64 `json:"current_revision_id" db:"current_revision_id"`
}

// RecipeRevision is one content-addressed revision of a Recipe. The result
// manager creates it when it processes a finished Build's output, before
// upserting any Package under it.
type RecipeRevision struct {
	ID       int64  `json:"id"        db:"id"`
	RecipeID int64  `json:"recipe_id" db:"recipe_id"`
	Revision string `json:"revision"  db:"revision"`
}

// Package is one built binary package (a package-id, e.g. a specific
// compiler/settings/options hash) under a RecipeRevision.
type Package struct {
	ID               int64  `json:"id"                 db:"id"`
	PackageID        string `json:"package_id"         db:"package_id"`
	RecipeRevisionID int64  `json:"recipe_revision_id" db:"recipe_revision_id"`
}

// PackageRequirement is a directed edge in the Conan dependency graph:
// PackageID depends on RequirementID. Both columns reference Package.ID;
// the result manager rewrites a package's rows from what a successful
// build's lock.json says it actually linked against.
type PackageRequirement struct {
	PackageID     int64 `json:"package_id"     db:"package_id"`
	RequirementID int64 `json:"requirement_id" db:"requirement_id"`
}
