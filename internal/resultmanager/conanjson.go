package resultmanager

import "encoding/json"

// conanError is the shape Conan emits when a create-stage step fails;
// Type == "missing" is the only kind the result manager treats specially
// (a dependency that simply hasn't been built yet, as opposed to any other
// build failure).
type conanError struct {
	Type string `json:"type"`
}

// conanPackage is one binary package entry under a recipe in create.json.
type conanPackage struct {
	ID    string      `json:"id"`
	Error *conanError `json:"error"`
}

// conanRecipe is one recipe entry's metadata within create.json's
// "installed" list.
type conanRecipe struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Version    string      `json:"version"`
	User       string      `json:"user"`
	Channel    string      `json:"channel"`
	Dependency bool        `json:"dependency"`
	Error      *conanError `json:"error"`
}

// conanRecipeCompound pairs a recipe with the packages Conan built/found
// for it in this run.
type conanRecipeCompound struct {
	Recipe   conanRecipe    `json:"recipe"`
	Packages []conanPackage `json:"packages"`
}

// createOutput is the parsed shape of create.json.
type createOutput struct {
	Installed []conanRecipeCompound `json:"installed"`
	Error     bool                  `json:"error"`
}

// lockNode is one node of conan's graph_lock.nodes map: a reference plus
// the other nodes (by key) it requires.
type lockNode struct {
	Ref          string   `json:"ref"`
	PackageID    string   `json:"package_id"`
	Requires     []string `json:"requires"`
	BuildRequires []string `json:"build_requires"`
}

// lockOutput is the parsed shape of lock.json.
type lockOutput struct {
	GraphLock struct {
		Nodes map[string]lockNode `json:"nodes"`
	} `json:"graph_lock"`
}

func parseCreateOutput(data []byte) (*createOutput, error) {
	var out createOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func parseLockOutput(data []byte) (*lockOutput, error) {
	var out lockOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
