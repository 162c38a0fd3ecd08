// Package lockfile scans an npm-family lockfile and extracts the
// Git-sourced dependency entries.
package lockfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	gcerrors "github.com/gitcache-dev/gitcache/pkg/errors"
	"github.com/gitcache-dev/gitcache/pkg/giturl"
	"github.com/gitcache-dev/gitcache/pkg/model"
)

// Scan reads the lockfile at path and returns a LockfileScanResult.
//
// Recognized dialects: the v1/v2/v3 JSON-object forms of package-lock.json
// and npm-shrinkwrap.json (identical grammar), and a best-effort pass over
// yarn.lock. Parse errors in yarn.lock degrade to an empty, non-git result
// rather than failing; parse errors in the npm JSON dialects
// are fatal.
func Scan(path string) (*model.LockfileScanResult, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, gcerrors.LockfileNotFound(path)
	}

	if strings.HasSuffix(filepath.Base(path), "yarn.lock") {
		return scanYarnLock(path)
	}
	return scanNPMLockfile(path)
}

type npmLockfileRoot struct {
	LockfileVersion int                       `json:"lockfileVersion"`
	Packages        map[string]npmPackageNode `json:"packages"`
	Dependencies    map[string]npmV1Node      `json:"dependencies"`
}

type npmPackageNode struct {
	Version  string `json:"version"`
	Resolved string `json:"resolved"`
}

type npmV1Node struct {
	Version      string               `json:"version"`
	Resolved     string               `json:"resolved"`
	From         string               `json:"from"`
	Dependencies map[string]npmV1Node `json:"dependencies"`
}

func scanNPMLockfile(path string) (*model.LockfileScanResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, gcerrors.LockfileParseError(err)
	}

	var root npmLockfileRoot
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, gcerrors.LockfileParseError(err)
	}

	switch root.LockfileVersion {
	case 0, 1, 2, 3:
		// version 0 means the key was absent; treat as v1 for
		// maximal compatibility with hand-written lockfiles.
	default:
		return nil, gcerrors.UnsupportedLockfileVersion(root.LockfileVersion)
	}

	var deps []model.GitDependency
	if len(root.Packages) > 0 {
		deps = scanPackagesMap(root.Packages)
	} else {
		deps = scanV1Dependencies(root.Dependencies)
	}

	packageJSONPath := filepath.Join(filepath.Dir(path), "package.json")
	annotatePackageJSONURLs(deps, packageJSONPath)

	return &model.LockfileScanResult{
		LockfileVersion:    root.LockfileVersion,
		HasGitDependencies: len(deps) > 0,
		Dependencies:       deps,
	}, nil
}

// scanPackagesMap walks the v2/v3 "packages" map. Keys are paths like
// "node_modules/foo" or "node_modules/foo/node_modules/bar"; the name is
// the last segment after the last "node_modules/".
func scanPackagesMap(packages map[string]npmPackageNode) []model.GitDependency {
	var deps []model.GitDependency
	for key, node := range packages {
		if key == "" {
			continue // root project entry
		}
		url := node.Resolved
		if !giturl.Recognized(url) {
			continue
		}
		name := packageNameFromKey(key)
		if dep, ok := buildDependency(name, url); ok {
			deps = append(deps, dep)
		}
	}
	return deps
}

func packageNameFromKey(key string) string {
	idx := strings.LastIndex(key, "node_modules/")
	if idx == -1 {
		return key
	}
	return key[idx+len("node_modules/"):]
}

// scanV1Dependencies walks the v1 "dependencies" tree recursively; nested
// transitive dependencies are keyed the same way as top-level ones.
func scanV1Dependencies(dependencies map[string]npmV1Node) []model.GitDependency {
	var deps []model.GitDependency
	var walk func(map[string]npmV1Node)
	walk = func(nodes map[string]npmV1Node) {
		for name, node := range nodes {
			url := node.Resolved
			if url == "" {
				url = node.Version
			}
			if url == "" {
				url = node.From
			}
			if giturl.Recognized(url) {
				if dep, ok := buildDependency(name, url); ok {
					deps = append(deps, dep)
				}
			}
			if len(node.Dependencies) > 0 {
				walk(node.Dependencies)
			}
		}
	}
	walk(dependencies)
	return deps
}

// buildDependency parses a recognized Git URL into a GitDependency. It
// returns ok=false if the name is empty or the URL fails to parse, per the
// invariant that name and gitUrl are always present.
func buildDependency(name, rawURL string) (model.GitDependency, bool) {
	if name == "" {
		return model.GitDependency{}, false
	}
	parsed, err := giturl.Parse(rawURL)
	if err != nil {
		return model.GitDependency{}, false
	}
	gitURL := parsed.Normalize()
	return model.GitDependency{
		Name:           name,
		GitURL:         gitURL,
		Reference:      parsed.Reference,
		PackageJSONURL: rawURL,
		LockfileURL:    rawURL,
		PreferredURL:   parsed.CloneURL(),
	}, true
}

// annotatePackageJSONURLs reads the project's package.json, when present
// alongside the lockfile, and records the raw dependency spec string for
// each Git dependency as PackageJSONURL. When the two differ only in
// scheme (ssh vs. https) for the same host/path, Anomaly is set and
// PreferredURL is left pointing at the lockfile's (HTTPS) resolution, per
// reference resolution.
func annotatePackageJSONURLs(deps []model.GitDependency, packageJSONPath string) {
	data, err := os.ReadFile(packageJSONPath)
	if err != nil {
		return
	}

	var pkg struct {
		Dependencies         map[string]string `json:"dependencies"`
		DevDependencies      map[string]string `json:"devDependencies"`
		OptionalDependencies map[string]string `json:"optionalDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return
	}

	lookup := func(name string) (string, bool) {
		for _, m := range []map[string]string{pkg.Dependencies, pkg.DevDependencies, pkg.OptionalDependencies} {
			if v, ok := m[name]; ok {
				return v, true
			}
		}
		return "", false
	}

	for i := range deps {
		spec, ok := lookup(deps[i].Name)
		if !ok || !giturl.Recognized(spec) {
			continue
		}
		deps[i].PackageJSONURL = spec
		if giturl.DetectSSHToHTTPSAnomaly(spec, deps[i].LockfileURL) {
			deps[i].Anomaly = true
		}
	}
}
