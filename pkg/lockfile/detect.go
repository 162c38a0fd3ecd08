package lockfile

import (
	"os"
	"path/filepath"
)

// candidateNames lists the lockfile basenames gitcache looks for, in
// priority order, when the caller supplies no explicit path: try the
// most specific location first, then degrade.
var candidateNames = []string{
	"npm-shrinkwrap.json",
	"package-lock.json",
	"yarn.lock",
}

// DefaultName is used for error messages when no lockfile can be found at
// all.
const DefaultName = "package-lock.json"

// Detect scans dir for a recognized lockfile, trying candidateNames in
// order. Returns the full path to the first match, or the default path
// (dir/package-lock.json, which may not exist) if none are present.
func Detect(dir string) string {
	for _, name := range candidateNames {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return filepath.Join(dir, DefaultName)
}
