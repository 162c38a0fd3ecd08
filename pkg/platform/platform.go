// Package platform resolves the on-disk cache root and the
// content-addressed cache layout:
//
//	{root}/tarballs/{sha}-{platform}/package.tgz
//	{root}/tarballs/{sha}-{platform}/metadata.json
//	{root}/git/{urlhash}.git/
package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/gitcache-dev/gitcache/pkg/model"
)

// Current returns the platform identifier for the running process, e.g.
// "darwin-arm64" or "linux-x64". npm's own arch names differ slightly from
// Go's GOARCH for amd64, which is mapped to "x64" to match what an `npm
// pack`-produced artifact would expect on the consuming side.
func Current() string {
	arch := runtime.GOARCH
	switch arch {
	case "amd64":
		arch = "x64"
	case "386":
		arch = "x86"
	}
	return fmt.Sprintf("%s-%s", runtime.GOOS, arch)
}

// Root resolves the cache root directory. Precedence:
//  1. explicit override (the "root" argument, non-empty)
//  2. $HOME/.gitcache
//
// $HOME/.gitcache is the default; unlike XDG-style
// tools, gitcache does not relocate under XDG_CACHE_HOME because it must
// match the path a human would type when debugging a stuck install.
func Root(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving cache root: %w", err)
	}
	return filepath.Join(home, ".gitcache"), nil
}

// EnsureRoot creates the cache root (and its tarballs/ and git/
// subdirectories) if missing. "Already exists" is not an error; any other
// failure is returned so the orchestrator can warn and continue without
// aborting the install.
func EnsureRoot(root string) error {
	for _, dir := range []string{root, TarballsDir(root), GitMirrorsDir(root), LogsDir(root)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// TarballsDir returns {root}/tarballs.
func TarballsDir(root string) string {
	return filepath.Join(root, "tarballs")
}

// GitMirrorsDir returns {root}/git, the home of the bare mirror clones.
func GitMirrorsDir(root string) string {
	return filepath.Join(root, "git")
}

// LogsDir returns {root}/logs.
func LogsDir(root string) string {
	return filepath.Join(root, "logs")
}

// ArtifactDir returns the content-addressed directory for a (sha, platform)
// pair: {root}/tarballs/{sha}-{platform}/.
func ArtifactDir(root, sha, platform string) string {
	return filepath.Join(TarballsDir(root), fmt.Sprintf("%s-%s", sha, platform))
}

// TarballPath returns the package.tgz path within an artifact directory.
func TarballPath(root, sha, platform string) string {
	return filepath.Join(ArtifactDir(root, sha, platform), "package.tgz")
}

// MetadataPath returns the metadata.json path within an artifact directory.
func MetadataPath(root, sha, platform string) string {
	return filepath.Join(ArtifactDir(root, sha, platform), "metadata.json")
}

// MirrorDir returns the bare mirror-clone directory for a Git URL:
// {root}/git/{urlhash}.git.
func MirrorDir(root, gitURL string) string {
	return filepath.Join(GitMirrorsDir(root), model.URLHash(gitURL)+".git")
}
