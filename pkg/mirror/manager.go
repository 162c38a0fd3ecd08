// Package mirror manages the bare mirror-clone cache under
// {cacheRoot}/git/{urlhash}.git: a `git clone --mirror` per unique
// repository URL, kept fresh with `git fetch`, that the tarball builder
// uses as a local --reference source so repeat builds against the same
// repository at different SHAs avoid re-downloading history.
package mirror

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gitcache-dev/gitcache/pkg/model"
	"github.com/gitcache-dev/gitcache/pkg/platform"
)

// cloneTimeout bounds a single mirror clone or fetch subprocess.
const cloneTimeout = 5 * time.Minute

// Manager owns the bare mirror-clone cache rooted at cacheRoot.
type Manager struct {
	cacheRoot string
}

// NewManager constructs a Manager rooted at cacheRoot (the gitcache cache
// root, not a workspace-local directory — mirrors are shared across every
// install that uses this machine's cache).
func NewManager(cacheRoot string) *Manager {
	return &Manager{cacheRoot: cacheRoot}
}

// EnsureMirror returns the path to a bare mirror clone of gitURL, creating
// it with `git clone --mirror` if absent, or fetching fresh refs if it
// already exists. A corrupted mirror (missing HEAD) is removed and
// re-cloned rather than left to fail every subsequent build.
func (m *Manager) EnsureMirror(ctx context.Context, gitURL string) (string, error) {
	if err := os.MkdirAll(platform.GitMirrorsDir(m.cacheRoot), 0o755); err != nil {
		return "", fmt.Errorf("mirror: creating git cache dir: %w", err)
	}

	path := platform.MirrorDir(m.cacheRoot, gitURL)

	if m.isValidMirror(path) {
		if err := m.fetch(ctx, path); err != nil {
			// A fetch failure leaves a usable, if stale, mirror in place —
			// the builder can still proceed from the last known objects.
			return path, nil
		}
		return path, nil
	}

	if _, err := os.Stat(path); err == nil {
		// Exists but invalid: corrupted, remove and re-clone.
		if err := os.RemoveAll(path); err != nil {
			return "", fmt.Errorf("mirror: removing corrupted mirror: %w", err)
		}
	}

	if err := m.clone(ctx, gitURL, path); err != nil {
		return "", err
	}
	return path, nil
}

// Update fetches fresh refs for the mirror of gitURL. Returns an error if
// no mirror exists yet — callers should use EnsureMirror to create one.
func (m *Manager) Update(ctx context.Context, gitURL string) error {
	path := platform.MirrorDir(m.cacheRoot, gitURL)
	if !m.isValidMirror(path) {
		return fmt.Errorf("mirror: no cached mirror for %s", gitURL)
	}
	return m.fetch(ctx, path)
}

// CachedMirror describes one entry in the mirror cache.
type CachedMirror struct {
	URLHash string
	Path    string
	URL     string // origin URL, read back from the mirror's config
}

// ListCached enumerates every mirror directory under the cache root,
// resolving each one's origin URL via `git remote get-url origin`. A
// directory that fails that lookup is skipped rather than failing the
// whole listing — it does not stop `gitcache cache stats` from reporting
// on the mirrors that are readable.
func (m *Manager) ListCached() ([]CachedMirror, error) {
	dir := platform.GitMirrorsDir(m.cacheRoot)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("mirror: listing git cache dir: %w", err)
	}

	var mirrors []CachedMirror
	for _, e := range entries {
		if !e.IsDir() || !strings.HasSuffix(e.Name(), ".git") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		url, err := m.originURL(path)
		if err != nil {
			continue
		}
		mirrors = append(mirrors, CachedMirror{
			URLHash: strings.TrimSuffix(e.Name(), ".git"),
			Path:    path,
			URL:     url,
		})
	}
	return mirrors, nil
}

// Prune removes every cached mirror whose URL is not present in
// referencedURLs, implementing the mechanical sweep behind `gitcache cache
// prune` (a plain reachability
// sweep, not a policy engine: see SPEC_FULL.md's distinction from the
// out-of-scope "cache eviction policies").
func (m *Manager) Prune(referencedURLs []string) ([]string, error) {
	referenced := make(map[string]bool, len(referencedURLs))
	for _, u := range referencedURLs {
		referenced[model.URLHash(u)] = true
	}

	cached, err := m.ListCached()
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, c := range cached {
		if referenced[c.URLHash] {
			continue
		}
		if err := os.RemoveAll(c.Path); err != nil {
			return removed, fmt.Errorf("mirror: removing %s: %w", c.Path, err)
		}
		removed = append(removed, c.URL)
	}
	return removed, nil
}

// Remove deletes the cached mirror for gitURL, if one exists. Removing a
// mirror that doesn't exist is not an error.
func (m *Manager) Remove(gitURL string) error {
	path := platform.MirrorDir(m.cacheRoot, gitURL)
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("mirror: removing %s: %w", path, err)
	}
	return nil
}

func (m *Manager) isValidMirror(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	_, err = os.Stat(filepath.Join(path, "HEAD"))
	return err == nil
}

func (m *Manager) clone(ctx context.Context, gitURL, path string) error {
	ctx, cancel := context.WithTimeout(ctx, cloneTimeout)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mirror: creating parent dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, "git", "clone", "--mirror", gitURL, path)
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.RemoveAll(path)
		return fmt.Errorf("mirror: git clone --mirror %s: %s", gitURL, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (m *Manager) fetch(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, cloneTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "--git-dir", path, "fetch", "--all", "--tags", "--prune")
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("mirror: git fetch in %s: %s", path, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (m *Manager) originURL(path string) (string, error) {
	cmd := exec.Command("git", "--git-dir", path, "remote", "get-url", "origin")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("mirror: reading origin url: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
