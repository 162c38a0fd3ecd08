// Package localcache implements the Local tier of the cache hierarchy
// (tier 0): a content-addressed filesystem store keyed by
// (commit SHA, platform), with an integrity-verifying JSON metadata
// sidecar written next to each tarball.
package localcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	gcerrors "github.com/gitcache-dev/gitcache/pkg/errors"
	"github.com/gitcache-dev/gitcache/pkg/metadata"
	"github.com/gitcache-dev/gitcache/pkg/model"
	"github.com/gitcache-dev/gitcache/pkg/platform"
)

// Cache is the Local tier: package.tgz + metadata.json under
// {root}/tarballs/{sha}-{platform}/.
type Cache struct {
	root         string
	verifyOnRead bool

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per (sha, platform) key, advisory
}

// New constructs a Local tier rooted at root. When verifyOnRead is true,
// Get recomputes the tarball's sha256 and compares it against the
// metadata sidecar's Integrity field before returning, surfacing
// IntegrityMismatch on divergence.
func New(root string, verifyOnRead bool) *Cache {
	return &Cache{root: root, verifyOnRead: verifyOnRead, locks: make(map[string]*sync.Mutex)}
}

func key(sha, plat string) string { return sha + "-" + plat }

func (c *Cache) lockFor(k string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[k]
	if !ok {
		l = &sync.Mutex{}
		c.locks[k] = l
	}
	return l
}

// Has reports whether package.tgz exists with non-zero size and
// metadata.json exists for (sha, platform).
func (c *Cache) Has(sha, plat string) bool {
	tarballPath := platform.TarballPath(c.root, sha, plat)
	metaPath := platform.MetadataPath(c.root, sha, plat)
	info, err := os.Stat(tarballPath)
	if err != nil || info.Size() == 0 {
		return false
	}
	return metadata.Exists(metaPath)
}

// Get returns the tarball bytes and its metadata sidecar for (sha,
// platform), or an error if either is missing or (when verifyOnRead is
// set) the integrity check fails.
func (c *Cache) Get(sha, plat string) ([]byte, *model.TarballArtifact, error) {
	l := c.lockFor(key(sha, plat))
	l.Lock()
	defer l.Unlock()

	tarballPath := platform.TarballPath(c.root, sha, plat)
	metaPath := platform.MetadataPath(c.root, sha, plat)

	data, err := os.ReadFile(tarballPath)
	if err != nil {
		return nil, nil, fmt.Errorf("localcache: reading tarball: %w", err)
	}
	artifact, err := metadata.Load(metaPath)
	if err != nil {
		return nil, nil, fmt.Errorf("localcache: reading metadata: %w", err)
	}

	if c.verifyOnRead {
		sum := sha256Hex(data)
		if artifact.Integrity != "" && sum != artifact.Integrity {
			packageID := model.BuildPackageID(artifact.GitURL, artifact.CommitSHA)
			return nil, nil, gcerrors.IntegrityMismatch(packageID)
		}
	}
	return data, artifact, nil
}

// Store writes data and artifact into the content-addressed location for
// (sha, platform), atomically: the tarball is written to a temp file in
// the same directory and renamed into place so a concurrent Get never
// observes a partial write.
func (c *Cache) Store(sha, plat string, data []byte, artifact *model.TarballArtifact) error {
	l := c.lockFor(key(sha, plat))
	l.Lock()
	defer l.Unlock()

	dir := platform.ArtifactDir(c.root, sha, plat)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("localcache: creating artifact dir: %w", err)
	}

	tarballPath := platform.TarballPath(c.root, sha, plat)
	tmp := tarballPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("localcache: writing temp tarball: %w", err)
	}
	if err := os.Rename(tmp, tarballPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("localcache: renaming tarball into place: %w", err)
	}

	metaPath := platform.MetadataPath(c.root, sha, plat)
	if err := metadata.Save(metaPath, artifact); err != nil {
		return fmt.Errorf("localcache: saving metadata: %w", err)
	}
	return nil
}

// Clear removes every cached artifact directory under the tarballs root,
// implementing `gitcache cache clear`.
func (c *Cache) Clear() error {
	dir := platform.TarballsDir(c.root)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("localcache: listing tarballs dir: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("localcache: removing %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Stats reports the number of cached artifacts and their total size on
// disk, for `gitcache cache stats`.
type Stats struct {
	ArtifactCount int
	TotalBytes    int64
}

// Stat walks the tarballs directory and sums artifact sizes.
func (c *Cache) Stat() (Stats, error) {
	dir := platform.TarballsDir(c.root)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Stats{}, nil
		}
		return Stats{}, fmt.Errorf("localcache: listing tarballs dir: %w", err)
	}

	var stats Stats
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		tarballPath := filepath.Join(dir, e.Name(), "package.tgz")
		info, err := os.Stat(tarballPath)
		if err != nil {
			continue
		}
		stats.ArtifactCount++
		stats.TotalBytes += info.Size()
	}
	return stats, nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256-" + hex.EncodeToString(sum[:])
}
