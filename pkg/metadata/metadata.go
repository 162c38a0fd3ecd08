// Package metadata saves and loads the JSON sidecar that accompanies every
// cached tarball: pretty-printed JSON, written atomically via
// temp-file-and-rename.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gitcache-dev/gitcache/pkg/model"
)

// Save writes artifact as pretty-printed JSON to path, creating parent
// directories as needed and writing atomically (temp file + rename) so a
// concurrent reader never observes a partially written sidecar.
func Save(path string, artifact *model.TarballArtifact) error {
	if artifact == nil {
		return fmt.Errorf("metadata: artifact cannot be nil")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("metadata: creating directory: %w", err)
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("metadata: marshaling: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("metadata: writing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("metadata: renaming into place: %w", err)
	}
	return nil
}

// Load reads and unmarshals the sidecar at path.
func Load(path string) (*model.TarballArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("metadata: not found: %s", path)
		}
		return nil, fmt.Errorf("metadata: reading: %w", err)
	}

	var artifact model.TarballArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("metadata: unmarshaling %s: %w", path, err)
	}
	return &artifact, nil
}

// Exists reports whether a metadata sidecar is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
