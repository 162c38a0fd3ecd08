// Package tarball implements the deterministic build pipeline: clone a
// dependency's mirror at its resolved SHA, run an npm-pack-equivalent
// over the checkout, and land the result in the
// content-addressed local cache. Concurrent requests for the same
// packageId are collapsed with singleflight; the bounded concurrent pool
// for building many missing dependencies at once lives one layer up, in
// the orchestrator, which dispatches hierarchy lookups through an
// errgroup capped at MaxConcurrentBuilds.
package tarball

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	gcerrors "github.com/gitcache-dev/gitcache/pkg/errors"
	"github.com/gitcache-dev/gitcache/pkg/localcache"
	"github.com/gitcache-dev/gitcache/pkg/mirror"
	"github.com/gitcache-dev/gitcache/pkg/model"
	"github.com/gitcache-dev/gitcache/pkg/pattern"
	"github.com/gitcache-dev/gitcache/pkg/platform"
)

// MaxConcurrentBuilds bounds the number of tarball builds running at once.
// The orchestrator's missing-dependency fetch pool is sized to this
// constant so a cold cache clones and packs at most this many
// dependencies concurrently.
const MaxConcurrentBuilds = 4

const cloneTimeout = 5 * time.Minute

// Builder produces package.tgz + metadata.json for a resolved
// GitDependency and stores it in the Local tier.
type Builder struct {
	cacheRoot string
	mirrors   *mirror.Manager
	local     *localcache.Cache

	group singleflight.Group
}

// New constructs a Builder rooted at cacheRoot.
func New(cacheRoot string, mirrors *mirror.Manager, local *localcache.Cache) *Builder {
	return &Builder{cacheRoot: cacheRoot, mirrors: mirrors, local: local}
}

// Build produces (or reuses) the tarball for dep at the current platform.
// Concurrent calls for the same packageId share one in-flight build via
// singleflight.
func (b *Builder) Build(ctx context.Context, dep model.GitDependency) (*model.TarballArtifact, error) {
	packageID := dep.PackageID()
	if packageID == "" {
		return nil, gcerrors.TarballBuildFailed("checkout", fmt.Errorf("dependency %s has no resolved sha", dep.Name))
	}
	plat := platform.Current()

	if b.local.Has(dep.ResolvedSHA, plat) {
		_, artifact, err := b.local.Get(dep.ResolvedSHA, plat)
		if err == nil {
			return artifact, nil
		}
	}

	result, err, _ := b.group.Do(packageID+"#"+plat, func() (interface{}, error) {
		return b.build(ctx, dep, plat)
	})
	if err != nil {
		return nil, err
	}
	return result.(*model.TarballArtifact), nil
}

func (b *Builder) build(ctx context.Context, dep model.GitDependency, plat string) (*model.TarballArtifact, error) {
	scratch, err := os.MkdirTemp("", "gitcache-build-*")
	if err != nil {
		return nil, gcerrors.TarballBuildFailed("clone", err)
	}
	defer os.RemoveAll(scratch)

	checkoutDir := filepath.Join(scratch, "checkout")
	url := dep.PreferredURL
	if url == "" {
		url = dep.GitURL
	}

	mirrorPath, mirrorErr := b.mirrors.EnsureMirror(ctx, url)

	if err := b.cloneAtSHA(ctx, url, mirrorPath, mirrorErr, dep.ResolvedSHA, checkoutDir); err != nil {
		return nil, gcerrors.TarballBuildFailed("checkout", err)
	}

	data, err := b.pack(checkoutDir)
	if err != nil {
		return nil, gcerrors.TarballBuildFailed("pack", err)
	}

	artifact := &model.TarballArtifact{
		GitURL:    dep.GitURL,
		CommitSHA: dep.ResolvedSHA,
		Platform:  plat,
		Integrity: "sha256-" + sha256Hex(data),
		BuildTime: time.Now().UTC().Format(time.RFC3339),
		Size:      int64(len(data)),
	}

	if err := b.local.Store(dep.ResolvedSHA, plat, data, artifact); err != nil {
		return nil, gcerrors.TarballBuildFailed("pack", err)
	}
	return artifact, nil
}

// cloneAtSHA clones url into dest and checks out sha, preferring a local
// --reference to the mirror (when available) so history already present
// on disk is not re-downloaded. A --depth=50 shallow clone is attempted
// first; if the target SHA is outside that window, a full fetch widens
// the clone before retrying the checkout.
func (b *Builder) cloneAtSHA(ctx context.Context, url, mirrorPath string, mirrorErr error, sha, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, cloneTimeout)
	defer cancel()

	args := []string{"clone", "--depth", "50"}
	if mirrorErr == nil && mirrorPath != "" {
		args = append(args, "--reference", mirrorPath, "--dissociate")
	}
	args = append(args, url, dest)

	if err := runGit(ctx, "", args...); err != nil {
		return fmt.Errorf("shallow clone: %w", err)
	}

	if err := runGit(ctx, dest, "checkout", "--detach", sha); err != nil {
		// SHA not in the shallow window: widen to full history and retry.
		if wideErr := runGit(ctx, dest, "fetch", "--unshallow", "origin"); wideErr != nil {
			return fmt.Errorf("checkout %s failed and could not widen history: %w", sha, err)
		}
		if err := runGit(ctx, dest, "checkout", "--detach", sha); err != nil {
			return fmt.Errorf("checkout %s after full fetch: %w", sha, err)
		}
	}
	return nil
}

func runGit(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return nil
}

// packEpoch is the fixed entry timestamp every tarball build normalizes
// to, so two sequential builds of the same checkout produce byte-identical
// package.tgz contents regardless of the real filesystem mtimes left by
// git checkout.
var packEpoch = time.Unix(0, 0).UTC()

// pack walks checkoutDir applying package.json's "files" allowlist (when
// present) and .npmignore rules, then produces a gzip-compressed tar
// archive the way `npm pack` would, minus lifecycle script execution
// (gitcache never runs install hooks while building a
// tarball).
func (b *Builder) pack(checkoutDir string) ([]byte, error) {
	allowlist, excludeRules, err := loadPackRules(checkoutDir)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.ModTime = packEpoch
	tw := tar.NewWriter(gz)

	err = filepath.WalkDir(checkoutDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(checkoutDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		if !shouldPack(rel, allowlist, excludeRules) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = "package/" + rel
		hdr.ModTime = packEpoch
		hdr.AccessTime = time.Time{}
		hdr.ChangeTime = time.Time{}
		hdr.Uid = 0
		hdr.Gid = 0
		hdr.Uname = ""
		hdr.Gname = ""

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("walking checkout: %w", err)
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing tar writer: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func shouldPack(rel string, allowlist *pattern.Allowlist, excludeRules *pattern.RuleSet) bool {
	if pattern.IsAlwaysIncluded(rel) {
		return true
	}
	for _, def := range pattern.DefaultExcludes {
		if g, err := pattern.Compile(def); err == nil && g.Match(rel) {
			return false
		}
	}
	if allowlist != nil {
		return allowlist.Included(rel)
	}
	if excludeRules != nil {
		return !excludeRules.Excluded(rel)
	}
	return true
}

func loadPackRules(checkoutDir string) (*pattern.Allowlist, *pattern.RuleSet, error) {
	var allowlist *pattern.Allowlist

	pkgJSONPath := filepath.Join(checkoutDir, "package.json")
	if data, err := os.ReadFile(pkgJSONPath); err == nil {
		var pkg struct {
			Files []string `json:"files"`
		}
		if err := json.Unmarshal(data, &pkg); err == nil && len(pkg.Files) > 0 {
			al, err := pattern.CompileAllowlist(pkg.Files)
			if err != nil {
				return nil, nil, fmt.Errorf("compiling files allowlist: %w", err)
			}
			allowlist = al
		}
	}

	var excludeRules *pattern.RuleSet
	for _, name := range []string{".npmignore", ".gitignore"} {
		data, err := os.ReadFile(filepath.Join(checkoutDir, name))
		if err != nil {
			continue
		}
		rs, err := pattern.CompileRuleSet(strings.Split(string(data), "\n"))
		if err != nil {
			return nil, nil, fmt.Errorf("compiling %s: %w", name, err)
		}
		excludeRules = rs
		break
	}

	return allowlist, excludeRules, nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
