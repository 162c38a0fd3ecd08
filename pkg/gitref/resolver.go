// Package gitref resolves a lockfile's Git reference (branch, tag, or
// HEAD) to a full 40-character commit SHA by shelling out to
// `git ls-remote` rather than linking a Git implementation. Abbreviated
// SHAs are not expanded.
package gitref

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	gcerrors "github.com/gitcache-dev/gitcache/pkg/errors"
	"github.com/gitcache-dev/gitcache/pkg/model"
)

// MaxConcurrentResolutions bounds the number of `git ls-remote` subprocesses
// run at once during a ResolveAll call.
const MaxConcurrentResolutions = 8

// subprocessTimeout bounds a single `git ls-remote` call.
const subprocessTimeout = 30 * time.Second

var fullSHAPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// IsFullSHA reports whether ref is already a complete 40-character commit
// SHA, in which case no network round trip is needed to resolve it.
func IsFullSHA(ref string) bool {
	return fullSHAPattern.MatchString(ref)
}

// Resolve expands a single Git reference (branch, tag, or "HEAD")
// against repoURL into a full commit SHA. A full 40-character SHA is
// returned unchanged; an abbreviated SHA is only matched against ref
// names, so it fails with ReferenceUnresolvable. Resolve prefers tags over
// branches and HEAD over everything when several refs match the same name,
// priority order: exact tag > exact branch > HEAD >
// suffix match.
func Resolve(ctx context.Context, repoURL, ref string) (string, error) {
	if IsFullSHA(ref) {
		return ref, nil
	}

	refs, err := lsRemote(ctx, repoURL)
	if err != nil {
		return "", gcerrors.ReferenceUnresolvable(ref, err)
	}

	if sha, ok := matchReference(refs, ref); ok {
		return sha, nil
	}
	return "", gcerrors.ReferenceUnresolvable(ref, fmt.Errorf("no matching ref %q in %s", ref, repoURL))
}

// ResolveAll resolves every dependency's Reference field to a full commit
// SHA, running up to MaxConcurrentResolutions git subprocesses at once via
// errgroup. A single dependency's resolution failure never aborts the
// others — it is recorded as ResolvedSHA == "" and the caller (the
// orchestrator) treats that as a per-dependency warning and excludes the
// dependency from cache consideration.
func ResolveAll(ctx context.Context, deps []model.GitDependency) ([]model.GitDependency, error) {
	out := make([]model.GitDependency, len(deps))
	copy(out, deps)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrentResolutions)

	for i := range out {
		i := i
		g.Go(func() error {
			url := out[i].PreferredURL
			if url == "" {
				url = out[i].GitURL
			}
			sha, err := Resolve(ctx, url, out[i].Reference)
			if err != nil {
				return nil // recorded as unresolved below, not fatal
			}
			out[i].ResolvedSHA = sha
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

func lsRemote(ctx context.Context, repoURL string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, subprocessTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-remote", repoURL)
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-remote %s: %s", repoURL, strings.TrimSpace(stderr.String()))
	}

	refs := make(map[string]string)
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		refs[fields[1]] = fields[0]
	}
	return refs, nil
}

// matchReference applies the resolver's priority order: an exact tag
// ref, then an exact branch ref, then HEAD (when ref requests the default
// branch), then any ref whose name ends with "/<ref>".
func matchReference(refs map[string]string, ref string) (string, bool) {
	if ref == "HEAD" {
		if sha, ok := refs["HEAD"]; ok {
			return sha, true
		}
	}
	if sha, ok := refs["refs/tags/"+ref]; ok {
		return sha, true
	}
	if sha, ok := refs["refs/heads/"+ref]; ok {
		return sha, true
	}
	if sha, ok := refs["HEAD"]; ok && ref == "" {
		return sha, true
	}
	suffix := "/" + ref
	for name, sha := range refs {
		if strings.HasSuffix(name, suffix) {
			return sha, true
		}
	}
	return "", false
}
