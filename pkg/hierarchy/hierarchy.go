// Package hierarchy composes the Local, Registry, and Git tiers behind a
// single lookup-then-propagate cache: an ordered vector of tagged
// strategies, each exposing a {has, get, store} capability set.
package hierarchy

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	gcerrors "github.com/gitcache-dev/gitcache/pkg/errors"
	"github.com/gitcache-dev/gitcache/pkg/model"
)

// Tier identifies one of the three cache strategies, in priority order.
type Tier int

const (
	TierLocal Tier = iota
	TierRegistry
	TierGit
)

func (t Tier) String() string {
	switch t {
	case TierLocal:
		return "local"
	case TierRegistry:
		return "registry"
	case TierGit:
		return "git"
	default:
		return "unknown"
	}
}

// availability is the per-tier state machine named below:
// UNKNOWN -> PROBING -> AVAILABLE | UNAVAILABLE. It is cached for the
// duration of one Hierarchy (one install invocation).
type availability int

const (
	availUnknown availability = iota
	availProbing
	availAvailable
	availUnavailable
)

// Strategy is the uniform capability every tier exposes. Not every tier
// supports Clear (the Registry and Git tiers return nil and do nothing);
// Clear() is, in practice, local-only: Registry and Git never hold anything worth clearing.
type Strategy interface {
	Has(ctx context.Context, packageID, platform string) (bool, error)
	Get(ctx context.Context, packageID, platform string) ([]byte, *model.TarballArtifact, error)
	Store(ctx context.Context, packageID, platform string, data []byte, artifact *model.TarballArtifact) error
	Clear() error
}

type entry struct {
	tier     Tier
	strategy Strategy

	mu     sync.Mutex
	state  availability
	authed bool
}

// TierStatus is one row of Hierarchy.Status's diagnostic output.
type TierStatus struct {
	Tier          string
	Available     bool
	Authenticated bool
}

// Hierarchy composes enabled tiers in priority order and implements
// lookup-then-propagate semantics over them.
type Hierarchy struct {
	entries []*entry
	group   singleflight.Group
}

// Option configures a Hierarchy at construction.
type Option func(*Hierarchy)

// authenticator is implemented by strategies that have a meaningful
// authenticated/unauthenticated state (currently only RegistryStrategy).
type authenticator interface {
	Authenticated() bool
}

func newEntry(tier Tier, s Strategy) *entry {
	e := &entry{tier: tier, strategy: s}
	if a, ok := s.(authenticator); ok {
		e.authed = a.Authenticated()
	}
	return e
}

// New builds a Hierarchy. local is always enabled; registry and git are
// included only when non-nil, omitted: disabled tiers are
// omitted from the ordered list."
func New(local Strategy, registry Strategy, git Strategy) *Hierarchy {
	h := &Hierarchy{}
	h.entries = append(h.entries, newEntry(TierLocal, local))
	if registry != nil {
		h.entries = append(h.entries, newEntry(TierRegistry, registry))
	}
	if git != nil {
		h.entries = append(h.entries, newEntry(TierGit, git))
	}
	return h
}

// Probe checks every enabled tier for packageID, recording each tier's
// availability regardless of whether an earlier tier already reported a
// hit. Used by diagnostics (`gitcache status`) that need every tier's
// state populated without performing a real Get.
func (h *Hierarchy) Probe(ctx context.Context, packageID, platform string) {
	for _, e := range h.entries {
		_, err := e.strategy.Has(ctx, packageID, platform)
		e.markProbed(err == nil)
	}
}

// Has reports whether any enabled tier holds packageID, trying tiers in
// priority order. A tier that raises an error is treated as absent for
// that tier only and the search continues.
func (h *Hierarchy) Has(ctx context.Context, packageID, platform string) bool {
	for _, e := range h.entries {
		ok, err := e.strategy.Has(ctx, packageID, platform)
		e.markProbed(err == nil)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// Get fetches packageID from the first tier that has it, then propagates
// the bytes upward into every higher-priority tier that doesn't already
// have them. Propagation failures are swallowed; the returned bytes are
// unaffected. Returns PackageNotFound only if every tier reports absent
// or failed.
func (h *Hierarchy) Get(ctx context.Context, packageID, platform string) ([]byte, *model.TarballArtifact, error) {
	v, err, _ := h.group.Do(packageID+"#"+platform, func() (interface{}, error) {
		return h.get(ctx, packageID, platform)
	})
	if err != nil {
		return nil, nil, err
	}
	res := v.(*getResult)
	return res.data, res.artifact, nil
}

type getResult struct {
	data     []byte
	artifact *model.TarballArtifact
}

func (h *Hierarchy) get(ctx context.Context, packageID, platform string) (*getResult, error) {
	for i, e := range h.entries {
		ok, err := e.strategy.Has(ctx, packageID, platform)
		e.markProbed(err == nil)
		if err != nil || !ok {
			continue
		}

		data, artifact, err := e.strategy.Get(ctx, packageID, platform)
		if err != nil {
			continue
		}

		go h.propagate(context.WithoutCancel(ctx), packageID, platform, data, artifact, i)
		return &getResult{data: data, artifact: artifact}, nil
	}
	return nil, gcerrors.PackageNotFound(packageID)
}

// propagate writes data into every tier ranked above hitIndex that
// doesn't already have it. Always invoked in its own goroutine so a slow
// or blocking Store (e.g. a synchronous registry upload) never delays the
// bytes already returned to the caller.
func (h *Hierarchy) propagate(ctx context.Context, packageID, platform string, data []byte, artifact *model.TarballArtifact, hitIndex int) {
	for i := 0; i < hitIndex; i++ {
		e := h.entries[i]
		ok, err := e.strategy.Has(ctx, packageID, platform)
		if err == nil && ok {
			continue
		}
		_ = e.strategy.Store(ctx, packageID, platform, data, artifact)
	}
}

// Store writes synchronously to the Local tier only; the Registry tier is
// written only by Get's background propagation after a Git-tier hit. Git
// is never written to.
func (h *Hierarchy) Store(ctx context.Context, packageID, platform string, data []byte, artifact *model.TarballArtifact) error {
	for _, e := range h.entries {
		if e.tier != TierLocal {
			continue
		}
		return e.strategy.Store(ctx, packageID, platform, data, artifact)
	}
	return fmt.Errorf("hierarchy: no local tier configured")
}

// Clear clears every tier that supports it (in practice, local only).
func (h *Hierarchy) Clear() error {
	var firstErr error
	for _, e := range h.entries {
		if err := e.strategy.Clear(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Status reports per-tier availability for the `status` CLI diagnostic.
func (h *Hierarchy) Status() []TierStatus {
	statuses := make([]TierStatus, 0, len(h.entries))
	for _, e := range h.entries {
		e.mu.Lock()
		statuses = append(statuses, TierStatus{
			Tier:          e.tier.String(),
			Available:     e.state == availAvailable,
			Authenticated: e.authed,
		})
		e.mu.Unlock()
	}
	return statuses
}

func (e *entry) markProbed(ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == availUnknown {
		e.state = availProbing
	}
	if ok {
		e.state = availAvailable
	} else if e.state == availProbing {
		e.state = availUnavailable
	}
}
