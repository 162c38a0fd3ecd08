package hierarchy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gitcache-dev/gitcache/pkg/model"
)

type fakeTier struct {
	data    map[string][]byte
	artif   map[string]*model.TarballArtifact
	hasErr  error
	getErr  error
	storeFn func(packageID, platform string, data []byte, artifact *model.TarballArtifact) error
	stored  []string
}

func newFakeTier() *fakeTier {
	return &fakeTier{data: map[string][]byte{}, artif: map[string]*model.TarballArtifact{}}
}

func fkey(packageID, platform string) string { return packageID + "#" + platform }

func (f *fakeTier) Has(_ context.Context, packageID, platform string) (bool, error) {
	if f.hasErr != nil {
		return false, f.hasErr
	}
	_, ok := f.data[fkey(packageID, platform)]
	return ok, nil
}

func (f *fakeTier) Get(_ context.Context, packageID, platform string) ([]byte, *model.TarballArtifact, error) {
	if f.getErr != nil {
		return nil, nil, f.getErr
	}
	return f.data[fkey(packageID, platform)], f.artif[fkey(packageID, platform)], nil
}

func (f *fakeTier) Store(_ context.Context, packageID, platform string, data []byte, artifact *model.TarballArtifact) error {
	f.stored = append(f.stored, fkey(packageID, platform))
	if f.storeFn != nil {
		return f.storeFn(packageID, platform, data, artifact)
	}
	f.data[fkey(packageID, platform)] = data
	f.artif[fkey(packageID, platform)] = artifact
	return nil
}

func (f *fakeTier) Clear() error {
	f.data = map[string][]byte{}
	return nil
}

func TestHas_FirstHitWins(t *testing.T) {
	local := newFakeTier()
	registry := newFakeTier()
	registry.data[fkey("pkg#sha", "linux-x64")] = []byte("data")

	h := New(local, registry, nil)
	if !h.Has(context.Background(), "pkg#sha", "linux-x64") {
		t.Error("expected Has() to find entry in registry tier")
	}
}

func TestHas_TierErrorDoesNotAbortSearch(t *testing.T) {
	local := newFakeTier()
	local.hasErr = errors.New("local unavailable")
	registry := newFakeTier()
	registry.data[fkey("pkg#sha", "linux-x64")] = []byte("data")

	h := New(local, registry, nil)
	if !h.Has(context.Background(), "pkg#sha", "linux-x64") {
		t.Error("expected Has() to fall through past erroring tier")
	}
}

func TestGet_PropagatesUpward(t *testing.T) {
	local := newFakeTier()
	registry := newFakeTier()
	artifact := &model.TarballArtifact{GitURL: "https://example.com/x.git", CommitSHA: "sha"}
	registry.data[fkey("pkg#sha", "linux-x64")] = []byte("data")
	registry.artif[fkey("pkg#sha", "linux-x64")] = artifact

	propagated := make(chan struct{})
	local.storeFn = func(packageID, platform string, data []byte, artifact *model.TarballArtifact) error {
		local.data[fkey(packageID, platform)] = data
		local.artif[fkey(packageID, platform)] = artifact
		close(propagated)
		return nil
	}

	h := New(local, registry, nil)
	data, got, err := h.Get(context.Background(), "pkg#sha", "linux-x64")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(data) != "data" {
		t.Errorf("Get() data = %q", data)
	}
	if got != artifact {
		t.Error("expected returned artifact to be registry's artifact")
	}

	select {
	case <-propagated:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for async propagation to reach the local tier")
	}

	if _, ok := local.data[fkey("pkg#sha", "linux-x64")]; !ok {
		t.Error("expected propagation to write into local tier")
	}
}

// TestGet_DoesNotBlockOnPropagation asserts Get returns bytes to the
// caller before a slow propagation Store finishes, per the hierarchy's
// "propagation never blocks the primary read path" guarantee.
func TestGet_DoesNotBlockOnPropagation(t *testing.T) {
	local := newFakeTier()
	registry := newFakeTier()
	registry.data[fkey("pkg#sha", "linux-x64")] = []byte("data")

	storeStarted := make(chan struct{})
	release := make(chan struct{})
	local.storeFn = func(packageID, platform string, data []byte, artifact *model.TarballArtifact) error {
		close(storeStarted)
		<-release
		local.data[fkey(packageID, platform)] = data
		return nil
	}

	h := New(local, registry, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, _, err := h.Get(context.Background(), "pkg#sha", "linux-x64"); err != nil {
			t.Errorf("Get() error = %v", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Get() timed out")
	}

	select {
	case <-storeStarted:
	case <-time.After(time.Second):
		t.Fatal("expected propagation to have started in the background")
	}

	if _, ok := local.data[fkey("pkg#sha", "linux-x64")]; ok {
		t.Error("expected local tier not yet written while propagation is still blocked on Store")
	}

	close(release)
}

func TestGet_NotFoundWhenNoTierHasIt(t *testing.T) {
	local := newFakeTier()
	registry := newFakeTier()

	h := New(local, registry, nil)
	_, _, err := h.Get(context.Background(), "pkg#sha", "linux-x64")
	if err == nil {
		t.Fatal("expected PackageNotFound error")
	}
}

func TestStore_WritesLocalOnly(t *testing.T) {
	local := newFakeTier()
	registry := newFakeTier()

	h := New(local, registry, nil)
	artifact := &model.TarballArtifact{CommitSHA: "sha"}
	if err := h.Store(context.Background(), "pkg#sha", "linux-x64", []byte("data"), artifact); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	if _, ok := local.data[fkey("pkg#sha", "linux-x64")]; !ok {
		t.Error("expected local tier to hold stored data")
	}
	if len(registry.stored) != 0 {
		t.Error("expected Store() to never write registry directly")
	}
}

func TestStatus_ReportsDisabledTiersOmitted(t *testing.T) {
	local := newFakeTier()
	h := New(local, nil, nil)
	statuses := h.Status()
	if len(statuses) != 1 {
		t.Fatalf("expected exactly one tier status, got %d", len(statuses))
	}
	if statuses[0].Tier != "local" {
		t.Errorf("Tier = %q, want local", statuses[0].Tier)
	}
}

func TestClear_ClearsEveryTier(t *testing.T) {
	local := newFakeTier()
	registry := newFakeTier()
	local.data[fkey("pkg#sha", "linux-x64")] = []byte("data")
	registry.data[fkey("pkg#sha", "linux-x64")] = []byte("data")

	h := New(local, registry, nil)
	if err := h.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if len(local.data) != 0 || len(registry.data) != 0 {
		t.Error("expected both tiers cleared")
	}
}
