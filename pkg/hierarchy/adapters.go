package hierarchy

import (
	"context"
	"fmt"
	"strings"

	"github.com/gitcache-dev/gitcache/pkg/localcache"
	"github.com/gitcache-dev/gitcache/pkg/model"
	"github.com/gitcache-dev/gitcache/pkg/registrycache"
	"github.com/gitcache-dev/gitcache/pkg/tarball"
)

func shaOf(packageID string) string {
	idx := strings.LastIndex(packageID, "#")
	if idx < 0 {
		return packageID
	}
	return packageID[idx+1:]
}

// LocalStrategy adapts *localcache.Cache (keyed on sha+platform) to the
// Hierarchy's packageID-keyed Strategy interface.
type LocalStrategy struct {
	Cache *localcache.Cache
}

func (s LocalStrategy) Has(_ context.Context, packageID, platform string) (bool, error) {
	return s.Cache.Has(shaOf(packageID), platform), nil
}

func (s LocalStrategy) Get(_ context.Context, packageID, platform string) ([]byte, *model.TarballArtifact, error) {
	return s.Cache.Get(shaOf(packageID), platform)
}

func (s LocalStrategy) Store(_ context.Context, packageID, platform string, data []byte, artifact *model.TarballArtifact) error {
	return s.Cache.Store(shaOf(packageID), platform, data, artifact)
}

func (s LocalStrategy) Clear() error {
	return s.Cache.Clear()
}

// RegistryStrategy adapts *registrycache.Client to the Strategy interface.
// Store always uploads synchronously from the hierarchy's perspective —
// callers wanting fire-and-forget background uploads should call the
// client's own UploadAsync path directly. Hierarchy.Store never calls it
// (that only ever writes the Local tier); its one caller is Hierarchy.Get's
// background propagation after a Git-tier hit.
type RegistryStrategy struct {
	Client *registrycache.Client
}

// Authenticated reports whether the underlying client carries a token,
// read by Hierarchy.newEntry to populate TierStatus.Authenticated.
func (s RegistryStrategy) Authenticated() bool { return s.Client.Authenticated() }

func (s RegistryStrategy) Has(ctx context.Context, packageID, platform string) (bool, error) {
	return s.Client.Has(ctx, packageID, platform)
}

func (s RegistryStrategy) Get(ctx context.Context, packageID, platform string) ([]byte, *model.TarballArtifact, error) {
	return s.Client.Get(ctx, packageID, platform)
}

func (s RegistryStrategy) Store(ctx context.Context, packageID, platform string, data []byte, _ *model.TarballArtifact) error {
	errCh := s.Client.Store(ctx, packageID, platform, data, registrycache.UploadSync)
	return <-errCh
}

func (s RegistryStrategy) Clear() error {
	return nil
}

// GitStrategy adapts the tarball builder into the Git tier: "has" always
// reports true if a dependency's resolved SHA is known (builds are never
// pre-verified against the remote), "get" builds the tarball and returns
// its bytes, and "store"/"clear" are no-ops — gitcache never writes back
// to Git.
type GitStrategy struct {
	Builder *tarball.Builder
	Local   *localcache.Cache
	// Dependencies indexes resolved GitDependency records by packageID so
	// Get can recover the (gitUrl, sha) pair the Builder needs.
	Dependencies map[string]model.GitDependency
}

func (s GitStrategy) Has(_ context.Context, packageID, _ string) (bool, error) {
	_, ok := s.Dependencies[packageID]
	return ok, nil
}

func (s GitStrategy) Get(ctx context.Context, packageID, _ string) ([]byte, *model.TarballArtifact, error) {
	dep, ok := s.Dependencies[packageID]
	if !ok {
		return nil, nil, fmt.Errorf("git tier: no dependency registered for %s", packageID)
	}
	artifact, err := s.Builder.Build(ctx, dep)
	if err != nil {
		return nil, nil, err
	}
	data, loaded, err := s.Local.Get(dep.ResolvedSHA, artifact.Platform)
	if err != nil {
		return nil, nil, err
	}
	return data, loaded, nil
}

func (s GitStrategy) Store(_ context.Context, _, _ string, _ []byte, _ *model.TarballArtifact) error {
	return nil
}

func (s GitStrategy) Clear() error {
	return nil
}
