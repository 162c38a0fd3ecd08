// Package auth exposes the read-only boundary into gitcache's
// authentication state. Token storage and
// refresh are owned by an external collaborator — gitcache never writes
// credentials — this package only reads the snapshot once per invocation
// and, for CI environments, performs the one-shot validation call named in
// a CI pipeline's one-shot validation call.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/gitcache-dev/gitcache/pkg/model"
)

const validateTimeout = 10 * time.Second

// cacheFile is the external collaborator's auth-cache file; gitcache only
// ever reads it.
func cacheFile() string {
	return filepath.Join(xdg.StateHome, "gitcache", "auth.json")
}

// IsCI reports whether the process is running inside a CI environment,
// following the convention most CI providers (and npm itself) set: a
// non-empty CI environment variable.
func IsCI() bool {
	return os.Getenv("CI") != ""
}

// Read returns a best-effort AuthState snapshot. GITCACHE_TOKEN takes
// precedence as a CI-provided token; absent that, the external
// collaborator's cache file is consulted. Any read failure yields an
// unauthenticated state rather than an error — install preparation never
// aborts over an auth lookup.
func Read() *model.AuthState {
	if token := os.Getenv("GITCACHE_TOKEN"); token != "" {
		tokenType := "user"
		if IsCI() {
			tokenType = "ci"
		}
		return &model.AuthState{Authenticated: true, Token: token, TokenType: tokenType}
	}

	data, err := os.ReadFile(cacheFile())
	if err != nil {
		return &model.AuthState{}
	}

	var cached model.AuthState
	if err := json.Unmarshal(data, &cached); err != nil {
		return &model.AuthState{}
	}
	return &cached
}

type validateResponse struct {
	Valid bool   `json:"valid"`
	OrgID string `json:"orgId"`
}

// ValidateCI performs the one-shot CI-token validation against the
// registry's auth service: "if running in a CI
// environment that supplies a CI token, attempt a one-shot validation
// against the auth service; on success, enable the registry tier for this
// invocation." A non-2xx response or transport error is treated as
// validation failure, never a fatal error — the registry tier simply stays
// disabled.
func ValidateCI(ctx context.Context, baseURL, token string) (*model.AuthState, error) {
	if baseURL == "" || token == "" {
		return &model.AuthState{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/auth/validate", nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building validate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return &model.AuthState{}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &model.AuthState{}, nil
	}

	var body validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || !body.Valid {
		return &model.AuthState{}, nil
	}

	return &model.AuthState{Authenticated: true, Token: token, OrgID: body.OrgID, TokenType: "ci"}, nil
}
