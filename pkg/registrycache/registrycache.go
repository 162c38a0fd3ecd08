// Package registrycache implements the Registry tier of the cache
// hierarchy: a presigned-URL protocol over plain net/http — lookup, mint a
// download URL, fetch the tarball unauthenticated, and on the upload side
// mint an upload URL, PUT the bytes, then finalize with a complete call —
// in the style of the example corpus's own API clients (bearer header,
// bounded-timeout http.Client; no request is retried). No third-party HTTP client
// library appears anywhere in the example corpus, so the stdlib client is
// used directly rather than introduced speculatively.
package registrycache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	gcerrors "github.com/gitcache-dev/gitcache/pkg/errors"
	"github.com/gitcache-dev/gitcache/pkg/model"
)

const requestTimeout = 30 * time.Second

// Client speaks the registry's lookup/download/upload protocol.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New constructs a registry Client. token may be empty, in which case
// every call fails fast with NotAuthenticated.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

func (c *Client) Authenticated() bool { return c.token != "" }

type lookupRecord struct {
	ID    string `json:"id"`
	S3Key string `json:"s3Key,omitempty"`
}

type downloadEnvelope struct {
	Data struct {
		DownloadURL string `json:"downloadUrl"`
	} `json:"data"`
}

type uploadMintEnvelope struct {
	Data struct {
		UploadURL  string `json:"uploadUrl"`
		ArtifactID string `json:"artifactId"`
	} `json:"data"`
}

func (c *Client) setAuth(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
}

// Has performs the lookup phase for packageID, reporting whether the
// registry holds an artifact for this key without downloading it. A 5xx,
// network failure, or unauthenticated client reports "absent" rather than
// raising an error.
func (c *Client) Has(ctx context.Context, packageID, _ string) (bool, error) {
	if !c.Authenticated() {
		return false, nil
	}
	rec, status, err := c.lookup(ctx, packageID)
	if err != nil || status != http.StatusOK {
		return false, nil
	}
	return rec != nil, nil
}

// Get resolves packageID's registry-internal artifact id via lookup, mints
// a presigned download URL for it, and fetches the tarball bytes from that
// URL unauthenticated.
func (c *Client) Get(ctx context.Context, packageID, plat string) ([]byte, *model.TarballArtifact, error) {
	if !c.Authenticated() {
		return nil, nil, gcerrors.NotAuthenticated()
	}

	rec, status, err := c.lookup(ctx, packageID)
	if err != nil {
		return nil, nil, gcerrors.RegistryDownloadFailed("lookup", status, err)
	}
	if status == http.StatusNotFound || rec == nil {
		return nil, nil, gcerrors.PackageNotFound(packageID)
	}

	downloadURL, err := c.mintDownloadURL(ctx, rec.ID)
	if err != nil {
		if rec.S3Key != "" {
			return nil, nil, gcerrors.DownloadEndpointUnavailable(err)
		}
		return nil, nil, err
	}

	data, err := c.fetch(ctx, downloadURL)
	if err != nil {
		return nil, nil, err
	}

	artifact := &model.TarballArtifact{
		GitURL:    packageGitURL(packageID),
		CommitSHA: packageSHA(packageID),
		Platform:  plat,
		Integrity: "sha256-" + sha256Hex(data),
		Size:      int64(len(data)),
	}
	return data, artifact, nil
}

// UploadMode selects how Store propagates a freshly built artifact to the
// registry.
type UploadMode int

const (
	// UploadSync waits for the upload to finish before Store returns.
	UploadSync UploadMode = iota
	// UploadAsync fires the upload in a goroutine and returns immediately;
	// failures are reported only via the returned channel, never to the
	// install pipeline, since registry propagation is best-effort.
	UploadAsync
)

// Store mints a presigned upload URL, PUTs the tarball bytes to it, and
// finalizes the upload with a complete call. An empty minted upload URL
// means the registry already has this artifact, and Store returns success
// without transferring bytes. A 413 or 429 response on the PUT is treated
// as a soft failure — it is swallowed and logged rather than surfaced. In
// UploadAsync mode the upload runs in the background and the returned
// channel receives exactly one error (nil on success) when it completes.
func (c *Client) Store(ctx context.Context, packageID, _ string, data []byte, mode UploadMode) <-chan error {
	done := make(chan error, 1)

	upload := func() {
		done <- c.upload(ctx, packageID, data)
		close(done)
	}

	if mode == UploadAsync {
		go upload()
	} else {
		upload()
	}
	return done
}

func (c *Client) upload(ctx context.Context, packageID string, data []byte) error {
	if !c.Authenticated() {
		return nil
	}

	hash := "sha256-" + sha256Hex(data)
	mint, err := c.mintUploadURL(ctx, int64(len(data)), hash)
	if err != nil {
		return err
	}
	if mint.Data.UploadURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, mint.Data.UploadURL, bytes.NewReader(data))
	if err != nil {
		return gcerrors.RegistryUploadFailed(0, err)
	}
	req.Header.Set("Content-Type", "application/gzip")
	req.ContentLength = int64(len(data))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gcerrors.RegistryUploadFailed(0, err)
	}
	drain(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fall through to finalize
	case resp.StatusCode == http.StatusRequestEntityTooLarge, resp.StatusCode == http.StatusTooManyRequests:
		// Soft failure: too large or rate-limited uploads never fail the
		// install, they just mean this artifact stays Local-only.
		return nil
	default:
		return gcerrors.RegistryUploadFailed(resp.StatusCode, fmt.Errorf("upload returned HTTP %d", resp.StatusCode))
	}

	return c.completeUpload(ctx, mint.Data.ArtifactID)
}

// lookup performs GET /artifacts/lookup/{packageId}. A 404 is reported as
// (nil, 404, nil), never as an error; only network failures and non-200/404
// statuses carry a non-nil error.
func (c *Client) lookup(ctx context.Context, packageID string) (*lookupRecord, int, error) {
	u := fmt.Sprintf("%s/artifacts/lookup/%s", c.baseURL, url.PathEscape(packageID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer drain(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil, resp.StatusCode, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("lookup returned HTTP %d", resp.StatusCode)
	}

	var rec lookupRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, resp.StatusCode, err
	}
	return &rec, resp.StatusCode, nil
}

// mintDownloadURL performs POST /artifacts/{id}/download.
func (c *Client) mintDownloadURL(ctx context.Context, artifactID string) (string, error) {
	u := fmt.Sprintf("%s/artifacts/%s/download", c.baseURL, url.PathEscape(artifactID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", gcerrors.RegistryDownloadFailed("download", 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", gcerrors.RegistryDownloadFailed("download", 0, err)
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", gcerrors.RegistryDownloadFailed("download", resp.StatusCode, fmt.Errorf("mint download url returned HTTP %d", resp.StatusCode))
	}

	var env downloadEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", gcerrors.RegistryDownloadFailed("download", resp.StatusCode, err)
	}
	return env.Data.DownloadURL, nil
}

// fetch performs the third, unauthenticated hop: GET <downloadUrl>.
func (c *Client) fetch(ctx context.Context, downloadURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, gcerrors.RegistryDownloadFailed("fetch", 0, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, gcerrors.RegistryDownloadFailed("fetch", 0, err)
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, gcerrors.RegistryDownloadFailed("fetch", resp.StatusCode, fmt.Errorf("download returned HTTP %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gcerrors.RegistryDownloadFailed("fetch", resp.StatusCode, err)
	}
	return data, nil
}

// mintUploadURL performs POST /artifacts with the upload request body.
func (c *Client) mintUploadURL(ctx context.Context, size int64, hash string) (*uploadMintEnvelope, error) {
	body, err := json.Marshal(struct {
		FileName    string `json:"fileName"`
		ContentType string `json:"contentType"`
		Size        int64  `json:"size"`
		Hash        string `json:"hash"`
	}{
		FileName:    "package.tgz",
		ContentType: "application/gzip",
		Size:        size,
		Hash:        hash,
	})
	if err != nil {
		return nil, gcerrors.RegistryUploadFailed(0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/artifacts", bytes.NewReader(body))
	if err != nil {
		return nil, gcerrors.RegistryUploadFailed(0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, gcerrors.RegistryUploadFailed(0, err)
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, gcerrors.RegistryUploadFailed(resp.StatusCode, fmt.Errorf("mint upload url returned HTTP %d", resp.StatusCode))
	}

	var env uploadMintEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, gcerrors.RegistryUploadFailed(resp.StatusCode, err)
	}
	return &env, nil
}

// completeUpload performs POST /artifacts/{artifactId}/complete, the
// fourth and final phase that finalizes a successful upload.
func (c *Client) completeUpload(ctx context.Context, artifactID string) error {
	u := fmt.Sprintf("%s/artifacts/%s/complete", c.baseURL, url.PathEscape(artifactID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return gcerrors.RegistryUploadFailed(0, err)
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gcerrors.RegistryUploadFailed(0, err)
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return gcerrors.RegistryUploadFailed(resp.StatusCode, fmt.Errorf("complete upload returned HTTP %d", resp.StatusCode))
	}
	return nil
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// packageGitURL and packageSHA split a packageID of the form
// "<gitUrl>#<sha>" back into its components, mirroring model.BuildPackageID.
func packageGitURL(packageID string) string {
	for i := len(packageID) - 1; i >= 0; i-- {
		if packageID[i] == '#' {
			return packageID[:i]
		}
	}
	return packageID
}

func packageSHA(packageID string) string {
	for i := len(packageID) - 1; i >= 0; i-- {
		if packageID[i] == '#' {
			return packageID[i+1:]
		}
	}
	return ""
}
