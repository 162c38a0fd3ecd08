// Package errors defines gitcache's error taxonomy: a propagation category
// (Fatal, Warning, Soft) plus a concrete Kind, so callers can
// switch on what happened without parsing strings.
package errors

import (
	"errors"
	"fmt"
)

// Category controls how an error propagates through the pipeline.
type Category int

const (
	// CategoryFatal aborts the current phase (lockfile scan, child install).
	// Only lockfile and child-install errors are ever fatal.
	CategoryFatal Category = iota
	// CategoryWarning degrades one dependency or one cache tier; the
	// pipeline logs it and continues.
	CategoryWarning
	// CategorySoft is swallowed entirely (e.g. a 413/429 on upload) — it is
	// never surfaced to the user, only logged at debug level.
	CategorySoft
)

func (c Category) String() string {
	switch c {
	case CategoryFatal:
		return "fatal"
	case CategoryWarning:
		return "warning"
	case CategorySoft:
		return "soft"
	default:
		return "unknown"
	}
}

// Kind identifies the specific error condition.
type Kind int

const (
	KindUnknown Kind = iota
	KindLockfileNotFound
	KindLockfileParseError
	KindUnsupportedLockfileVersion
	KindReferenceUnresolvable
	KindTarballBuildFailed
	KindRegistryDownloadFailed
	KindDownloadEndpointUnavailable
	KindRegistryUploadFailed
	KindNotAuthenticated
	KindIntegrityMismatch
	KindChildInstallFailed
	KindPackageNotFound
)

func (k Kind) String() string {
	switch k {
	case KindLockfileNotFound:
		return "LockfileNotFound"
	case KindLockfileParseError:
		return "LockfileParseError"
	case KindUnsupportedLockfileVersion:
		return "UnsupportedLockfileVersion"
	case KindReferenceUnresolvable:
		return "ReferenceUnresolvable"
	case KindTarballBuildFailed:
		return "TarballBuildFailed"
	case KindRegistryDownloadFailed:
		return "RegistryDownloadFailed"
	case KindDownloadEndpointUnavailable:
		return "DownloadEndpointUnavailable"
	case KindRegistryUploadFailed:
		return "RegistryUploadFailed"
	case KindNotAuthenticated:
		return "NotAuthenticated"
	case KindIntegrityMismatch:
		return "IntegrityMismatch"
	case KindChildInstallFailed:
		return "ChildInstallFailed"
	case KindPackageNotFound:
		return "PackageNotFound"
	default:
		return "Unknown"
	}
}

// TypedError is a gitcache error with a Kind, a Category, and optional
// structured fields (Phase, Status, ExitCode) used by specific Kinds.
type TypedError struct {
	Kind     Kind
	Category Category
	Err      error
	Context  string

	// Phase names the sub-step that failed, for TarballBuildFailed
	// ("clone", "checkout", "pack", "install") and RegistryDownloadFailed
	// ("lookup", "download", "fetch").
	Phase string
	// Status is the HTTP status code, for RegistryDownloadFailed.
	Status int
	// ExitCode is the child process exit code, for ChildInstallFailed.
	ExitCode int
}

func (e *TypedError) Error() string {
	msg := e.Kind.String()
	if e.Phase != "" {
		msg = fmt.Sprintf("%s{phase=%s}", msg, e.Phase)
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s{status=%d}", msg, e.Status)
	}
	if e.Context != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Context)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *TypedError) Unwrap() error {
	return e.Err
}

func newError(kind Kind, category Category, err error, context string) *TypedError {
	return &TypedError{Kind: kind, Category: category, Err: err, Context: context}
}

// LockfileNotFound reports that the lockfile path does not exist.
func LockfileNotFound(path string) error {
	return newError(KindLockfileNotFound, CategoryFatal, fmt.Errorf("no such file: %s", path), "")
}

// LockfileParseError reports malformed lockfile JSON.
func LockfileParseError(err error) error {
	return newError(KindLockfileParseError, CategoryFatal, err, "parsing lockfile")
}

// UnsupportedLockfileVersion reports an unrecognized top-level lockfileVersion.
func UnsupportedLockfileVersion(version int) error {
	return newError(KindUnsupportedLockfileVersion, CategoryFatal,
		fmt.Errorf("lockfileVersion %d is not 1, 2, or 3", version), "")
}

// ReferenceUnresolvable reports that a Git reference could not be expanded
// to a commit SHA. Always a per-dependency Warning, never fatal.
func ReferenceUnresolvable(ref string, cause error) error {
	return newError(KindReferenceUnresolvable, CategoryWarning, cause,
		fmt.Sprintf("cannot resolve reference %q", ref))
}

// TarballBuildFailed reports a failure in one phase of the builder
// pipeline: "clone", "checkout", "pack", or "install".
func TarballBuildFailed(phase string, err error) error {
	e := newError(KindTarballBuildFailed, CategoryWarning, err, "")
	e.Phase = phase
	return e
}

// RegistryDownloadFailed reports an HTTP-level failure at one of the three
// download hops ("lookup", "download", "fetch").
func RegistryDownloadFailed(phase string, status int, err error) error {
	e := newError(KindRegistryDownloadFailed, CategoryWarning, err, "")
	e.Phase = phase
	e.Status = status
	return e
}

// DownloadEndpointUnavailable reports that a lookup record existed but its
// download URL could not be minted.
func DownloadEndpointUnavailable(err error) error {
	return newError(KindDownloadEndpointUnavailable, CategoryWarning, err, "")
}

// RegistryUploadFailed reports a hard (non-2xx, non-413, non-429) failure
// uploading to the registry.
func RegistryUploadFailed(status int, err error) error {
	e := newError(KindRegistryUploadFailed, CategoryWarning, err, "")
	e.Status = status
	return e
}

// NotAuthenticated reports that the registry tier is disabled for this
// invocation because no valid token is available.
func NotAuthenticated() error {
	return newError(KindNotAuthenticated, CategoryWarning, nil, "registry tier requires authentication")
}

// IntegrityMismatch reports a sha256 mismatch between a cached tarball and
// its metadata sidecar.
func IntegrityMismatch(packageID string) error {
	return newError(KindIntegrityMismatch, CategoryWarning,
		fmt.Errorf("sha256 mismatch for %s", packageID), "")
}

// ChildInstallFailed wraps the underlying package manager's non-zero exit.
func ChildInstallFailed(exitCode int) error {
	e := newError(KindChildInstallFailed, CategoryFatal, nil, "")
	e.ExitCode = exitCode
	return e
}

// PackageNotFound reports that every enabled tier reported the key absent.
func PackageNotFound(packageID string) error {
	return newError(KindPackageNotFound, CategoryWarning,
		fmt.Errorf("%s not found in any cache tier", packageID), "")
}

// GetKind returns the Kind of err, or KindUnknown if err is not (or does
// not wrap) a *TypedError.
func GetKind(err error) Kind {
	var te *TypedError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// GetCategory returns the Category of err, defaulting to CategoryWarning
// for untyped errors — the safest default for a pipeline that must keep
// going on unexpected failures.
func GetCategory(err error) Category {
	if err == nil {
		return CategoryWarning
	}
	var te *TypedError
	if errors.As(err, &te) {
		return te.Category
	}
	return CategoryWarning
}

// IsFatal reports whether err should abort the current phase.
func IsFatal(err error) bool {
	return GetCategory(err) == CategoryFatal
}
