// Package orchestrator implements install(), the entry point that drives
// the full acceleration pipeline in front of `npm install`: a single
// sequenced driver function that degrades every internal failure to a
// warning and always falls through to spawning the real subprocess.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gitcache-dev/gitcache/pkg/auth"
	gcerrors "github.com/gitcache-dev/gitcache/pkg/errors"
	"github.com/gitcache-dev/gitcache/pkg/gitref"
	"github.com/gitcache-dev/gitcache/pkg/hierarchy"
	"github.com/gitcache-dev/gitcache/pkg/localcache"
	"github.com/gitcache-dev/gitcache/pkg/lockfile"
	"github.com/gitcache-dev/gitcache/pkg/logging"
	"github.com/gitcache-dev/gitcache/pkg/mirror"
	"github.com/gitcache-dev/gitcache/pkg/model"
	"github.com/gitcache-dev/gitcache/pkg/platform"
	"github.com/gitcache-dev/gitcache/pkg/registrycache"
	"github.com/gitcache-dev/gitcache/pkg/tarball"
)

// Options configures one Install invocation.
type Options struct {
	// CacheRoot overrides the default $HOME/.gitcache location.
	CacheRoot string
	// WorkDir is the directory to scan for a lockfile and to run the
	// child `npm install` in. Defaults to the current working directory.
	WorkDir string
	// RegistryURL overrides the default registry host
	// (GITCACHE_API_URL).
	RegistryURL string
	// VerifyOnRead enables the local tier's integrity check on every read.
	VerifyOnRead bool
	// Verbose lowers the JSON log file's level to debug. Log entries are
	// written only to the log file, never mirrored to Stderr.
	Verbose bool
	// PassthroughArgs are forwarded verbatim to the underlying `npm
	// install` invocation.
	PassthroughArgs []string
	// Stdout/Stderr/Stdin are inherited by the child process and used for
	// stderr hints; default to the real os.Std* streams when nil.
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
}

// Result summarizes one preparation pass for reporting (status/cache
// stats commands, and npm SSH-to-HTTPS anomaly surfacing).
type Result struct {
	CacheRoot    string
	LockfileUsed string
	Cached       int
	// Missing counts dependencies that were absent from the local tier
	// and successfully fetched or built from a higher tier. Dependencies
	// that failed every tier are not counted here — see BuildErrors.
	Missing     int
	Unresolved  int
	BuildErrors []error
	Anomalies   []model.GitDependency
	ExitCode    int
}

// Install runs the full pipeline: ensure cache root, read auth state, scan
// the lockfile, resolve+fetch-or-build dependencies, then spawn `npm
// install`. Every step of preparation is best-effort — only a lockfile
// scan error or a reference-resolution error aborts preparation (never
// the child install), and
// ChildInstallFailed is the only error that ever sets a non-zero
// Result.ExitCode.
func Install(ctx context.Context, opts Options) (*Result, error) {
	stdout, stderr, stdin := opts.Stdout, opts.Stderr, opts.Stdin
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	if stdin == nil {
		stdin = os.Stdin
	}
	workDir := opts.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("orchestrator: determining working directory: %w", err)
		}
		workDir = wd
	}

	root, err := platform.Root(opts.CacheRoot)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resolving cache root: %w", err)
	}
	if err := platform.EnsureRoot(root); err != nil {
		fmt.Fprintf(stderr, "gitcache: warning: could not prepare cache root %s: %v\n", root, err)
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger, err := logging.NewCacheLogger(root, level)
	if err != nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	result := &Result{CacheRoot: root}

	registryState := resolveAuthState(ctx, opts.RegistryURL)
	logger.Info("auth resolved", "authenticated", registryState.Authenticated, "tokenType", registryState.TokenType)

	lockPath := findLockfile(workDir)
	if lockPath != "" {
		result.LockfileUsed = lockPath
		if err := prepare(ctx, opts, root, lockPath, registryState, logger, stderr, result); err != nil {
			logger.Warn("preparation failed, continuing without acceleration", "error", err)
			fmt.Fprintf(stderr, "gitcache: warning: acceleration skipped (%v)\n", err)
		}
	} else {
		logger.Info("no lockfile found, skipping acceleration")
	}

	exitCode, err := spawnInstall(ctx, workDir, root, opts.PassthroughArgs, stdout, stderr, stdin)
	result.ExitCode = exitCode
	if err != nil {
		logger.Error("child install failed", "exitCode", exitCode, "error", err)
		return result, err
	}
	logger.Info("install completed", "exitCode", exitCode)
	return result, nil
}

func resolveAuthState(ctx context.Context, registryURL string) *model.AuthState {
	if auth.IsCI() {
		if token := os.Getenv("GITCACHE_TOKEN"); token != "" {
			if state, err := auth.ValidateCI(ctx, registryURL, token); err == nil && state.Authenticated {
				return state
			}
		}
	}
	return auth.Read()
}

func findLockfile(dir string) string {
	path := lockfile.Detect(dir)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func prepare(ctx context.Context, opts Options, root, lockPath string, authState *model.AuthState, logger *slog.Logger, stderr io.Writer, result *Result) error {
	scan, err := lockfile.Scan(lockPath)
	if err != nil {
		return fmt.Errorf("scanning lockfile: %w", err)
	}
	if !scan.HasGitDependencies {
		logger.Info("lockfile has no git dependencies")
		return nil
	}

	resolved, err := gitref.ResolveAll(ctx, scan.Dependencies)
	if err != nil {
		return fmt.Errorf("resolving references: %w", err)
	}

	local := localcache.New(root, opts.VerifyOnRead)
	mirrors := mirror.NewManager(root)
	builder := tarball.New(root, mirrors, local)

	var registryStrategy hierarchy.Strategy
	if authState.Authenticated {
		client := registrycache.New(opts.RegistryURL, authState.Token)
		registryStrategy = hierarchy.RegistryStrategy{Client: client}
	}

	depsByID := map[string]model.GitDependency{}
	for _, d := range resolved {
		if d.HasResolvedSHA() {
			depsByID[d.PackageID()] = d
		}
	}
	gitStrategy := hierarchy.GitStrategy{Builder: builder, Local: local, Dependencies: depsByID}

	h := hierarchy.New(hierarchy.LocalStrategy{Cache: local}, registryStrategy, gitStrategy)

	plat := platform.Current()
	var cached, missing []model.GitDependency
	for _, d := range resolved {
		if !d.HasResolvedSHA() {
			result.Unresolved++
			fmt.Fprintf(stderr, "gitcache: hint: %s could not be resolved against any known ref; a fresh npm install may pick up lockfile changes\n", d.Name)
			continue
		}
		if d.Anomaly {
			result.Anomalies = append(result.Anomalies, d)
		}
		if local.Has(d.ResolvedSHA, plat) {
			cached = append(cached, d)
		} else {
			missing = append(missing, d)
		}
	}
	result.Cached = len(cached)

	buildErrs, builtCount := fetchMissing(ctx, h, missing, plat, logger)
	result.Missing = builtCount
	result.BuildErrors = buildErrs

	if len(result.Anomalies) > 0 {
		for _, a := range result.Anomalies {
			fmt.Fprintf(stderr, "gitcache: notice: %s has a package.json dependency spec that resolves over SSH while the lockfile records an HTTPS URL\n", a.Name)
		}
	}

	logger.Info("preparation complete",
		"cached", result.Cached,
		"built", result.Missing,
		"unresolved", result.Unresolved,
		"buildErrors", len(buildErrs),
	)
	return nil
}

// fetchMissing resolves every dependency in missing through the hierarchy
// (Registry, then Git), running up to tarball.MaxConcurrentBuilds lookups
// in parallel so a cold cache doesn't serialize on one clone-and-pack at a
// time. Per-dependency failures are collected rather than aborting the
// batch — a single unreachable dependency never blocks the rest.
func fetchMissing(ctx context.Context, h *hierarchy.Hierarchy, missing []model.GitDependency, plat string, logger *slog.Logger) ([]error, int) {
	var (
		mu        sync.Mutex
		buildErrs []error
		built     int
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(tarball.MaxConcurrentBuilds)

	for _, d := range missing {
		d := d
		g.Go(func() error {
			_, _, err := h.Get(ctx, d.PackageID(), plat)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				buildErrs = append(buildErrs, fmt.Errorf("%s: %w", d.Name, err))
				logger.Warn("dependency unavailable from every tier", "name", d.Name, "error", err)
				return nil
			}
			built++
			return nil
		})
	}
	_ = g.Wait()
	return buildErrs, built
}

func spawnInstall(ctx context.Context, workDir, cacheRoot string, passthrough []string, stdout, stderr io.Writer, stdin io.Reader) (int, error) {
	args := append([]string{"install"}, passthrough...)
	cmd := exec.CommandContext(ctx, "npm", args...)
	cmd.Dir = workDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Stdin = stdin
	cmd.Env = append(os.Environ(),
		"npm_config_cache="+cacheRoot,
		"NPM_CONFIG_CACHE="+cacheRoot,
	)

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			code = 1
		}
		return code, gcerrors.ChildInstallFailed(code)
	}
	return 1, gcerrors.ChildInstallFailed(1)
}
