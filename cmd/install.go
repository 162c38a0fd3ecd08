package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gitcache-dev/gitcache/pkg/config"
	gcerrors "github.com/gitcache-dev/gitcache/pkg/errors"
	"github.com/gitcache-dev/gitcache/pkg/orchestrator"
	"github.com/gitcache-dev/gitcache/pkg/output"
)

var outputFormat string

var installCmd = &cobra.Command{
	Use:   "install [-- npm-install-args...]",
	Short: "Accelerate npm install for the current project",
	Long: `install scans package-lock.json for Git-sourced dependencies, resolves
each to a commit SHA, and fetches or builds a tarball for it from the
local/registry/git cache hierarchy before handing off to npm install.

Arguments after -- are forwarded to npm install unchanged, e.g.:

  gitcache install -- --omit=dev`,
	Args:               cobra.ArbitraryArgs,
	DisableFlagParsing: false,
	RunE:               runInstall,
}

func init() {
	installCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json, yaml")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		format = output.Table
	}

	cfg, err := config.Load()
	if err != nil {
		cfg = &config.Config{}
	}

	result, err := orchestrator.Install(cmd.Context(), orchestrator.Options{
		CacheRoot:       cacheRootOpt,
		RegistryURL:     cfg.Registry.URL,
		VerifyOnRead:    cfg.VerifyOnRead,
		Verbose:         verboseFlag || cfg.Verbose,
		PassthroughArgs: args,
	})
	if err != nil {
		return fmt.Errorf("gitcache: %w", err)
	}

	summary := summaryFromResult(result)
	if renderErr := output.FormatOutput(summary, format); renderErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "gitcache: rendering summary: %v\n", renderErr)
	}

	if result.ExitCode != 0 {
		return &exitError{code: result.ExitCode}
	}
	return nil
}

func summaryFromResult(r *orchestrator.Result) *output.InstallSummary {
	s := &output.InstallSummary{
		CacheRoot:    r.CacheRoot,
		LockfileUsed: r.LockfileUsed,
		Cached:       r.Cached,
		Built:        r.Missing,
		Unresolved:   r.Unresolved,
		ExitCode:     r.ExitCode,
	}
	for _, e := range r.BuildErrors {
		s.BuildErrors = append(s.BuildErrors, e.Error())
	}
	for _, a := range r.Anomalies {
		s.Anomalies = append(s.Anomalies, a.Name)
	}
	return s
}

// exitError carries a child process exit code through cobra's error path
// without gitcache printing a redundant "Error:" line for it.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("child process exited %d", e.code) }

// exitCodeFor maps an error returned from Execute() to a process exit
// code: ChildInstallFailed and exitError propagate their own code,
// everything else is a generic failure.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	var te *gcerrors.TypedError
	if errors.As(err, &te) && te.ExitCode != 0 {
		return te.ExitCode
	}
	return 1
}
