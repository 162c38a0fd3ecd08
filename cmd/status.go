package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gitcache-dev/gitcache/pkg/auth"
	"github.com/gitcache-dev/gitcache/pkg/config"
	"github.com/gitcache-dev/gitcache/pkg/hierarchy"
	"github.com/gitcache-dev/gitcache/pkg/localcache"
	"github.com/gitcache-dev/gitcache/pkg/mirror"
	"github.com/gitcache-dev/gitcache/pkg/output"
	"github.com/gitcache-dev/gitcache/pkg/platform"
	"github.com/gitcache-dev/gitcache/pkg/registrycache"
	"github.com/gitcache-dev/gitcache/pkg/tarball"
)

// probePackageID is an address no real dependency can resolve to; Probe
// uses it purely to exercise each tier's reachability check.
const probePackageID = "gitcache://status-probe#0000000000000000000000000000000000000000"

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report which cache tiers are reachable",
	Long: `status probes the local, registry, and git tiers the same way install
does on its first lookup of an invocation, and reports whether each one
is available and, for the registry tier, authenticated.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json, yaml")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		format = output.Table
	}

	cfg, err := config.Load()
	if err != nil {
		cfg = &config.Config{}
	}

	root, err := platform.Root(cacheRootOpt)
	if err != nil {
		return fmt.Errorf("gitcache: resolving cache root: %w", err)
	}
	if err := platform.EnsureRoot(root); err != nil {
		return fmt.Errorf("gitcache: preparing cache root: %w", err)
	}

	registryURL := cfg.Registry.URL
	local := localcache.New(root, cfg.VerifyOnRead)
	mirrors := mirror.NewManager(root)
	builder := tarball.New(root, mirrors, local)

	authState := auth.Read()
	var registryStrategy hierarchy.Strategy
	if authState.Authenticated && registryURL != "" {
		registryStrategy = hierarchy.RegistryStrategy{Client: registrycache.New(registryURL, authState.Token)}
	}
	gitStrategy := hierarchy.GitStrategy{Builder: builder, Local: local}

	h := hierarchy.New(hierarchy.LocalStrategy{Cache: local}, registryStrategy, gitStrategy)
	h.Probe(context.Background(), probePackageID, platform.Current())
	report := &output.TierReport{Tiers: h.Status()}
	return output.FormatOutput(report, format)
}
