package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gitcache-dev/gitcache/pkg/config"
	"github.com/gitcache-dev/gitcache/pkg/lockfile"
	"github.com/gitcache-dev/gitcache/pkg/localcache"
	"github.com/gitcache-dev/gitcache/pkg/mirror"
	"github.com/gitcache-dev/gitcache/pkg/output"
	"github.com/gitcache-dev/gitcache/pkg/platform"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the local cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the local tier's on-disk footprint",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached tarball and mirror clone",
	RunE:  runCacheClear,
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove mirror clones not referenced by the current lockfile",
	Long: `prune reads the lockfile in the current directory (npm-shrinkwrap.json,
package-lock.json or yarn.lock, if present) and removes every cached bare
mirror clone whose Git URL no longer appears in it. Run outside a project directory (or with no lockfile) to remove every
cached mirror.`,
	RunE: runCachePrune,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd, cachePruneCmd)
	cacheStatsCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, json, yaml")
	rootCmd.AddCommand(cacheCmd)
}

func cacheRoot() (string, error) {
	root, err := platform.Root(cacheRootOpt)
	if err != nil {
		return "", fmt.Errorf("gitcache: resolving cache root: %w", err)
	}
	if err := platform.EnsureRoot(root); err != nil {
		return "", fmt.Errorf("gitcache: preparing cache root: %w", err)
	}
	return root, nil
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		format = output.Table
	}

	root, err := cacheRoot()
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		cfg = &config.Config{}
	}

	local := localcache.New(root, cfg.VerifyOnRead)
	stats, err := local.Stat()
	if err != nil {
		return fmt.Errorf("gitcache: reading cache stats: %w", err)
	}

	mirrors, err := mirror.NewManager(root).ListCached()
	if err != nil {
		return fmt.Errorf("gitcache: listing mirrors: %w", err)
	}

	report := &output.CacheStatsReport{Stats: stats, MirrorCount: len(mirrors)}
	return output.FormatOutput(report, format)
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	root, err := cacheRoot()
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		cfg = &config.Config{}
	}

	local := localcache.New(root, cfg.VerifyOnRead)
	if err := local.Clear(); err != nil {
		return fmt.Errorf("gitcache: clearing tarball cache: %w", err)
	}

	mgr := mirror.NewManager(root)
	mirrors, err := mgr.ListCached()
	if err != nil {
		return fmt.Errorf("gitcache: listing mirrors: %w", err)
	}
	for _, m := range mirrors {
		if err := mgr.Remove(m.URL); err != nil {
			return fmt.Errorf("gitcache: removing mirror %s: %w", m.URL, err)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), "gitcache: cache cleared")
	return nil
}

func runCachePrune(cmd *cobra.Command, _ []string) error {
	root, err := cacheRoot()
	if err != nil {
		return err
	}

	var referenced []string
	if wd, wdErr := os.Getwd(); wdErr == nil {
		if path := lockfile.Detect(wd); path != "" {
			if scan, scanErr := lockfile.Scan(path); scanErr == nil {
				for _, d := range scan.Dependencies {
					referenced = append(referenced, d.GitURL)
				}
			}
		}
	}

	removed, err := mirror.NewManager(root).Prune(referenced)
	if err != nil {
		return fmt.Errorf("gitcache: pruning mirrors: %w", err)
	}

	if len(removed) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "gitcache: nothing to prune")
		return nil
	}
	for _, url := range removed {
		fmt.Fprintf(cmd.OutOrStdout(), "gitcache: pruned %s\n", url)
	}
	return nil
}
