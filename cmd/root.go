package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gitcache-dev/gitcache/pkg/version"
)

var (
	cfgFile      string
	versionFlag  bool
	verboseFlag  bool
	cacheRootOpt string
)

// rootCmd is gitcache's base command. Invoked with no subcommand, it runs
// the install acceleration pipeline and then spawns `npm install` with any
// trailing arguments passed through untouched — the same way
// `npm install` itself behaves as its own default verb.
var rootCmd = &cobra.Command{
	Use:   "gitcache [-- npm-install-args...]",
	Short: "A drop-in accelerator for npm install with Git-sourced dependencies",
	Long: `gitcache resolves Git-sourced dependencies pinned in package-lock.json
to commit SHAs, materializes content-addressed tarballs for them, and
serves them from a local/registry/git cache hierarchy so that npm install
reads from cache instead of re-cloning every time.

Run with no arguments in a project directory to accelerate npm install.`,
	Args:               cobra.ArbitraryArgs,
	DisableFlagParsing: false,
	SilenceErrors:      true,
	SilenceUsage:       true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionFlag {
			fmt.Println(version.GetVersion())
			return nil
		}
		return runInstall(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by cmd/gitcache/main.go.
func Execute() {
	err := rootCmd.Execute()
	var ee *exitError
	if err != nil && !errors.As(err, &ee) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	if err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/gitcache/gitcache.yaml)")
	rootCmd.PersistentFlags().StringVar(&cacheRootOpt, "cache-root", "", "override the cache root (default $HOME/.gitcache)")
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "write debug-level entries to the operations log")
	rootCmd.Flags().BoolVarP(&versionFlag, "version", "v", false, "show version information")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err == nil {
			fmt.Fprintln(os.Stderr, "gitcache: using config file:", viper.ConfigFileUsed())
		}
	}
}
