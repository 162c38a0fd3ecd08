// Package config loads gitcache.yaml from the XDG config directory via
// viper, expanding Docker Compose-style ${VAR}/${VAR:-default}
// environment references before parsing, and layering GITCACHE_*
// environment variables on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFileName is the name of the config file under the XDG
// config directory.
const DefaultConfigFileName = "gitcache.yaml"

// envVarPattern matches Docker Compose-style environment variable syntax:
// ${VAR} or ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandEnvVars expands ${VAR} and ${VAR:-default} references in s against
// the current process environment. A malformed reference is left as-is.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}
		value := os.Getenv(submatches[1])
		if value == "" && len(submatches) >= 4 {
			return submatches[3]
		}
		return value
	})
}

// Config is gitcache's full configuration surface.
type Config struct {
	// CacheRoot overrides the default $HOME/.gitcache cache location.
	CacheRoot string `yaml:"cacheRoot,omitempty"`
	// Registry configures the Registry tier's HTTP endpoint and token.
	Registry RegistryConfig `yaml:"registry"`
	// Verbose enables debug-level structured logging.
	Verbose bool `yaml:"verbose,omitempty"`
	// VerifyOnRead enables the Local tier's integrity check on every read.
	VerifyOnRead bool `yaml:"verifyOnRead,omitempty"`
}

// RegistryConfig holds the Registry tier's connection details.
type RegistryConfig struct {
	// URL is the base URL of the registry's lookup/download/upload API.
	URL string `yaml:"url,omitempty"`
	// Token authenticates requests to the registry.
	// Prefer GITCACHE_TOKEN over storing this in the config file.
	Token string `yaml:"token,omitempty"`
}

// Path returns the path to gitcache.yaml under the XDG config directory:
// $XDG_CONFIG_HOME/gitcache/gitcache.yaml.
func Path() string {
	return filepath.Join(xdg.ConfigHome, "gitcache", DefaultConfigFileName)
}

// Load reads gitcache.yaml, expands environment variable references, and
// layers the GITCACHE_API_URL, GITCACHE_TOKEN, and GITCACHE_VERBOSE
// environment variables on top (env wins over file, matching viper's
// usual precedence). A missing config file is not an error — gitcache
// runs with every tier but Registry enabled by default.
func Load() (*Config, error) {
	cfg := &Config{}

	path := Path()
	if data, err := os.ReadFile(path); err == nil {
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	v := viper.New()
	v.SetEnvPrefix("GITCACHE")
	v.AutomaticEnv()

	if url := v.GetString("API_URL"); url != "" {
		cfg.Registry.URL = url
	}
	if token := v.GetString("TOKEN"); token != "" {
		cfg.Registry.Token = token
	}
	if v.IsSet("VERBOSE") {
		cfg.Verbose = v.GetBool("VERBOSE")
	}

	return cfg, nil
}

// Save writes cfg to the XDG config path, creating parent directories as
// needed. Used by a future `gitcache config set` surface; exercised today
// by tests exclusively.
func Save(cfg *Config) error {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: creating directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}
