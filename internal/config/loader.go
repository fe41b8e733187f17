package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a new configuration loader for the given project root.
func NewLoader(rootDir string) Loader {
	return &loader{rootDir: rootDir}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (LEANTRACE_*)
// 2. Config file (.leantrace/config.yml or .leantrace/config.yaml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	configDir := filepath.Join(l.rootDir, ".leantrace")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	v.SetEnvPrefix("LEANTRACE")
	v.AutomaticEnv()
	// Replace . with _ in env var names (e.g., LEANTRACE_SERVER_PATH)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, key := range []string{
		"server.path",
		"server.goal_method",
		"server.wait_method",
		"server.startup_timeout_sec",
		"server.request_timeout_sec",
		"server.ready_retries",
		"server.ready_backoff_ms",
		"trace.mode",
		"trace.grid_stride",
		"trace.out_dir",
		"trace.viewer",
		"trace.concurrency",
		"trace.manifest",
		"inject.window",
		"inject.label",
		"inject.report",
	} {
		v.BindEnv(key)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - we'll use defaults + env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("server.path", defaults.Server.Path)
	v.SetDefault("server.args", defaults.Server.Args)
	v.SetDefault("server.goal_method", defaults.Server.GoalMethod)
	v.SetDefault("server.wait_method", defaults.Server.WaitMethod)
	v.SetDefault("server.startup_timeout_sec", defaults.Server.StartupTimeoutSec)
	v.SetDefault("server.request_timeout_sec", defaults.Server.RequestTimeoutSec)
	v.SetDefault("server.ready_retries", defaults.Server.ReadyRetries)
	v.SetDefault("server.ready_backoff_ms", defaults.Server.ReadyBackoffMS)

	v.SetDefault("trace.mode", defaults.Trace.Mode)
	v.SetDefault("trace.grid_stride", defaults.Trace.GridStride)
	v.SetDefault("trace.out_dir", defaults.Trace.OutDir)
	v.SetDefault("trace.viewer", defaults.Trace.Viewer)
	v.SetDefault("trace.concurrency", defaults.Trace.Concurrency)
	v.SetDefault("trace.manifest", defaults.Trace.Manifest)

	v.SetDefault("paths.source", defaults.Paths.Source)
	v.SetDefault("paths.ignore", defaults.Paths.Ignore)

	v.SetDefault("inject.window", defaults.Inject.Window)
	v.SetDefault("inject.label", defaults.Inject.Label)
	v.SetDefault("inject.report", defaults.Inject.Report)
}
