// Package config loads leantrace configuration from .leantrace/config.yml
// with environment variable overrides.
package config

import "runtime"

// Config represents the complete leantrace configuration.
type Config struct {
	Server Server `yaml:"server" mapstructure:"server"`
	Trace  Trace  `yaml:"trace" mapstructure:"trace"`
	Paths  Paths  `yaml:"paths" mapstructure:"paths"`
	Inject Inject `yaml:"inject" mapstructure:"inject"`
}

// Server configures the language-server subprocess.
type Server struct {
	Path string   `yaml:"path" mapstructure:"path"` // explicit binary path; empty resolves from PATH
	Args []string `yaml:"args" mapstructure:"args"` // arguments that start the server

	GoalMethod string `yaml:"goal_method" mapstructure:"goal_method"` // goal-state query method
	WaitMethod string `yaml:"wait_method" mapstructure:"wait_method"` // readiness request method

	StartupTimeoutSec int `yaml:"startup_timeout_sec" mapstructure:"startup_timeout_sec"`
	RequestTimeoutSec int `yaml:"request_timeout_sec" mapstructure:"request_timeout_sec"`
	ReadyRetries      int `yaml:"ready_retries" mapstructure:"ready_retries"`
	ReadyBackoffMS    int `yaml:"ready_backoff_ms" mapstructure:"ready_backoff_ms"`
}

// Trace configures extraction.
type Trace struct {
	Mode        string `yaml:"mode" mapstructure:"mode"`               // "adaptive" or "exhaustive"
	GridStride  int    `yaml:"grid_stride" mapstructure:"grid_stride"` // adaptive grid stride
	OutDir      string `yaml:"out_dir" mapstructure:"out_dir"`         // artifact output tree
	Viewer      bool   `yaml:"viewer" mapstructure:"viewer"`           // also emit viewer pages
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"` // parallel file sessions
	Manifest    string `yaml:"manifest" mapstructure:"manifest"`       // manifest db path; empty disables
}

// Paths defines which files to trace and which to ignore.
type Paths struct {
	Source []string `yaml:"source" mapstructure:"source"` // glob patterns for source files
	Ignore []string `yaml:"ignore" mapstructure:"ignore"` // glob patterns to ignore
}

// Inject configures doc-tree injection.
type Inject struct {
	Window int    `yaml:"window" mapstructure:"window"` // near-match line window
	Label  string `yaml:"label" mapstructure:"label"`   // injected link text
	Report string `yaml:"report" mapstructure:"report"` // report output path; empty disables
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: Server{
			Path:              "",
			Args:              []string{"serve"},
			GoalMethod:        "$/lean/plainGoal",
			WaitMethod:        "textDocument/waitForDiagnostics",
			StartupTimeoutSec: 60,
			RequestTimeoutSec: 20,
			ReadyRetries:      4,
			ReadyBackoffMS:    250,
		},
		Trace: Trace{
			Mode:        "adaptive",
			GridStride:  16,
			OutDir:      ".leantrace/traces",
			Viewer:      true,
			Concurrency: runtime.NumCPU(),
			Manifest:    ".leantrace/manifest.db",
		},
		Paths: Paths{
			Source: []string{"**/*.lean"},
			Ignore: []string{
				".git/**",
				".lake/**",
				"lake-packages/**",
				"build/**",
				"docbuild/**",
			},
		},
		Inject: Inject{
			Window: 5,
			Label:  "trace",
			Report: ".leantrace/inject-report.json",
		},
	}
}
