// Package config holds engine configuration and project-wide constants.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Version is the current wdlx version.
// Set at build time via -ldflags or by writing to this file.
var Version = "0.3.1"

// SourceFileExt is the WDL source extension.
const SourceFileExt = ".wdl"

// ASTFileExt is the extension of the JSON syntax-tree interchange files
// the CLI consumes.
const ASTFileExt = ".ast.json"

// Config is the engine configuration, loadable from YAML.
type Config struct {
	// Backend selects the task-execution backend.
	Backend string `yaml:"backend"`
	// OutputDir is the root directory for run outputs.
	OutputDir string `yaml:"output_dir"`
	// MaxConcurrentTasks bounds simultaneous task commands.
	MaxConcurrentTasks int64 `yaml:"max_concurrent_tasks"`
	// MaxConcurrentScatter bounds simultaneous scatter bodies per
	// scatter statement.
	MaxConcurrentScatter int64 `yaml:"max_concurrent_scatter"`
	// DefaultMaxRetries applies when a task declares none.
	DefaultMaxRetries int `yaml:"default_max_retries"`
	// JournalPath locates the run journal database; empty disables the
	// journal.
	JournalPath string `yaml:"journal_path"`
	// StageDir is where remote inputs are downloaded.
	StageDir string `yaml:"stage_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend:              "local",
		OutputDir:            "wdlx-out",
		MaxConcurrentTasks:   int64(runtime.NumCPU()),
		MaxConcurrentScatter: int64(runtime.NumCPU()),
	}
}

// Load reads a YAML configuration file, filling unset fields with
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config `%s`: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config `%s`: %w", path, err)
	}
	if cfg.Backend == "" {
		cfg.Backend = "local"
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = int64(runtime.NumCPU())
	}
	if cfg.MaxConcurrentScatter <= 0 {
		cfg.MaxConcurrentScatter = int64(runtime.NumCPU())
	}
	return cfg, nil
}
