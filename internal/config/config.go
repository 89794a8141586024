// internal/config/config.go
//
// This package handles configuration and the .warden directory structure.
// Every project that runs warden gets a .warden/ folder created in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// WardenDir is the name of the directory we create in each project
	WardenDir = ".warden"

	defaultTickInterval    = 600 * time.Millisecond
	defaultMaxAttempts     = 5
	defaultSoftStopRetry   = 30 * time.Second
	defaultHardStopTimeout = 2 * time.Minute
	defaultLogLevel        = "info"
	defaultDefinitionsDir  = "tasks"
)

const defaultProjectConfigYAML = `# warden project configuration
version: 1

# How often the orchestrator evaluates conditions and advances the current task.
tick_interval: 600ms

# Ticks a requirement may spend unsatisfied before it is classified as failed.
max_attempts: 5

# Soft stops are re-sent at this interval until the task honours them.
soft_stop_retry: 30s

# Tasks that allow a hard stop are terminated after this long.
hard_stop_timeout: 2m

# debug, info, warn or error
log_level: info

# Task definition files (*.yaml and *.go), relative to the project directory.
definitions_dir: tasks

# Local HTTP endpoint for report-finished and lock signals. Leave addr empty to disable.
bridge:
  addr: 127.0.0.1:7420
`

// BridgeConfig configures the local event bridge.
type BridgeConfig struct {
	Addr string `yaml:"addr"`
}

// ProjectConfig models .warden/config.yaml.
type ProjectConfig struct {
	Version         int           `yaml:"version"`
	TickInterval    time.Duration `yaml:"tick_interval"`
	MaxAttempts     int           `yaml:"max_attempts"`
	SoftStopRetry   time.Duration `yaml:"soft_stop_retry"`
	HardStopTimeout time.Duration `yaml:"hard_stop_timeout"`
	LogLevel        string        `yaml:"log_level"`
	DefinitionsDir  string        `yaml:"definitions_dir"`
	Bridge          BridgeConfig  `yaml:"bridge"`
}

// Config holds the runtime configuration for warden.
type Config struct {
	// ProjectDir is the directory warden was started from
	ProjectDir string

	// WardenProjectDir is ProjectDir/.warden
	WardenProjectDir string

	Project ProjectConfig
}

// InitDir creates the .warden directory structure in the given project
// directory and writes a commented default config when none exists.
//
// Structure created:
// .warden/
// ├── config.yaml
// ├── logs/         <- warden.log and the operator logbook
// └── state/        <- run history
func InitDir(projectDir string) error {
	wardenDir := filepath.Join(projectDir, WardenDir)
	dirs := []string{
		filepath.Join(wardenDir, "logs"),
		filepath.Join(wardenDir, "state"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return ensureProjectConfig(filepath.Join(wardenDir, "config.yaml"))
}

// Load reads .warden/config.yaml from projectDir. A missing file yields the
// defaults.
func Load(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:       projectDir,
		WardenProjectDir: filepath.Join(projectDir, WardenDir),
		Project:          DefaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.WardenProjectDir, "logs")
}

// StateDir returns the path to the state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.WardenProjectDir, "state")
}

// HistoryPath is where run bookkeeping is persisted.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.StateDir(), "history.json")
}

// LogbookPath is the operator journal.
func (c *Config) LogbookPath() string {
	return filepath.Join(c.LogsDir(), "logbook.log")
}

// DefinitionsDir returns the resolved task definitions directory.
func (c *Config) DefinitionsDir() string {
	return resolvePath(c.ProjectDir, c.Project.DefinitionsDir)
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.WardenProjectDir, "config.yaml")
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

// DefaultProjectConfig returns the values used when a key is absent.
func DefaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version:         1,
		TickInterval:    defaultTickInterval,
		MaxAttempts:     defaultMaxAttempts,
		SoftStopRetry:   defaultSoftStopRetry,
		HardStopTimeout: defaultHardStopTimeout,
		LogLevel:        defaultLogLevel,
		DefinitionsDir:  defaultDefinitionsDir,
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.TickInterval == 0 {
		pc.TickInterval = defaultTickInterval
	}
	if pc.MaxAttempts == 0 {
		pc.MaxAttempts = defaultMaxAttempts
	}
	if pc.SoftStopRetry == 0 {
		pc.SoftStopRetry = defaultSoftStopRetry
	}
	if pc.HardStopTimeout == 0 {
		pc.HardStopTimeout = defaultHardStopTimeout
	}
	if strings.TrimSpace(pc.LogLevel) == "" {
		pc.LogLevel = defaultLogLevel
	}
	if strings.TrimSpace(pc.DefinitionsDir) == "" {
		pc.DefinitionsDir = defaultDefinitionsDir
	}
}

func (pc *ProjectConfig) normalize() {
	pc.LogLevel = strings.ToLower(strings.TrimSpace(pc.LogLevel))
	pc.DefinitionsDir = strings.TrimSpace(pc.DefinitionsDir)
	pc.Bridge.Addr = strings.TrimSpace(pc.Bridge.Addr)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.TickInterval < 10*time.Millisecond {
		return fmt.Errorf("tick_interval must be at least 10ms")
	}
	if pc.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be positive")
	}
	if pc.SoftStopRetry < 0 || pc.HardStopTimeout < 0 {
		return fmt.Errorf("stop timeouts must not be negative")
	}
	switch pc.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}

// Save writes the project config back to .warden/config.yaml.
func (c *Config) Save() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize()
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.WardenProjectDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure warden dir: %w", err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0o644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}
