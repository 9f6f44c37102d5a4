// Package config holds runctl's on-disk configuration: provider
// defaults, protection/cleanup thresholds, retry tuning, and the
// checkpoint and logging subsystems. Loading merges a YAML file over
// built-in defaults field-by-field.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RetryConfig mirrors internal/retry.Config in YAML-serializable form.
// It is loaded and validated with the rest of the file; no command
// converts it to a retry.Config, and the retry executor runs with its
// own package defaults.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	JitterFactor float64       `yaml:"jitter_factor"`
}

// CheckpointConfig holds checkpoint settings. They are loaded and
// validated, but no command reads them.
type CheckpointConfig struct {
	// Suffixes lists checkpoint file extensions; the checkpoint
	// manager recognizes its own built-in list instead.
	Suffixes []string `yaml:"suffixes"`

	// KeepLastN is a retention count; `checkpoint cleanup` takes its
	// count from its --keep-last-n flag (default 3) instead.
	KeepLastN int `yaml:"keep_last_n"`

	// AutoUpload names upload-on-appearance of new checkpoint files;
	// the controller uploads only the final checkpoint at job end.
	AutoUpload bool `yaml:"auto_upload"`
}

// LogConfig controls the console/file logger.
type LogConfig struct {
	// Level sets verbosity: trace, debug, info, warn, error.
	Level string `yaml:"level"`

	// Dir names a log directory (default .runctl-state/logs). No
	// command reads it.
	Dir string `yaml:"dir"`

	// EnableColor enables ANSI coloring for console output.
	EnableColor bool `yaml:"enable_color"`

	// JSON names structured JSON log lines. No command reads it;
	// `--output json` is a separate global flag.
	JSON bool `yaml:"json"`
}

// Config is runctl's top-level configuration.
type Config struct {
	// DefaultProvider selects the cloud backend. Only "aws" is
	// implemented; Validate rejects any other value.
	DefaultProvider string `yaml:"default_provider"`

	// DefaultRegion is the provider region every command uses.
	DefaultRegion string `yaml:"default_region"`

	// DefaultInstanceType is used by `workflow train` when no instance
	// type is given explicitly.
	DefaultInstanceType string `yaml:"default_instance_type"`

	// IAMProfile is the instance profile attached to created resources.
	IAMProfile string `yaml:"iam_profile"`

	// Project tags resources created by `create` and `workflow train`
	// with tool:project=<Project> when no --project flag is given.
	// `resources list`/`cleanup` filter only by their own --project
	// flag.
	Project string `yaml:"project"`

	// ProtectedTagKeys are additional tag keys (beyond tool:protected)
	// the safe-cleanup gate treats as protection when set to "true".
	ProtectedTagKeys []string `yaml:"protected_tag_keys"`

	// MassOpThreshold is the safe-cleanup gate's confirmation
	// threshold; MassOpHardCap is its absolute cap.
	MassOpThreshold int `yaml:"mass_op_threshold"`
	MassOpHardCap   int `yaml:"mass_op_hard_cap"`

	// CleanupAgeGuard blocks cleanup of resources younger than this,
	// unless forced.
	CleanupAgeGuard time.Duration `yaml:"cleanup_age_guard"`

	// MassCreateWarn/MassCreateCap parameterize the lifecycle
	// orchestrator's mass-creation guard.
	MassCreateWarn int `yaml:"mass_create_warn"`
	MassCreateCap  int `yaml:"mass_create_cap"`

	// WaitReadyTimeout bounds how long `create --wait` polls for
	// Running before giving up.
	WaitReadyTimeout time.Duration `yaml:"wait_ready_timeout"`

	RetryDefaults RetryConfig      `yaml:"retry_defaults"`
	Checkpoint    CheckpointConfig `yaml:"checkpoint"`
	Log           LogConfig        `yaml:"log"`
}

// DefaultConfig returns a Config populated with the standard defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultProvider:     "aws",
		DefaultRegion:       "us-east-1",
		DefaultInstanceType: "",
		IAMProfile:          "",
		Project:             "",
		ProtectedTagKeys:    nil,
		MassOpThreshold:     10,
		MassOpHardCap:       50,
		CleanupAgeGuard:     5 * time.Minute,
		MassCreateWarn:      10,
		MassCreateCap:       50,
		WaitReadyTimeout:    10 * time.Minute,
		RetryDefaults: RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     30 * time.Second,
			JitterFactor: 0.1,
		},
		Checkpoint: CheckpointConfig{
			Suffixes:   []string{".ckpt", ".pt", ".pth", ".safetensors"},
			KeepLastN:  3,
			AutoUpload: false,
		},
		Log: LogConfig{
			Level:       "info",
			Dir:         ".runctl-state/logs",
			EnableColor: true,
			JSON:        false,
		},
	}
}

// UserConfigPath returns the conventional path for runctl's user-level
// config file: $XDG_CONFIG_HOME/runctl/config.yaml, falling back to
// ~/.config/runctl/config.yaml.
func UserConfigPath() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "runctl", "config.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "runctl", "config.yaml"), nil
}

// UserJournalPath returns the conventional path for the tracker's
// crash-resume journal: $XDG_STATE_HOME/runctl/tracker.json, falling
// back to ~/.local/state/runctl/tracker.json.
func UserJournalPath() (string, error) {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "runctl", "tracker.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", "runctl", "tracker.json"), nil
}

// Load loads configuration from path, merging it over DefaultConfig as
// mergeNonZero describes. If path doesn't exist, returns defaults without
// error — a missing config file is not a failure.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	mergeNonZero(cfg, &fileCfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeNonZero overlays non-zero scalar/slice fields from file onto
// cfg. The booleans Checkpoint.AutoUpload, Log.EnableColor and
// Log.JSON are always copied from file, so a file that omits them sets
// them to false. Kept as explicit field assignments rather than
// reflection.
func mergeNonZero(cfg, file *Config) {
	if file.DefaultProvider != "" {
		cfg.DefaultProvider = file.DefaultProvider
	}
	if file.DefaultRegion != "" {
		cfg.DefaultRegion = file.DefaultRegion
	}
	if file.DefaultInstanceType != "" {
		cfg.DefaultInstanceType = file.DefaultInstanceType
	}
	if file.IAMProfile != "" {
		cfg.IAMProfile = file.IAMProfile
	}
	if file.Project != "" {
		cfg.Project = file.Project
	}
	if len(file.ProtectedTagKeys) > 0 {
		cfg.ProtectedTagKeys = file.ProtectedTagKeys
	}
	if file.MassOpThreshold != 0 {
		cfg.MassOpThreshold = file.MassOpThreshold
	}
	if file.MassOpHardCap != 0 {
		cfg.MassOpHardCap = file.MassOpHardCap
	}
	if file.CleanupAgeGuard != 0 {
		cfg.CleanupAgeGuard = file.CleanupAgeGuard
	}
	if file.MassCreateWarn != 0 {
		cfg.MassCreateWarn = file.MassCreateWarn
	}
	if file.MassCreateCap != 0 {
		cfg.MassCreateCap = file.MassCreateCap
	}
	if file.WaitReadyTimeout != 0 {
		cfg.WaitReadyTimeout = file.WaitReadyTimeout
	}
	if file.RetryDefaults.MaxAttempts != 0 {
		cfg.RetryDefaults.MaxAttempts = file.RetryDefaults.MaxAttempts
	}
	if file.RetryDefaults.InitialDelay != 0 {
		cfg.RetryDefaults.InitialDelay = file.RetryDefaults.InitialDelay
	}
	if file.RetryDefaults.MaxDelay != 0 {
		cfg.RetryDefaults.MaxDelay = file.RetryDefaults.MaxDelay
	}
	if file.RetryDefaults.JitterFactor != 0 {
		cfg.RetryDefaults.JitterFactor = file.RetryDefaults.JitterFactor
	}
	if len(file.Checkpoint.Suffixes) > 0 {
		cfg.Checkpoint.Suffixes = file.Checkpoint.Suffixes
	}
	if file.Checkpoint.KeepLastN != 0 {
		cfg.Checkpoint.KeepLastN = file.Checkpoint.KeepLastN
	}
	cfg.Checkpoint.AutoUpload = file.Checkpoint.AutoUpload
	if file.Log.Level != "" {
		cfg.Log.Level = file.Log.Level
	}
	if file.Log.Dir != "" {
		cfg.Log.Dir = file.Log.Dir
	}
	cfg.Log.EnableColor = file.Log.EnableColor
	cfg.Log.JSON = file.Log.JSON
}

// Validate checks the configuration for internally-inconsistent
// values before it's handed to the rest of the control core.
func (c *Config) Validate() error {
	if c.DefaultProvider != "aws" {
		return fmt.Errorf("default_provider %q is not supported, only \"aws\" is implemented", c.DefaultProvider)
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log.level %q, must be one of: trace, debug, info, warn, error", c.Log.Level)
	}

	if c.MassOpThreshold < 0 {
		return fmt.Errorf("mass_op_threshold must be >= 0, got %d", c.MassOpThreshold)
	}
	if c.MassOpHardCap <= 0 {
		return fmt.Errorf("mass_op_hard_cap must be > 0, got %d", c.MassOpHardCap)
	}
	if c.MassOpThreshold > c.MassOpHardCap {
		return fmt.Errorf("mass_op_threshold (%d) cannot exceed mass_op_hard_cap (%d)", c.MassOpThreshold, c.MassOpHardCap)
	}
	if c.MassCreateCap <= 0 {
		return fmt.Errorf("mass_create_cap must be > 0, got %d", c.MassCreateCap)
	}
	if c.CleanupAgeGuard < 0 {
		return fmt.Errorf("cleanup_age_guard must be >= 0, got %v", c.CleanupAgeGuard)
	}
	if c.WaitReadyTimeout <= 0 {
		return fmt.Errorf("wait_ready_timeout must be > 0, got %v", c.WaitReadyTimeout)
	}
	if c.RetryDefaults.MaxAttempts <= 0 {
		return fmt.Errorf("retry_defaults.max_attempts must be > 0, got %d", c.RetryDefaults.MaxAttempts)
	}
	if c.Checkpoint.KeepLastN < 0 {
		return fmt.Errorf("checkpoint.keep_last_n must be >= 0, got %d", c.Checkpoint.KeepLastN)
	}
	for i, key := range c.ProtectedTagKeys {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("protected_tag_keys[%d] cannot be empty", i)
		}
	}
	return nil
}
