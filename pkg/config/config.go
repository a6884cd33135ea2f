// Package config loads, validates and persists the agent configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (MXFMOVER_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mxfmover/mxfmover/internal/bytesize"
)

// Config is the full agent configuration.
type Config struct {
	// SourceDirectory is the tree watched for incoming video files.
	SourceDirectory string `mapstructure:"source_directory" validate:"required" yaml:"source_directory"`

	// DestinationDirectory receives completed copies, typically a
	// network share mount point.
	DestinationDirectory string `mapstructure:"destination_directory" validate:"required" yaml:"destination_directory"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Scanner tunes the discovery loop and stability detection.
	Scanner ScannerConfig `mapstructure:"scanner" yaml:"scanner"`

	// Copy tunes the copy engine and worker pool.
	Copy CopyConfig `mapstructure:"copy" yaml:"copy"`

	// Growing tunes the live (tailing) copy of still-growing sources.
	Growing GrowingConfig `mapstructure:"growing" yaml:"growing"`

	// Storage tunes the source/destination health monitor.
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Space tunes the pre-copy space check and its retry policy.
	Space SpaceConfig `mapstructure:"space" yaml:"space"`

	// Repository tunes retention of terminal records.
	Repository RepositoryConfig `mapstructure:"repository" yaml:"repository"`

	// Queue bounds the job queue.
	Queue QueueConfig `mapstructure:"queue" yaml:"queue"`

	// Mount configures the platform network-mount adapter.
	Mount MountConfig `mapstructure:"mount" yaml:"mount"`

	// API configures the HTTP control API.
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN or ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is "text" or "json".
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is "stdout", "stderr", or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ScannerConfig tunes the discovery loop.
type ScannerConfig struct {
	// PollingInterval is the scanner loop period.
	PollingInterval time.Duration `mapstructure:"polling_interval" validate:"gt=0" yaml:"polling_interval"`

	// FileStableTime is how long a file's size must stay unchanged
	// before it is considered READY.
	FileStableTime time.Duration `mapstructure:"file_stable_time" validate:"gt=0" yaml:"file_stable_time"`

	// FileExtensions are the extensions picked up by the walk,
	// lowercase including the dot.
	FileExtensions []string `mapstructure:"file_extensions" validate:"min=1" yaml:"file_extensions"`

	// WatchEvents enables an fsnotify watch on the source root that
	// wakes the scanner early; polling remains the source of truth.
	WatchEvents bool `mapstructure:"watch_events" yaml:"watch_events"`

	// ScanTimeout bounds one walk of the source tree.
	ScanTimeout time.Duration `mapstructure:"scan_timeout" yaml:"scan_timeout"`
}

// CopyConfig tunes the copy engine.
type CopyConfig struct {
	// UseTemporaryFile copies via a ".copying" temp name and renames
	// into place when true.
	UseTemporaryFile bool `mapstructure:"use_temporary_file" yaml:"use_temporary_file"`

	// ChunkSize is the read/write chunk for normal copies.
	ChunkSize bytesize.ByteSize `mapstructure:"chunk_size" yaml:"chunk_size"`

	// ProgressUpdateInterval is the progress-event granularity in
	// whole percent.
	ProgressUpdateInterval int `mapstructure:"progress_update_interval" validate:"min=1,max=100" yaml:"progress_update_interval"`

	// MaxConcurrency is the number of copy workers.
	MaxConcurrency int `mapstructure:"max_concurrency" validate:"min=1,max=8" yaml:"max_concurrency"`

	// MaxRetryAttempts and RetryDelay are the legacy local retry
	// policy. The agent runs in fail-and-rediscover mode, so they are
	// unused but kept recognized.
	MaxRetryAttempts int           `mapstructure:"max_retry_attempts" yaml:"max_retry_attempts"`
	RetryDelay       time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`

	// PathTemplate selects the destination subdirectory mapping:
	// "" for a flat destination, "date" for YYYY/MM/DD buckets.
	PathTemplate string `mapstructure:"path_template" validate:"omitempty,oneof=date" yaml:"path_template"`

	// Resume configures restart of interrupted copies.
	Resume ResumeConfig `mapstructure:"resume" yaml:"resume"`
}

// ResumeConfig tunes verification-and-resume of leftover temp files.
type ResumeConfig struct {
	// Enabled turns resumable restart on. Off by default; a fresh copy
	// is always correct.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// VerifyWindowMin and VerifyWindowMax bound the tail region
	// byte-compared against the source before resuming.
	VerifyWindowMin bytesize.ByteSize `mapstructure:"verify_window_min" yaml:"verify_window_min"`
	VerifyWindowMax bytesize.ByteSize `mapstructure:"verify_window_max" yaml:"verify_window_max"`

	// VerifyTimeout is the budget for verification; on expiry the
	// engine discards the temp file and starts fresh.
	VerifyTimeout time.Duration `mapstructure:"verify_timeout" yaml:"verify_timeout"`
}

// GrowingConfig tunes live copies of still-growing sources.
type GrowingConfig struct {
	// MinSize is the size at which a growing file becomes eligible for
	// a live copy.
	MinSize bytesize.ByteSize `mapstructure:"min_size" yaml:"min_size"`

	// PollInterval is how often the tailing loop re-stats the source.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0" yaml:"poll_interval"`

	// GrowthTimeout is how long the source may produce no new bytes
	// before the tail is finalized.
	GrowthTimeout time.Duration `mapstructure:"growth_timeout" validate:"gt=0" yaml:"growth_timeout"`

	// SafetyMargin is held back from the observed source size while
	// tailing, to absorb unpredictable growth near the end.
	SafetyMargin bytesize.ByteSize `mapstructure:"safety_margin" yaml:"safety_margin"`

	// ChunkSize is the read chunk for the tailing loop.
	ChunkSize bytesize.ByteSize `mapstructure:"chunk_size" yaml:"chunk_size"`
}

// StorageConfig tunes the storage monitor.
type StorageConfig struct {
	// CheckInterval is the monitor loop period.
	CheckInterval time.Duration `mapstructure:"check_interval" validate:"gt=0" yaml:"check_interval"`

	// TestFilePrefix names the write-probe files the monitor creates;
	// the scanner skips files carrying it.
	TestFilePrefix string `mapstructure:"test_file_prefix" validate:"required" yaml:"test_file_prefix"`

	// Source and Destination carry the free-space thresholds.
	Source      ThresholdConfig `mapstructure:"source" yaml:"source"`
	Destination ThresholdConfig `mapstructure:"destination" yaml:"destination"`
}

// ThresholdConfig carries the free-space thresholds for one location.
type ThresholdConfig struct {
	// WarningThreshold marks the location WARNING when free space
	// drops below it.
	WarningThreshold bytesize.ByteSize `mapstructure:"warning_threshold" yaml:"warning_threshold"`

	// CriticalThreshold marks the location CRITICAL when free space
	// drops below it.
	CriticalThreshold bytesize.ByteSize `mapstructure:"critical_threshold" yaml:"critical_threshold"`
}

// SpaceConfig tunes the pre-copy space check.
type SpaceConfig struct {
	// EnablePreCopyCheck turns the check on.
	EnablePreCopyCheck bool `mapstructure:"enable_pre_copy_check" yaml:"enable_pre_copy_check"`

	// CopySafetyMargin is added to the file size when checking.
	CopySafetyMargin bytesize.ByteSize `mapstructure:"copy_safety_margin" yaml:"copy_safety_margin"`

	// MinimumFreeAfterCopy must remain free after the copy lands.
	MinimumFreeAfterCopy bytesize.ByteSize `mapstructure:"minimum_free_after_copy" yaml:"minimum_free_after_copy"`

	// RetryDelay and MaxRetries drive the WAITING_FOR_SPACE loop.
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"gt=0" yaml:"retry_delay"`
	MaxRetries int           `mapstructure:"max_retries" validate:"min=1" yaml:"max_retries"`

	// ErrorCooldown suppresses scanner re-processing after SPACE_ERROR.
	ErrorCooldown time.Duration `mapstructure:"error_cooldown" validate:"gt=0" yaml:"error_cooldown"`
}

// RepositoryConfig tunes retention of terminal records.
type RepositoryConfig struct {
	// KeepCompletedFiles is how long terminal records stay visible.
	KeepCompletedFiles time.Duration `mapstructure:"keep_completed_files" validate:"gt=0" yaml:"keep_completed_files"`

	// MaxCompletedFiles caps the completed records held in memory.
	MaxCompletedFiles int `mapstructure:"max_completed_files" validate:"min=1" yaml:"max_completed_files"`
}

// QueueConfig bounds the job queue.
type QueueConfig struct {
	// Size is the queue capacity; it doubles as the soft cap while the
	// queue is paused.
	Size int `mapstructure:"size" validate:"min=1" yaml:"size"`
}

// MountConfig configures the network-mount adapter.
type MountConfig struct {
	// EnableAutoMount lets the storage monitor attempt a mount when
	// the destination is unreachable.
	EnableAutoMount bool `mapstructure:"enable_auto_mount" yaml:"enable_auto_mount"`

	// NetworkShareURL is the share to mount, e.g. "smb://nas/ingest".
	NetworkShareURL string `mapstructure:"network_share_url" yaml:"network_share_url"`

	// WindowsDriveLetter optionally binds the UNC path to a drive.
	WindowsDriveLetter string `mapstructure:"windows_drive_letter" yaml:"windows_drive_letter"`
}

// APIConfig configures the HTTP control API.
type APIConfig struct {
	// Enabled turns the API server on.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Host and Port are the listen address.
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// MetricsConfig configures the Prometheus endpoint. When disabled no
// metrics are collected.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
// An empty configPath uses the default location.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the
// file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  mxfmover config init\n\n"+
				"Or specify a custom config file:\n"+
				"  mxfmover <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  mxfmover config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path in YAML, creating parent directories.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures environment variables and config file search.
// Environment variables use the MXFMOVER_ prefix with underscores,
// e.g. MXFMOVER_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("MXFMOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing
// file is acceptable; defaults apply.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks combines the decode hooks for custom config types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize,
// so config files can use "1Gi", "500MB" or plain byte counts.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration ("30s", "5m").
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory, preferring
// XDG_CONFIG_HOME, then ~/.config, then the current directory.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "mxfmover")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "mxfmover")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks for a config file at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir exposes the configuration directory for the init command.
func GetConfigDir() string {
	return getConfigDir()
}
