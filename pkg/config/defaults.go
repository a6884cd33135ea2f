package config

import (
	"strings"
	"time"

	"github.com/mxfmover/mxfmover/internal/bytesize"
)

// ApplyDefaults fills any unspecified configuration fields. Zero values
// are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyScannerDefaults(&cfg.Scanner)
	applyCopyDefaults(&cfg.Copy)
	applyGrowingDefaults(&cfg.Growing)
	applyStorageDefaults(&cfg.Storage)
	applySpaceDefaults(&cfg.Space)
	applyRepositoryDefaults(&cfg.Repository)
	applyQueueDefaults(&cfg.Queue)
	applyAPIDefaults(&cfg.API)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyScannerDefaults(cfg *ScannerConfig) {
	if cfg.PollingInterval == 0 {
		cfg.PollingInterval = 5 * time.Second
	}
	if cfg.FileStableTime == 0 {
		cfg.FileStableTime = 10 * time.Second
	}
	if len(cfg.FileExtensions) == 0 {
		cfg.FileExtensions = []string{".mxf"}
	}
	for i, ext := range cfg.FileExtensions {
		cfg.FileExtensions[i] = strings.ToLower(ext)
	}
	if cfg.ScanTimeout == 0 {
		cfg.ScanTimeout = 2 * time.Minute
	}
}

func applyCopyDefaults(cfg *CopyConfig) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 2 * bytesize.MiB
	}
	if cfg.ProgressUpdateInterval == 0 {
		cfg.ProgressUpdateInterval = 1
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = 2
	}
	if cfg.MaxRetryAttempts == 0 {
		cfg.MaxRetryAttempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	applyResumeDefaults(&cfg.Resume)
}

func applyResumeDefaults(cfg *ResumeConfig) {
	if cfg.VerifyWindowMin == 0 {
		cfg.VerifyWindowMin = bytesize.MiB
	}
	if cfg.VerifyWindowMax == 0 {
		cfg.VerifyWindowMax = 16 * bytesize.MiB
	}
	if cfg.VerifyTimeout == 0 {
		cfg.VerifyTimeout = 30 * time.Second
	}
}

func applyGrowingDefaults(cfg *GrowingConfig) {
	if cfg.MinSize == 0 {
		cfg.MinSize = 100 * bytesize.MiB
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.GrowthTimeout == 0 {
		cfg.GrowthTimeout = 20 * time.Second
	}
	if cfg.SafetyMargin == 0 {
		cfg.SafetyMargin = 4 * bytesize.MiB
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = bytesize.MiB
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.TestFilePrefix == "" {
		cfg.TestFilePrefix = ".mxfmover-probe-"
	}
	applyThresholdDefaults(&cfg.Source)
	applyThresholdDefaults(&cfg.Destination)
}

func applyThresholdDefaults(cfg *ThresholdConfig) {
	if cfg.WarningThreshold == 0 {
		cfg.WarningThreshold = 50 * bytesize.GiB
	}
	if cfg.CriticalThreshold == 0 {
		cfg.CriticalThreshold = 10 * bytesize.GiB
	}
}

func applySpaceDefaults(cfg *SpaceConfig) {
	if cfg.CopySafetyMargin == 0 {
		cfg.CopySafetyMargin = bytesize.GiB
	}
	if cfg.MinimumFreeAfterCopy == 0 {
		cfg.MinimumFreeAfterCopy = 5 * bytesize.GiB
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.ErrorCooldown == 0 {
		cfg.ErrorCooldown = 15 * time.Minute
	}
}

func applyRepositoryDefaults(cfg *RepositoryConfig) {
	if cfg.KeepCompletedFiles == 0 {
		cfg.KeepCompletedFiles = 24 * time.Hour
	}
	if cfg.MaxCompletedFiles == 0 {
		cfg.MaxCompletedFiles = 1000
	}
}

func applyQueueDefaults(cfg *QueueConfig) {
	if cfg.Size == 0 {
		cfg.Size = 1000
	}
}

func applyAPIDefaults(cfg *APIConfig) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8044
	}
}

// GetDefaultConfig returns a Config with every default applied. Used
// for generating sample configuration files and in tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		SourceDirectory:      "/ingest/source",
		DestinationDirectory: "/mnt/share/out",
		API:                  APIConfig{Enabled: true},
		Copy:                 CopyConfig{UseTemporaryFile: true},
		Space:                SpaceConfig{EnablePreCopyCheck: true},
		Scanner:              ScannerConfig{WatchEvents: true},
	}
	ApplyDefaults(cfg)
	return cfg
}
