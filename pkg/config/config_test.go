package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxfmover/mxfmover/internal/bytesize"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := GetDefaultConfig()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, 5*time.Second, cfg.Scanner.PollingInterval)
	assert.Equal(t, []string{".mxf"}, cfg.Scanner.FileExtensions)
	assert.Equal(t, 2*bytesize.MiB, cfg.Copy.ChunkSize)
	assert.Equal(t, 100*bytesize.MiB, cfg.Growing.MinSize)
	assert.True(t, cfg.Copy.UseTemporaryFile)
	assert.True(t, cfg.Space.EnablePreCopyCheck)
	assert.Equal(t, 15*time.Minute, cfg.Space.ErrorCooldown)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
source_directory: /data/in
destination_directory: /data/out
logging:
  level: debug
scanner:
  polling_interval: 2s
  file_stable_time: 4s
copy:
  use_temporary_file: true
  chunk_size: 1Mi
  max_concurrency: 3
space:
  enable_pre_copy_check: true
  copy_safety_margin: 2Gi
  max_retries: 7
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/in", cfg.SourceDirectory)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, 2*time.Second, cfg.Scanner.PollingInterval)
	assert.Equal(t, 4*time.Second, cfg.Scanner.FileStableTime)
	assert.Equal(t, bytesize.MiB, cfg.Copy.ChunkSize)
	assert.Equal(t, 3, cfg.Copy.MaxConcurrency)
	assert.Equal(t, 2*bytesize.GiB, cfg.Space.CopySafetyMargin)
	assert.Equal(t, 7, cfg.Space.MaxRetries)

	// Unset sections pick up defaults.
	assert.Equal(t, 30*time.Second, cfg.Storage.CheckInterval)
	assert.Equal(t, 1000, cfg.Queue.Size)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig().Scanner.PollingInterval, cfg.Scanner.PollingInterval)
}

func TestValidateRejectsSameDirectories(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.DestinationDirectory = cfg.SourceDirectory
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsBadLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "LOUD"
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsAutoMountWithoutURL(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Mount.EnableAutoMount = true
	cfg.Mount.NetworkShareURL = ""
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Storage.Destination.CriticalThreshold = cfg.Storage.Destination.WarningThreshold * 2
	assert.Error(t, Validate(cfg))
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.SourceDirectory = "/var/ingest"
	cfg.Copy.MaxConcurrency = 4
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/ingest", loaded.SourceDirectory)
	assert.Equal(t, 4, loaded.Copy.MaxConcurrency)
	assert.Equal(t, cfg.Scanner.PollingInterval, loaded.Scanner.PollingInterval)
}
