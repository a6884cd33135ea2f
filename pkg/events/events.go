// Package events defines the agent's domain events and the in-process
// bus that carries them. Every file-status transition, copy-progress
// crossing, storage check and scanner pause/resume publishes here; the
// control API's WebSocket feed and the job-queue producer are
// subscribers.
package events

import "time"

// Topics carried by the bus. Subscribers register per topic.
const (
	TopicFileStatus    = "file.status-changed"
	TopicFileProgress  = "file.copy-progress"
	TopicStorageStatus = "storage.status-changed"
	TopicMountStatus   = "storage.mount"
	TopicScannerStatus = "scanner.status-changed"
	TopicScanCycle     = "scanner.cycle"
)

// FileStatusChangedEvent is published for every accepted state-machine
// transition, in transition order per file.
type FileStatusChangedEvent struct {
	FileID    string    `json:"file_id"`
	FilePath  string    `json:"file_path"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	Timestamp time.Time `json:"timestamp"`
}

// FileCopyProgressEvent is published when the integer copy percentage
// crosses the configured granularity.
type FileCopyProgressEvent struct {
	FileID        string    `json:"file_id"`
	BytesCopied   int64     `json:"bytes_copied"`
	TotalBytes    int64     `json:"total_bytes"`
	CopySpeedMBps float64   `json:"copy_speed_mbps"`
	Timestamp     time.Time `json:"timestamp"`
}

// StorageStatusChangedEvent is published by the storage monitor when a
// checked location changes status. Kind is "source" or "destination".
type StorageStatusChangedEvent struct {
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Info      any       `json:"info"`
	Timestamp time.Time `json:"timestamp"`
}

// Mount attempt phases.
const (
	MountAttempt       = "attempt"
	MountSucceeded     = "success"
	MountFailed        = "failure"
	MountNotConfigured = "not_configured"
)

// MountStatusChangedEvent reports network-mount attempts and outcomes.
type MountStatusChangedEvent struct {
	Phase     string    `json:"phase"`
	ShareURL  string    `json:"share_url,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ScannerStatusChangedEvent reports scanner pause/resume.
type ScannerStatusChangedEvent struct {
	Paused    bool      `json:"paused"`
	Timestamp time.Time `json:"timestamp"`
}

// ScanCycleEvent is published after each completed scan iteration.
type ScanCycleEvent struct {
	Duration  time.Duration `json:"duration"`
	FilesSeen int           `json:"files_seen"`
	Timestamp time.Time     `json:"timestamp"`
}
