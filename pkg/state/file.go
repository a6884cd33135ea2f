// Package state holds the tracked-file model, the in-memory repository
// that owns all records, and the state machine that is the only legal
// way to mutate them. Components never share record pointers: lookups
// return copies, and writes go through Machine.Transition, which
// serializes every change and publishes a domain event for it.
package state

import (
	"time"
)

// FileStatus enumerates the lifecycle states of a tracked file.
type FileStatus string

const (
	// StatusDiscovered means the file was seen on disk but stability is
	// not yet established.
	StatusDiscovered FileStatus = "DISCOVERED"

	// StatusGrowing means the size is increasing and still below the
	// minimum threshold for a live copy.
	StatusGrowing FileStatus = "GROWING"

	// StatusReadyToStartGrowing means the size is increasing and large
	// enough to begin a live (tailing) copy.
	StatusReadyToStartGrowing FileStatus = "READY_TO_START_GROWING"

	// StatusReady means the size has been stable long enough for a
	// normal copy.
	StatusReady FileStatus = "READY"

	// StatusInQueue means the file was admitted to the job queue.
	StatusInQueue FileStatus = "IN_QUEUE"

	// StatusCopying means a normal copy is in progress.
	StatusCopying FileStatus = "COPYING"

	// StatusGrowingCopy means a live copy is in progress while the
	// source may still be growing.
	StatusGrowingCopy FileStatus = "GROWING_COPY"

	// StatusWaitingForSpace means the destination lacked space and a
	// retry is scheduled.
	StatusWaitingForSpace FileStatus = "WAITING_FOR_SPACE"

	// StatusWaitingForNetwork means the destination is unreachable and
	// the file resumes once it recovers.
	StatusWaitingForNetwork FileStatus = "WAITING_FOR_NETWORK"

	// StatusSpaceError means space retries were exhausted; the record
	// cools down before re-admission.
	StatusSpaceError FileStatus = "SPACE_ERROR"

	// StatusCompleted means the copy succeeded, the source was deleted
	// and the destination file was published.
	StatusCompleted FileStatus = "COMPLETED"

	// StatusFailed is a terminal failure; not retried without
	// re-discovery.
	StatusFailed FileStatus = "FAILED"

	// StatusRemoved means the source file no longer exists; the record
	// is preserved as history.
	StatusRemoved FileStatus = "REMOVED"
)

// validTransitions is the legal-transition graph. Anything not listed
// here is rejected by the state machine.
var validTransitions = map[FileStatus][]FileStatus{
	StatusDiscovered:          {StatusGrowing, StatusReadyToStartGrowing, StatusReady, StatusRemoved},
	StatusGrowing:             {StatusReadyToStartGrowing, StatusReady, StatusRemoved, StatusFailed},
	StatusReadyToStartGrowing: {StatusInQueue, StatusRemoved, StatusFailed},
	StatusReady:               {StatusInQueue, StatusRemoved, StatusFailed},
	StatusInQueue:             {StatusCopying, StatusGrowingCopy, StatusWaitingForSpace, StatusWaitingForNetwork, StatusFailed, StatusRemoved},
	StatusCopying:             {StatusCompleted, StatusFailed, StatusRemoved, StatusWaitingForNetwork},
	StatusGrowingCopy:         {StatusCompleted, StatusFailed, StatusRemoved, StatusWaitingForNetwork},
	StatusWaitingForSpace:     {StatusInQueue, StatusSpaceError, StatusRemoved, StatusFailed},
	StatusWaitingForNetwork:   {StatusInQueue, StatusFailed, StatusRemoved},
	StatusSpaceError:          {StatusInQueue, StatusRemoved},
	StatusCompleted:           {},
	StatusFailed:              {},
	StatusRemoved:             {},
}

// IsTerminal reports whether no transitions leave this state.
func (s FileStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRemoved
}

// IsActive reports whether the state is anything but terminal.
func (s FileStatus) IsActive() bool {
	return !s.IsTerminal()
}

// IsCopying reports whether a copy is in progress in this state.
func (s FileStatus) IsCopying() bool {
	return s == StatusCopying || s == StatusGrowingCopy
}

// CanTransitionTo reports whether the edge s -> next is legal.
func (s FileStatus) CanTransitionTo(next FileStatus) bool {
	for _, t := range validTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// AllStatuses returns every known status, for statistics and tests.
func AllStatuses() []FileStatus {
	return []FileStatus{
		StatusDiscovered, StatusGrowing, StatusReadyToStartGrowing,
		StatusReady, StatusInQueue, StatusCopying, StatusGrowingCopy,
		StatusWaitingForSpace, StatusWaitingForNetwork, StatusSpaceError,
		StatusCompleted, StatusFailed, StatusRemoved,
	}
}

// RetryInfo describes the next scheduled retry for a record. It is
// non-nil iff a retry is currently scheduled.
type RetryInfo struct {
	Reason      string    `json:"reason"`
	RetryType   string    `json:"retry_type"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// TrackedFile is the central entity: one observed source file walking
// through the lifecycle. Records are owned by the Repository; everything
// outside it works on copies.
type TrackedFile struct {
	ID       string     `json:"id"`
	FilePath string     `json:"file_path"`
	Status   FileStatus `json:"status"`

	FileSize         int64 `json:"file_size"`
	PreviousFileSize int64 `json:"previous_file_size"`
	FirstSeenSize    int64 `json:"first_seen_size"`

	GrowthRateMBps    float64    `json:"growth_rate_mbps"`
	GrowthStableSince *time.Time `json:"growth_stable_since,omitempty"`
	LastGrowthCheck   *time.Time `json:"last_growth_check,omitempty"`

	// GrowingCopy marks a record admitted for a live (tailing) copy. It
	// survives parking states so re-admission restores the copy mode.
	GrowingCopy bool `json:"growing_copy"`

	BytesCopied  int64   `json:"bytes_copied"`
	CopyProgress float64 `json:"copy_progress"`

	DiscoveredAt     time.Time  `json:"discovered_at"`
	StartedCopyingAt *time.Time `json:"started_copying_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	SpaceErrorAt     *time.Time `json:"space_error_at,omitempty"`

	RetryCount   int        `json:"retry_count"`
	RetryInfo    *RetryInfo `json:"retry_info,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// Clone returns a deep copy of the record.
func (f *TrackedFile) Clone() *TrackedFile {
	c := *f
	c.GrowthStableSince = cloneTime(f.GrowthStableSince)
	c.LastGrowthCheck = cloneTime(f.LastGrowthCheck)
	c.StartedCopyingAt = cloneTime(f.StartedCopyingAt)
	c.CompletedAt = cloneTime(f.CompletedAt)
	c.SpaceErrorAt = cloneTime(f.SpaceErrorAt)
	if f.RetryInfo != nil {
		ri := *f.RetryInfo
		c.RetryInfo = &ri
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
