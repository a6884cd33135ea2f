package state

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mxfmover/mxfmover/internal/logger"
	"github.com/mxfmover/mxfmover/pkg/events"
)

// InvalidTransitionError is returned when a requested edge is not in
// the transition graph. The record is left untouched.
type InvalidTransitionError struct {
	ID   string
	From FileStatus
	To   FileStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s for file %s", e.From, e.To, e.ID)
}

// Patch carries the optional field updates applied atomically with a
// transition. Nil pointer fields are left unchanged; the Clear flags
// exist for fields where nil is a meaningful value.
type Patch struct {
	FileSize         *int64
	PreviousFileSize *int64
	BytesCopied      *int64
	CopyProgress     *float64
	GrowthRateMBps   *float64

	GrowthStableSince      *time.Time
	ClearGrowthStableSince bool
	LastGrowthCheck        *time.Time

	GrowingCopy *bool

	RetryCount     *int
	RetryInfo      *RetryInfo
	ClearRetryInfo bool

	ErrorMessage *string
}

// Machine validates and applies lifecycle transitions. It is the only
// writer of tracked-file records; its lock totally orders transitions
// per file (and, for simplicity, across files).
type Machine struct {
	repo *Repository
	bus  *events.Bus
}

// NewMachine creates a state machine over repo, publishing to bus.
func NewMachine(repo *Repository, bus *events.Bus) *Machine {
	return &Machine{repo: repo, bus: bus}
}

// Repository exposes the underlying repository for read-side callers.
func (m *Machine) Repository() *Repository {
	return m.repo
}

// Create registers a newly discovered file in DISCOVERED state and
// publishes the first status event. It fails if an active record
// already exists for the path.
func (m *Machine) Create(path string, size int64, now time.Time) (*TrackedFile, error) {
	rec := &TrackedFile{
		ID:            uuid.NewString(),
		FilePath:      path,
		Status:        StatusDiscovered,
		FileSize:      size,
		FirstSeenSize: size,
		DiscoveredAt:  now,
	}
	if err := m.repo.Add(rec); err != nil {
		return nil, err
	}

	m.publishStatus(rec, "")
	return rec.Clone(), nil
}

// Transition validates the edge from the record's current status to
// newStatus, applies the patch, stamps state-entry timestamps, persists
// the record and publishes a FileStatusChangedEvent. Invalid edges
// return *InvalidTransitionError without mutation.
func (m *Machine) Transition(id string, newStatus FileStatus, patch Patch) (*TrackedFile, error) {
	rec, event, err := m.applyTransition(id, newStatus, patch)
	if err != nil {
		return nil, err
	}

	m.bus.Publish(events.TopicFileStatus, event)
	logger.Debug("file transition",
		"file", rec.FilePath,
		"from", event.OldStatus,
		"to", event.NewStatus)
	return rec, nil
}

// applyTransition does the locked part of Transition; the event is
// published outside the repository lock.
func (m *Machine) applyTransition(id string, newStatus FileStatus, patch Patch) (*TrackedFile, *events.FileStatusChangedEvent, error) {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()

	rec, ok := m.repo.files[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownFile, id)
	}
	if !rec.Status.CanTransitionTo(newStatus) {
		return nil, nil, &InvalidTransitionError{ID: id, From: rec.Status, To: newStatus}
	}

	oldStatus := rec.Status
	next := rec.Clone()
	next.Status = newStatus
	applyPatch(next, patch)
	stampEntry(next, newStatus, time.Now())

	m.repo.files[id] = next

	event := &events.FileStatusChangedEvent{
		FileID:    id,
		FilePath:  next.FilePath,
		OldStatus: string(oldStatus),
		NewStatus: string(newStatus),
		Timestamp: time.Now(),
	}
	return next.Clone(), event, nil
}

// Record applies a field patch without a status transition and without
// an event. The scanner uses this for growth-tracking updates that do
// not move the record to a new state.
func (m *Machine) Record(id string, patch Patch) error {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()

	rec, ok := m.repo.files[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFile, id)
	}

	next := rec.Clone()
	applyPatch(next, patch)
	m.repo.files[id] = next
	return nil
}

// RecordSize updates the observed source size without a transition and
// without an event. The scanner calls this when a file in an active
// pipeline state changed size between growth checks.
func (m *Machine) RecordSize(id string, size int64) error {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()

	rec, ok := m.repo.files[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFile, id)
	}

	next := rec.Clone()
	next.PreviousFileSize = next.FileSize
	next.FileSize = size
	m.repo.files[id] = next
	return nil
}

// RecordProgress updates copy progress on a record in a copying state
// and publishes a FileCopyProgressEvent. A positive totalBytes refreshes
// the recorded file size, which live copies of growing sources move past
// the admission-time value. BytesCopied is clamped to the current size
// so observers never see bytes_copied > file_size.
func (m *Machine) RecordProgress(id string, bytesCopied, totalBytes int64, speedMBps float64) error {
	m.repo.mu.Lock()

	rec, ok := m.repo.files[id]
	if !ok {
		m.repo.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownFile, id)
	}

	next := rec.Clone()
	if totalBytes > 0 && totalBytes != next.FileSize {
		next.PreviousFileSize = next.FileSize
		next.FileSize = totalBytes
	}
	if next.FileSize > 0 && bytesCopied > next.FileSize {
		bytesCopied = next.FileSize
	}
	next.BytesCopied = bytesCopied
	if next.FileSize > 0 {
		next.CopyProgress = float64(bytesCopied) * 100 / float64(next.FileSize)
	}
	m.repo.files[id] = next

	event := &events.FileCopyProgressEvent{
		FileID:        id,
		BytesCopied:   bytesCopied,
		TotalBytes:    next.FileSize,
		CopySpeedMBps: speedMBps,
		Timestamp:     time.Now(),
	}
	m.repo.mu.Unlock()

	m.bus.Publish(events.TopicFileProgress, event)
	return nil
}

// ShouldSkipPath reports whether the scanner must not re-process path
// because its active record sits in SPACE_ERROR cooldown.
func (m *Machine) ShouldSkipPath(path string, cooldown time.Duration, now time.Time) bool {
	rec, ok := m.repo.ActiveByPath(path)
	if !ok || rec.Status != StatusSpaceError || rec.SpaceErrorAt == nil {
		return false
	}
	return now.Sub(*rec.SpaceErrorAt) < cooldown
}

func (m *Machine) publishStatus(rec *TrackedFile, oldStatus FileStatus) {
	m.bus.Publish(events.TopicFileStatus, &events.FileStatusChangedEvent{
		FileID:    rec.ID,
		FilePath:  rec.FilePath,
		OldStatus: string(oldStatus),
		NewStatus: string(rec.Status),
		Timestamp: time.Now(),
	})
}

func applyPatch(rec *TrackedFile, p Patch) {
	if p.FileSize != nil {
		rec.FileSize = *p.FileSize
	}
	if p.PreviousFileSize != nil {
		rec.PreviousFileSize = *p.PreviousFileSize
	}
	if p.BytesCopied != nil {
		rec.BytesCopied = *p.BytesCopied
	}
	if p.CopyProgress != nil {
		rec.CopyProgress = *p.CopyProgress
	}
	if p.GrowthRateMBps != nil {
		rec.GrowthRateMBps = *p.GrowthRateMBps
	}
	if p.ClearGrowthStableSince {
		rec.GrowthStableSince = nil
	} else if p.GrowthStableSince != nil {
		rec.GrowthStableSince = cloneTime(p.GrowthStableSince)
	}
	if p.LastGrowthCheck != nil {
		rec.LastGrowthCheck = cloneTime(p.LastGrowthCheck)
	}
	if p.GrowingCopy != nil {
		rec.GrowingCopy = *p.GrowingCopy
	}
	if p.RetryCount != nil {
		rec.RetryCount = *p.RetryCount
	}
	if p.ClearRetryInfo {
		rec.RetryInfo = nil
	} else if p.RetryInfo != nil {
		ri := *p.RetryInfo
		rec.RetryInfo = &ri
	}
	if p.ErrorMessage != nil {
		rec.ErrorMessage = *p.ErrorMessage
	}
}

// stampEntry records state-entry timestamps tied to specific statuses.
func stampEntry(rec *TrackedFile, status FileStatus, now time.Time) {
	switch status {
	case StatusCopying, StatusGrowingCopy:
		if rec.StartedCopyingAt == nil {
			rec.StartedCopyingAt = &now
		}
	case StatusCompleted:
		rec.CompletedAt = &now
		rec.BytesCopied = rec.FileSize
		rec.CopyProgress = 100
	case StatusSpaceError:
		rec.SpaceErrorAt = &now
	}
}
