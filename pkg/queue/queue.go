// Package queue holds the bounded FIFO of copy jobs. A producer
// subscription turns READY and READY_TO_START_GROWING transitions into
// jobs; admission pauses while the destination is degraded and resumes
// on recovery, when waiting records are also re-admitted.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/mxfmover/mxfmover/internal/logger"
	"github.com/mxfmover/mxfmover/pkg/config"
	"github.com/mxfmover/mxfmover/pkg/events"
	"github.com/mxfmover/mxfmover/pkg/state"
	"github.com/mxfmover/mxfmover/pkg/storage"
)

// Job is one unit of work for a copy worker.
type Job struct {
	FileID    string `json:"file_id"`
	FilePath  string `json:"file_path"`
	FileSize  int64  `json:"file_size"`
	IsGrowing bool   `json:"is_growing"`
}

// Queue is the bounded job queue plus its producer subscription.
type Queue struct {
	cfg     *config.Config
	machine *state.Machine
	bus     *events.Bus

	jobs chan Job

	mu       sync.Mutex
	paused   bool
	resumeCh chan struct{}
	// pending holds the IDs of records whose job is queued or being
	// processed; Readmit uses it to find jobless IN_QUEUE records.
	pending map[string]struct{}

	failed *failedRing

	unsubs []func()
}

// New creates a queue with the configured capacity.
func New(cfg *config.Config, machine *state.Machine, bus *events.Bus) *Queue {
	return &Queue{
		cfg:     cfg,
		machine: machine,
		bus:     bus,
		jobs:    make(chan Job, cfg.Queue.Size),
		pending: make(map[string]struct{}),
		failed:  newFailedRing(failedJobsCap),
	}
}

// Start wires the producer and admission-control subscriptions.
func (q *Queue) Start() {
	q.unsubs = append(q.unsubs,
		q.bus.Subscribe(events.TopicFileStatus, q.onFileStatus),
		q.bus.Subscribe(events.TopicStorageStatus, q.onStorageStatus),
	)
}

// Stop removes the subscriptions. Queued jobs stay queued.
func (q *Queue) Stop() {
	for _, unsub := range q.unsubs {
		unsub()
	}
	q.unsubs = nil
}

// onFileStatus is the producer: admit records that just became ready.
// It also retires pending entries once a record leaves IN_QUEUE, which
// is what tells Readmit the job is accounted for.
func (q *Queue) onFileStatus(_ string, data any) {
	ev, ok := data.(*events.FileStatusChangedEvent)
	if !ok {
		return
	}

	if state.FileStatus(ev.NewStatus) != state.StatusInQueue {
		q.mu.Lock()
		delete(q.pending, ev.FileID)
		q.mu.Unlock()
	}

	var growing bool
	switch state.FileStatus(ev.NewStatus) {
	case state.StatusReady:
	case state.StatusReadyToStartGrowing:
		growing = true
	default:
		return
	}

	rec, found := q.machine.Repository().GetByID(ev.FileID)
	if !found {
		return
	}
	q.admit(rec, growing)
}

// admit transitions the record to IN_QUEUE and then enqueues its job.
// The transition goes first so a worker can never dequeue a job whose
// record has not reached IN_QUEUE yet. On a full queue the record stays
// IN_QUEUE without a job; Readmit sweeps those up.
func (q *Queue) admit(rec *state.TrackedFile, growing bool) {
	if _, err := q.machine.Transition(rec.ID, state.StatusInQueue, state.Patch{
		GrowingCopy: &growing,
	}); err != nil {
		logger.Error("queue admission transition failed", "file", rec.FilePath, "error", err)
		return
	}

	q.push(Job{
		FileID:    rec.ID,
		FilePath:  rec.FilePath,
		FileSize:  rec.FileSize,
		IsGrowing: growing,
	})
}

// push offers a job to the channel and marks it pending. A full queue
// drops the job; the IN_QUEUE record waits for re-admission.
func (q *Queue) push(job Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	select {
	case q.jobs <- job:
		q.pending[job.FileID] = struct{}{}
		return true
	default:
		logger.Warn("job queue full, record waits for re-admission", "file", job.FilePath)
		return false
	}
}

// onStorageStatus pauses admission while the destination is degraded.
func (q *Queue) onStorageStatus(_ string, data any) {
	ev, ok := data.(*events.StorageStatusChangedEvent)
	if !ok || ev.Kind != storage.KindDestination {
		return
	}

	if storage.Status(ev.Status).Degraded() {
		q.Pause()
	} else if storage.Status(ev.Status) == storage.StatusOK ||
		storage.Status(ev.Status) == storage.StatusWarning {
		q.Resume()
	}
}

// Pause stops workers from picking new jobs. Jobs already being copied
// run to completion; new jobs buffer up to the queue capacity.
func (q *Queue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.paused {
		return
	}
	q.paused = true
	q.resumeCh = make(chan struct{})
	logger.Info("job queue paused")
}

// Resume re-enables job pickup.
func (q *Queue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.paused {
		return
	}
	q.paused = false
	close(q.resumeCh)
	logger.Info("job queue resumed")
}

// Paused reports whether admission is currently paused.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// pauseGate returns the channel to wait on while paused, or nil.
func (q *Queue) pauseGate() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.paused {
		return nil
	}
	return q.resumeCh
}

// Dequeue blocks until a job is available and the queue is not paused,
// or ctx is cancelled.
func (q *Queue) Dequeue(ctx context.Context) (Job, bool) {
	for {
		if gate := q.pauseGate(); gate != nil {
			select {
			case <-ctx.Done():
				return Job{}, false
			case <-gate:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return Job{}, false
		case job := <-q.jobs:
			return job, true
		}
	}
}

// Len reports the number of queued jobs.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Cap reports the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.jobs)
}

// Readmit re-admits records that are eligible to run but hold no queued
// job: WAITING_FOR_NETWORK records after destination recovery, expired
// SPACE_ERROR records, ready records, and IN_QUEUE records whose job
// was dropped by a full queue. Returns the number of records admitted.
func (q *Queue) Readmit() int {
	admitted := 0
	now := time.Now()

	for _, rec := range q.machine.Repository().GetAll() {
		switch rec.Status {
		case state.StatusInQueue:
			if q.isPending(rec.ID) {
				continue
			}
			if q.enqueueExisting(rec) {
				admitted++
			}

		case state.StatusWaitingForNetwork:
			if _, err := q.machine.Transition(rec.ID, state.StatusInQueue, state.Patch{ClearRetryInfo: true}); err != nil {
				logger.Debug("re-admission failed", "file", rec.FilePath, "error", err)
				continue
			}
			q.enqueueExisting(rec)
			admitted++

		case state.StatusSpaceError:
			if rec.SpaceErrorAt != nil && now.Sub(*rec.SpaceErrorAt) < q.cfg.Space.ErrorCooldown {
				continue
			}
			zero := 0
			if _, err := q.machine.Transition(rec.ID, state.StatusInQueue, state.Patch{
				RetryCount:     &zero,
				ClearRetryInfo: true,
			}); err != nil {
				logger.Debug("re-admission failed", "file", rec.FilePath, "error", err)
				continue
			}
			q.enqueueExisting(rec)
			admitted++

		case state.StatusReady, state.StatusReadyToStartGrowing:
			q.admit(rec, rec.Status == state.StatusReadyToStartGrowing)
			admitted++
		}
	}

	if admitted > 0 {
		logger.Info("re-admitted waiting records", "count", admitted)
	}
	return admitted
}

// enqueueExisting pushes a job for a record already in IN_QUEUE,
// restoring the copy mode it was originally admitted with.
func (q *Queue) enqueueExisting(rec *state.TrackedFile) bool {
	return q.push(Job{
		FileID:    rec.ID,
		FilePath:  rec.FilePath,
		FileSize:  rec.FileSize,
		IsGrowing: rec.GrowingCopy,
	})
}

// isPending reports whether a queued or in-flight job exists for id.
func (q *Queue) isPending(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[id]
	return ok
}

// RecordFailure appends to the bounded failed-jobs history.
func (q *Queue) RecordFailure(fileID, filePath, reason string) {
	q.failed.add(FailedJob{
		FileID:   fileID,
		FilePath: filePath,
		Reason:   reason,
		FailedAt: time.Now(),
	})
}

// FailedJobs returns the retained failure history, newest last.
func (q *Queue) FailedJobs() []FailedJob {
	return q.failed.list()
}

// ClearFailedJobs empties the failure history and returns the number
// of entries dropped.
func (q *Queue) ClearFailedJobs() int {
	return q.failed.clear()
}
