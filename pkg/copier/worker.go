package copier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mxfmover/mxfmover/internal/logger"
	"github.com/mxfmover/mxfmover/pkg/config"
	"github.com/mxfmover/mxfmover/pkg/queue"
	"github.com/mxfmover/mxfmover/pkg/state"
	"github.com/mxfmover/mxfmover/pkg/storage"
)

// Pool runs the copy workers. Each worker loops pull-job / process
// until the context is cancelled; cancellation is cooperative, so a
// copy in flight stops at the next chunk boundary.
type Pool struct {
	cfg        *config.Config
	machine    *state.Machine
	queue      *queue.Queue
	monitor    *storage.Monitor
	engine     *Engine
	classifier *Classifier
}

// NewPool wires a worker pool over the queue and engine.
func NewPool(cfg *config.Config, machine *state.Machine, q *queue.Queue, monitor *storage.Monitor) *Pool {
	return &Pool{
		cfg:        cfg,
		machine:    machine,
		queue:      q,
		monitor:    monitor,
		engine:     NewEngine(cfg, machine),
		classifier: NewClassifier(monitor),
	}
}

// Run starts MaxConcurrency workers and blocks until all have exited.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Copy.MaxConcurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	logger.Debug("copy worker started", "worker", id)
	for {
		job, ok := p.queue.Dequeue(ctx)
		if !ok {
			logger.Debug("copy worker stopped", "worker", id)
			return
		}
		p.process(ctx, job)
	}
}

// process runs the full copy procedure for one job, including the
// space-retry loop and failure classification.
func (p *Pool) process(ctx context.Context, job queue.Job) {
	// A destination already known to be down parks the record instead
	// of burning a copy attempt.
	if p.monitor.DestinationInfo().Status.Degraded() {
		reason := "destination unavailable"
		if _, err := p.machine.Transition(job.FileID, state.StatusWaitingForNetwork, state.Patch{
			RetryInfo: &state.RetryInfo{
				Reason:      reason,
				RetryType:   "network",
				ScheduledAt: time.Now(),
			},
		}); err != nil {
			logger.Debug("network park failed", "file", job.FilePath, "error", err)
		}
		return
	}

	if !p.ensureSpace(ctx, job) {
		return
	}

	target := state.StatusCopying
	if job.IsGrowing {
		target = state.StatusGrowingCopy
	}
	if _, err := p.machine.Transition(job.FileID, target, state.Patch{ClearRetryInfo: true}); err != nil {
		logger.Error("copy start transition failed", "file", job.FilePath, "error", err)
		return
	}

	logger.Info("copy started", "file", job.FilePath, "growing", job.IsGrowing)
	start := time.Now()

	finalSize, err := p.engine.Copy(ctx, job)
	if err != nil {
		p.fail(job, err)
		return
	}

	// The verified destination size is authoritative: a growing source
	// ends larger than the size the job was admitted with.
	if _, err := p.machine.Transition(job.FileID, state.StatusCompleted, state.Patch{
		FileSize: &finalSize,
	}); err != nil {
		logger.Error("completion transition failed", "file", job.FilePath, "error", err)
		return
	}
	logger.Info("copy completed", "file", job.FilePath, "duration", time.Since(start))
}

// ensureSpace runs the space arbiter with the waiting-retry loop:
// WAITING_FOR_SPACE, sleep, back to IN_QUEUE, re-check; after the
// configured retries the record lands in SPACE_ERROR and cools down.
func (p *Pool) ensureSpace(ctx context.Context, job queue.Job) bool {
	if decision := p.monitor.CheckSpace(job.FileSize); decision.HasSpace {
		return true
	}

	for attempt := 1; attempt <= p.cfg.Space.MaxRetries; attempt++ {
		decision := p.monitor.CheckSpace(job.FileSize)
		if decision.HasSpace {
			return true
		}

		logger.Warn("insufficient destination space",
			"file", job.FilePath,
			"attempt", attempt,
			"reason", decision.Reason)

		if _, err := p.machine.Transition(job.FileID, state.StatusWaitingForSpace, state.Patch{
			RetryCount: &attempt,
			RetryInfo: &state.RetryInfo{
				Reason:      decision.Reason,
				RetryType:   "space",
				ScheduledAt: time.Now().Add(p.cfg.Space.RetryDelay),
			},
		}); err != nil {
			logger.Error("space wait transition failed", "file", job.FilePath, "error", err)
			return false
		}

		if attempt == p.cfg.Space.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(p.cfg.Space.RetryDelay):
		}

		// Ask the monitor for fresh numbers before the next round.
		p.monitor.TriggerCheck(storage.KindDestination)

		if _, err := p.machine.Transition(job.FileID, state.StatusInQueue, state.Patch{}); err != nil {
			logger.Error("space retry transition failed", "file", job.FilePath, "error", err)
			return false
		}
	}

	reason := fmt.Sprintf("space retries exhausted after %d attempts", p.cfg.Space.MaxRetries)
	if _, err := p.machine.Transition(job.FileID, state.StatusSpaceError, state.Patch{
		ErrorMessage: &reason,
	}); err != nil {
		logger.Error("space error transition failed", "file", job.FilePath, "error", err)
	}
	return false
}

// fail classifies a copy error and applies the outcome.
func (p *Pool) fail(job queue.Job, err error) {
	outcome := p.classifier.Classify(err, job.FilePath)

	logger.Error("copy failed",
		"file", job.FilePath,
		"outcome", outcome.Status,
		"reason", outcome.Reason)

	if _, terr := p.machine.Transition(job.FileID, outcome.Status, state.Patch{
		ErrorMessage: &outcome.Reason,
	}); terr != nil {
		logger.Error("failure transition rejected", "file", job.FilePath, "error", terr)
	}

	if outcome.Status == state.StatusFailed {
		p.queue.RecordFailure(job.FileID, job.FilePath, outcome.Reason)
	}
}
