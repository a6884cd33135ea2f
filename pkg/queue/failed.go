package queue

import (
	"sync"
	"time"
)

// failedJobsCap bounds the failure history kept for the API.
const failedJobsCap = 100

// FailedJob is one retained failure record.
type FailedJob struct {
	FileID   string    `json:"file_id"`
	FilePath string    `json:"file_path"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// failedRing is a bounded FIFO of failures; the oldest entry is dropped
// when the cap is reached.
type failedRing struct {
	mu    sync.Mutex
	items []FailedJob
	cap   int
}

func newFailedRing(capacity int) *failedRing {
	return &failedRing{cap: capacity}
}

func (r *failedRing) add(job FailedJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) >= r.cap {
		r.items = r.items[1:]
	}
	r.items = append(r.items, job)
}

func (r *failedRing) list() []FailedJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]FailedJob, len(r.items))
	copy(out, r.items)
	return out
}

func (r *failedRing) clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.items)
	r.items = nil
	return n
}
