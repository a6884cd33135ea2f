package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrUnknownFile is returned for lookups and updates against an id
	// the repository has never seen or has evicted.
	ErrUnknownFile = errors.New("unknown file id")

	// ErrDuplicateID is returned when adding a record whose id is
	// already present.
	ErrDuplicateID = errors.New("duplicate file id")

	// ErrActiveRecordExists is returned when creating a record for a
	// path that already has an active (non-terminal) record.
	ErrActiveRecordExists = errors.New("active record exists for path")
)

// Repository is the single owner of all tracked-file records. All
// operations are serialized; readers receive copies so no caller can
// observe a partial update or mutate shared state.
type Repository struct {
	mu    sync.RWMutex
	files map[string]*TrackedFile
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{files: make(map[string]*TrackedFile)}
}

// Add inserts a record. It fails with ErrDuplicateID if the id is
// already present and with ErrActiveRecordExists if another active
// record is bound to the same path (invariant: at most one active
// record per path).
func (r *Repository) Add(rec *TrackedFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.files[rec.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
	}
	for _, f := range r.files {
		if f.FilePath == rec.FilePath && f.Status.IsActive() {
			return fmt.Errorf("%w: %s (held by %s)", ErrActiveRecordExists, rec.FilePath, f.ID)
		}
	}

	r.files[rec.ID] = rec.Clone()
	return nil
}

// GetByID returns a copy of the record bound to id.
func (r *Repository) GetByID(id string) (*TrackedFile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.files[id]
	if !ok {
		return nil, false
	}
	return f.Clone(), true
}

// GetAll returns a stable snapshot of every record, ordered by
// discovery time (oldest first) for deterministic presentation.
func (r *Repository) GetAll() []*TrackedFile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*TrackedFile, 0, len(r.files))
	for _, f := range r.files {
		out = append(out, f.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DiscoveredAt.Equal(out[j].DiscoveredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].DiscoveredAt.Before(out[j].DiscoveredAt)
	})
	return out
}

// Update replaces the record bound to rec.ID.
func (r *Repository) Update(rec *TrackedFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.files[rec.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFile, rec.ID)
	}
	r.files[rec.ID] = rec.Clone()
	return nil
}

// Evict removes the record bound to id. Used by age-based cleanup only.
func (r *Repository) Evict(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, id)
}

// ActiveByPath returns a copy of the single active record for path, if
// one exists. Terminal records for the same path are ignored.
func (r *Repository) ActiveByPath(path string) (*TrackedFile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.files {
		if f.FilePath == path && f.Status.IsActive() {
			return f.Clone(), true
		}
	}
	return nil, false
}

// Count returns the number of records held.
func (r *Repository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.files)
}

// CountByStatus returns per-status record counts.
func (r *Repository) CountByStatus() map[FileStatus]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[FileStatus]int)
	for _, f := range r.files {
		counts[f.Status]++
	}
	return counts
}

// EvictTerminal removes terminal records that finished before the keep
// window, then trims the completed set down to maxCompleted (oldest
// first). It returns the number of evicted records.
func (r *Repository) EvictTerminal(keepFor time.Duration, maxCompleted int, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	var completed []*TrackedFile

	for id, f := range r.files {
		if f.Status.IsActive() {
			continue
		}
		if now.Sub(terminalAt(f)) >= keepFor {
			delete(r.files, id)
			evicted++
			continue
		}
		if f.Status == StatusCompleted {
			completed = append(completed, f)
		}
	}

	if maxCompleted > 0 && len(completed) > maxCompleted {
		sort.Slice(completed, func(i, j int) bool {
			return terminalAt(completed[i]).Before(terminalAt(completed[j]))
		})
		for _, f := range completed[:len(completed)-maxCompleted] {
			delete(r.files, f.ID)
			evicted++
		}
	}

	return evicted
}

// terminalAt is the best-known time a record reached its terminal state.
func terminalAt(f *TrackedFile) time.Time {
	if f.CompletedAt != nil {
		return *f.CompletedAt
	}
	if f.StartedCopyingAt != nil {
		return *f.StartedCopyingAt
	}
	return f.DiscoveredAt
}
