package scanner

import (
	"time"

	"github.com/mxfmover/mxfmover/internal/bytesize"
	"github.com/mxfmover/mxfmover/pkg/state"
)

// Outcome is the classifier's recommendation for one record: the target
// status, whether a transition is requested at all, and the field patch
// to apply with it.
type Outcome struct {
	Next       state.FileStatus
	Transition bool
	Patch      state.Patch
}

// Classify runs the growth classifier over one observation of a record.
// It is a pure function of the record, the stat result and the clock:
// it never touches the repository. statErr carries the stat failure, if
// any; isNotFound distinguishes a vanished source from an I/O error.
//
// Only DISCOVERED and GROWING records are classified; records in any
// other state come back with Transition=false so the scanner can never
// bounce a file out of the active pipeline.
func Classify(rec *state.TrackedFile, size int64, statErr error, isNotFound bool, now time.Time, minGrowingSize bytesize.ByteSize, stableTime time.Duration) Outcome {
	if rec.Status != state.StatusDiscovered && rec.Status != state.StatusGrowing {
		return Outcome{Next: rec.Status}
	}

	if statErr != nil {
		if isNotFound {
			return Outcome{Next: state.StatusRemoved, Transition: true}
		}
		msg := statErr.Error()
		return Outcome{Next: state.StatusFailed, Transition: true, Patch: state.Patch{ErrorMessage: &msg}}
	}

	// First observation: prime the growth-tracking fields and stay put.
	if rec.LastGrowthCheck == nil {
		return Outcome{
			Next: rec.Status,
			Patch: state.Patch{
				PreviousFileSize:  state.Ptr(size),
				FileSize:          state.Ptr(size),
				GrowthStableSince: &now,
				LastGrowthCheck:   &now,
			},
		}
	}

	switch {
	case size > rec.FileSize:
		patch := state.Patch{
			PreviousFileSize:       state.Ptr(rec.FileSize),
			FileSize:               state.Ptr(size),
			ClearGrowthStableSince: true,
			LastGrowthCheck:        &now,
		}
		if dt := now.Sub(*rec.LastGrowthCheck).Seconds(); dt > 0 {
			rate := float64(size-rec.FileSize) / dt / float64(bytesize.MiB)
			patch.GrowthRateMBps = &rate
		}

		next := state.StatusGrowing
		if size >= minGrowingSize.Int64() {
			next = state.StatusReadyToStartGrowing
		}
		// Already GROWING and still below threshold: no edge to take.
		transition := next != rec.Status
		return Outcome{Next: next, Transition: transition, Patch: patch}

	case size < rec.FileSize:
		// A shrinking source restarts stability tracking.
		return Outcome{
			Next: rec.Status,
			Patch: state.Patch{
				PreviousFileSize:  state.Ptr(rec.FileSize),
				FileSize:          state.Ptr(size),
				GrowthStableSince: &now,
				LastGrowthCheck:   &now,
			},
		}

	default:
		patch := state.Patch{LastGrowthCheck: &now}
		since := rec.GrowthStableSince
		if since == nil {
			patch.GrowthStableSince = &now
			since = &now
		}
		if now.Sub(*since) >= stableTime {
			zero := 0.0
			patch.GrowthRateMBps = &zero
			return Outcome{Next: state.StatusReady, Transition: true, Patch: patch}
		}
		return Outcome{Next: rec.Status, Patch: patch}
	}
}
