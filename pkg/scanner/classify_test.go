package scanner

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxfmover/mxfmover/internal/bytesize"
	"github.com/mxfmover/mxfmover/pkg/state"
)

const (
	testMinGrowing = 100 * bytesize.MiB
	testStableTime = 10 * time.Second
)

func classify(rec *state.TrackedFile, size int64, statErr error, notFound bool, now time.Time) Outcome {
	return Classify(rec, size, statErr, notFound, now, testMinGrowing, testStableTime)
}

func discovered(size int64) *state.TrackedFile {
	return &state.TrackedFile{
		ID:       "f1",
		FilePath: "/src/a.mxf",
		Status:   state.StatusDiscovered,
		FileSize: size,
	}
}

func TestFirstObservationPrimesTracking(t *testing.T) {
	now := time.Now()
	out := classify(discovered(1000), 1000, nil, false, now)

	assert.False(t, out.Transition)
	assert.Equal(t, state.StatusDiscovered, out.Next)
	require.NotNil(t, out.Patch.LastGrowthCheck)
	require.NotNil(t, out.Patch.GrowthStableSince)
	assert.Equal(t, now, *out.Patch.LastGrowthCheck)
}

func TestGrowthBelowThreshold(t *testing.T) {
	now := time.Now()
	checked := now.Add(-2 * time.Second)
	rec := discovered(1000)
	rec.LastGrowthCheck = &checked

	out := classify(rec, 5000, nil, false, now)

	assert.True(t, out.Transition)
	assert.Equal(t, state.StatusGrowing, out.Next)
	assert.True(t, out.Patch.ClearGrowthStableSince)
	require.NotNil(t, out.Patch.FileSize)
	assert.Equal(t, int64(5000), *out.Patch.FileSize)
	require.NotNil(t, out.Patch.GrowthRateMBps)
	assert.Greater(t, *out.Patch.GrowthRateMBps, 0.0)
}

func TestGrowthAboveThresholdIsLiveCopyEligible(t *testing.T) {
	now := time.Now()
	checked := now.Add(-time.Second)
	rec := discovered(50 * testMinGrowing.Int64() / 100)
	rec.Status = state.StatusGrowing
	rec.LastGrowthCheck = &checked

	out := classify(rec, testMinGrowing.Int64(), nil, false, now)

	assert.True(t, out.Transition)
	assert.Equal(t, state.StatusReadyToStartGrowing, out.Next)
}

func TestGrowingStaysGrowingWithoutEdge(t *testing.T) {
	now := time.Now()
	checked := now.Add(-time.Second)
	rec := discovered(1000)
	rec.Status = state.StatusGrowing
	rec.LastGrowthCheck = &checked

	out := classify(rec, 2000, nil, false, now)

	// GROWING -> GROWING is not a transition, only a patch.
	assert.False(t, out.Transition)
	assert.Equal(t, state.StatusGrowing, out.Next)
}

func TestStableLongEnoughBecomesReady(t *testing.T) {
	now := time.Now()
	checked := now.Add(-time.Second)
	since := now.Add(-testStableTime)
	rec := discovered(1000)
	rec.LastGrowthCheck = &checked
	rec.GrowthStableSince = &since

	out := classify(rec, 1000, nil, false, now)

	assert.True(t, out.Transition)
	assert.Equal(t, state.StatusReady, out.Next)
}

func TestStableTooBrieflyStaysPut(t *testing.T) {
	now := time.Now()
	checked := now.Add(-time.Second)
	since := now.Add(-testStableTime / 2)
	rec := discovered(1000)
	rec.LastGrowthCheck = &checked
	rec.GrowthStableSince = &since

	out := classify(rec, 1000, nil, false, now)

	assert.False(t, out.Transition)
	assert.Equal(t, state.StatusDiscovered, out.Next)
}

func TestUnchangedWithoutStableSinceStartsTimer(t *testing.T) {
	now := time.Now()
	checked := now.Add(-time.Second)
	rec := discovered(1000)
	rec.LastGrowthCheck = &checked

	out := classify(rec, 1000, nil, false, now)

	assert.False(t, out.Transition)
	require.NotNil(t, out.Patch.GrowthStableSince)
	assert.Equal(t, now, *out.Patch.GrowthStableSince)
}

func TestShrinkResetsStability(t *testing.T) {
	now := time.Now()
	checked := now.Add(-time.Second)
	since := now.Add(-testStableTime)
	rec := discovered(5000)
	rec.LastGrowthCheck = &checked
	rec.GrowthStableSince = &since

	out := classify(rec, 3000, nil, false, now)

	assert.False(t, out.Transition)
	require.NotNil(t, out.Patch.FileSize)
	assert.Equal(t, int64(3000), *out.Patch.FileSize)
	require.NotNil(t, out.Patch.GrowthStableSince)
	assert.Equal(t, now, *out.Patch.GrowthStableSince)
}

func TestMissingSourceIsRemoved(t *testing.T) {
	now := time.Now()
	checked := now.Add(-time.Second)
	rec := discovered(1000)
	rec.LastGrowthCheck = &checked

	out := classify(rec, 0, errors.New("no such file"), true, now)

	assert.True(t, out.Transition)
	assert.Equal(t, state.StatusRemoved, out.Next)
}

func TestStatErrorIsFailed(t *testing.T) {
	now := time.Now()
	rec := discovered(1000)

	out := classify(rec, 0, errors.New("input/output error"), false, now)

	assert.True(t, out.Transition)
	assert.Equal(t, state.StatusFailed, out.Next)
	require.NotNil(t, out.Patch.ErrorMessage)
}

func TestPipelineStatesAreUntouched(t *testing.T) {
	now := time.Now()
	for _, status := range []state.FileStatus{
		state.StatusReadyToStartGrowing, state.StatusReady, state.StatusInQueue,
		state.StatusCopying, state.StatusGrowingCopy, state.StatusWaitingForSpace,
		state.StatusWaitingForNetwork, state.StatusSpaceError,
		state.StatusCompleted, state.StatusFailed, state.StatusRemoved,
	} {
		rec := discovered(1000)
		rec.Status = status
		out := classify(rec, 999999, nil, false, now)
		assert.False(t, out.Transition, "status %s must not be classified", status)
		assert.Equal(t, status, out.Next)
	}
}
