package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxfmover/mxfmover/pkg/events"
)

func newTestMachine() (*Machine, *events.Bus) {
	bus := events.NewBus()
	return NewMachine(NewRepository(), bus), bus
}

func TestCreateAssignsFreshRecord(t *testing.T) {
	m, _ := newTestMachine()

	rec, err := m.Create("/src/a.mxf", 1024, time.Now())
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, StatusDiscovered, rec.Status)
	assert.Equal(t, int64(1024), rec.FileSize)
	assert.Equal(t, int64(1024), rec.FirstSeenSize)
}

func TestCreateRejectsSecondActiveRecordForPath(t *testing.T) {
	m, _ := newTestMachine()

	_, err := m.Create("/src/a.mxf", 1024, time.Now())
	require.NoError(t, err)

	_, err = m.Create("/src/a.mxf", 2048, time.Now())
	assert.ErrorIs(t, err, ErrActiveRecordExists)
}

func TestCreateAllowedAfterTerminalRecord(t *testing.T) {
	m, _ := newTestMachine()

	first, err := m.Create("/src/a.mxf", 1024, time.Now())
	require.NoError(t, err)
	_, err = m.Transition(first.ID, StatusRemoved, Patch{})
	require.NoError(t, err)

	second, err := m.Create("/src/a.mxf", 2048, time.Now())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	// The terminal record remains untouched.
	old, ok := m.Repository().GetByID(first.ID)
	require.True(t, ok)
	assert.Equal(t, StatusRemoved, old.Status)
}

func TestTransitionGraph(t *testing.T) {
	legal := map[FileStatus][]FileStatus{
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

	for _, from := range AllStatuses() {
		allowed := map[FileStatus]bool{}
		for _, to := range legal[from] {
			allowed[to] = true
		}
		for _, to := range AllStatuses() {
			assert.Equalf(t, allowed[to], from.CanTransitionTo(to),
				"edge %s -> %s", from, to)
		}
	}
}

func TestInvalidTransitionLeavesRecordUntouched(t *testing.T) {
	m, _ := newTestMachine()

	rec, err := m.Create("/src/a.mxf", 1024, time.Now())
	require.NoError(t, err)

	_, err = m.Transition(rec.ID, StatusCompleted, Patch{ErrorMessage: Ptr("boom")})
	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, StatusDiscovered, ite.From)
	assert.Equal(t, StatusCompleted, ite.To)

	got, ok := m.Repository().GetByID(rec.ID)
	require.True(t, ok)
	assert.Equal(t, StatusDiscovered, got.Status)
	assert.Empty(t, got.ErrorMessage)
}

func TestTransitionUnknownFile(t *testing.T) {
	m, _ := newTestMachine()
	_, err := m.Transition("nope", StatusReady, Patch{})
	assert.ErrorIs(t, err, ErrUnknownFile)
}

func TestTransitionAppliesPatchAndTimestamps(t *testing.T) {
	m, _ := newTestMachine()

	rec, err := m.Create("/src/a.mxf", 1024, time.Now())
	require.NoError(t, err)

	_, err = m.Transition(rec.ID, StatusReady, Patch{})
	require.NoError(t, err)
	_, err = m.Transition(rec.ID, StatusInQueue, Patch{})
	require.NoError(t, err)

	got, err := m.Transition(rec.ID, StatusCopying, Patch{BytesCopied: Ptr(int64(0))})
	require.NoError(t, err)
	require.NotNil(t, got.StartedCopyingAt)
	assert.Nil(t, got.CompletedAt)

	got, err = m.Transition(rec.ID, StatusCompleted, Patch{})
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, got.FileSize, got.BytesCopied)
	assert.Equal(t, float64(100), got.CopyProgress)
}

func TestTransitionEmitsEventInOrder(t *testing.T) {
	m, bus := newTestMachine()

	var mu sync.Mutex
	var seen []string
	unsub := bus.Subscribe(events.TopicFileStatus, func(_ string, data any) {
		ev := data.(*events.FileStatusChangedEvent)
		mu.Lock()
		seen = append(seen, ev.NewStatus)
		mu.Unlock()
	})
	defer unsub()

	rec, err := m.Create("/src/a.mxf", 1024, time.Now())
	require.NoError(t, err)
	_, err = m.Transition(rec.ID, StatusReady, Patch{})
	require.NoError(t, err)
	done := bus.Publish("test.flush", nil)
	<-done

	// Give the hub a moment to drain the subscriber queue.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 2
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"DISCOVERED", "READY"}, seen[:2])
}

func TestRecordProgressClampsToFileSize(t *testing.T) {
	m, _ := newTestMachine()

	rec, err := m.Create("/src/a.mxf", 1000, time.Now())
	require.NoError(t, err)
	_, err = m.Transition(rec.ID, StatusReady, Patch{})
	require.NoError(t, err)
	_, err = m.Transition(rec.ID, StatusInQueue, Patch{})
	require.NoError(t, err)
	_, err = m.Transition(rec.ID, StatusCopying, Patch{})
	require.NoError(t, err)

	require.NoError(t, m.RecordProgress(rec.ID, 5000, 0, 12.5))

	got, ok := m.Repository().GetByID(rec.ID)
	require.True(t, ok)
	assert.Equal(t, int64(1000), got.BytesCopied)
	assert.Equal(t, float64(100), got.CopyProgress)
}

// A live copy keeps discovering new bytes past the admission-time size;
// progress updates must carry the fresh total so the record and its
// completion accounting track the real file.
func TestRecordProgressRefreshesGrowingTotal(t *testing.T) {
	m, _ := newTestMachine()

	rec, err := m.Create("/src/live.mxf", 1000, time.Now())
	require.NoError(t, err)
	for _, s := range []FileStatus{StatusReadyToStartGrowing, StatusInQueue, StatusGrowingCopy} {
		_, err = m.Transition(rec.ID, s, Patch{})
		require.NoError(t, err)
	}

	require.NoError(t, m.RecordProgress(rec.ID, 1500, 3000, 8.0))

	got, ok := m.Repository().GetByID(rec.ID)
	require.True(t, ok)
	assert.Equal(t, int64(3000), got.FileSize)
	assert.Equal(t, int64(1000), got.PreviousFileSize)
	assert.Equal(t, int64(1500), got.BytesCopied)
	assert.Equal(t, float64(50), got.CopyProgress)

	// Completion with the verified final size freezes matching totals.
	final := int64(3200)
	_, err = m.Transition(rec.ID, StatusCompleted, Patch{FileSize: &final})
	require.NoError(t, err)

	got, ok = m.Repository().GetByID(rec.ID)
	require.True(t, ok)
	assert.Equal(t, final, got.FileSize)
	assert.Equal(t, final, got.BytesCopied)
	assert.Equal(t, float64(100), got.CopyProgress)
}

func TestShouldSkipPathDuringCooldown(t *testing.T) {
	m, _ := newTestMachine()

	rec, err := m.Create("/src/c.mxf", 1000, time.Now())
	require.NoError(t, err)
	for _, s := range []FileStatus{StatusReady, StatusInQueue, StatusWaitingForSpace, StatusSpaceError} {
		_, err = m.Transition(rec.ID, s, Patch{})
		require.NoError(t, err)
	}

	now := time.Now()
	assert.True(t, m.ShouldSkipPath("/src/c.mxf", 15*time.Minute, now))
	assert.False(t, m.ShouldSkipPath("/src/c.mxf", 15*time.Minute, now.Add(16*time.Minute)))
	assert.False(t, m.ShouldSkipPath("/src/other.mxf", 15*time.Minute, now))
}

func TestRecordSizeDoesNotTransition(t *testing.T) {
	m, _ := newTestMachine()

	rec, err := m.Create("/src/a.mxf", 1000, time.Now())
	require.NoError(t, err)

	require.NoError(t, m.RecordSize(rec.ID, 2000))

	got, ok := m.Repository().GetByID(rec.ID)
	require.True(t, ok)
	assert.Equal(t, StatusDiscovered, got.Status)
	assert.Equal(t, int64(2000), got.FileSize)
	assert.Equal(t, int64(1000), got.PreviousFileSize)
}
