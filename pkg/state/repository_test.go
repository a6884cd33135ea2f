package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id, path string, status FileStatus, discovered time.Time) *TrackedFile {
	return &TrackedFile{
		ID:           id,
		FilePath:     path,
		Status:       status,
		DiscoveredAt: discovered,
	}
}

func TestAddAndGetByID(t *testing.T) {
	r := NewRepository()
	require.NoError(t, r.Add(record("1", "/src/a.mxf", StatusDiscovered, time.Now())))

	got, ok := r.GetByID("1")
	require.True(t, ok)
	assert.Equal(t, "/src/a.mxf", got.FilePath)

	_, ok = r.GetByID("2")
	assert.False(t, ok)
}

func TestAddDuplicateID(t *testing.T) {
	r := NewRepository()
	require.NoError(t, r.Add(record("1", "/src/a.mxf", StatusDiscovered, time.Now())))
	assert.ErrorIs(t, r.Add(record("1", "/src/b.mxf", StatusDiscovered, time.Now())), ErrDuplicateID)
}

func TestSnapshotIsolation(t *testing.T) {
	r := NewRepository()
	require.NoError(t, r.Add(record("1", "/src/a.mxf", StatusDiscovered, time.Now())))

	snap, ok := r.GetByID("1")
	require.True(t, ok)
	snap.FilePath = "/elsewhere"

	fresh, ok := r.GetByID("1")
	require.True(t, ok)
	assert.Equal(t, "/src/a.mxf", fresh.FilePath)
}

func TestGetAllOrderedByDiscovery(t *testing.T) {
	r := NewRepository()
	base := time.Now()
	require.NoError(t, r.Add(record("b", "/src/b.mxf", StatusDiscovered, base.Add(time.Second))))
	require.NoError(t, r.Add(record("a", "/src/a.mxf", StatusDiscovered, base)))

	all := r.GetAll()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
}

func TestActiveByPathIgnoresTerminal(t *testing.T) {
	r := NewRepository()
	require.NoError(t, r.Add(record("1", "/src/a.mxf", StatusCompleted, time.Now())))

	_, ok := r.ActiveByPath("/src/a.mxf")
	assert.False(t, ok)

	require.NoError(t, r.Add(record("2", "/src/a.mxf", StatusCopying, time.Now())))
	got, ok := r.ActiveByPath("/src/a.mxf")
	require.True(t, ok)
	assert.Equal(t, "2", got.ID)
}

func TestUpdateUnknown(t *testing.T) {
	r := NewRepository()
	assert.ErrorIs(t, r.Update(record("ghost", "/src/a.mxf", StatusReady, time.Now())), ErrUnknownFile)
}

func TestEvictTerminalByAge(t *testing.T) {
	r := NewRepository()
	now := time.Now()
	old := now.Add(-48 * time.Hour)

	stale := record("old", "/src/old.mxf", StatusCompleted, old)
	stale.CompletedAt = &old
	require.NoError(t, r.Add(stale))

	fresh := record("new", "/src/new.mxf", StatusCompleted, now)
	fresh.CompletedAt = &now
	require.NoError(t, r.Add(fresh))

	active := record("live", "/src/live.mxf", StatusCopying, old)
	require.NoError(t, r.Add(active))

	evicted := r.EvictTerminal(24*time.Hour, 0, now)
	assert.Equal(t, 1, evicted)

	_, ok := r.GetByID("old")
	assert.False(t, ok)
	_, ok = r.GetByID("new")
	assert.True(t, ok)
	_, ok = r.GetByID("live")
	assert.True(t, ok)
}

func TestEvictTerminalByCount(t *testing.T) {
	r := NewRepository()
	now := time.Now()

	for i := 0; i < 5; i++ {
		ts := now.Add(time.Duration(i) * time.Minute)
		rec := record(string(rune('a'+i)), "/src/"+string(rune('a'+i))+".mxf", StatusCompleted, ts)
		rec.CompletedAt = &ts
		require.NoError(t, r.Add(rec))
	}

	evicted := r.EvictTerminal(24*time.Hour, 2, now.Add(10*time.Minute))
	assert.Equal(t, 3, evicted)
	assert.Equal(t, 2, r.Count())

	// The newest completions survive.
	_, ok := r.GetByID("e")
	assert.True(t, ok)
	_, ok = r.GetByID("d")
	assert.True(t, ok)
}

func TestCountByStatus(t *testing.T) {
	r := NewRepository()
	require.NoError(t, r.Add(record("1", "/src/a.mxf", StatusReady, time.Now())))
	require.NoError(t, r.Add(record("2", "/src/b.mxf", StatusReady, time.Now())))
	require.NoError(t, r.Add(record("3", "/src/c.mxf", StatusCopying, time.Now())))

	counts := r.CountByStatus()
	assert.Equal(t, 2, counts[StatusReady])
	assert.Equal(t, 1, counts[StatusCopying])
}
