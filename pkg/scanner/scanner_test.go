package scanner

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxfmover/mxfmover/internal/logger"
	"github.com/mxfmover/mxfmover/pkg/config"
	"github.com/mxfmover/mxfmover/pkg/events"
	"github.com/mxfmover/mxfmover/pkg/state"
)

func TestMain(m *testing.M) {
	logger.InitWithWriter(io.Discard, "ERROR", "text")
	os.Exit(m.Run())
}

func newTestScanner(t *testing.T) (*Scanner, *state.Machine, *events.Bus, string) {
	t.Helper()

	cfg := config.GetDefaultConfig()
	cfg.SourceDirectory = t.TempDir()
	cfg.DestinationDirectory = t.TempDir()
	cfg.Scanner.FileStableTime = time.Millisecond
	cfg.Scanner.WatchEvents = false

	bus := events.NewBus()
	machine := state.NewMachine(state.NewRepository(), bus)
	return New(cfg, machine, bus), machine, bus, cfg.SourceDirectory
}

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func TestScanDiscoversMatchingFiles(t *testing.T) {
	s, machine, _, src := newTestScanner(t)

	path := writeFile(t, src, "clip.mxf", 1024)
	writeFile(t, src, "notes.txt", 512)
	writeFile(t, src, ".hidden.mxf", 512)
	writeFile(t, src, ".mxfmover-probe-xyz.mxf", 512)
	writeFile(t, src, "empty.mxf", 0)

	require.NoError(t, s.ScanOnce(context.Background()))

	all := machine.Repository().GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, path, all[0].FilePath)
	assert.Equal(t, state.StatusDiscovered, all[0].Status)
	assert.Equal(t, int64(1024), all[0].FileSize)
}

func TestScanHonorsExtensionCase(t *testing.T) {
	s, machine, _, src := newTestScanner(t)
	writeFile(t, src, "CLIP.MXF", 1024)

	require.NoError(t, s.ScanOnce(context.Background()))
	assert.Equal(t, 1, machine.Repository().Count())
}

func TestStableFileBecomesReady(t *testing.T) {
	s, machine, _, src := newTestScanner(t)
	writeFile(t, src, "clip.mxf", 1024)

	ctx := context.Background()
	require.NoError(t, s.ScanOnce(ctx)) // discover
	require.NoError(t, s.ScanOnce(ctx)) // prime growth tracking
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.ScanOnce(ctx)) // stable long enough

	all := machine.Repository().GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, state.StatusReady, all[0].Status)
}

func TestGrowingFileIsClassifiedGrowing(t *testing.T) {
	s, machine, _, src := newTestScanner(t)
	s.cfg.Scanner.FileStableTime = time.Hour

	path := writeFile(t, src, "clip.mxf", 1024)
	ctx := context.Background()
	require.NoError(t, s.ScanOnce(ctx)) // discover
	require.NoError(t, s.ScanOnce(ctx)) // prime

	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0o644))
	require.NoError(t, s.ScanOnce(ctx))

	all := machine.Repository().GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, state.StatusGrowing, all[0].Status)
	assert.Equal(t, int64(4096), all[0].FileSize)
}

func TestMissingFileIsSweptToRemoved(t *testing.T) {
	s, machine, _, src := newTestScanner(t)
	path := writeFile(t, src, "clip.mxf", 1024)

	ctx := context.Background()
	require.NoError(t, s.ScanOnce(ctx))
	require.NoError(t, os.Remove(path))
	require.NoError(t, s.ScanOnce(ctx))

	all := machine.Repository().GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, state.StatusRemoved, all[0].Status)
}

func TestSpaceErrorCooldownSkipsPath(t *testing.T) {
	s, machine, _, src := newTestScanner(t)
	path := writeFile(t, src, "clip.mxf", 1024)

	rec, err := machine.Create(path, 1024, time.Now())
	require.NoError(t, err)
	for _, status := range []state.FileStatus{
		state.StatusReady, state.StatusInQueue,
		state.StatusWaitingForSpace, state.StatusSpaceError,
	} {
		_, err = machine.Transition(rec.ID, status, state.Patch{})
		require.NoError(t, err)
	}

	require.NoError(t, s.ScanOnce(context.Background()))

	// No new record, and the cooling record is untouched.
	assert.Equal(t, 1, machine.Repository().Count())
	got, ok := machine.Repository().GetByID(rec.ID)
	require.True(t, ok)
	assert.Equal(t, state.StatusSpaceError, got.Status)
}

func TestPauseResumePublishesEvents(t *testing.T) {
	s, _, bus, _ := newTestScanner(t)

	got := make(chan *events.ScannerStatusChangedEvent, 2)
	unsub := bus.Subscribe(events.TopicScannerStatus, func(_ string, data any) {
		if ev, ok := data.(*events.ScannerStatusChangedEvent); ok {
			got <- ev
		}
	})
	defer unsub()

	s.Pause()
	assert.True(t, s.Paused())
	s.Pause() // idempotent, no second event
	s.Resume()
	assert.False(t, s.Paused())

	for _, wantPaused := range []bool{true, false} {
		select {
		case ev := <-got:
			assert.Equal(t, wantPaused, ev.Paused)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for paused=%v event", wantPaused)
		}
	}
}

func TestPausedScannerDoesNoWork(t *testing.T) {
	s, machine, _, src := newTestScanner(t)
	s.cfg.Scanner.PollingInterval = 5 * time.Millisecond
	writeFile(t, src, "clip.mxf", 1024)

	s.Pause()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, machine.Repository().Count())

	cancel()
	<-done
}
