package copier

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxfmover/mxfmover/internal/bytesize"
	"github.com/mxfmover/mxfmover/internal/logger"
	"github.com/mxfmover/mxfmover/pkg/config"
	"github.com/mxfmover/mxfmover/pkg/events"
	"github.com/mxfmover/mxfmover/pkg/queue"
	"github.com/mxfmover/mxfmover/pkg/state"
)

func TestMain(m *testing.M) {
	logger.InitWithWriter(io.Discard, "ERROR", "text")
	os.Exit(m.Run())
}

func newTestEngine(t *testing.T) (*Engine, *state.Machine, *config.Config) {
	t.Helper()

	cfg := config.GetDefaultConfig()
	cfg.SourceDirectory = t.TempDir()
	cfg.DestinationDirectory = t.TempDir()
	cfg.Copy.ChunkSize = 64 * 1024
	cfg.Growing.ChunkSize = 64 * 1024
	cfg.Growing.SafetyMargin = 4 * 1024
	cfg.Growing.PollInterval = 5 * time.Millisecond
	cfg.Growing.GrowthTimeout = 20 * time.Millisecond

	machine := state.NewMachine(state.NewRepository(), events.NewBus())
	return NewEngine(cfg, machine), machine, cfg
}

func makeSource(t *testing.T, cfg *config.Config, name string, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)
	path := filepath.Join(cfg.SourceDirectory, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path, data
}

func trackedJob(t *testing.T, machine *state.Machine, path string, size int64, growing bool) queue.Job {
	t.Helper()
	rec, err := machine.Create(path, size, time.Now())
	require.NoError(t, err)
	return queue.Job{FileID: rec.ID, FilePath: path, FileSize: size, IsGrowing: growing}
}

func TestNormalCopy(t *testing.T) {
	e, machine, cfg := newTestEngine(t)
	src, data := makeSource(t, cfg, "clip.mxf", 300*1024)
	job := trackedJob(t, machine, src, int64(len(data)), false)

	size, err := e.Copy(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)

	dest := filepath.Join(cfg.DestinationDirectory, "clip.mxf")
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))

	// Source is deleted, temp file is gone.
	assert.NoFileExists(t, src)
	assert.NoFileExists(t, dest+tempSuffix)
}

func TestCopyFailsOnMissingSource(t *testing.T) {
	e, machine, cfg := newTestEngine(t)
	src := filepath.Join(cfg.SourceDirectory, "ghost.mxf")
	job := trackedJob(t, machine, src, 1024, false)

	_, err := e.Copy(context.Background(), job)
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err) || errorsContains(err, "cannot open source"))
}

func errorsContains(err error, sub string) bool {
	return err != nil && bytes.Contains([]byte(err.Error()), []byte(sub))
}

func TestCopyCancellation(t *testing.T) {
	e, machine, cfg := newTestEngine(t)
	src, data := makeSource(t, cfg, "clip.mxf", 1024*1024)
	job := trackedJob(t, machine, src, int64(len(data)), false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Copy(ctx, job)
	assert.ErrorIs(t, err, context.Canceled)
	assert.FileExists(t, src)
}

func TestGrowingCopyFollowsAppendingSource(t *testing.T) {
	e, machine, cfg := newTestEngine(t)
	src, initial := makeSource(t, cfg, "live.mxf", 200*1024)
	job := trackedJob(t, machine, src, int64(len(initial)), true)

	// Append while the copy runs, then stop so the growth timeout
	// finalizes the tail.
	tail := make([]byte, 100*1024)
	_, err := rand.Read(tail)
	require.NoError(t, err)
	go func() {
		f, err := os.OpenFile(src, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		defer f.Close()
		for i := 0; i < len(tail); i += 10 * 1024 {
			f.Write(tail[i : i+10*1024])
			time.Sleep(2 * time.Millisecond)
		}
	}()

	size, err := e.Copy(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, int64(len(initial)+len(tail)), size)

	dest := filepath.Join(cfg.DestinationDirectory, "live.mxf")
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(append(initial, tail...), got))
	assert.NoFileExists(t, src)
}

func TestResumeFromVerifiedTemp(t *testing.T) {
	e, machine, cfg := newTestEngine(t)
	cfg.Copy.Resume.Enabled = true
	cfg.Copy.Resume.VerifyWindowMin = 4 * 1024
	cfg.Copy.Resume.VerifyWindowMax = 64 * 1024

	src, data := makeSource(t, cfg, "clip.mxf", 500*1024)
	job := trackedJob(t, machine, src, int64(len(data)), false)

	// A prior attempt left a valid half-finished temp file.
	dest := filepath.Join(cfg.DestinationDirectory, "clip.mxf")
	require.NoError(t, os.WriteFile(dest+tempSuffix, data[:250*1024], 0o644))

	_, err := e.Copy(context.Background(), job)
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
}

func TestResumeDiscardsCorruptTemp(t *testing.T) {
	e, machine, cfg := newTestEngine(t)
	cfg.Copy.Resume.Enabled = true
	cfg.Copy.Resume.VerifyWindowMin = 4 * 1024
	cfg.Copy.Resume.VerifyWindowMax = 64 * 1024

	src, data := makeSource(t, cfg, "clip.mxf", 500*1024)
	job := trackedJob(t, machine, src, int64(len(data)), false)

	// The leftover temp diverges from the source everywhere.
	garbage := make([]byte, 250*1024)
	dest := filepath.Join(cfg.DestinationDirectory, "clip.mxf")
	require.NoError(t, os.WriteFile(dest+tempSuffix, garbage, 0o644))

	_, err := e.Copy(context.Background(), job)
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
}

func TestResumeIgnoredWhenTempLargerThanSource(t *testing.T) {
	e, machine, cfg := newTestEngine(t)
	cfg.Copy.Resume.Enabled = true

	src, data := makeSource(t, cfg, "clip.mxf", 100*1024)
	job := trackedJob(t, machine, src, int64(len(data)), false)

	dest := filepath.Join(cfg.DestinationDirectory, "clip.mxf")
	require.NoError(t, os.WriteFile(dest+tempSuffix, make([]byte, 200*1024), 0o644))

	_, err := e.Copy(context.Background(), job)
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))
}

func TestDestinationPathTemplates(t *testing.T) {
	e, _, cfg := newTestEngine(t)
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	flat := e.DestinationPath("/src/a.mxf", now)
	assert.Equal(t, filepath.Join(cfg.DestinationDirectory, "a.mxf"), flat)

	e.mapper = MapperFor("date")
	dated := e.DestinationPath("/src/a.mxf", now)
	assert.Equal(t, filepath.Join(cfg.DestinationDirectory, "2026", "08", "24", "a.mxf"), dated)
}

func TestProgressEventsAreThrottled(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.SourceDirectory = t.TempDir()
	cfg.DestinationDirectory = t.TempDir()
	cfg.Copy.ChunkSize = bytesize.ByteSize(1024)
	cfg.Copy.ProgressUpdateInterval = 10

	bus := events.NewBus()
	machine := state.NewMachine(state.NewRepository(), bus)
	e := NewEngine(cfg, machine)

	var count int
	done := make(chan struct{})
	bus.Subscribe(events.TopicFileProgress, func(_ string, data any) {
		if ev, ok := data.(*events.FileCopyProgressEvent); ok {
			count++
			if ev.BytesCopied == ev.TotalBytes {
				close(done)
			}
		}
	})

	src, data := makeSource(t, cfg, "clip.mxf", 100*1024)
	job := trackedJob(t, machine, src, int64(len(data)), false)
	_, err := e.Copy(context.Background(), job)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("final progress event never arrived")
	}
	// 100 chunks at 10% granularity: roughly 10 events, not 100.
	assert.LessOrEqual(t, count, 15)
}
