package metrics

import (
	"io"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mxfmover/mxfmover/internal/logger"
	"github.com/mxfmover/mxfmover/pkg/config"
	"github.com/mxfmover/mxfmover/pkg/events"
	"github.com/mxfmover/mxfmover/pkg/mount"
	"github.com/mxfmover/mxfmover/pkg/queue"
	"github.com/mxfmover/mxfmover/pkg/state"
	"github.com/mxfmover/mxfmover/pkg/storage"
)

func TestMain(m *testing.M) {
	logger.InitWithWriter(io.Discard, "ERROR", "text")
	os.Exit(m.Run())
}

func TestCollectorExposesPipelineMetrics(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.SourceDirectory = t.TempDir()
	cfg.DestinationDirectory = t.TempDir()

	bus := events.NewBus()
	machine := state.NewMachine(state.NewRepository(), bus)
	q := queue.New(cfg, machine, bus)
	monitor := storage.NewMonitor(cfg, bus, &mount.NullAdapter{})

	c := NewCollector(machine, q, monitor, bus)
	defer c.Close()

	// Walk one record to COMPLETED so the counters move.
	rec, err := machine.Create("/src/a.mxf", 2048, time.Now())
	require.NoError(t, err)
	for _, status := range []state.FileStatus{
		state.StatusReady, state.StatusInQueue,
		state.StatusCopying, state.StatusCompleted,
	} {
		_, err = machine.Transition(rec.ID, status, state.Patch{})
		require.NoError(t, err)
	}

	// Events are delivered asynchronously; wait for a scrape in which
	// both counters have landed before asserting on the body.
	deadline := time.Now().Add(2 * time.Second)
	var body string
	for time.Now().Before(deadline) {
		rr := httptest.NewRecorder()
		c.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
		body = rr.Body.String()
		if strings.Contains(body, "mxfmover_bytes_copied_total 2048") &&
			strings.Contains(body, `mxfmover_file_transitions_total{status="COMPLETED"} 1`) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	assert.Contains(t, body, `mxfmover_file_transitions_total{status="COMPLETED"} 1`)
	assert.Contains(t, body, "mxfmover_bytes_copied_total 2048")
	assert.Contains(t, body, "mxfmover_queue_depth 0")
	assert.Contains(t, body, "mxfmover_tracked_files 1")
	assert.Contains(t, body, `mxfmover_storage_degraded{kind="destination"}`)
}
