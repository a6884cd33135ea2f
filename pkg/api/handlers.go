// Package api serves the HTTP/JSON control surface the UI and
// operators use: configuration, scanner control, storage health, queue
// state and a WebSocket event feed.
package api

import (
	"net/http"
	"time"

	"github.com/mxfmover/mxfmover/pkg/config"
	"github.com/mxfmover/mxfmover/pkg/events"
	"github.com/mxfmover/mxfmover/pkg/queue"
	"github.com/mxfmover/mxfmover/pkg/scanner"
	"github.com/mxfmover/mxfmover/pkg/state"
	"github.com/mxfmover/mxfmover/pkg/storage"
)

// Deps are the collaborators the handlers operate on. Nil optional
// fields degrade the matching endpoints (404 / 503) instead of
// panicking, which keeps the handlers testable in isolation.
type Deps struct {
	// Config returns the current configuration snapshot.
	Config func() *config.Config

	// ReloadConfig re-reads the configuration from file and applies
	// what can be applied at runtime, returning the new snapshot.
	ReloadConfig func() (*config.Config, error)

	// Restart schedules a graceful restart of the agent.
	Restart func()

	Machine *state.Machine
	Scanner *scanner.Scanner
	Monitor *storage.Monitor
	Queue   *queue.Queue
	Bus     *events.Bus

	// Metrics serves the Prometheus exposition; nil when disabled.
	Metrics http.Handler

	StartedAt time.Time
}

// Handlers implements the control API endpoints.
type Handlers struct {
	deps Deps
}

// NewHandlers creates the handler set.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps}
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, OKResponse(map[string]any{
		"service":    "mxfmover",
		"uptime_sec": int(time.Since(h.deps.StartedAt).Seconds()),
	}))
}

// Settings handles GET /api/settings.
func (h *Handlers) Settings(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, OKResponse(h.deps.Config()))
}

// ReloadConfig handles POST /api/reload-config.
func (h *Handlers) ReloadConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.deps.ReloadConfig()
	if err != nil {
		JSON(w, http.StatusBadRequest, ErrorResponse(err.Error()))
		return
	}
	JSON(w, http.StatusOK, OKResponse(cfg))
}

// RestartApplication handles POST /api/restart-application.
func (h *Handlers) RestartApplication(w http.ResponseWriter, r *http.Request) {
	if h.deps.Restart == nil {
		JSON(w, http.StatusServiceUnavailable, ErrorResponse("restart not available"))
		return
	}
	h.deps.Restart()
	JSON(w, http.StatusOK, OKResponse(map[string]string{
		"message": "restart scheduled",
	}))
}

// ScannerPause handles POST /api/scanner/pause.
func (h *Handlers) ScannerPause(w http.ResponseWriter, r *http.Request) {
	h.deps.Scanner.Pause()
	h.scannerStatus(w)
}

// ScannerResume handles POST /api/scanner/resume.
func (h *Handlers) ScannerResume(w http.ResponseWriter, r *http.Request) {
	h.deps.Scanner.Resume()
	h.scannerStatus(w)
}

// ScannerStatus handles GET /api/scanner/status.
func (h *Handlers) ScannerStatus(w http.ResponseWriter, r *http.Request) {
	h.scannerStatus(w)
}

func (h *Handlers) scannerStatus(w http.ResponseWriter) {
	status := map[string]any{
		"paused":        h.deps.Scanner.Paused(),
		"running":       true,
		"files_tracked": h.deps.Machine.Repository().Count(),
	}
	if last := h.deps.Scanner.LastScan(); !last.IsZero() {
		status["last_scan"] = last
	}
	JSON(w, http.StatusOK, OKResponse(status))
}

// StorageSource handles GET /api/storage/source.
func (h *Handlers) StorageSource(w http.ResponseWriter, r *http.Request) {
	h.storageInfo(w, h.deps.Monitor.SourceInfo())
}

// StorageDestination handles GET /api/storage/destination.
func (h *Handlers) StorageDestination(w http.ResponseWriter, r *http.Request) {
	h.storageInfo(w, h.deps.Monitor.DestinationInfo())
}

// storageInfo maps the location's severity onto the HTTP status:
// 200 OK, 202 still checking, 507 low space, 503 unusable, 404 when
// the monitor has not produced a check yet.
func (h *Handlers) storageInfo(w http.ResponseWriter, info storage.Info) {
	status := http.StatusOK
	switch info.Status {
	case storage.StatusUnknown:
		if info.CheckedAt.IsZero() {
			JSON(w, http.StatusNotFound, ErrorResponse("storage monitor has not checked this location yet"))
			return
		}
		status = http.StatusAccepted
	case storage.StatusWarning:
		status = http.StatusInsufficientStorage
	case storage.StatusCritical, storage.StatusError:
		status = http.StatusServiceUnavailable
	}
	JSON(w, status, OKResponse(info))
}

// QueueStatus handles GET /api/state/queue/status.
func (h *Handlers) QueueStatus(w http.ResponseWriter, r *http.Request) {
	q := h.deps.Queue
	JSON(w, http.StatusOK, OKResponse(map[string]any{
		"running":  !q.Paused(),
		"size":     q.Len(),
		"capacity": q.Cap(),
		"empty":    q.Len() == 0,
	}))
}

// FailedJobs handles GET /api/state/queue/failed-jobs.
func (h *Handlers) FailedJobs(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, OKResponse(h.deps.Queue.FailedJobs()))
}

// ClearFailedJobs handles DELETE /api/state/queue/failed-jobs.
func (h *Handlers) ClearFailedJobs(w http.ResponseWriter, r *http.Request) {
	cleared := h.deps.Queue.ClearFailedJobs()
	JSON(w, http.StatusOK, OKResponse(map[string]int{"cleared": cleared}))
}

// Files handles GET /api/files.
func (h *Handlers) Files(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, OKResponse(h.deps.Machine.Repository().GetAll()))
}

// Statistics summarizes the repository for the UI.
type Statistics struct {
	TotalFiles     int                      `json:"total_files"`
	ByStatus       map[state.FileStatus]int `json:"by_status"`
	ActiveCopies   int                      `json:"active_copies"`
	CompletedFiles int                      `json:"completed_files"`
	FailedFiles    int                      `json:"failed_files"`
	BytesCompleted int64                    `json:"bytes_completed"`
}

// Stats handles GET /api/statistics.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, OKResponse(h.statistics()))
}

func (h *Handlers) statistics() Statistics {
	repo := h.deps.Machine.Repository()
	stats := Statistics{ByStatus: repo.CountByStatus()}

	for _, rec := range repo.GetAll() {
		stats.TotalFiles++
		switch rec.Status {
		case state.StatusCopying, state.StatusGrowingCopy:
			stats.ActiveCopies++
		case state.StatusCompleted:
			stats.CompletedFiles++
			stats.BytesCompleted += rec.FileSize
		case state.StatusFailed:
			stats.FailedFiles++
		}
	}
	return stats
}

// InitialState handles GET /api/initial-state: the one-shot aggregate
// the UI loads at startup before attaching to the WebSocket feed.
func (h *Handlers) InitialState(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, OKResponse(map[string]any{
		"files":      h.deps.Machine.Repository().GetAll(),
		"statistics": h.statistics(),
		"storage": map[string]storage.Info{
			storage.KindSource:      h.deps.Monitor.SourceInfo(),
			storage.KindDestination: h.deps.Monitor.DestinationInfo(),
		},
		"scanner": map[string]any{
			"paused": h.deps.Scanner.Paused(),
		},
	}))
}
