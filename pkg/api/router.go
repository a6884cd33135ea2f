package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mxfmover/mxfmover/internal/logger"
)

// NewRouter creates the chi router with the middleware stack and all
// control-API routes.
func NewRouter(deps Deps, hub *Hub) http.Handler {
	r := chi.NewRouter()

	// Middleware stack; order matters.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	h := NewHandlers(deps)

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/settings", h.Settings)
		r.Post("/reload-config", h.ReloadConfig)
		r.Post("/restart-application", h.RestartApplication)

		r.Route("/scanner", func(r chi.Router) {
			r.Post("/pause", h.ScannerPause)
			r.Post("/resume", h.ScannerResume)
			r.Get("/status", h.ScannerStatus)
		})

		r.Route("/storage", func(r chi.Router) {
			r.Get("/source", h.StorageSource)
			r.Get("/destination", h.StorageDestination)
		})

		r.Route("/state/queue", func(r chi.Router) {
			r.Get("/status", h.QueueStatus)
			r.Get("/failed-jobs", h.FailedJobs)
			r.Delete("/failed-jobs", h.ClearFailedJobs)
		})

		r.Get("/files", h.Files)
		r.Get("/statistics", h.Stats)
		r.Get("/initial-state", h.InitialState)

		if hub != nil {
			r.Get("/ws/live", hub.ServeHTTP)
		}
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	return r
}

// requestLogger logs requests through the agent logger: start at DEBUG,
// completion at INFO with status and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}
