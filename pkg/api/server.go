package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mxfmover/mxfmover/internal/logger"
)

// Server hosts the control API.
//
// The server is created stopped; Start blocks until the context is
// cancelled and then shuts down gracefully.
type Server struct {
	server       *http.Server
	hub          *Hub
	addr         string
	shutdownOnce sync.Once
}

// NewServer creates the API server over the given dependencies.
func NewServer(host string, port int, deps Deps) *Server {
	hub := NewHub(deps.Bus)
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	return &Server{
		server: &http.Server{
			Addr:        addr,
			Handler:     NewRouter(deps, hub),
			ReadTimeout: 30 * time.Second,
			IdleTimeout: 2 * time.Minute,
		},
		hub:  hub,
		addr: addr,
	}
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop shuts the server down gracefully. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.hub.Close()
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", "error", err)
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}
