// Package agent wires the pipeline together and owns its lifecycle:
// repository, state machine, event bus, scanner, storage monitor,
// queue, copy workers, metrics and the control API run under one
// context and shut down together.
package agent

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/mxfmover/mxfmover/internal/logger"
	"github.com/mxfmover/mxfmover/pkg/api"
	"github.com/mxfmover/mxfmover/pkg/config"
	"github.com/mxfmover/mxfmover/pkg/copier"
	"github.com/mxfmover/mxfmover/pkg/events"
	"github.com/mxfmover/mxfmover/pkg/metrics"
	"github.com/mxfmover/mxfmover/pkg/mount"
	"github.com/mxfmover/mxfmover/pkg/queue"
	"github.com/mxfmover/mxfmover/pkg/scanner"
	"github.com/mxfmover/mxfmover/pkg/state"
	"github.com/mxfmover/mxfmover/pkg/storage"
)

// ErrRestart is returned by Run when a graceful restart was requested
// through the API. The caller reloads configuration and runs again.
var ErrRestart = errors.New("restart requested")

// restartDelay gives the restart endpoint time to answer before the
// pipeline starts tearing down.
const restartDelay = 500 * time.Millisecond

// evictionInterval is how often terminal records are swept.
const evictionInterval = 5 * time.Minute

// readmitInterval is how often jobless eligible records are offered to
// the queue again, covering jobs dropped by a full channel and expired
// space cooldowns.
const readmitInterval = 30 * time.Second

// Agent is the assembled pipeline.
type Agent struct {
	cfg        *config.Config
	configPath string

	bus     *events.Bus
	machine *state.Machine
	scanner *scanner.Scanner
	monitor *storage.Monitor
	queue   *queue.Queue
	pool    *copier.Pool
	metrics *metrics.Collector
	server  *api.Server

	restartOnce sync.Once
	restartCh   chan struct{}

	startedAt time.Time
}

// New assembles an agent from configuration. configPath is remembered
// for the reload endpoint.
func New(cfg *config.Config, configPath string) *Agent {
	a := &Agent{
		cfg:        cfg,
		configPath: configPath,
		restartCh:  make(chan struct{}),
		startedAt:  time.Now(),
	}

	a.bus = events.NewBus()
	a.machine = state.NewMachine(state.NewRepository(), a.bus)
	a.scanner = scanner.New(cfg, a.machine, a.bus)
	a.monitor = storage.NewMonitor(cfg, a.bus, mount.ForPlatform(cfg.Mount))
	a.queue = queue.New(cfg, a.machine, a.bus)
	a.pool = copier.NewPool(cfg, a.machine, a.queue, a.monitor)

	a.monitor.OnDestinationRecovered(func() {
		a.queue.Resume()
		a.queue.Readmit()
	})

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewCollector(a.machine, a.queue, a.monitor, a.bus)
		metricsHandler = a.metrics.Handler()
	}

	if cfg.API.Enabled {
		a.server = api.NewServer(cfg.API.Host, cfg.API.Port, api.Deps{
			Config:       func() *config.Config { return a.cfg },
			ReloadConfig: a.reloadConfig,
			Restart:      a.scheduleRestart,
			Machine:      a.machine,
			Scanner:      a.scanner,
			Monitor:      a.monitor,
			Queue:        a.queue,
			Bus:          a.bus,
			Metrics:      metricsHandler,
			StartedAt:    a.startedAt,
		})
	}

	return a
}

// Run starts every task and blocks until the context is cancelled or a
// restart is requested. On restart it tears the pipeline down and
// returns ErrRestart.
func (a *Agent) Run(ctx context.Context) error {
	logger.Info("agent starting",
		"source", a.cfg.SourceDirectory,
		"destination", a.cfg.DestinationDirectory,
		"workers", a.cfg.Copy.MaxConcurrency)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Dependents must not observe UNKNOWN storage at startup.
	a.monitor.CheckNow(runCtx)

	a.queue.Start()
	defer a.queue.Stop()
	if a.metrics != nil {
		defer a.metrics.Close()
	}

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(runCtx)
		}()
		logger.Debug("task started", "task", name)
	}

	run("storage-monitor", a.monitor.Run)
	run("scanner", a.scanner.Run)
	run("copy-workers", a.pool.Run)
	run("eviction", a.evictionLoop)
	run("readmission", a.readmitLoop)

	if a.server != nil {
		run("api", func(ctx context.Context) {
			if err := a.server.Start(ctx); err != nil {
				logger.Error("API server exited", "error", err)
			}
		})
	}

	restart := false
	select {
	case <-ctx.Done():
	case <-a.restartCh:
		restart = true
		logger.Info("graceful restart in progress")
	}

	cancel()
	if !a.waitWithTimeout(&wg, a.cfg.ShutdownTimeout) {
		logger.Warn("shutdown timed out, some tasks did not stop cleanly")
	}

	if restart {
		return ErrRestart
	}
	logger.Info("agent stopped")
	return nil
}

// waitWithTimeout waits for the group up to d.
func (a *Agent) waitWithTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// readmitLoop periodically re-offers eligible records to the queue.
// It stays quiet while admission is paused so parked records are not
// bounced against a degraded destination.
func (a *Agent) readmitLoop(ctx context.Context) {
	ticker := time.NewTicker(readmitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !a.queue.Paused() {
				a.queue.Readmit()
			}
		}
	}
}

// evictionLoop sweeps terminal records past their retention.
func (a *Agent) evictionLoop(ctx context.Context) {
	ticker := time.NewTicker(evictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := a.machine.Repository().EvictTerminal(
				a.cfg.Repository.KeepCompletedFiles,
				a.cfg.Repository.MaxCompletedFiles,
				time.Now())
			if evicted > 0 {
				logger.Info("evicted terminal records", "count", evicted)
			}
		}
	}
}

// scheduleRestart arms the restart after a short delay so the HTTP
// response can still go out.
func (a *Agent) scheduleRestart() {
	a.restartOnce.Do(func() {
		logger.Info("restart scheduled", "delay", restartDelay)
		time.AfterFunc(restartDelay, func() {
			close(a.restartCh)
		})
	})
}

// reloadConfig re-reads the configuration file, applies the logging
// settings immediately and returns the new snapshot. Pipeline tunables
// take effect on the next restart.
func (a *Agent) reloadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	logger.Info("configuration reloaded",
		"path", a.configPath,
		"note", "non-logging changes take effect on restart")
	return cfg, nil
}
