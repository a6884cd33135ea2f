package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/disk"

	"github.com/mxfmover/mxfmover/internal/logger"
	"github.com/mxfmover/mxfmover/pkg/config"
	"github.com/mxfmover/mxfmover/pkg/events"
	"github.com/mxfmover/mxfmover/pkg/mount"
)

// ensureDirTimeout caps directory creation so a hung network mount
// cannot wedge the monitor loop.
const ensureDirTimeout = 2 * time.Second

// Monitor polls source and destination health on an interval. It owns
// the cached Info for both locations; readers get copies.
type Monitor struct {
	cfg     *config.Config
	bus     *events.Bus
	adapter mount.Adapter

	mu          sync.RWMutex
	source      Info
	destination Info

	// onRecovered fires when the destination leaves a degraded state.
	// The queue registers its re-admission hook here before Run.
	onRecovered func()

	checkCh chan string
}

// NewMonitor creates a monitor using the given mount adapter.
func NewMonitor(cfg *config.Config, bus *events.Bus, adapter mount.Adapter) *Monitor {
	return &Monitor{
		cfg:     cfg,
		bus:     bus,
		adapter: adapter,
		source: Info{
			Kind:   KindSource,
			Path:   cfg.SourceDirectory,
			Status: StatusUnknown,
		},
		destination: Info{
			Kind:   KindDestination,
			Path:   cfg.DestinationDirectory,
			Status: StatusUnknown,
		},
		checkCh: make(chan string, 4),
	}
}

// OnDestinationRecovered registers the callback fired when the
// destination transitions from a degraded status back to usable.
// Must be called before Run.
func (m *Monitor) OnDestinationRecovered(fn func()) {
	m.onRecovered = fn
}

// SourceInfo returns the cached source health.
func (m *Monitor) SourceInfo() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.source
}

// DestinationInfo returns the cached destination health.
func (m *Monitor) DestinationInfo() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.destination
}

// TriggerCheck requests an immediate re-check of kind ("source",
// "destination", or "" for both) without waiting for the next tick.
func (m *Monitor) TriggerCheck(kind string) {
	select {
	case m.checkCh <- kind:
	default:
	}
}

// CheckNow runs one synchronous check of both locations. The agent
// calls this at startup so dependents never observe UNKNOWN.
func (m *Monitor) CheckNow(ctx context.Context) {
	m.checkBoth(ctx)
}

// Run executes checks until ctx is cancelled. The first check happens
// immediately so dependents do not sit in UNKNOWN for a full interval.
func (m *Monitor) Run(ctx context.Context) {
	logger.Info("storage monitor started", "interval", m.cfg.Storage.CheckInterval)

	m.checkBoth(ctx)

	ticker := time.NewTicker(m.cfg.Storage.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("storage monitor stopped")
			return
		case <-ticker.C:
			m.checkBoth(ctx)
		case kind := <-m.checkCh:
			switch kind {
			case KindSource:
				m.checkSource(ctx)
			case KindDestination:
				m.checkDestination(ctx)
			default:
				m.checkBoth(ctx)
			}
		}
	}
}

func (m *Monitor) checkBoth(ctx context.Context) {
	m.checkSource(ctx)
	m.checkDestination(ctx)
}

func (m *Monitor) checkSource(ctx context.Context) {
	info := m.checkLocation(ctx, KindSource, m.cfg.SourceDirectory, m.cfg.Storage.Source)
	m.store(info)
}

// checkDestination checks the destination and, on failure, lets the
// mount adapter try to bring the share back before re-checking.
func (m *Monitor) checkDestination(ctx context.Context) {
	info := m.checkLocation(ctx, KindDestination, m.cfg.DestinationDirectory, m.cfg.Storage.Destination)

	if info.Status == StatusError && m.cfg.Mount.EnableAutoMount {
		if m.attemptMount(ctx) {
			info = m.checkLocation(ctx, KindDestination, m.cfg.DestinationDirectory, m.cfg.Storage.Destination)
		}
	}

	m.store(info)
}

// attemptMount runs one mount attempt and publishes the outcome.
func (m *Monitor) attemptMount(ctx context.Context) bool {
	shareURL := m.cfg.Mount.NetworkShareURL
	if shareURL == "" {
		m.publishMount(events.MountNotConfigured, "", "no network share configured")
		return false
	}

	logger.Info("attempting network mount", "share", shareURL, "platform", m.adapter.PlatformName())
	m.publishMount(events.MountAttempt, shareURL, "")

	if err := m.adapter.AttemptMount(ctx, shareURL); err != nil {
		logger.Warn("network mount failed", "share", shareURL, "error", err)
		m.publishMount(events.MountFailed, shareURL, err.Error())
		return false
	}

	mounted, accessible := m.adapter.VerifyMount(m.cfg.DestinationDirectory)
	if !mounted || !accessible {
		msg := fmt.Sprintf("mounted but %s is not accessible", m.cfg.DestinationDirectory)
		m.publishMount(events.MountFailed, shareURL, msg)
		return false
	}

	logger.Info("network mount succeeded", "share", shareURL)
	m.publishMount(events.MountSucceeded, shareURL, "")
	return true
}

func (m *Monitor) publishMount(phase, shareURL, message string) {
	m.bus.Publish(events.TopicMountStatus, &events.MountStatusChangedEvent{
		Phase:     phase,
		ShareURL:  shareURL,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// checkLocation runs the full probe for one location: ensure the
// directory exists, measure space, verify write access, classify.
func (m *Monitor) checkLocation(ctx context.Context, kind, path string, thresholds config.ThresholdConfig) Info {
	info := Info{
		Kind:              kind,
		Path:              path,
		CheckedAt:         time.Now(),
		WarningThreshold:  thresholds.WarningThreshold.Uint64(),
		CriticalThreshold: thresholds.CriticalThreshold.Uint64(),
	}

	if err := ensureDir(ctx, path); err != nil {
		info.Status = StatusError
		info.Error = err.Error()
		return info
	}

	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		info.Status = StatusError
		info.Error = fmt.Sprintf("cannot read disk usage: %v", err)
		return info
	}
	info.TotalBytes = usage.Total
	info.UsedBytes = usage.Used
	info.FreeBytes = usage.Free
	info.Accessible = true

	if err := m.writeProbe(path); err != nil {
		info.Status = StatusError
		info.Error = fmt.Sprintf("write test failed: %v", err)
		return info
	}
	info.HasWriteAccess = true

	switch {
	case info.FreeBytes < thresholds.CriticalThreshold.Uint64():
		info.Status = StatusCritical
	case info.FreeBytes < thresholds.WarningThreshold.Uint64():
		info.Status = StatusWarning
	default:
		info.Status = StatusOK
	}
	return info
}

// writeProbe confirms write access by creating and removing a uniquely
// named file. The scanner filters these names out of discovery.
func (m *Monitor) writeProbe(dir string) error {
	name := filepath.Join(dir, m.cfg.Storage.TestFilePrefix+uuid.NewString())
	if err := os.WriteFile(name, []byte("probe"), 0o644); err != nil {
		return err
	}
	return os.Remove(name)
}

// ensureDir creates path if missing, bounded by ensureDirTimeout.
func ensureDir(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, ensureDirTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- os.MkdirAll(path, 0o755)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("cannot create directory %s: %w", path, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("directory check of %s timed out", path)
	}
}

// store publishes a StorageStatusChangedEvent when the status changed
// and fires the recovery hook on destination recovery.
func (m *Monitor) store(info Info) {
	m.mu.Lock()
	var prev Status
	if info.Kind == KindSource {
		prev = m.source.Status
		m.source = info
	} else {
		prev = m.destination.Status
		m.destination = info
	}
	m.mu.Unlock()

	if prev == info.Status {
		return
	}

	logger.Info("storage status changed",
		"kind", info.Kind,
		"from", prev,
		"to", info.Status,
		"free", info.FreeBytes)

	m.bus.Publish(events.TopicStorageStatus, &events.StorageStatusChangedEvent{
		Kind:      info.Kind,
		Status:    string(info.Status),
		Info:      info,
		Timestamp: time.Now(),
	})

	if info.Kind == KindDestination && prev.Degraded() && !info.Status.Degraded() &&
		info.Status != StatusUnknown && m.onRecovered != nil {
		m.onRecovered()
	}
}
