// Package scanner walks the source tree on a polling interval,
// discovers matching files, and drives DISCOVERED/GROWING records
// through the growth classifier. An optional fsnotify watch on the
// source root wakes the loop early; polling remains the source of
// truth for what is on disk.
package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mxfmover/mxfmover/internal/logger"
	"github.com/mxfmover/mxfmover/pkg/config"
	"github.com/mxfmover/mxfmover/pkg/events"
	"github.com/mxfmover/mxfmover/pkg/state"
)

// Scanner is the discovery loop. Start it once with Run; Pause and
// Resume may be called concurrently from the API.
type Scanner struct {
	cfg     *config.Config
	machine *state.Machine
	bus     *events.Bus

	mu       sync.Mutex
	paused   bool
	lastScan time.Time

	wakeCh  chan struct{}
	watcher *fsnotify.Watcher
}

// New creates a scanner over the configured source directory.
func New(cfg *config.Config, machine *state.Machine, bus *events.Bus) *Scanner {
	return &Scanner{
		cfg:     cfg,
		machine: machine,
		bus:     bus,
		wakeCh:  make(chan struct{}, 1),
	}
}

// Run executes scan iterations until ctx is cancelled. Errors inside an
// iteration are logged and the loop continues on the next tick.
func (s *Scanner) Run(ctx context.Context) {
	if s.cfg.Scanner.WatchEvents {
		s.startWatcher(ctx)
	}

	ticker := time.NewTicker(s.cfg.Scanner.PollingInterval)
	defer ticker.Stop()

	logger.Info("scanner started",
		"source", s.cfg.SourceDirectory,
		"interval", s.cfg.Scanner.PollingInterval)

	for {
		if !s.Paused() {
			if err := s.ScanOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Error("scan iteration failed", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			if s.watcher != nil {
				s.watcher.Close()
			}
			logger.Info("scanner stopped")
			return
		case <-ticker.C:
		case <-s.wakeCh:
		}
	}
}

// Pause suspends scanning. While paused the scanner does no I/O.
func (s *Scanner) Pause() {
	s.setPaused(true)
}

// Resume re-enables scanning.
func (s *Scanner) Resume() {
	s.setPaused(false)
}

// Paused reports whether the scanner is currently paused.
func (s *Scanner) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Scanner) setPaused(paused bool) {
	s.mu.Lock()
	if s.paused == paused {
		s.mu.Unlock()
		return
	}
	s.paused = paused
	s.mu.Unlock()

	logger.Info("scanner state changed", "paused", paused)
	s.bus.Publish(events.TopicScannerStatus, &events.ScannerStatusChangedEvent{
		Paused:    paused,
		Timestamp: time.Now(),
	})
}

// LastScan reports when the last complete scan iteration finished; the
// zero time means no iteration has completed yet.
func (s *Scanner) LastScan() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScan
}

// ScanOnce performs a single scan iteration: walk, discover, classify.
func (s *Scanner) ScanOnce(ctx context.Context) error {
	if s.cfg.Scanner.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Scanner.ScanTimeout)
		defer cancel()
	}

	started := time.Now()
	paths, err := s.collect(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, path := range paths {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.processPath(path, now)
	}

	s.sweepMissing(paths)

	finished := time.Now()
	s.mu.Lock()
	s.lastScan = finished
	s.mu.Unlock()

	s.bus.Publish(events.TopicScanCycle, &events.ScanCycleEvent{
		Duration:  finished.Sub(started),
		FilesSeen: len(paths),
		Timestamp: finished,
	})
	return nil
}

// collect walks the source tree and returns the matching file paths.
func (s *Scanner) collect(ctx context.Context) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.cfg.SourceDirectory, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			// A vanished or unreadable entry does not fail the walk.
			logger.Debug("walk error", "path", path, "error", err)
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path != s.cfg.SourceDirectory && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if !s.matches(name) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	return paths, err
}

// matches applies the extension filter and skips hidden files and the
// storage monitor's write probes.
func (s *Scanner) matches(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	if s.cfg.Storage.TestFilePrefix != "" && strings.Contains(name, s.cfg.Storage.TestFilePrefix) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range s.cfg.Scanner.FileExtensions {
		if ext == want {
			return true
		}
	}
	return false
}

// processPath discovers or re-observes one path.
func (s *Scanner) processPath(path string, now time.Time) {
	if s.machine.ShouldSkipPath(path, s.cfg.Space.ErrorCooldown, now) {
		return
	}

	rec, active := s.machine.Repository().ActiveByPath(path)
	info, statErr := os.Stat(path)

	if !active {
		if statErr != nil {
			return
		}
		// Zero-byte files are never admitted.
		if info.Size() == 0 {
			return
		}
		created, err := s.machine.Create(path, info.Size(), now)
		if err != nil {
			logger.Error("failed to track file", "path", path, "error", err)
			return
		}
		logger.Info("discovered file", "path", path, "size", info.Size(), "id", created.ID)
		rec = created
	}

	if rec.Status != state.StatusDiscovered && rec.Status != state.StatusGrowing {
		// Active pipeline or waiting states: only record size drift.
		if statErr == nil && info.Size() != rec.FileSize && !rec.Status.IsCopying() {
			if err := s.machine.RecordSize(rec.ID, info.Size()); err != nil {
				logger.Debug("size update failed", "path", path, "error", err)
			}
		}
		return
	}

	var size int64
	if statErr == nil {
		size = info.Size()
	}
	outcome := Classify(rec, size, statErr, os.IsNotExist(statErr), now,
		s.cfg.Growing.MinSize, s.cfg.Scanner.FileStableTime)
	s.apply(rec, outcome)
}

// apply executes the classifier's recommendation against the machine.
func (s *Scanner) apply(rec *state.TrackedFile, out Outcome) {
	if !out.Transition {
		if err := s.machine.Record(rec.ID, out.Patch); err != nil {
			logger.Debug("growth update failed", "file", rec.FilePath, "error", err)
		}
		return
	}

	if _, err := s.machine.Transition(rec.ID, out.Next, out.Patch); err != nil {
		logger.Error("classifier transition rejected",
			"file", rec.FilePath, "to", out.Next, "error", err)
	}
}

// sweepMissing marks pre-pipeline records whose source disappeared
// between walks as REMOVED.
func (s *Scanner) sweepMissing(seen []string) {
	onDisk := make(map[string]struct{}, len(seen))
	for _, p := range seen {
		onDisk[p] = struct{}{}
	}

	for _, rec := range s.machine.Repository().GetAll() {
		if rec.Status != state.StatusDiscovered && rec.Status != state.StatusGrowing {
			continue
		}
		if _, ok := onDisk[rec.FilePath]; ok {
			continue
		}
		if _, err := os.Stat(rec.FilePath); !os.IsNotExist(err) {
			continue
		}
		if _, err := s.machine.Transition(rec.ID, state.StatusRemoved, state.Patch{}); err != nil {
			logger.Debug("removal transition failed", "file", rec.FilePath, "error", err)
		} else {
			logger.Info("source file removed", "path", rec.FilePath)
		}
	}
}

// startWatcher sets up the fsnotify early-wake watch. Watch failures
// degrade to pure polling.
func (s *Scanner) startWatcher(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("fsnotify unavailable, polling only", "error", err)
		return
	}
	if err := watcher.Add(s.cfg.SourceDirectory); err != nil {
		logger.Warn("cannot watch source directory, polling only",
			"path", s.cfg.SourceDirectory, "error", err)
		watcher.Close()
		return
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) {
					s.wake()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Debug("fsnotify error", "error", err)
			}
		}
	}()
}

// wake nudges the loop without blocking; a pending wake coalesces.
func (s *Scanner) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}
