// Package copier implements the copy engine: chunked streaming of a
// source file into a temporary destination file, atomic rename on
// success, live tailing of still-growing sources, and optional
// verification-and-resume of interrupted copies.
package copier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/mxfmover/mxfmover/internal/logger"
	"github.com/mxfmover/mxfmover/pkg/config"
	"github.com/mxfmover/mxfmover/pkg/queue"
	"github.com/mxfmover/mxfmover/pkg/state"
)

// tempSuffix marks in-flight destination files so downstream consumers
// never observe a partial copy.
const tempSuffix = ".copying"

// deleteRetries and deleteRetryDelay drive source deletion after a
// successful copy. A deletion that keeps failing is logged, not fatal.
const (
	deleteRetries    = 3
	deleteRetryDelay = 500 * time.Millisecond
)

// Engine performs the actual byte movement for one job.
type Engine struct {
	cfg     *config.Config
	machine *state.Machine
	mapper  PathMapper
}

// NewEngine creates a copy engine.
func NewEngine(cfg *config.Config, machine *state.Machine) *Engine {
	return &Engine{
		cfg:     cfg,
		machine: machine,
		mapper:  MapperFor(cfg.Copy.PathTemplate),
	}
}

// DestinationPath derives the final destination path for a source file.
func (e *Engine) DestinationPath(sourcePath string, now time.Time) string {
	base := filepath.Base(sourcePath)
	return filepath.Join(e.cfg.DestinationDirectory, e.mapper.Subpath(base, now), base)
}

// Copy runs the ordered copy procedure for one job: temp file, stream,
// fsync, size verify, atomic rename, source delete. It returns the
// final destination size, which for a growing source exceeds the size
// the job was admitted with. Errors are returned raw for the
// classifier; the temp file is removed on failure unless resume is
// enabled.
func (e *Engine) Copy(ctx context.Context, job queue.Job) (int64, error) {
	destPath := e.DestinationPath(job.FilePath, time.Now())
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, fmt.Errorf("cannot create destination directory: %w", err)
	}

	tempPath := destPath
	if e.cfg.Copy.UseTemporaryFile {
		tempPath = destPath + tempSuffix
	}

	offset := e.resumeOffset(ctx, job.FilePath, tempPath)

	finalSize, err := e.copyToTemp(ctx, job, tempPath, offset)
	if err != nil {
		if !e.cfg.Copy.Resume.Enabled {
			if rmErr := os.Remove(tempPath); rmErr != nil && !os.IsNotExist(rmErr) {
				logger.Debug("temp file cleanup failed", "path", tempPath, "error", rmErr)
			}
		}
		return 0, err
	}

	if e.cfg.Copy.UseTemporaryFile {
		if err := os.Rename(tempPath, destPath); err != nil {
			return 0, fmt.Errorf("cannot publish destination file: %w", err)
		}
	}

	e.deleteSource(job.FilePath)
	return finalSize, nil
}

// copyToTemp streams the source into the temp file starting at offset,
// verifies sizes, and fsyncs. It returns the verified destination size.
func (e *Engine) copyToTemp(ctx context.Context, job queue.Job, tempPath string, offset int64) (int64, error) {
	src, err := os.Open(job.FilePath)
	if err != nil {
		return 0, fmt.Errorf("cannot open source: %w", err)
	}
	defer src.Close()

	flags := os.O_CREATE | os.O_WRONLY
	if offset == 0 {
		flags |= os.O_TRUNC
	}
	tmp, err := os.OpenFile(tempPath, flags, 0o644)
	if err != nil {
		return 0, fmt.Errorf("cannot open destination: %w", err)
	}
	defer tmp.Close()

	if offset > 0 {
		if _, err := src.Seek(offset, io.SeekStart); err != nil {
			return 0, fmt.Errorf("cannot seek source: %w", err)
		}
		if _, err := tmp.Seek(offset, io.SeekStart); err != nil {
			return 0, fmt.Errorf("cannot seek destination: %w", err)
		}
		logger.Info("resuming interrupted copy", "file", job.FilePath, "offset", offset)
	}

	progress := newProgressTracker(e.machine, job.FileID, e.cfg.Copy.ProgressUpdateInterval)

	var copied int64
	if job.IsGrowing {
		copied, err = e.copyGrowing(ctx, src, tmp, offset, progress)
	} else {
		copied, err = e.copyFixed(ctx, src, tmp, offset, progress)
	}
	if err != nil {
		return 0, err
	}

	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("cannot sync destination: %w", err)
	}

	srcInfo, err := os.Stat(job.FilePath)
	if err != nil {
		return 0, fmt.Errorf("cannot stat source for verification: %w", err)
	}
	tmpInfo, err := tmp.Stat()
	if err != nil {
		return 0, fmt.Errorf("cannot stat destination for verification: %w", err)
	}
	if srcInfo.Size() != tmpInfo.Size() {
		return 0, &IntegrityError{SourceSize: srcInfo.Size(), DestSize: tmpInfo.Size()}
	}

	logger.Info("copy finished", "file", job.FilePath, "bytes", copied+offset)
	return tmpInfo.Size(), nil
}

// copyFixed streams a stable source in fixed chunks until EOF.
func (e *Engine) copyFixed(ctx context.Context, src, dst *os.File, offset int64, progress *progressTracker) (int64, error) {
	info, err := src.Stat()
	if err != nil {
		return 0, err
	}
	progress.setTotal(info.Size())
	progress.advance(offset)

	buf := make([]byte, e.cfg.Copy.ChunkSize.Int64())
	var copied int64
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return copied, fmt.Errorf("write failed: %w", err)
			}
			copied += int64(n)
			progress.advance(offset + copied)
		}
		if readErr == io.EOF {
			return copied, nil
		}
		if readErr != nil {
			return copied, fmt.Errorf("read failed: %w", readErr)
		}
	}
}

// deleteSource removes the source after a successful copy, retrying a
// few times for transient locks. Failure is logged and swallowed: the
// copy itself already succeeded.
func (e *Engine) deleteSource(path string) {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
			return nil
		},
		Attempts: deleteRetries,
		Delay:    deleteRetryDelay,
		Clock:    clock.WallClock,
		NotifyFunc: func(lastErr error, attempt int) {
			logger.Debug("source delete retry", "path", path, "attempt", attempt, "error", lastErr)
		},
	})
	if err != nil {
		logger.Warn("source file could not be deleted after copy", "path", path, "error", err)
	}
}

// progressTracker throttles progress reporting to whole-percent steps
// of the configured granularity and derives the copy speed.
type progressTracker struct {
	machine     *state.Machine
	fileID      string
	granularity int

	total     int64
	lastPct   int
	lastTime  time.Time
	lastBytes int64
}

func newProgressTracker(machine *state.Machine, fileID string, granularity int) *progressTracker {
	if granularity < 1 {
		granularity = 1
	}
	return &progressTracker{
		machine:     machine,
		fileID:      fileID,
		granularity: granularity,
		lastPct:     -1,
		lastTime:    time.Now(),
	}
}

func (p *progressTracker) setTotal(total int64) {
	p.total = total
}

// advance reports bytesCopied when the integer percentage crosses the
// granularity step.
func (p *progressTracker) advance(bytesCopied int64) {
	if p.total <= 0 {
		return
	}
	pct := int(bytesCopied * 100 / p.total)
	if pct/p.granularity == p.lastPct/p.granularity && p.lastPct >= 0 {
		return
	}

	now := time.Now()
	var speed float64
	if dt := now.Sub(p.lastTime).Seconds(); dt > 0 {
		speed = float64(bytesCopied-p.lastBytes) / dt / (1024 * 1024)
	}
	p.lastPct = pct
	p.lastTime = now
	p.lastBytes = bytesCopied

	if err := p.machine.RecordProgress(p.fileID, bytesCopied, p.total, speed); err != nil &&
		!errors.Is(err, state.ErrUnknownFile) {
		logger.Debug("progress update failed", "file_id", p.fileID, "error", err)
	}
}
