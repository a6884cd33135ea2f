package copier

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mxfmover/mxfmover/internal/logger"
)

// copyGrowing tails a source that may still be growing. It repeatedly
// stats the source and copies new bytes up to size minus the safety
// margin; once the source produces nothing new for the growth timeout,
// it is treated as finalized and the remaining tail is copied.
func (e *Engine) copyGrowing(ctx context.Context, src, dst *os.File, offset int64, progress *progressTracker) (int64, error) {
	var (
		written     int64
		position    = offset
		lastGrowth  = time.Now()
		margin      = e.cfg.Growing.SafetyMargin.Int64()
		pollEvery   = e.cfg.Growing.PollInterval
		growTimeout = e.cfg.Growing.GrowthTimeout
	)

	buf := make([]byte, e.cfg.Growing.ChunkSize.Int64())

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		info, err := src.Stat()
		if err != nil {
			return written, fmt.Errorf("cannot stat growing source: %w", err)
		}
		size := info.Size()
		progress.setTotal(size)

		// Hold back the margin while the source may still be written.
		limit := size - margin
		if limit > position {
			n, err := e.copyRange(ctx, src, dst, buf, position, limit, progress)
			written += n
			position += n
			if err != nil {
				return written, err
			}
			lastGrowth = time.Now()
			continue
		}

		if time.Since(lastGrowth) >= growTimeout {
			// Source is finalized: copy the held-back tail to the end.
			final, err := src.Stat()
			if err != nil {
				return written, fmt.Errorf("cannot stat finalized source: %w", err)
			}
			progress.setTotal(final.Size())
			logger.Debug("growing source finalized",
				"size", final.Size(), "position", position)

			n, err := e.copyRange(ctx, src, dst, buf, position, final.Size(), progress)
			written += n
			return written, err
		}

		select {
		case <-ctx.Done():
			return written, ctx.Err()
		case <-time.After(pollEvery):
		}
	}
}

// copyRange copies [from, to) from src to dst in chunks, reporting
// progress as it goes.
func (e *Engine) copyRange(ctx context.Context, src, dst *os.File, buf []byte, from, to int64, progress *progressTracker) (int64, error) {
	var copied int64
	for from+copied < to {
		if err := ctx.Err(); err != nil {
			return copied, err
		}

		want := to - from - copied
		if want > int64(len(buf)) {
			want = int64(len(buf))
		}

		n, err := src.ReadAt(buf[:want], from+copied)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return copied, fmt.Errorf("write failed: %w", werr)
			}
			copied += int64(n)
			progress.advance(from + copied)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return copied, fmt.Errorf("read failed: %w", err)
		}
	}
	return copied, nil
}
