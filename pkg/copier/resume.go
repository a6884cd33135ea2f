package copier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mxfmover/mxfmover/internal/logger"
)

// verifyChunkSize is the comparison unit for resume verification.
const verifyChunkSize = 256 * 1024

// resumeOffset decides where to restart a copy when a temp file from a
// prior attempt exists. It returns 0 (fresh copy) unless resume is
// enabled, the leftover temp is verified against the source, and the
// verification finishes inside its time budget. On 0 the temp file is
// discarded.
func (e *Engine) resumeOffset(ctx context.Context, sourcePath, tempPath string) int64 {
	if !e.cfg.Copy.Resume.Enabled || !e.cfg.Copy.UseTemporaryFile {
		return 0
	}

	tmpInfo, err := os.Stat(tempPath)
	if err != nil {
		return 0
	}
	srcInfo, err := os.Stat(sourcePath)
	if err != nil || srcInfo.Size() <= tmpInfo.Size() {
		e.discardTemp(tempPath)
		return 0
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Copy.Resume.VerifyTimeout)
	defer cancel()

	offset, err := e.verifyTemp(ctx, sourcePath, tempPath, tmpInfo.Size())
	if err != nil || offset <= 0 {
		if err != nil {
			logger.Warn("resume verification failed, starting fresh",
				"file", sourcePath, "error", err)
		}
		e.discardTemp(tempPath)
		return 0
	}

	if err := os.Truncate(tempPath, offset); err != nil {
		logger.Warn("cannot truncate temp for resume, starting fresh",
			"path", tempPath, "error", err)
		e.discardTemp(tempPath)
		return 0
	}
	return offset
}

// verifyTemp byte-compares a window near the end of the temp file with
// the source. A clean match resumes at the temp size; a mismatch
// binary-searches for the highest matching prefix and resumes below it
// by the safety margin.
func (e *Engine) verifyTemp(ctx context.Context, sourcePath, tempPath string, tempSize int64) (int64, error) {
	src, err := os.Open(sourcePath)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	tmp, err := os.Open(tempPath)
	if err != nil {
		return 0, err
	}
	defer tmp.Close()

	window := tempSize
	if max := e.cfg.Copy.Resume.VerifyWindowMax.Int64(); window > max {
		window = max
	}
	if min := e.cfg.Copy.Resume.VerifyWindowMin.Int64(); window < min && tempSize >= min {
		window = min
	}

	equal, err := regionsEqual(ctx, src, tmp, tempSize-window, window)
	if err != nil {
		return 0, err
	}
	if equal {
		return tempSize, nil
	}

	logger.Debug("resume window mismatch, searching safe prefix", "temp_size", tempSize)
	prefix, err := e.safePrefix(ctx, src, tmp, tempSize)
	if err != nil {
		return 0, err
	}

	offset := prefix - e.cfg.Growing.SafetyMargin.Int64()
	if offset <= 0 {
		return 0, nil
	}
	return offset, nil
}

// safePrefix binary-searches the largest p such that the chunk ending
// at p matches between source and temp. The comparison is chunked, so
// the result is safe to within one verify chunk.
func (e *Engine) safePrefix(ctx context.Context, src, tmp *os.File, tempSize int64) (int64, error) {
	lo, hi := int64(0), tempSize
	for hi-lo > verifyChunkSize {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		mid := lo + (hi-lo)/2
		n := int64(verifyChunkSize)
		start := mid - n
		if start < 0 {
			start, n = 0, mid
		}

		equal, err := regionsEqual(ctx, src, tmp, start, n)
		if err != nil {
			return 0, err
		}
		if equal {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo, nil
}

// regionsEqual compares n bytes of both files starting at off.
func regionsEqual(ctx context.Context, a, b *os.File, off, n int64) (bool, error) {
	if n <= 0 {
		return true, nil
	}

	bufA := make([]byte, verifyChunkSize)
	bufB := make([]byte, verifyChunkSize)

	for n > 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		want := n
		if want > verifyChunkSize {
			want = verifyChunkSize
		}

		if _, err := io.ReadFull(io.NewSectionReader(a, off, want), bufA[:want]); err != nil {
			return false, fmt.Errorf("cannot read source region: %w", err)
		}
		if _, err := io.ReadFull(io.NewSectionReader(b, off, want), bufB[:want]); err != nil {
			return false, fmt.Errorf("cannot read temp region: %w", err)
		}
		if !bytes.Equal(bufA[:want], bufB[:want]) {
			return false, nil
		}

		off += want
		n -= want
	}
	return true, nil
}

func (e *Engine) discardTemp(tempPath string) {
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		logger.Debug("cannot discard temp file", "path", tempPath, "error", err)
	}
}
