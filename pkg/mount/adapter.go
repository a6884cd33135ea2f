// Package mount abstracts platform-specific mounting of the destination
// network share. The storage monitor calls AttemptMount when the
// destination check fails, and VerifyMount to confirm the mount point
// is usable before re-checking.
package mount

import (
	"context"
	"errors"
	"io"
	"os"
	"runtime"

	"github.com/mxfmover/mxfmover/pkg/config"
)

// Adapter is the platform capability set.
type Adapter interface {
	// AttemptMount mounts shareURL at the platform's default location.
	AttemptMount(ctx context.Context, shareURL string) error

	// VerifyMount reports whether localPath looks mounted and whether
	// its contents are readable.
	VerifyMount(localPath string) (mounted, accessible bool)

	// PlatformName identifies the adapter for logs and the API.
	PlatformName() string
}

// ForPlatform selects the adapter for the host OS. Auto-mount disabled
// or an empty share URL yields the null adapter.
func ForPlatform(cfg config.MountConfig) Adapter {
	if !cfg.EnableAutoMount || cfg.NetworkShareURL == "" {
		return &NullAdapter{}
	}
	switch runtime.GOOS {
	case "darwin":
		return &DarwinAdapter{}
	case "windows":
		return &WindowsAdapter{DriveLetter: cfg.WindowsDriveLetter}
	default:
		return &LinuxAdapter{}
	}
}

// NullAdapter is used when auto-mount is not configured. It never
// mounts and reports the mount point as-is.
type NullAdapter struct{}

// ErrNotConfigured is returned by the null adapter's mount attempt.
var ErrNotConfigured = errNotConfigured{}

type errNotConfigured struct{}

func (errNotConfigured) Error() string { return "auto-mount not configured" }

func (*NullAdapter) AttemptMount(context.Context, string) error {
	return ErrNotConfigured
}

func (*NullAdapter) VerifyMount(localPath string) (bool, bool) {
	return verifyPath(localPath)
}

func (*NullAdapter) PlatformName() string { return "none" }

// verifyPath is the shared verification: the path must exist and be a
// listable directory.
func verifyPath(localPath string) (mounted, accessible bool) {
	info, err := os.Stat(localPath)
	if err != nil || !info.IsDir() {
		return false, false
	}
	f, err := os.Open(localPath)
	if err != nil {
		return true, false
	}
	defer f.Close()
	// An empty directory reads as io.EOF; that is fine.
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return true, false
	}
	return true, true
}
