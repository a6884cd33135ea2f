package mount

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// mountTimeout caps one mount attempt so a dead NAS cannot wedge the
// storage monitor.
const mountTimeout = 30 * time.Second

// DarwinAdapter mounts network shares through the Finder's mount-volume
// mechanism, which handles Keychain credentials.
type DarwinAdapter struct{}

func (*DarwinAdapter) AttemptMount(ctx context.Context, shareURL string) error {
	ctx, cancel := context.WithTimeout(ctx, mountTimeout)
	defer cancel()

	script := fmt.Sprintf("mount volume %q", shareURL)
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("mount of %s timed out after %s", shareURL, mountTimeout)
		}
		return fmt.Errorf("mount of %s failed: %v: %s", shareURL, err, out)
	}
	return nil
}

func (*DarwinAdapter) VerifyMount(localPath string) (bool, bool) {
	return verifyPath(localPath)
}

func (*DarwinAdapter) PlatformName() string { return "darwin" }
