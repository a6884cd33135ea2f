package mount

import (
	"context"
	"fmt"
)

// LinuxAdapter does not mount; production Linux hosts manage the share
// via fstab or systemd automount units. It still verifies the mount
// point so the monitor can report recovery.
type LinuxAdapter struct{}

func (*LinuxAdapter) AttemptMount(_ context.Context, shareURL string) error {
	return fmt.Errorf("automatic mounting of %s is not supported on linux; configure fstab or a systemd mount unit", shareURL)
}

func (*LinuxAdapter) VerifyMount(localPath string) (bool, bool) {
	return verifyPath(localPath)
}

func (*LinuxAdapter) PlatformName() string { return "linux" }
