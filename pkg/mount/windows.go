package mount

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// WindowsAdapter mounts UNC paths with "net use", optionally binding a
// drive letter so legacy tooling sees a fixed path.
type WindowsAdapter struct {
	DriveLetter string
}

func (a *WindowsAdapter) AttemptMount(ctx context.Context, shareURL string) error {
	ctx, cancel := context.WithTimeout(ctx, mountTimeout)
	defer cancel()

	unc := toUNC(shareURL)
	args := []string{"use"}
	if a.DriveLetter != "" {
		args = append(args, a.DriveLetter+":")
	}
	args = append(args, unc, "/persistent:no")

	cmd := exec.CommandContext(ctx, "net", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("mount of %s timed out after %s", unc, mountTimeout)
		}
		return fmt.Errorf("mount of %s failed: %v: %s", unc, err, out)
	}
	return nil
}

func (*WindowsAdapter) VerifyMount(localPath string) (bool, bool) {
	return verifyPath(localPath)
}

func (*WindowsAdapter) PlatformName() string { return "windows" }

// toUNC converts an smb:// URL to the \\host\share form net expects.
func toUNC(shareURL string) string {
	s := strings.TrimPrefix(shareURL, "smb://")
	s = strings.TrimPrefix(s, "cifs://")
	s = strings.ReplaceAll(s, "/", `\`)
	return `\\` + s
}
