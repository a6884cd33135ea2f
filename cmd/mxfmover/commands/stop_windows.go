//go:build windows

package commands

import "os"

// terminateProcess kills the process. Windows has no SIGTERM, so stop
// is always forceful there.
func terminateProcess(process *os.Process, force bool) error {
	return process.Kill()
}

// probeProcess reports liveness. On Windows FindProcess already fails
// for dead processes, so reaching here means the process exists.
func probeProcess(process *os.Process) error {
	return nil
}
