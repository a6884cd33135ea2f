//go:build !windows

package commands

import (
	"os"
	"syscall"
)

// terminateProcess sends SIGTERM, or SIGKILL when force is set.
func terminateProcess(process *os.Process, force bool) error {
	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}
	return process.Signal(sig)
}

// probeProcess checks liveness with signal 0.
func probeProcess(process *os.Process) error {
	return process.Signal(syscall.Signal(0))
}
