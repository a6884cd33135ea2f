//go:build windows

package commands

import "errors"

// startDaemon is not supported on Windows; run the agent under a
// service manager instead.
func startDaemon() error {
	return errors.New("background mode is not supported on Windows\nRun 'mxfmover start --foreground' under a service manager (e.g. NSSM or a scheduled task)")
}
