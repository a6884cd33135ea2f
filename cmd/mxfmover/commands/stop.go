package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var (
	stopPidFile string
	stopForce   bool
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the transfer agent",
	Long: `Stop a running mxfmover agent.

By default, sends SIGTERM for graceful shutdown. Use --force for immediate
termination with SIGKILL.

Examples:
  # Stop agent (uses default PID file)
  mxfmover stop

  # Stop agent using custom PID file
  mxfmover stop --pid-file /var/run/mxfmover.pid

  # Force stop (SIGKILL)
  mxfmover stop --force`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().StringVar(&stopPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/mxfmover/mxfmover.pid)")
	stopCmd.Flags().BoolVarP(&stopForce, "force", "f", false, "Force kill (SIGKILL) instead of graceful shutdown (SIGTERM)")
}

func runStop(cmd *cobra.Command, args []string) error {
	pidPath := stopPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	pidData, err := os.ReadFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("PID file not found: %s\n\nIs the agent running?", pidPath)
		}
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil {
		return fmt.Errorf("invalid PID in file: %s", string(pidData))
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}

	if err := terminateProcess(process, stopForce); err != nil {
		if err == os.ErrProcessDone {
			fmt.Println("Agent already stopped")
			_ = os.Remove(pidPath)
			return nil
		}
		return fmt.Errorf("failed to stop process %d: %w", pid, err)
	}

	if stopForce {
		fmt.Printf("Process %d terminated\n", pid)
	} else {
		fmt.Printf("Shutdown signal sent to process %d. Agent will stop gracefully.\n", pid)
	}

	return nil
}
