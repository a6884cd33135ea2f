package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mxfmover/mxfmover/internal/logger"
	"github.com/mxfmover/mxfmover/pkg/agent"
	"github.com/mxfmover/mxfmover/pkg/config"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the transfer agent",
	Long: `Start the mxfmover transfer agent with the specified configuration.

By default, the agent runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process supervisor.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/mxfmover/config.yaml.

Examples:
  # Start in background (default)
  mxfmover start

  # Start in foreground
  mxfmover start --foreground

  # Start with custom config file
  mxfmover start --config /etc/mxfmover/config.yaml

  # Start with environment variable overrides
  MXFMOVER_LOGGING_LEVEL=DEBUG mxfmover start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/mxfmover/mxfmover.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/mxfmover/mxfmover.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	// Handle daemon mode (background)
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("mxfmover starting",
		"version", Version,
		"config", getConfigSource(GetConfigFile()),
		"log_level", cfg.Logging.Level)

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()
	}()

	// The agent returns ErrRestart when a restart was requested through
	// the API: reload the configuration and run again in-process.
	for {
		err := agent.New(cfg, GetConfigFile()).Run(ctx)
		if errors.Is(err, agent.ErrRestart) {
			next, loadErr := config.MustLoad(GetConfigFile())
			if loadErr != nil {
				logger.Error("reload failed, restarting with previous configuration", "error", loadErr)
			} else {
				cfg = next
				if err := InitLogger(cfg); err != nil {
					logger.Warn("logger reconfiguration failed", "error", err)
				}
			}
			continue
		}
		return err
	}
}
