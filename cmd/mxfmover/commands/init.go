package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mxfmover/mxfmover/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample mxfmover configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/mxfmover/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  mxfmover init

  # Initialize with custom path
  mxfmover init --config /etc/mxfmover/config.yaml

  # Force overwrite existing config
  mxfmover init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration file already exists: %s\nUse --force to overwrite", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Set source_directory and destination_directory")
	fmt.Println("  2. Start the agent with: mxfmover start")
	fmt.Printf("  3. Or specify custom config: mxfmover start --config %s\n", configPath)

	return nil
}
