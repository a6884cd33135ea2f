package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mxfmover/mxfmover/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the mxfmover configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  mxfmover config validate

  # Validate specific config file
  mxfmover config validate --config /etc/mxfmover/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if cfg.Mount.EnableAutoMount && cfg.Mount.NetworkShareURL == "" {
		warnings = append(warnings, "auto-mount enabled without a network share URL")
	}
	if !cfg.Copy.UseTemporaryFile && cfg.Copy.Resume.Enabled {
		warnings = append(warnings, "resume requires temporary files - resume will be skipped")
	}

	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Source:          %s\n", cfg.SourceDirectory)
	fmt.Printf("  Destination:     %s\n", cfg.DestinationDirectory)
	fmt.Printf("  Copy workers:    %d\n", cfg.Copy.MaxConcurrency)
	fmt.Printf("  API port:        %d\n", cfg.API.Port)
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)

	return nil
}
