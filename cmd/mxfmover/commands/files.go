package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mxfmover/mxfmover/internal/cli/output"
	"github.com/mxfmover/mxfmover/pkg/api"
	"github.com/mxfmover/mxfmover/pkg/state"
)

var (
	filesOutput  string
	filesAPIPort int
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List tracked files",
	Long: `List the files currently tracked by a running agent.

Examples:
  # List tracked files
  mxfmover files

  # Output as JSON
  mxfmover files --output json`,
	RunE: runFiles,
}

func init() {
	filesCmd.Flags().IntVar(&filesAPIPort, "api-port", 8044, "control API port")
	filesCmd.Flags().StringVarP(&filesOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

func runFiles(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(filesOutput)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	url := fmt.Sprintf("http://localhost:%d/api/files", filesAPIPort)

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("is the agent running? %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var wrapped api.Response
	if err := json.NewDecoder(resp.Body).Decode(&wrapped); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	if wrapped.Status != "ok" {
		return fmt.Errorf("API error: %s", wrapped.Error)
	}

	raw, err := json.Marshal(wrapped.Data)
	if err != nil {
		return err
	}
	var files []state.TrackedFile
	if err := json.Unmarshal(raw, &files); err != nil {
		return fmt.Errorf("invalid file list: %w", err)
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, files)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, files)
	default:
		return printFilesTable(files)
	}
}

func printFilesTable(files []state.TrackedFile) error {
	if len(files) == 0 {
		fmt.Println("No tracked files")
		return nil
	}

	rows := make([][]string, 0, len(files))
	for _, f := range files {
		rows = append(rows, []string{
			shortID(f.ID),
			filepath.Base(f.FilePath),
			string(f.Status),
			humanize.IBytes(uint64(f.FileSize)),
			fmt.Sprintf("%.0f%%", f.CopyProgress),
		})
	}
	return output.PrintTable(os.Stdout, []string{"id", "file", "status", "size", "progress"}, rows)
}

// shortID trims a UUID down to its first group for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
