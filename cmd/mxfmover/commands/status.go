package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mxfmover/mxfmover/internal/cli/output"
	"github.com/mxfmover/mxfmover/pkg/api"
)

var (
	statusOutput  string
	statusPidFile string
	statusAPIPort int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent status",
	Long: `Display the current status of the mxfmover agent.

This command checks the agent health by calling the health endpoint
and displays running state, uptime and transfer statistics.

Examples:
  # Check status (uses default settings)
  mxfmover status

  # Check status with custom API port
  mxfmover status --api-port 9044

  # Output as JSON
  mxfmover status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/mxfmover/mxfmover.pid)")
	statusCmd.Flags().IntVar(&statusAPIPort, "api-port", 8044, "control API port")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// AgentStatus represents the agent status information.
type AgentStatus struct {
	Running       bool            `json:"running" yaml:"running"`
	PID           int             `json:"pid,omitempty" yaml:"pid,omitempty"`
	Healthy       bool            `json:"healthy" yaml:"healthy"`
	Message       string          `json:"message" yaml:"message"`
	Uptime        string          `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	ScannerPaused bool            `json:"scanner_paused,omitempty" yaml:"scanner_paused,omitempty"`
	Storage       map[string]any  `json:"storage,omitempty" yaml:"storage,omitempty"`
	Statistics    *api.Statistics `json:"statistics,omitempty" yaml:"statistics,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	status := AgentStatus{
		Message: "Agent is not running",
	}

	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}
	if pid, ok := readPid(pidPath); ok {
		status.Running = true
		status.PID = pid
	}

	client := &http.Client{Timeout: 2 * time.Second}
	base := fmt.Sprintf("http://localhost:%d", statusAPIPort)

	if data, err := getResponseData(client, base+"/health"); err == nil {
		status.Running = true
		status.Healthy = true
		status.Message = "Agent is running and healthy"
		if sec, ok := data["uptime_sec"].(float64); ok {
			status.Uptime = (time.Duration(sec) * time.Second).String()
		}
	} else if status.Running {
		status.Message = "Agent process exists but health check failed"
	}

	if status.Healthy {
		if data, err := getResponseData(client, base+"/api/initial-state"); err == nil {
			raw, _ := json.Marshal(data["statistics"])
			var stats api.Statistics
			if json.Unmarshal(raw, &stats) == nil {
				status.Statistics = &stats
			}
			if st, ok := data["storage"].(map[string]any); ok {
				status.Storage = st
			}
			if sc, ok := data["scanner"].(map[string]any); ok {
				status.ScannerPaused, _ = sc["paused"].(bool)
			}
		}
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	default:
		printStatusTable(status)
	}

	return nil
}

// readPid reports the PID from the file when that process is alive.
func readPid(pidPath string) (int, bool) {
	pidData, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil {
		return 0, false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	if err := probeProcess(process); err != nil {
		return 0, false
	}
	return pid, true
}

// getResponseData calls an API endpoint and unwraps the data payload.
func getResponseData(client *http.Client, url string) (map[string]any, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var wrapped api.Response
	if err := json.NewDecoder(resp.Body).Decode(&wrapped); err != nil {
		return nil, err
	}
	if wrapped.Status != "ok" {
		return nil, fmt.Errorf("API error: %s", wrapped.Error)
	}
	data, ok := wrapped.Data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected response payload from %s", url)
	}
	return data, nil
}

// storageSummary renders "<STATUS>, <free> free" for one location from
// the initial-state storage payload.
func storageSummary(storage map[string]any, kind string) string {
	info, ok := storage[kind].(map[string]any)
	if !ok {
		return ""
	}
	state, _ := info["status"].(string)
	if state == "" {
		return ""
	}
	if free, ok := info["free_bytes"].(float64); ok && free > 0 {
		return fmt.Sprintf("%s, %s free", state, humanize.IBytes(uint64(free)))
	}
	return state
}

func printStatusTable(status AgentStatus) {
	fmt.Println()
	fmt.Println("mxfmover Agent Status")
	fmt.Println("=====================")
	fmt.Println()

	pairs := [][2]string{}
	switch {
	case status.Running && status.Healthy:
		pairs = append(pairs, [2]string{"Status", "\033[32m● Running\033[0m"})
	case status.Running:
		pairs = append(pairs, [2]string{"Status", "\033[33m● Running (unhealthy)\033[0m"})
	default:
		pairs = append(pairs, [2]string{"Status", "\033[31m○ Stopped\033[0m"})
	}
	if status.PID != 0 {
		pairs = append(pairs, [2]string{"PID", strconv.Itoa(status.PID)})
	}
	if status.Uptime != "" {
		pairs = append(pairs, [2]string{"Uptime", status.Uptime})
	}
	if status.Healthy {
		scanner := "running"
		if status.ScannerPaused {
			scanner = "paused"
		}
		pairs = append(pairs, [2]string{"Scanner", scanner})
	}
	for _, kind := range []string{"source", "destination"} {
		if summary := storageSummary(status.Storage, kind); summary != "" {
			pairs = append(pairs, [2]string{"Storage (" + kind + ")", summary})
		}
	}
	if stats := status.Statistics; stats != nil {
		pairs = append(pairs,
			[2]string{"Tracked files", strconv.Itoa(stats.TotalFiles)},
			[2]string{"Active copies", strconv.Itoa(stats.ActiveCopies)},
			[2]string{"Completed", strconv.Itoa(stats.CompletedFiles)},
			[2]string{"Failed", strconv.Itoa(stats.FailedFiles)},
			[2]string{"Bytes moved", humanize.IBytes(uint64(stats.BytesCompleted))},
		)
	}
	_ = output.KeyValueTable(os.Stdout, pairs)

	fmt.Println()
	fmt.Printf("  %s\n", status.Message)
	fmt.Println()
}
