package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	runsFlow  string
	runsState string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect flow runs on a server",
}

var runsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List flow runs",
	RunE:  runRunsLs,
}

var runsGetCmd = &cobra.Command{
	Use:   "get <run-id>",
	Short: "Show a single flow run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsGet,
}

func init() {
	runsLsCmd.Flags().StringVar(&runsFlow, "flow", "", "filter by flow name")
	runsLsCmd.Flags().StringVar(&runsState, "state", "", "filter by state (e.g. RUNNING, FAILED)")
	runsCmd.AddCommand(runsLsCmd)
	runsCmd.AddCommand(runsGetCmd)
	rootCmd.AddCommand(runsCmd)
}

// apiRun mirrors the server's run payload, keeping only the fields the
// CLI displays.
type apiRun struct {
	ID             string     `json:"id"`
	FlowName       string     `json:"flow_name"`
	State          string     `json:"state"`
	StateMessage   string     `json:"state_message"`
	Error          string     `json:"error"`
	RunCount       int        `json:"run_count"`
	TotalRunTimeMS float64    `json:"total_run_time_ms"`
	StartTime      *time.Time `json:"start_time"`
	EndTime        *time.Time `json:"end_time"`
}

func apiGet(path string, query url.Values, out any) error {
	u, err := url.Parse(GetServerURL())
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	u.Path = path
	u.RawQuery = query.Encode()

	resp, err := http.Get(u.String())
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s: %s", resp.Status, body)
	}
	return json.Unmarshal(body, out)
}

func runRunsLs(cmd *cobra.Command, args []string) error {
	query := url.Values{}
	if runsFlow != "" {
		query.Set("flow", runsFlow)
	}
	if runsState != "" {
		query.Set("state", runsState)
	}

	var runs []apiRun
	if err := apiGet("/runs", query, &runs); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(runs)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Flow", "State", "Runs", "Started", "Duration")
	for _, r := range runs {
		table.Append(r.ID, r.FlowName, r.State,
			fmt.Sprintf("%d", r.RunCount),
			formatTime(r.StartTime),
			formatDuration(r.TotalRunTimeMS))
	}
	table.Render()
	return nil
}

func runRunsGet(cmd *cobra.Command, args []string) error {
	var run apiRun
	if err := apiGet("/runs/"+args[0], nil, &run); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(run)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("ID", run.ID)
	table.Append("Flow", run.FlowName)
	table.Append("State", run.State)
	if run.StateMessage != "" {
		table.Append("Message", run.StateMessage)
	}
	if run.Error != "" {
		table.Append("Error", run.Error)
	}
	table.Append("Run count", fmt.Sprintf("%d", run.RunCount))
	table.Append("Started", formatTime(run.StartTime))
	table.Append("Ended", formatTime(run.EndTime))
	table.Append("Duration", formatDuration(run.TotalRunTimeMS))
	table.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatDuration(ms float64) string {
	if ms <= 0 {
		return "-"
	}
	return (time.Duration(ms * float64(time.Millisecond))).Round(time.Millisecond).String()
}
