package cmd

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mindbody-mcp/output"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the sync audit log",
	Long: `Show recent sync audit log entries, newest first.

Examples:
  mindbody-mcp logs
  mindbody-mcp logs --operation sync_sales --limit 10`,
	RunE: runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().String("operation", "", "only entries for this operation (sync_clients or sync_sales)")
	logsCmd.Flags().Int("limit", 20, "maximum entries to show")
	logsCmd.Flags().Bool("json", false, "output as JSON")
}

func runLogs(cmd *cobra.Command, args []string) error {
	operation, _ := cmd.Flags().GetString("operation")
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := newApp(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.syncLog.List(cmd.Context(), operation, limit)
	if err != nil {
		return err
	}

	p := newPrinter(cmd)
	if jsonOutput {
		return p.JSON(entries)
	}
	if len(entries) == 0 {
		p.Info("no sync runs recorded")
		return nil
	}

	table := output.NewTable(p.Out(), "ID", "Time", "Operation", "Status", "Message")
	for _, e := range entries {
		table.AddRow(
			strconv.FormatInt(e.ID, 10),
			e.Timestamp.Local().Format(time.DateTime),
			e.Operation,
			p.StateBadge(e.Status),
			e.Message,
		)
	}
	return table.Render()
}
