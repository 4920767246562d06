package cmd

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mindbody-mcp/output"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show today's API usage against the daily limit",
	RunE:  runUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)

	usageCmd.Flags().Int("days", 7, "days of history to show")
	usageCmd.Flags().Bool("json", false, "output as JSON")
}

func runUsage(cmd *cobra.Command, args []string) error {
	days, _ := cmd.Flags().GetInt("days")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := newApp(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.quota.Report(cmd.Context(), days)
	if err != nil {
		return err
	}

	p := newPrinter(cmd)
	if jsonOutput {
		return p.JSON(report)
	}

	p.Header("API usage " + report.Date)
	p.KeyValue("calls made", report.CallsMade)
	p.KeyValue("daily limit", report.Limit)
	p.KeyValue("remaining", report.CallsRemaining)
	p.KeyValue("resets at", report.ResetTime.Format(time.RFC3339))
	if report.ApproachingLimit {
		p.Warning("usage is at %d of %d calls", report.CallsMade, report.Limit)
	}

	if len(report.History) == 0 {
		return nil
	}
	p.Header("History")
	table := output.NewTable(p.Out(), "Date", "Calls")
	for _, day := range report.History {
		table.AddRow(day.Date, strconv.Itoa(day.Calls))
	}
	return table.Render()
}
