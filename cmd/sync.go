package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mindbody-mcp/models"
	"mindbody-mcp/output"
	"mindbody-mcp/service"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull data from Mindbody into the local store",
}

var syncClientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "Sync client profiles",
	Long: `Page through the client listing and upsert every profile.

Examples:
  mindbody-mcp sync clients
  mindbody-mcp sync clients --status Active --since 2024-01-01
  mindbody-mcp sync clients --force       # ignore the daily limit`,
	RunE: runSyncClients,
}

var syncSalesCmd = &cobra.Command{
	Use:   "sales",
	Short: "Sync sales for a date range",
	Long: `Fetch sales for an inclusive date range in 7-day chunks and upsert them.

Examples:
  mindbody-mcp sync sales --start 2024-01-01 --end 2024-01-31`,
	RunE: runSyncSales,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncClientsCmd)
	syncCmd.AddCommand(syncSalesCmd)

	syncCmd.PersistentFlags().Bool("force", false, "bypass the daily API limit")
	syncCmd.PersistentFlags().Bool("json", false, "output as JSON")

	syncClientsCmd.Flags().String("status", "", "client status filter")
	syncClientsCmd.Flags().String("since", "", "only clients modified on or after this date (YYYY-MM-DD)")

	syncSalesCmd.Flags().String("start", "", "first day (YYYY-MM-DD)")
	syncSalesCmd.Flags().String("end", "", "last day, inclusive (YYYY-MM-DD)")
	_ = syncSalesCmd.MarkFlagRequired("start")
	_ = syncSalesCmd.MarkFlagRequired("end")
}

func runSyncClients(cmd *cobra.Command, args []string) error {
	status, _ := cmd.Flags().GetString("status")
	since, _ := cmd.Flags().GetString("since")
	force, _ := cmd.Flags().GetBool("force")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := newApp(cmd.Context(), cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.sync.SyncClients(cmd.Context(), service.ClientSyncOptions{Status: status, Since: since, Force: force})
	if err != nil {
		return err
	}
	return printSyncResult(newPrinter(cmd), result, jsonOutput)
}

func runSyncSales(cmd *cobra.Command, args []string) error {
	startFlag, _ := cmd.Flags().GetString("start")
	endFlag, _ := cmd.Flags().GetString("end")
	force, _ := cmd.Flags().GetBool("force")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	start, err := models.ParseDay(startFlag)
	if err != nil {
		return err
	}
	end, err := models.ParseDay(endFlag)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.sync.SyncSales(cmd.Context(), service.SalesSyncOptions{Start: start, End: end, Force: force})
	if err != nil {
		return err
	}
	return printSyncResult(newPrinter(cmd), result, jsonOutput)
}

func printSyncResult(p *output.Printer, result *models.SyncResult, jsonOutput bool) error {
	if jsonOutput {
		return p.JSON(result)
	}

	p.Header(fmt.Sprintf("%s %s", result.Operation, p.StateBadge(string(result.State))))
	p.KeyValue("run id", result.RunID)
	p.KeyValue("records synced", result.TotalSynced)
	p.KeyValue("duration", result.Duration.Round(time.Millisecond))
	p.KeyValue("errors", len(result.Errors))
	for _, e := range result.Errors {
		p.Warning("%s", e)
	}

	switch result.State {
	case models.SyncStateRateLimited:
		p.Warning("daily API limit reached; rerun tomorrow or pass --force")
	case models.SyncStateCompleted:
		p.Success("sync completed")
	}
	return nil
}
