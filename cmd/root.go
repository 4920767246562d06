// Package cmd contains all CLI commands for mindbody-mcp
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"mindbody-mcp/config"
	"mindbody-mcp/output"
	"mindbody-mcp/utils/logger"
)

var (
	cfgFile   string
	noColor   bool
	cfg       *config.Config
	appLogger *slog.Logger
	version   = "dev"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mindbody-mcp",
	Short: "Mindbody API bridge for AI assistants",
	Long: `mindbody-mcp exposes a Mindbody site to AI assistants over the Model Context Protocol.

It keeps a local copy of clients and sales, caches responses and stays under
the provider's daily call limit.

Example usage:
  mindbody-mcp serve                                  # Run the MCP server over stdio
  mindbody-mcp sync clients --status Active           # Pull client profiles into the store
  mindbody-mcp sync sales --start 2024-01-01 --end 2024-01-31
  mindbody-mcp usage                                  # Show today's API usage
  mindbody-mcp cache stats                            # Show response cache statistics`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string reported to MCP clients and by the version command
func SetVersion(v string) {
	version = v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .mindbody-mcp.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// initConfig loads configuration and installs the process logger
func initConfig() error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg = loaded
	appLogger = logger.Init(cfg.Log.Level, cfg.Log.Format)

	appLogger.Debug("configuration loaded",
		"database_driver", cfg.Database.Driver,
		"data_dir", cfg.Data.Dir,
		"daily_limit", cfg.Quota.DailyLimit)
	return nil
}

func newPrinter(cmd *cobra.Command) *output.Printer {
	return output.NewPrinterWithWriters(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.UseColors(noColor))
}
