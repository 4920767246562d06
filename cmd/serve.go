package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mindbody-mcp/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server over stdio",
	Long: `Run the Model Context Protocol server on stdin/stdout.

Logs go to stderr. When METRICS_ADDR is set, Prometheus metrics are served
on that address at /metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	serverVersion := currentBuildInfo().Version
	server := a.mcpHandler().NewServer(cfg.Server.Name, serverVersion)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return metrics.Serve(gCtx, cfg.Metrics.Addr, appLogger)
	})
	g.Go(func() error {
		appLogger.Info("MCP server starting", "name", cfg.Server.Name, "version", serverVersion, "daily_limit", cfg.Quota.DailyLimit)
		err := server.Run(gCtx, &mcp.StdioTransport{})
		stop()
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("MCP server stopped with error", "error", err)
		return err
	}
	appLogger.Info("MCP server stopped")
	return nil
}
