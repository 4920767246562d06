package cmd

import (
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the response caches",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show response cache statistics",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached response",
	RunE:  runCacheClear,
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired entries from both caches",
	RunE:  runCachePrune,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd, cachePruneCmd)

	cacheStatsCmd.Flags().Bool("json", false, "output as JSON")
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := newApp(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.responseCache.GetStats(cmd.Context())
	if err != nil {
		return err
	}

	p := newPrinter(cmd)
	if jsonOutput {
		return p.JSON(stats)
	}
	p.Header("Response cache")
	p.KeyValue("entries", stats.TotalEntries)
	p.KeyValue("total hits", stats.TotalHits)
	p.KeyValue("size (bytes)", stats.CacheSize)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.responseCache.Clear(cmd.Context())
	if err != nil {
		return err
	}
	newPrinter(cmd).Success("removed %d cached responses", n)
	return nil
}

func runCachePrune(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	responses, err := a.responseCache.PruneExpired(cmd.Context())
	if err != nil {
		return err
	}
	entities, err := a.entityCache.PruneExpired(cmd.Context())
	if err != nil {
		return err
	}
	newPrinter(cmd).Success("pruned %d cached responses and %d listing entries", responses, entities)
	return nil
}
