package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photolink/internal/config"
	"github.com/kozaktomas/photolink/internal/features"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Feature cache management commands",
	Long:  `Commands for inspecting and clearing the cached face embeddings and recognized text.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the number of cached feature records",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached feature record",
	Long: `Delete every cached face embedding and text record.

The next scan of any album extracts features again, which is slow for the
hosted text providers.`,
	RunE: runCacheClear,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	cacheStatsCmd.Flags().Bool("json", false, "Output as JSON")
	cacheClearCmd.Flags().Bool("yes", false, "Do not ask for confirmation")
}

// openCache opens the configured store without any extractor.
func openCache(cmd *cobra.Command) (*features.Cache, func() error, error) {
	cfg := config.Load()
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s cache: %w", cfg.Cache.Backend, err)
	}
	return features.NewCache(store, nil, nil, features.WithLogger(logger)), closeStore, nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	cache, closeStore, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	stats, err := cache.Stats(cmd.Context())
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Backend", "Face records", "Text records"},
		[][]string{{stats.Backend, strconv.Itoa(stats.FaceEntries), strconv.Itoa(stats.TextEntries)}},
		[]columnAlignment{alignLeft, alignRight, alignRight},
	))
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	if !mustGetBool(cmd, "yes") {
		fmt.Fprint(cmd.OutOrStdout(), "Delete all cached features? [y/N] ")
		var answer string
		_, _ = fmt.Fscanln(cmd.InOrStdin(), &answer)
		if answer != "y" && answer != "Y" && answer != "yes" {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
			return nil
		}
	}

	cache, closeStore, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	before, err := cache.Stats(cmd.Context())
	if err != nil {
		return err
	}
	if err := cache.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d face and %d text records from the %s cache\n",
		before.FaceEntries, before.TextEntries, before.Backend)
	return nil
}
