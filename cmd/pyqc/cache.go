package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ludo-technologies/pyqc/internal/cache"
	"github.com/ludo-technologies/pyqc/service"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the result cache",
		Long: `The result cache maps file content and checker settings to the issues a
checker reported. Entries expire after cache.ttl_hours.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Delete expired and corrupt entries",
		RunE: withCache(func(cmd *cobra.Command, store *cache.Badger) error {
			n, err := store.Sweep(time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", pluralize(n, "entry"))
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every entry",
		RunE: withCache(func(cmd *cobra.Command, store *cache.Badger) error {
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
			return nil
		}),
	})

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show entry counts and size",
		RunE: withCache(func(cmd *cobra.Command, store *cache.Badger) error {
			s, err := store.Stats()
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return service.WriteJSON(cmd.OutOrStdout(), s)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Entries: %d\n", s.Entries)
			fmt.Fprintf(out, "Expired: %d\n", s.Expired)
			fmt.Fprintf(out, "Corrupt: %d\n", s.Corrupt)
			fmt.Fprintf(out, "Size:    %.1f KiB\n", float64(s.SizeBytes)/1024)
			return nil
		}),
	}
	stats.Flags().Bool("json", false, "Print statistics as JSON")
	cmd.AddCommand(stats)

	for _, sub := range cmd.Commands() {
		addConfigFlags(sub)
	}
	return cmd
}

// withCache opens the project's on-disk cache for the duration of fn
func withCache(fn func(cmd *cobra.Command, store *cache.Badger) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, "", service.ConfigOverrides{})
		if err != nil {
			return err
		}
		if !cfg.Cache.Enabled {
			fmt.Fprintln(cmd.OutOrStdout(), "Cache is disabled (cache.enabled: false)")
			return nil
		}

		store, err := cache.Open(cfg.CacheDir(), cfg.Cache.TTL(), newLogger(cfg))
		if err != nil {
			return fmt.Errorf("failed to open cache at %s: %w", cfg.CacheDir(), err)
		}
		defer store.Close()
		return fn(cmd, store)
	}
}
