package cli

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rxledger/pharmacache/internal/cache"
	"github.com/rxledger/pharmacache/internal/records"
)

// newSnapshotCmd groups the persistence-slot operations.
func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage the persisted cache snapshot",
	}
	cmd.AddCommand(newSnapshotInspectCmd(), newSnapshotClearCmd())
	return cmd
}

// newSnapshotInspectCmd prints what the slot holds: active window, domains,
// bucket counts and ages.
func newSnapshotInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show domains, buckets and ages in the persisted snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			path, err := cfg.SnapshotPath()
			if err != nil {
				return err
			}
			if path == "" {
				return fmt.Errorf("snapshot persistence is disabled in configuration")
			}
			if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
				cmd.Printf("No snapshot at %s\n", path)
				return nil
			}

			// Rehydration happens inside NewService, exactly as the
			// application would do it at startup.
			svc := cache.NewService(cache.ServiceConfig{
				Validity:     cfg.Cache.Validity(),
				BucketCap:    cfg.Cache.BucketCap,
				SnapshotPath: path,
				Codecs:       records.AllCodecs(),
				Logger:       &logger,
			})

			cmd.Printf("Snapshot: %s\n", path)
			cmd.Printf("Active window: %s\n\n", svc.ActiveWindow())

			stats := svc.Store().Stats()
			if len(stats) == 0 {
				cmd.Println("No cached domains.")
				return nil
			}

			domains := make([]string, 0, len(stats))
			for d := range stats {
				domains = append(domains, d)
			}
			sort.Strings(domains)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DOMAIN\tBUCKETS\tYOUNGEST\tOLDEST")
			for _, d := range domains {
				st := stats[d]
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
					d, st.Buckets,
					st.YoungestAge.Round(time.Second), st.OldestAge.Round(time.Second))
			}
			return w.Flush()
		},
	}
}

// newSnapshotClearCmd removes the slot so the next launch starts cold.
func newSnapshotClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the persisted snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			path, err := cfg.SnapshotPath()
			if err != nil {
				return err
			}
			if path == "" {
				return fmt.Errorf("snapshot persistence is disabled in configuration")
			}

			if err := os.Remove(path); err != nil {
				if os.IsNotExist(err) {
					cmd.Printf("No snapshot at %s\n", path)
					return nil
				}
				return fmt.Errorf("remove snapshot: %w", err)
			}
			logger.Info().Str("path", path).Msg("snapshot cleared")
			cmd.Printf("Cleared %s\n", path)
			return nil
		},
	}
}
