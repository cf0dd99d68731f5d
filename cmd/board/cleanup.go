package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup [days]",
		Short: "Permanently delete trashed tasks at least days old (default from TRASH_PURGE_AFTER_DAYS)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			days := cfg.Trash.PurgeAfterDays
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("days must be an integer: %w", err)
				}
				days = n
			}

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			purged, err := a.lifecycle.PurgeOlderThan(cmd.Context(), days)
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}
			fmt.Println(purgeSummary(purged, days))
			return nil
		},
	}
}

// purgeSummary describes a purge. The threshold is inclusive.
func purgeSummary(purged, days int) string {
	return fmt.Sprintf("Purged %d task(s) deleted at least %d day(s) ago.", purged, days)
}
