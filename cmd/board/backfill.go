package main

import (
	"fmt"

	"mission-control/board/internal/models"
	"mission-control/board/internal/services"

	"github.com/spf13/cobra"
)

func backfillCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "backfill-sources",
		Short: "Set a source on every task that has none",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := services.NewImporter(a.store).BackfillSources(cmd.Context(), models.Source(source))
			if err != nil {
				return fmt.Errorf("backfill failed: %w", err)
			}
			fmt.Printf("Updated %d task(s) with source %q.\n", n, source)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", string(models.SourceManual), "source to assign")
	return cmd
}
