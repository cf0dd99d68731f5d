package main

import (
	"fmt"
	"os"

	"mission-control/board/internal/services"

	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a JSON board export; existing ids are skipped unless --overwrite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			snap, err := services.ReadSnapshot(f)
			if err != nil {
				return err
			}

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var opts []services.ImportOption
			if overwrite {
				opts = append(opts, services.WithOverwrite())
			}
			res, err := services.NewImporter(a.store, opts...).Import(cmd.Context(), snap)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			fmt.Printf("Epics: %d created, %d skipped\n", res.EpicsCreated, res.EpicsSkipped)
			fmt.Printf("Tasks: %d created, %d replaced, %d skipped\n", res.TasksCreated, res.TasksReplaced, res.TasksSkipped)
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace tasks that already exist")
	return cmd
}
