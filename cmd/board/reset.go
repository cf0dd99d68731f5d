package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every task and epic in the table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to delete all board data without --yes")
			}

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.store.ClearAllData(cmd.Context())
			if err != nil {
				return fmt.Errorf("reset failed after %d record(s): %w", n, err)
			}
			fmt.Printf("Deleted %d record(s).\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting all data")
	return cmd
}
