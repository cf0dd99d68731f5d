package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"mission-control/board/internal/config"
	"mission-control/board/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	envFile string
	debug   bool
	cfg     *config.Config
	rootCmd = &cobra.Command{
		Use:          "board",
		Short:        "board runs the Mission Control task board and its maintenance jobs",
		SilenceUsage: true,
	}
)

// Execute runs the root command.
func Execute() error {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(cleanupCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(backfillCmd())
	rootCmd.AddCommand(resetCmd())
	return rootCmd.Execute()
}

func loadConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var err error
	cfg, err = config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Init(debug || cfg.Log.Debug, cfg.Log.Format)
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
}
