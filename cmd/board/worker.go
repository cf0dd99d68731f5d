package main

import (
	"os/signal"
	"syscall"

	"mission-control/board/internal/worker"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func workerCmd() *cobra.Command {
	var noSchedule bool
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run maintenance jobs from the Redis queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			client, err := openQueueClient(ctx, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			w := worker.NewWorker(worker.WorkerConfig{
				RedisClient:  client,
				KeyPrefix:    cfg.Storage.Table,
				Concurrency:  cfg.Worker.Concurrency,
				PollInterval: cfg.Worker.PollInterval,
				Queues:       cfg.Worker.Queues,
			})
			w.RegisterHandler(worker.JobTypePurgeTrash, worker.PurgeTrashHandler(a.board, cfg.Trash.PurgeAfterDays))
			w.Start(cfg.Worker.Concurrency)

			if !noSchedule {
				queue := worker.NewJobQueue(client, cfg.Storage.Table)
				go worker.NewScheduler(queue, cfg.Trash.PurgeInterval, cfg.Trash.PurgeAfterDays).Run(ctx)
				log.Info().Dur("interval", cfg.Trash.PurgeInterval).Int("days", cfg.Trash.PurgeAfterDays).Msg("trash purge scheduled")
			}

			<-ctx.Done()
			w.Stop()
			return nil
		},
	}
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "only process jobs, do not enqueue the periodic purge")
	return cmd
}
