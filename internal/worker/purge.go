package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Purger removes trashed tasks older than a number of days.
type Purger interface {
	CleanupOldDeletedTasks(ctx context.Context, days int) (int, error)
}

// PurgeTrashHandler runs a purge_trash job. The payload may carry "days";
// otherwise defaultDays applies.
func PurgeTrashHandler(p Purger, defaultDays int) JobHandler {
	return func(ctx context.Context, job *Job) error {
		days, err := payloadInt(job.Payload, "days", defaultDays)
		if err != nil {
			return err
		}
		purged, err := p.CleanupOldDeletedTasks(ctx, days)
		if err != nil {
			return fmt.Errorf("purge trash: %w", err)
		}
		log.Info().Str("job_id", job.ID).Int("days", days).Int("purged", purged).Msg("trash purged")
		return nil
	}
}

func payloadInt(payload map[string]interface{}, key string, fallback int) (int, error) {
	raw, ok := payload[key]
	if !ok || raw == nil {
		return fallback, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("payload %s must be an integer, got %v", key, v)
		}
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("payload %s must be a number, got %T", key, raw)
	}
}

// Scheduler enqueues a purge_trash job every interval. Several schedulers may
// run against the same Redis; only one enqueues per interval.
type Scheduler struct {
	queue    *JobQueue
	interval time.Duration
	days     int
}

func NewScheduler(queue *JobQueue, interval time.Duration, days int) *Scheduler {
	return &Scheduler{queue: queue, interval: interval, days: days}
}

// Tick enqueues the purge job if no scheduler has done so this interval.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	lockTTL := s.interval - time.Second
	if lockTTL < time.Second {
		lockTTL = time.Second
	}
	return s.queue.EnqueueOnce(ctx, string(JobTypePurgeTrash), lockTTL, DefaultQueue, JobTypePurgeTrash,
		map[string]interface{}{"days": s.days})
}

// Run ticks immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if enqueued, err := s.Tick(ctx); err != nil {
			log.Error().Err(err).Msg("failed to schedule trash purge")
		} else if enqueued {
			log.Debug().Int("days", s.days).Msg("trash purge scheduled")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
