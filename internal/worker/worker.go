package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type JobType string

const (
	JobTypePurgeTrash JobType = "purge_trash"
)

const (
	DefaultQueue = "maintenance"

	defaultMaxTries = 3
	popTimeout      = time.Second
	jobTimeout      = 30 * time.Second
)

type Job struct {
	ID        string                 `json:"id"`
	Type      JobType                `json:"type"`
	Queue     string                 `json:"queue"`
	Payload   map[string]interface{} `json:"payload"`
	Attempts  int                    `json:"attempts"`
	MaxTries  int                    `json:"max_tries"`
	CreatedAt time.Time              `json:"created_at"`
	ProcessAt time.Time              `json:"process_at"`
	LastError string                 `json:"last_error,omitempty"`
}

type JobHandler func(ctx context.Context, job *Job) error

// keys names the Redis structures one board deployment uses. Queues are
// lists, delayed jobs wait in a sorted set scored by their due time.
type keys struct {
	prefix string
}

func (k keys) queue(name string) string { return k.prefix + ":queue:" + name }
func (k keys) delayed() string          { return k.prefix + ":queue:delayed" }
func (k keys) dead() string             { return k.prefix + ":queue:dead" }
func (k keys) lock(name string) string  { return k.prefix + ":lock:" + name }

type Worker struct {
	client       *redis.Client
	keys         keys
	handlers     map[JobType]JobHandler
	queues       []string
	pollInterval time.Duration
	retryBackoff time.Duration
	now          func() time.Time
	mu           sync.RWMutex
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

type WorkerConfig struct {
	RedisClient  *redis.Client
	KeyPrefix    string
	Concurrency  int
	PollInterval time.Duration
	RetryBackoff time.Duration
	Queues       []string
}

func NewWorker(config WorkerConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	queues := config.Queues
	if len(queues) == 0 {
		queues = []string{DefaultQueue}
	}
	poll := config.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	backoff := config.RetryBackoff
	if backoff <= 0 {
		backoff = time.Minute
	}

	return &Worker{
		client:       config.RedisClient,
		keys:         keys{prefix: config.KeyPrefix},
		handlers:     make(map[JobType]JobHandler),
		queues:       queues,
		pollInterval: poll,
		retryBackoff: backoff,
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

func (w *Worker) Start(concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	log.Info().Int("concurrency", concurrency).Strs("queues", w.queues).Msg("starting worker")

	w.wg.Add(1)
	go w.promoteLoop()

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop()
	}
}

func (w *Worker) Stop() {
	log.Info().Msg("stopping worker")
	w.cancel()
	w.wg.Wait()
	log.Info().Msg("worker stopped")
}

func (w *Worker) workerLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			if err := w.processNextJob(w.ctx); err != nil && w.ctx.Err() == nil {
				log.Error().Err(err).Msg("error processing job")
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) promoteLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.promoteDue(w.ctx); err != nil && w.ctx.Err() == nil {
				log.Error().Err(err).Msg("failed to promote delayed jobs")
			}
		}
	}
}

// promoteDue moves delayed jobs whose time has come back onto their queue.
func (w *Worker) promoteDue(ctx context.Context) (int, error) {
	due, err := w.client.ZRangeByScore(ctx, w.keys.delayed(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(w.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read delayed jobs: %w", err)
	}

	moved := 0
	for _, data := range due {
		var job Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			log.Warn().Err(err).Msg("dropping unreadable delayed job")
			w.client.ZRem(ctx, w.keys.delayed(), data)
			continue
		}
		// ZRem decides the winner when several workers promote at once.
		removed, err := w.client.ZRem(ctx, w.keys.delayed(), data).Result()
		if err != nil {
			return moved, fmt.Errorf("failed to claim delayed job: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := w.client.RPush(ctx, w.keys.queue(job.Queue), data).Err(); err != nil {
			return moved, fmt.Errorf("failed to promote job %s: %w", job.ID, err)
		}
		moved++
	}
	return moved, nil
}

func (w *Worker) processNextJob(ctx context.Context) error {
	names := make([]string, len(w.queues))
	for i, q := range w.queues {
		names[i] = w.keys.queue(q)
	}

	result, err := w.client.BLPop(ctx, popTimeout, names...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to pop job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}

	if w.now().Before(job.ProcessAt) {
		return w.schedule(ctx, &job)
	}

	return w.executeJob(ctx, &job)
}

func (w *Worker) executeJob(ctx context.Context, job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	if !exists {
		return w.moveToDeadQueue(ctx, job, fmt.Errorf("no handler registered for job type: %s", job.Type))
	}

	logger := log.With().Str("job_id", job.ID).Str("job_type", string(job.Type)).Logger()
	logger.Debug().Int("attempt", job.Attempts+1).Msg("processing job")

	jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	err := handler(jobCtx, job)
	if err != nil {
		job.Attempts++
		job.LastError = err.Error()
		if job.Attempts < job.MaxTries {
			logger.Warn().Err(err).Int("attempt", job.Attempts).Int("max_tries", job.MaxTries).Msg("job failed, retrying")
			return w.retryJob(ctx, job)
		}

		logger.Error().Err(err).Int("attempts", job.Attempts).Msg("job failed permanently")
		return w.moveToDeadQueue(ctx, job, err)
	}

	logger.Info().Msg("job completed")
	return nil
}

func (w *Worker) retryJob(ctx context.Context, job *Job) error {
	delay := time.Duration(1<<job.Attempts) * w.retryBackoff
	job.ProcessAt = w.now().Add(delay)
	return w.schedule(ctx, job)
}

func (w *Worker) schedule(ctx context.Context, job *Job) error {
	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return w.client.ZAdd(ctx, w.keys.delayed(), redis.Z{
		Score:  float64(job.ProcessAt.UnixMilli()),
		Member: jobData,
	}).Err()
}

func (w *Worker) moveToDeadQueue(ctx context.Context, job *Job, jobErr error) error {
	deadJob := map[string]interface{}{
		"original_job": job,
		"error":        jobErr.Error(),
		"failed_at":    w.now(),
	}

	deadJobData, err := json.Marshal(deadJob)
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}

	return w.client.RPush(ctx, w.keys.dead(), deadJobData).Err()
}

type JobQueue struct {
	client *redis.Client
	keys   keys
	now    func() time.Time
}

func NewJobQueue(client *redis.Client, keyPrefix string) *JobQueue {
	return &JobQueue{client: client, keys: keys{prefix: keyPrefix}, now: time.Now}
}

func (q *JobQueue) Enqueue(ctx context.Context, queue string, jobType JobType, payload map[string]interface{}) (*Job, error) {
	return q.EnqueueAt(ctx, queue, jobType, payload, q.now())
}

func (q *JobQueue) EnqueueAt(ctx context.Context, queue string, jobType JobType, payload map[string]interface{}, processAt time.Time) (*Job, error) {
	now := q.now()
	job := &Job{
		ID:        strconv.FormatInt(now.UnixNano(), 10),
		Type:      jobType,
		Queue:     queue,
		Payload:   payload,
		MaxTries:  defaultMaxTries,
		CreatedAt: now,
		ProcessAt: processAt,
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	if processAt.After(now) {
		err = q.client.ZAdd(ctx, q.keys.delayed(), redis.Z{Score: float64(processAt.UnixMilli()), Member: jobData}).Err()
	} else {
		err = q.client.RPush(ctx, q.keys.queue(queue), jobData).Err()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue %s job: %w", jobType, err)
	}
	return job, nil
}

// EnqueueOnce enqueues the job unless another caller did so within ttl. It
// reports whether this call enqueued.
func (q *JobQueue) EnqueueOnce(ctx context.Context, lockName string, ttl time.Duration, queue string, jobType JobType, payload map[string]interface{}) (bool, error) {
	acquired, err := q.client.SetNX(ctx, q.keys.lock(lockName), q.now().UnixMilli(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire %s lock: %w", lockName, err)
	}
	if !acquired {
		return false, nil
	}
	if _, err := q.Enqueue(ctx, queue, jobType, payload); err != nil {
		return false, err
	}
	return true, nil
}

func (q *JobQueue) GetQueueSize(ctx context.Context, queue string) (int64, error) {
	return q.client.LLen(ctx, q.keys.queue(queue)).Result()
}

func (q *JobQueue) GetDelayedSize(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.keys.delayed()).Result()
}

func (q *JobQueue) GetDeadSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.keys.dead()).Result()
}
