// Package lifecycle moves tasks between the board, the trash and oblivion.
//
// A task is Active until soft-deleted, Trashed while it carries deletedAt,
// and Purged once its record is removed. Purging is permanent.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"mission-control/board/internal/deps"
	"mission-control/board/internal/models"
	"mission-control/board/internal/store"

	"github.com/rs/zerolog/log"
)

// DefaultPurgeDays is how long a task stays in the trash before purge.
const DefaultPurgeDays = 7

const day = 24 * time.Hour

type Manager struct {
	store *store.Store
	now   func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(s *store.Store, opts ...Option) *Manager {
	m := &Manager{store: s, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TrashedTask is a trash entry with its age for display.
type TrashedTask struct {
	models.Task
	DaysInTrash int `json:"daysInTrash"`
}

// DaysInTrash is the whole number of days since deletedAt, truncated.
func DaysInTrash(deletedAt, now time.Time) int {
	age := now.Sub(deletedAt)
	if age < 0 {
		return 0
	}
	return int(age / day)
}

// SoftDelete moves an active task to the trash. Trashing a task that is
// already in the trash keeps its original deletedAt.
func (m *Manager) SoftDelete(ctx context.Context, id models.TaskID) (models.Task, error) {
	task, err := m.store.GetTask(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	if task.IsDeleted() {
		return task, nil
	}

	task, err = m.store.UpdateTask(ctx, id, models.TaskPatch{
		DeletedAt: models.SetTo(m.now().UTC()),
	})
	if err != nil {
		return models.Task{}, err
	}
	log.Info().Str("task_id", string(id)).Msg("task moved to trash")
	return task, nil
}

// Restore brings a trashed task back to the board. Tasks that are not in
// the trash, including purged ones, yield store.ErrNotFound. A task whose
// dependsOn would close a cycle with the other records stays in the trash
// with store.ErrValidation.
func (m *Manager) Restore(ctx context.Context, id models.TaskID) (models.Task, error) {
	task, err := m.store.GetTask(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	if !task.IsDeleted() {
		return models.Task{}, fmt.Errorf("restore task %s: not in trash: %w", id, store.ErrNotFound)
	}

	records, err := m.store.GetTaskRecords(ctx)
	if err != nil {
		return models.Task{}, err
	}
	graph := deps.NewGraph(records)
	for _, dep := range task.DependsOn {
		if graph.WouldCreateCycle(id, dep) {
			return models.Task{}, store.Validation("restoring task %s would close a dependency cycle through %s", id, dep)
		}
	}

	task, err = m.store.UpdateTask(ctx, id, models.TaskPatch{
		DeletedAt: models.Clear[time.Time](),
	})
	if err != nil {
		return models.Task{}, err
	}
	log.Info().Str("task_id", string(id)).Msg("task restored from trash")
	return task, nil
}

// HardDelete removes the task for good, whether trashed or active.
func (m *Manager) HardDelete(ctx context.Context, id models.TaskID) error {
	existed, err := m.store.DeleteTask(ctx, id)
	if err != nil {
		return err
	}
	if !existed {
		return fmt.Errorf("hard delete task %s: %w", id, store.ErrNotFound)
	}
	log.Info().Str("task_id", string(id)).Msg("task permanently deleted")
	return nil
}

// PurgeOlderThan hard-deletes every trashed task at least days old and
// returns how many it removed. Tasks already gone are skipped, so
// overlapping runs are harmless.
func (m *Manager) PurgeOlderThan(ctx context.Context, days int) (int, error) {
	if days < 0 {
		return 0, store.Validation("purge threshold must not be negative, got %d", days)
	}

	trashed, err := m.store.GetDeletedTasks(ctx)
	if err != nil {
		return 0, err
	}

	now := m.now()
	purged := 0
	for _, task := range trashed {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		if DaysInTrash(*task.DeletedAt, now) < days {
			continue
		}
		err := m.HardDelete(ctx, task.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return purged, fmt.Errorf("purge task %s: %w", task.ID, err)
		}
		purged++
	}

	log.Info().Int("count", purged).Int("days", days).Msg("trash purged")
	return purged, nil
}

// ListTrashed returns the trash, most recently deleted first.
func (m *Manager) ListTrashed(ctx context.Context) ([]TrashedTask, error) {
	trashed, err := m.store.GetDeletedTasks(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	out := make([]TrashedTask, 0, len(trashed))
	for _, task := range trashed {
		out = append(out, TrashedTask{Task: task, DaysInTrash: DaysInTrash(*task.DeletedAt, now)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DeletedAt.After(*out[j].DeletedAt)
	})
	return out, nil
}
