// Package store exposes task and epic CRUD over the single-table backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"mission-control/board/internal/codec"
	"mission-control/board/internal/models"
	"mission-control/board/internal/table"

	"github.com/rs/zerolog/log"
)

type Store struct {
	backend table.Backend
	now     func() time.Time
}

type Option func(*Store)

// WithClock replaces the wall clock used for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(backend table.Backend, opts ...Option) *Store {
	s := &Store{backend: backend, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Now() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.backend.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// CreateTask inserts a new task. Zero timestamps are filled from the clock.
func (s *Store) CreateTask(ctx context.Context, task models.Task) (models.Task, error) {
	if task.ID == "" {
		return models.Task{}, Validation("task id is required")
	}
	fillTimestamps(&task.CreatedAt, &task.UpdatedAt, s.Now())

	if err := s.backend.Put(ctx, codec.EncodeTask(task), table.IfAbsent); err != nil {
		return models.Task{}, translate(err, "create task "+string(task.ID))
	}
	log.Debug().Str("task_id", string(task.ID)).Msg("task created")
	return task, nil
}

// PutTask writes task whether or not it exists. The importer uses it to
// replace tasks when asked to overwrite.
func (s *Store) PutTask(ctx context.Context, task models.Task) error {
	if task.ID == "" {
		return Validation("task id is required")
	}
	fillTimestamps(&task.CreatedAt, &task.UpdatedAt, s.Now())
	return translate(s.backend.Put(ctx, codec.EncodeTask(task), table.Always), "put task "+string(task.ID))
}

func (s *Store) CreateEpic(ctx context.Context, epic models.Epic) (models.Epic, error) {
	if epic.ID == "" {
		return models.Epic{}, Validation("epic id is required")
	}
	fillTimestamps(&epic.CreatedAt, &epic.UpdatedAt, s.Now())

	if err := s.backend.Put(ctx, codec.EncodeEpic(epic), table.IfAbsent); err != nil {
		return models.Epic{}, translate(err, "create epic "+epic.ID)
	}
	log.Debug().Str("epic_id", epic.ID).Msg("epic created")
	return epic, nil
}

func fillTimestamps(created, updated *time.Time, now time.Time) {
	if created.IsZero() {
		*created = now
	}
	if updated.IsZero() {
		*updated = *created
	}
}

// GetTask returns the task whether or not it is trashed.
func (s *Store) GetTask(ctx context.Context, id models.TaskID) (models.Task, error) {
	what := "get task " + string(id)
	it, err := s.backend.Get(ctx, codec.TaskKey(id))
	if err != nil {
		return models.Task{}, translate(err, what)
	}
	task, err := codec.DecodeTask(it)
	if err != nil {
		return models.Task{}, fmt.Errorf("%s: %w: %v", what, ErrValidation, err)
	}
	return task, nil
}

func (s *Store) GetEpic(ctx context.Context, id string) (models.Epic, error) {
	what := "get epic " + id
	it, err := s.backend.Get(ctx, codec.EpicKey(id))
	if err != nil {
		return models.Epic{}, translate(err, what)
	}
	epic, err := codec.DecodeEpic(it)
	if err != nil {
		return models.Epic{}, fmt.Errorf("%s: %w: %v", what, ErrValidation, err)
	}
	return epic, nil
}

// GetAllTasks returns every task that is not in the trash, oldest first.
func (s *Store) GetAllTasks(ctx context.Context) ([]models.Task, error) {
	return s.scanTasks(ctx, func(t models.Task) bool { return !t.IsDeleted() })
}

// GetTaskRecords returns every task record, trashed ones included. The
// dependency graph is built from it because trashed tasks keep their edges
// and can come back.
func (s *Store) GetTaskRecords(ctx context.Context) ([]models.Task, error) {
	return s.scanTasks(ctx, func(models.Task) bool { return true })
}

// GetDeletedTasks returns the trash contents in no particular order.
func (s *Store) GetDeletedTasks(ctx context.Context) ([]models.Task, error) {
	return s.scanTasks(ctx, models.Task.IsDeleted)
}

func (s *Store) scanTasks(ctx context.Context, keep func(models.Task) bool) ([]models.Task, error) {
	items, err := s.backend.Scan(ctx)
	if err != nil {
		return nil, translate(err, "scan tasks")
	}

	tasks := make([]models.Task, 0, len(items))
	for _, it := range items {
		if !codec.IsTaskItem(it) {
			continue
		}
		task, err := codec.DecodeTask(it)
		if err != nil {
			log.Warn().Err(err).Str("pk", it[table.AttrPK]).Msg("skipping unreadable task record")
			continue
		}
		if keep(task) {
			tasks = append(tasks, task)
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}

func (s *Store) GetAllEpics(ctx context.Context) ([]models.Epic, error) {
	items, err := s.backend.Scan(ctx)
	if err != nil {
		return nil, translate(err, "scan epics")
	}

	epics := make([]models.Epic, 0)
	for _, it := range items {
		if !codec.IsEpicItem(it) {
			continue
		}
		epic, err := codec.DecodeEpic(it)
		if err != nil {
			log.Warn().Err(err).Str("pk", it[table.AttrPK]).Msg("skipping unreadable epic record")
			continue
		}
		epics = append(epics, epic)
	}
	sort.SliceStable(epics, func(i, j int) bool {
		return epics[i].CreatedAt.Before(epics[j].CreatedAt)
	})
	return epics, nil
}

// GetTasksByEpic returns the epic's active tasks in task id order.
func (s *Store) GetTasksByEpic(ctx context.Context, epicID string) ([]models.Task, error) {
	tasks, err := s.queryTasks(ctx, codec.IndexByEpic, epicID, table.QueryOptions{})
	if err != nil {
		return nil, err
	}
	return activeOnly(tasks), nil
}

// GetTasksByAssignee returns the assignee's active tasks, newest first.
func (s *Store) GetTasksByAssignee(ctx context.Context, assignee string) ([]models.Task, error) {
	tasks, err := s.queryTasks(ctx, codec.IndexByAssignee, assignee, table.QueryOptions{Descending: true})
	if err != nil {
		return nil, err
	}
	return activeOnly(tasks), nil
}

func (s *Store) queryTasks(ctx context.Context, index, value string, opts table.QueryOptions) ([]models.Task, error) {
	if value == "" {
		return []models.Task{}, nil
	}
	items, err := s.backend.Query(ctx, index, value, opts)
	if err != nil {
		return nil, translate(err, "query "+index)
	}

	tasks := make([]models.Task, 0, len(items))
	for _, it := range items {
		if !codec.IsTaskItem(it) {
			continue
		}
		task, err := codec.DecodeTask(it)
		if err != nil {
			log.Warn().Err(err).Str("pk", it[table.AttrPK]).Str("index", index).Msg("skipping unreadable task record")
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func activeOnly(tasks []models.Task) []models.Task {
	out := tasks[:0]
	for _, t := range tasks {
		if !t.IsDeleted() {
			out = append(out, t)
		}
	}
	return out
}

// UpdateTask merges patch into the stored task and refreshes updatedAt.
func (s *Store) UpdateTask(ctx context.Context, id models.TaskID, patch models.TaskPatch) (models.Task, error) {
	what := "update task " + string(id)
	set, remove := codec.EncodeTaskPatch(patch, s.Now())

	it, err := s.backend.Update(ctx, codec.TaskKey(id), set, remove)
	if err != nil {
		return models.Task{}, translate(err, what)
	}
	task, err := codec.DecodeTask(it)
	if err != nil {
		return models.Task{}, fmt.Errorf("%s: %w: %v", what, ErrValidation, err)
	}
	return task, nil
}

func (s *Store) UpdateEpic(ctx context.Context, id string, patch models.EpicPatch) (models.Epic, error) {
	what := "update epic " + id
	it, err := s.backend.Update(ctx, codec.EpicKey(id), codec.EncodeEpicPatch(patch, s.Now()), nil)
	if err != nil {
		return models.Epic{}, translate(err, what)
	}
	epic, err := codec.DecodeEpic(it)
	if err != nil {
		return models.Epic{}, fmt.Errorf("%s: %w: %v", what, ErrValidation, err)
	}
	return epic, nil
}

// DeleteTask removes the task record outright and reports whether it existed.
func (s *Store) DeleteTask(ctx context.Context, id models.TaskID) (bool, error) {
	existed, err := s.backend.Delete(ctx, codec.TaskKey(id))
	if err != nil {
		return false, translate(err, "delete task "+string(id))
	}
	if existed {
		log.Debug().Str("task_id", string(id)).Msg("task deleted")
	}
	return existed, nil
}

// DeleteEpic removes the epic and then clears epicId on every task that
// referenced it, trashed ones included. The cascade is not atomic: it stops
// at the first failure with the earlier clears already committed.
func (s *Store) DeleteEpic(ctx context.Context, id string) (int, error) {
	if _, err := s.GetEpic(ctx, id); err != nil {
		return 0, err
	}
	if _, err := s.backend.Delete(ctx, codec.EpicKey(id)); err != nil {
		return 0, translate(err, "delete epic "+id)
	}

	referencing, err := s.queryTasks(ctx, codec.IndexByEpic, id, table.QueryOptions{})
	if err != nil {
		return 0, fmt.Errorf("delete epic %s: clear references: %w", id, err)
	}

	cleared := 0
	for _, task := range referencing {
		_, err := s.UpdateTask(ctx, task.ID, models.TaskPatch{EpicID: models.Clear[string]()})
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			log.Warn().Err(err).Str("epic_id", id).Int("cleared", cleared).Msg("epic cascade stopped")
			return cleared, fmt.Errorf("delete epic %s: clear task %s: %w", id, task.ID, err)
		}
		cleared++
	}
	log.Info().Str("epic_id", id).Int("count", cleared).Msg("epic deleted")
	return cleared, nil
}

// ClearAllData deletes every task and epic record. Reset tooling only.
func (s *Store) ClearAllData(ctx context.Context) (int, error) {
	items, err := s.backend.Scan(ctx)
	if err != nil {
		return 0, translate(err, "clear all data")
	}

	deleted := 0
	for _, it := range items {
		pk := it[table.AttrPK]
		if it[codec.AttrType] != codec.TypeTask && it[codec.AttrType] != codec.TypeEpic {
			continue
		}
		existed, err := s.backend.Delete(ctx, it.Key())
		if err != nil {
			return deleted, translate(err, "clear "+pk)
		}
		if existed {
			deleted++
		}
	}
	log.Info().Int("count", deleted).Msg("all board data cleared")
	return deleted, nil
}
