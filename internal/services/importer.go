package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"mission-control/board/internal/models"
	"mission-control/board/internal/store"

	"github.com/rs/zerolog/log"
)

// Snapshot is a board export: the shape the browser app kept in local
// storage before the board moved to a shared table.
type Snapshot struct {
	Epics []models.Epic `json:"epics"`
	Tasks []models.Task `json:"tasks"`
}

func ReadSnapshot(r io.Reader) (Snapshot, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode board export: %w", err)
	}
	return snap, nil
}

type ImportResult struct {
	EpicsCreated  int `json:"epicsCreated"`
	EpicsSkipped  int `json:"epicsSkipped"`
	TasksCreated  int `json:"tasksCreated"`
	TasksSkipped  int `json:"tasksSkipped"`
	TasksReplaced int `json:"tasksReplaced"`
}

// Importer loads exports into the store. Records whose id already exists are
// left untouched, so an import can be re-run safely. With WithOverwrite,
// existing tasks are replaced by the exported version instead.
type Importer struct {
	store     *store.Store
	overwrite bool
}

type ImportOption func(*Importer)

// WithOverwrite makes the export win over tasks already on the board.
// Epics are never replaced.
func WithOverwrite() ImportOption {
	return func(i *Importer) { i.overwrite = true }
}

func NewImporter(s *store.Store, opts ...ImportOption) *Importer {
	i := &Importer{store: s}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Importer) Import(ctx context.Context, snap Snapshot) (ImportResult, error) {
	var res ImportResult

	for _, epic := range snap.Epics {
		if epic.ID == "" || epic.Name == "" {
			log.Warn().Str("epic_id", epic.ID).Msg("skipping epic without id or name")
			res.EpicsSkipped++
			continue
		}
		_, err := i.store.CreateEpic(ctx, epic)
		switch {
		case err == nil:
			res.EpicsCreated++
		case errors.Is(err, store.ErrDuplicateKey):
			res.EpicsSkipped++
		default:
			return res, fmt.Errorf("import epic %s: %w", epic.ID, err)
		}
	}

	for _, task := range snap.Tasks {
		if task.ID == "" || task.Title == "" {
			log.Warn().Str("task_id", string(task.ID)).Msg("skipping task without id or title")
			res.TasksSkipped++
			continue
		}
		if task.Column == "" || !task.Column.IsValid() {
			task.Column = models.ColumnBacklog
		}
		_, err := i.store.CreateTask(ctx, task)
		switch {
		case err == nil:
			res.TasksCreated++
		case errors.Is(err, store.ErrDuplicateKey) && i.overwrite:
			if err := i.store.PutTask(ctx, task); err != nil {
				return res, fmt.Errorf("replace task %s: %w", task.ID, err)
			}
			res.TasksReplaced++
		case errors.Is(err, store.ErrDuplicateKey):
			res.TasksSkipped++
		default:
			return res, fmt.Errorf("import task %s: %w", task.ID, err)
		}
	}

	log.Info().
		Int("epics_created", res.EpicsCreated).
		Int("tasks_created", res.TasksCreated).
		Int("tasks_replaced", res.TasksReplaced).
		Int("skipped", res.EpicsSkipped+res.TasksSkipped).
		Msg("board import finished")
	return res, nil
}

// BackfillSources tags every task without a source, trashed ones included,
// with source and returns how many were changed.
func (i *Importer) BackfillSources(ctx context.Context, source models.Source) (int, error) {
	if !source.IsValid() {
		return 0, store.Validation("unknown source %q", source)
	}

	tasks, err := i.store.GetTaskRecords(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, task := range tasks {
		if task.Source != nil {
			continue
		}
		_, err := i.store.UpdateTask(ctx, task.ID, models.TaskPatch{Source: models.SetTo(source)})
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return updated, err
		}
		updated++
	}
	log.Info().Int("count", updated).Str("source", string(source)).Msg("task sources backfilled")
	return updated, nil
}
