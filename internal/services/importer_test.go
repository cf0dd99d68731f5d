package services_test

import (
	"context"
	"strings"
	"testing"

	"mission-control/board/internal/codec"
	"mission-control/board/internal/models"
	"mission-control/board/internal/services"
	"mission-control/board/internal/store"
	"mission-control/board/internal/table"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const export = `{
  "epics": [
    {"id": "epic-1", "name": "Launch", "color": "#ff0000", "createdAt": "2026-01-10T09:00:00.000Z"},
    {"id": "", "name": "broken"}
  ],
  "tasks": [
    {"id": 1770189406756, "title": "Numeric id", "column": "In Progress", "epicId": "epic-1",
     "createdAt": "2026-01-11T09:00:00.000Z", "updatedAt": "2026-01-12T09:00:00Z"},
    {"id": "legacy-7", "title": "String id", "column": "Someday", "dependsOn": [1770189406756]},
    {"id": "no-title", "title": ""}
  ]
}`

func newImportStore() *store.Store {
	return store.New(table.NewMemoryBackend(codec.Indexes()...))
}

func TestImporter_Import(t *testing.T) {
	ctx := context.Background()
	s := newImportStore()

	snap, err := services.ReadSnapshot(strings.NewReader(export))
	require.NoError(t, err)

	res, err := services.NewImporter(s).Import(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, services.ImportResult{EpicsCreated: 1, EpicsSkipped: 1, TasksCreated: 2, TasksSkipped: 1}, res)

	numeric, err := s.GetTask(ctx, "1770189406756")
	require.NoError(t, err)
	assert.Equal(t, models.ColumnInProgress, numeric.Column)
	assert.Equal(t, "2026-01-11T09:00:00.000Z", codec.FormatTime(numeric.CreatedAt))

	legacy, err := s.GetTask(ctx, "legacy-7")
	require.NoError(t, err)
	assert.Equal(t, models.ColumnBacklog, legacy.Column, "unknown columns land in Backlog")
	assert.Equal(t, []models.TaskID{"1770189406756"}, legacy.DependsOn)

	inEpic, err := s.GetTasksByEpic(ctx, "epic-1")
	require.NoError(t, err)
	require.Len(t, inEpic, 1)
	assert.Equal(t, "Numeric id", inEpic[0].Title)
}

func TestImporter_RerunSkipsExisting(t *testing.T) {
	ctx := context.Background()
	s := newImportStore()
	importer := services.NewImporter(s)

	snap, err := services.ReadSnapshot(strings.NewReader(export))
	require.NoError(t, err)
	_, err = importer.Import(ctx, snap)
	require.NoError(t, err)

	res, err := importer.Import(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, 0, res.EpicsCreated)
	assert.Equal(t, 0, res.TasksCreated)
	assert.Equal(t, 3, res.TasksSkipped)

	tasks, err := s.GetAllTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestImporter_OverwriteReplacesTasks(t *testing.T) {
	ctx := context.Background()
	s := newImportStore()

	_, err := s.CreateTask(ctx, models.Task{ID: "legacy-7", Title: "edited on the board", Column: models.ColumnReview})
	require.NoError(t, err)

	snap, err := services.ReadSnapshot(strings.NewReader(export))
	require.NoError(t, err)

	res, err := services.NewImporter(s, services.WithOverwrite()).Import(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, services.ImportResult{EpicsCreated: 1, EpicsSkipped: 1, TasksCreated: 1, TasksReplaced: 1, TasksSkipped: 1}, res)

	legacy, err := s.GetTask(ctx, "legacy-7")
	require.NoError(t, err)
	assert.Equal(t, "String id", legacy.Title)
	assert.Equal(t, models.ColumnBacklog, legacy.Column)
	assert.Equal(t, []models.TaskID{"1770189406756"}, legacy.DependsOn)
}

func TestReadSnapshot_Invalid(t *testing.T) {
	_, err := services.ReadSnapshot(strings.NewReader(`{"tasks": [{"id": 1.5}]}`))
	assert.Error(t, err)

	_, err = services.ReadSnapshot(strings.NewReader(`not json`))
	assert.Error(t, err)
}

func TestImporter_BackfillSources(t *testing.T) {
	ctx := context.Background()
	s := newImportStore()

	slack := models.SourceSlack
	require.NoError(t, s.PutTask(ctx, models.Task{ID: "1", Title: "no source", Column: models.ColumnBacklog}))
	require.NoError(t, s.PutTask(ctx, models.Task{ID: "2", Title: "slack", Column: models.ColumnBacklog, Source: &slack}))
	deleted := s.Now()
	require.NoError(t, s.PutTask(ctx, models.Task{ID: "3", Title: "trashed", Column: models.ColumnBacklog, DeletedAt: &deleted}))

	importer := services.NewImporter(s)

	_, err := importer.BackfillSources(ctx, "carrier-pigeon")
	assert.ErrorIs(t, err, store.ErrValidation)

	n, err := importer.BackfillSources(ctx, models.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for id, want := range map[models.TaskID]models.Source{"1": models.SourceManual, "2": models.SourceSlack, "3": models.SourceManual} {
		task, err := s.GetTask(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, task.Source, id)
		assert.Equal(t, want, *task.Source, id)
	}

	n, err = importer.BackfillSources(ctx, models.SourceManual)
	require.NoError(t, err)
	assert.Zero(t, n)
}
