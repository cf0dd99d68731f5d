package services_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"mission-control/board/internal/codec"
	"mission-control/board/internal/lifecycle"
	"mission-control/board/internal/models"
	"mission-control/board/internal/services"
	"mission-control/board/internal/store"
	"mission-control/board/internal/table"

	"github.com/stretchr/testify/suite"
)

func ptr[T any](v T) *T { return &v }

type BoardServiceTestSuite struct {
	suite.Suite
	now     time.Time
	store   *store.Store
	service *services.BoardService
	ctx     context.Context
}

func (s *BoardServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 2, 4, 7, 16, 46, 756_000_000, time.UTC)
	clock := func() time.Time { return s.now }
	s.store = store.New(table.NewMemoryBackend(codec.Indexes()...), store.WithClock(clock))
	s.service = services.NewBoardService(s.store, lifecycle.NewManager(s.store, lifecycle.WithClock(clock)))
}

func (s *BoardServiceTestSuite) create(task models.Task) models.Task {
	created, err := s.service.CreateTask(s.ctx, task)
	s.Require().NoError(err)
	return created
}

func (s *BoardServiceTestSuite) TestCreateTaskDefaults() {
	created := s.create(models.Task{Title: "  Write release notes  "})

	s.Equal(models.TaskID("1770189406756"), created.ID)
	s.Equal("Write release notes", created.Title)
	s.Equal(models.ColumnBacklog, created.Column)
	s.Require().NotNil(created.Source)
	s.Equal(models.SourceManual, *created.Source)
	s.True(s.now.Equal(created.CreatedAt))
}

func (s *BoardServiceTestSuite) TestCreateTaskSameMillisecondGetsNextID() {
	first := s.create(models.Task{Title: "one"})
	second := s.create(models.Task{Title: "two"})

	s.Equal(models.TaskID("1770189406756"), first.ID)
	s.Equal(models.TaskID("1770189406757"), second.ID)
}

func (s *BoardServiceTestSuite) TestCreateTaskExplicitDuplicateID() {
	s.create(models.Task{ID: "7", Title: "one"})

	_, err := s.service.CreateTask(s.ctx, models.Task{ID: "7", Title: "two"})
	s.ErrorIs(err, store.ErrDuplicateKey)
}

func (s *BoardServiceTestSuite) TestCreateTaskValidation() {
	tests := []struct {
		name string
		task models.Task
	}{
		{name: "blank title", task: models.Task{Title: "   "}},
		{name: "done column", task: models.Task{Title: "x", Column: models.ColumnDone}},
		{name: "unknown column", task: models.Task{Title: "x", Column: "Icebox"}},
		{name: "bad priority", task: models.Task{Title: "x", Priority: ptr(models.Priority("critical"))}},
		{name: "bad source", task: models.Task{Title: "x", Source: ptr(models.Source("fax"))}},
		{name: "self dependency", task: models.Task{ID: "9", Title: "x", DependsOn: []models.TaskID{"9"}}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.CreateTask(s.ctx, tt.task)
			s.ErrorIs(err, store.ErrValidation)
		})
	}
}

func (s *BoardServiceTestSuite) TestCreateTaskRejectsCycleThroughDanglingReference() {
	// 1 already waits on 2, which does not exist yet.
	s.create(models.Task{ID: "1", Title: "one", DependsOn: []models.TaskID{"2"}})

	_, err := s.service.CreateTask(s.ctx, models.Task{ID: "2", Title: "two", DependsOn: []models.TaskID{"1"}})
	s.ErrorIs(err, store.ErrValidation)

	_, err = s.store.GetTask(s.ctx, "2")
	s.ErrorIs(err, store.ErrNotFound, "rejected task must not be stored")
}

func (s *BoardServiceTestSuite) TestUpdateTaskRejectsCycle() {
	s.create(models.Task{ID: "a", Title: "a"})
	s.create(models.Task{ID: "b", Title: "b", DependsOn: []models.TaskID{"a"}})

	_, err := s.service.UpdateTask(s.ctx, "a", models.TaskPatch{DependsOn: &[]models.TaskID{"b"}})
	s.ErrorIs(err, store.ErrValidation)

	a, err := s.store.GetTask(s.ctx, "a")
	s.Require().NoError(err)
	s.Empty(a.DependsOn)
}

func (s *BoardServiceTestSuite) TestUpdateTaskCannotMoveToDone() {
	s.create(models.Task{ID: "a", Title: "a"})

	done := models.ColumnDone
	_, err := s.service.UpdateTask(s.ctx, "a", models.TaskPatch{Column: &done})
	s.ErrorIs(err, store.ErrValidation)
}

func (s *BoardServiceTestSuite) TestUpdateTaskMissing() {
	_, err := s.service.UpdateTask(s.ctx, "404", models.TaskPatch{Title: ptr("x")})
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *BoardServiceTestSuite) TestUpdateTaskEmptyAssigneeClears() {
	s.create(models.Task{ID: "a", Title: "a", AssignedTo: ptr("Miti")})

	updated, err := s.service.UpdateTask(s.ctx, "a", models.TaskPatch{AssignedTo: models.SetTo("")})
	s.Require().NoError(err)
	s.Nil(updated.AssignedTo)

	byMiti, err := s.service.TasksByAssignee(s.ctx, "Miti")
	s.Require().NoError(err)
	s.Empty(byMiti)
}

func (s *BoardServiceTestSuite) TestCompleteAndReopen() {
	s.create(models.Task{ID: "a", Title: "a", Column: models.ColumnReview})
	s.now = s.now.Add(time.Hour)

	done, err := s.service.CompleteTask(s.ctx, "a")
	s.Require().NoError(err)
	s.Equal(models.ColumnDone, done.Column)
	s.Require().NotNil(done.CompletedAt)
	s.True(s.now.Equal(*done.CompletedAt))

	reopened, err := s.service.ReopenTask(s.ctx, "a")
	s.Require().NoError(err)
	s.Equal(models.ColumnBacklog, reopened.Column)
	s.Nil(reopened.CompletedAt)

	_, err = s.service.ReopenTask(s.ctx, "a")
	s.ErrorIs(err, store.ErrValidation)
}

func (s *BoardServiceTestSuite) TestMovingOutOfDoneClearsCompletedAt() {
	s.create(models.Task{ID: "a", Title: "a"})
	_, err := s.service.CompleteTask(s.ctx, "a")
	s.Require().NoError(err)

	progress := models.ColumnInProgress
	moved, err := s.service.UpdateTask(s.ctx, "a", models.TaskPatch{Column: &progress})
	s.Require().NoError(err)
	s.Nil(moved.CompletedAt)
}

func (s *BoardServiceTestSuite) TestDependencyEdges() {
	s.create(models.Task{ID: "a", Title: "a"})
	s.create(models.Task{ID: "b", Title: "b"})

	b, err := s.service.AddDependency(s.ctx, "b", "a")
	s.Require().NoError(err)
	s.Equal([]models.TaskID{"a"}, b.DependsOn)

	b, err = s.service.AddDependency(s.ctx, "b", "a")
	s.Require().NoError(err)
	s.Equal([]models.TaskID{"a"}, b.DependsOn, "adding twice is a no-op")

	dependents, err := s.service.Dependents(s.ctx, "a")
	s.Require().NoError(err)
	s.Equal([]models.TaskID{"b"}, dependents)

	_, err = s.service.Dependents(s.ctx, "missing")
	s.ErrorIs(err, store.ErrNotFound)

	cycle, err := s.service.WouldCreateCycle(s.ctx, "a", "b")
	s.Require().NoError(err)
	s.True(cycle)

	_, err = s.service.AddDependency(s.ctx, "a", "b")
	s.ErrorIs(err, store.ErrValidation)

	b, err = s.service.RemoveDependency(s.ctx, "b", "a")
	s.Require().NoError(err)
	s.Empty(b.DependsOn)

	cycle, err = s.service.WouldCreateCycle(s.ctx, "a", "b")
	s.Require().NoError(err)
	s.False(cycle)
}

func (s *BoardServiceTestSuite) TestReviewUnblocksDependents() {
	_, err := s.service.CreateEpic(s.ctx, models.Epic{ID: "E1", Name: "E1"})
	s.Require().NoError(err)
	s.create(models.Task{ID: "T1", Title: "T1", EpicID: ptr("E1")})
	s.create(models.Task{ID: "T2", Title: "T2", DependsOn: []models.TaskID{"T1"}})

	view, err := s.service.GetTask(s.ctx, "T2")
	s.Require().NoError(err)
	s.True(view.Blocked)
	s.Equal([]models.TaskID{"T1"}, view.BlockedBy)

	blockers, err := s.service.Blockers(s.ctx, "T2")
	s.Require().NoError(err)
	s.Require().Len(blockers, 1)
	s.Equal("T1", blockers[0].Task.Title)

	review := models.ColumnReview
	_, err = s.service.UpdateTask(s.ctx, "T1", models.TaskPatch{Column: &review})
	s.Require().NoError(err)

	view, err = s.service.GetTask(s.ctx, "T2")
	s.Require().NoError(err)
	s.False(view.Blocked)
	s.Empty(view.BlockedBy)
}

func (s *BoardServiceTestSuite) TestListTasksResolvesEpicsAndFilters() {
	_, err := s.service.CreateEpic(s.ctx, models.Epic{ID: "E1", Name: "Launch"})
	s.Require().NoError(err)
	s.create(models.Task{ID: "1", Title: "in epic", EpicID: ptr("E1"), AssignedTo: ptr("Jason")})
	s.create(models.Task{ID: "2", Title: "dangling", EpicID: ptr("gone")})
	s.create(models.Task{ID: "3", Title: "urgent", Tags: []string{"urgent"}, AssignedTo: ptr("Miti")})

	views, err := s.service.ListTasks(s.ctx, services.TaskFilter{})
	s.Require().NoError(err)
	s.Require().Len(views, 3)
	s.Require().NotNil(views[0].Epic)
	s.Equal("Launch", views[0].Epic.Name)
	s.Nil(views[1].Epic, "missing epic degrades to no epic")
	s.Equal(models.PriorityUrgent, views[2].EffectivePriority)

	mine, err := s.service.ListTasks(s.ctx, services.TaskFilter{AssignedTo: "Miti"})
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Equal(models.TaskID("3"), mine[0].ID)
}

func (s *BoardServiceTestSuite) TestDeleteEpicScenario() {
	epic, err := s.service.CreateEpic(s.ctx, models.Epic{Name: "E1"})
	s.Require().NoError(err)
	s.True(strings.HasPrefix(epic.ID, "epic-"))
	s.Equal(services.DefaultEpicColor, epic.Color)

	s.create(models.Task{ID: "T1", Title: "T1", EpicID: &epic.ID})

	cleared, err := s.service.DeleteEpic(s.ctx, epic.ID)
	s.Require().NoError(err)
	s.Equal(1, cleared)

	view, err := s.service.GetTask(s.ctx, "T1")
	s.Require().NoError(err)
	s.Nil(view.EpicID)
	s.Nil(view.Epic)

	inEpic, err := s.service.TasksByEpic(s.ctx, epic.ID)
	s.Require().NoError(err)
	s.Empty(inEpic)
}

func (s *BoardServiceTestSuite) TestEpicValidation() {
	_, err := s.service.CreateEpic(s.ctx, models.Epic{Name: " "})
	s.ErrorIs(err, store.ErrValidation)

	epic, err := s.service.CreateEpic(s.ctx, models.Epic{Name: "ok"})
	s.Require().NoError(err)

	_, err = s.service.UpdateEpic(s.ctx, epic.ID, models.EpicPatch{Name: ptr("")})
	s.ErrorIs(err, store.ErrValidation)

	renamed, err := s.service.UpdateEpic(s.ctx, epic.ID, models.EpicPatch{Name: ptr("Renamed")})
	s.Require().NoError(err)
	s.Equal("Renamed", renamed.Name)
}

func (s *BoardServiceTestSuite) TestTrashedTaskEdgesStillCountForCycles() {
	s.create(models.Task{ID: "A", Title: "A"})
	s.create(models.Task{ID: "B", Title: "B", DependsOn: []models.TaskID{"A"}})

	_, err := s.service.SoftDelete(s.ctx, "B")
	s.Require().NoError(err)

	cycle, err := s.service.WouldCreateCycle(s.ctx, "A", "B")
	s.Require().NoError(err)
	s.True(cycle, "B still depends on A from the trash")

	_, err = s.service.AddDependency(s.ctx, "A", "B")
	s.ErrorIs(err, store.ErrValidation)

	dependsOn := []models.TaskID{"B"}
	_, err = s.service.UpdateTask(s.ctx, "A", models.TaskPatch{DependsOn: &dependsOn})
	s.ErrorIs(err, store.ErrValidation)

	_, err = s.service.CreateTask(s.ctx, models.Task{ID: "C", Title: "C", DependsOn: []models.TaskID{"B"}})
	s.Require().NoError(err)

	restored, err := s.service.Restore(s.ctx, "B")
	s.Require().NoError(err)
	s.Equal([]models.TaskID{"A"}, restored.DependsOn)

	a, err := s.store.GetTask(s.ctx, "A")
	s.Require().NoError(err)
	s.Empty(a.DependsOn)
}

func (s *BoardServiceTestSuite) TestTrashThroughService() {
	s.create(models.Task{ID: "a", Title: "a"})

	_, err := s.service.SoftDelete(s.ctx, "a")
	s.Require().NoError(err)

	views, err := s.service.ListTasks(s.ctx, services.TaskFilter{})
	s.Require().NoError(err)
	s.Empty(views)

	trashed, err := s.service.ListTrashed(s.ctx)
	s.Require().NoError(err)
	s.Len(trashed, 1)

	s.now = s.now.Add(8 * 24 * time.Hour)
	purged, err := s.service.CleanupOldDeletedTasks(s.ctx, 7)
	s.Require().NoError(err)
	s.Equal(1, purged)

	_, err = s.service.Restore(s.ctx, "a")
	s.ErrorIs(err, store.ErrNotFound)
}

func TestBoardServiceTestSuite(t *testing.T) {
	suite.Run(t, new(BoardServiceTestSuite))
}
