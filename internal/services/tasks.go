package services

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"mission-control/board/internal/deps"
	"mission-control/board/internal/lifecycle"
	"mission-control/board/internal/models"
	"mission-control/board/internal/store"

	"github.com/rs/zerolog/log"
)

type TaskService interface {
	ListTasks(ctx context.Context, filter TaskFilter) ([]TaskView, error)
	GetTask(ctx context.Context, id models.TaskID) (TaskView, error)
	CreateTask(ctx context.Context, task models.Task) (models.Task, error)
	UpdateTask(ctx context.Context, id models.TaskID, patch models.TaskPatch) (models.Task, error)
	CompleteTask(ctx context.Context, id models.TaskID) (models.Task, error)
	ReopenTask(ctx context.Context, id models.TaskID) (models.Task, error)

	AddDependency(ctx context.Context, id, dependsOn models.TaskID) (models.Task, error)
	RemoveDependency(ctx context.Context, id, dependsOn models.TaskID) (models.Task, error)
	WouldCreateCycle(ctx context.Context, id, dependsOn models.TaskID) (bool, error)
	Blockers(ctx context.Context, id models.TaskID) ([]deps.Blocker, error)
	Dependents(ctx context.Context, id models.TaskID) ([]models.TaskID, error)

	TasksByEpic(ctx context.Context, epicID string) ([]models.Task, error)
	TasksByAssignee(ctx context.Context, assignee string) ([]models.Task, error)

	SoftDelete(ctx context.Context, id models.TaskID) (models.Task, error)
	Restore(ctx context.Context, id models.TaskID) (models.Task, error)
	HardDelete(ctx context.Context, id models.TaskID) error
	ListTrashed(ctx context.Context) ([]lifecycle.TrashedTask, error)
	CleanupOldDeletedTasks(ctx context.Context, days int) (int, error)
}

// TaskView is a task as the board shows it: with its blocked state, the
// resolved epic and the priority it effectively sorts by.
type TaskView struct {
	models.Task
	Blocked           bool            `json:"blocked"`
	BlockedBy         []models.TaskID `json:"blockedBy,omitempty"`
	Epic              *models.Epic    `json:"epic,omitempty"`
	EffectivePriority models.Priority `json:"effectivePriority"`
	Overdue           bool            `json:"overdue"`
}

// TaskFilter narrows ListTasks. Empty fields match everything.
type TaskFilter struct {
	Column     models.Column
	EpicID     string
	AssignedTo string
	Source     models.Source
	Tag        string
}

func (f TaskFilter) match(t models.Task) bool {
	if f.Column != "" && t.Column != f.Column {
		return false
	}
	if f.EpicID != "" && (t.EpicID == nil || *t.EpicID != f.EpicID) {
		return false
	}
	if f.AssignedTo != "" && (t.AssignedTo == nil || *t.AssignedTo != f.AssignedTo) {
		return false
	}
	if f.Source != "" && (t.Source == nil || *t.Source != f.Source) {
		return false
	}
	if f.Tag != "" && !t.HasTag(f.Tag) {
		return false
	}
	return true
}

const maxIDAttempts = 5

// BoardService implements TaskService and EpicService over the store.
type BoardService struct {
	store     *store.Store
	lifecycle *lifecycle.Manager
	now       func() time.Time
}

func NewBoardService(s *store.Store, lm *lifecycle.Manager) *BoardService {
	return &BoardService{store: s, lifecycle: lm, now: s.Now}
}

func (s *BoardService) ListTasks(ctx context.Context, filter TaskFilter) ([]TaskView, error) {
	tasks, err := s.store.GetAllTasks(ctx)
	if err != nil {
		return nil, err
	}
	epics, err := s.epicIndex(ctx)
	if err != nil {
		return nil, err
	}

	graph := deps.NewGraph(tasks)
	now := s.now()
	views := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		if filter.match(t) {
			views = append(views, s.view(t, graph, epics, now))
		}
	}
	return views, nil
}

func (s *BoardService) GetTask(ctx context.Context, id models.TaskID) (TaskView, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return TaskView{}, err
	}
	tasks, err := s.store.GetAllTasks(ctx)
	if err != nil {
		return TaskView{}, err
	}

	var epics map[string]models.Epic
	if task.EpicID != nil {
		epics = map[string]models.Epic{}
		epic, err := s.store.GetEpic(ctx, *task.EpicID)
		switch {
		case err == nil:
			epics[epic.ID] = epic
		case !errors.Is(err, store.ErrNotFound):
			return TaskView{}, err
		}
	}
	return s.view(task, deps.NewGraph(tasks), epics, s.now()), nil
}

func (s *BoardService) epicIndex(ctx context.Context) (map[string]models.Epic, error) {
	epics, err := s.store.GetAllEpics(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Epic, len(epics))
	for _, e := range epics {
		out[e.ID] = e
	}
	return out, nil
}

// view resolves the epic lazily: a dangling epicId shows as no epic.
func (s *BoardService) view(t models.Task, graph deps.Graph, epics map[string]models.Epic, now time.Time) TaskView {
	v := TaskView{
		Task:              t,
		Blocked:           graph.IsBlocked(t),
		EffectivePriority: models.EffectivePriority(t, now),
		Overdue:           t.IsOverdue(now),
	}
	for _, b := range graph.BlockingTasks(t) {
		v.BlockedBy = append(v.BlockedBy, b.ID)
	}
	if t.EpicID != nil {
		if epic, ok := epics[*t.EpicID]; ok {
			v.Epic = &epic
		}
	}
	return v
}

// CreateTask validates and stores a new task. Without an id one is derived
// from the clock, stepping forward if two creations land on the same
// millisecond.
func (s *BoardService) CreateTask(ctx context.Context, task models.Task) (models.Task, error) {
	task.Title = strings.TrimSpace(task.Title)
	if task.Title == "" {
		return models.Task{}, store.Validation("title is required")
	}
	if task.Column == "" {
		task.Column = models.ColumnBacklog
	}
	if !task.Column.IsSelectable() {
		return models.Task{}, store.Validation("column %q cannot be set directly", task.Column)
	}
	if err := validateEnums(task.Priority, task.Source); err != nil {
		return models.Task{}, err
	}
	if task.Source == nil {
		src := models.SourceManual
		task.Source = &src
	}
	task.EpicID = emptyToNil(task.EpicID)
	task.AssignedTo = emptyToNil(task.AssignedTo)
	task.Tags = dedupe(task.Tags)
	task.CompletedAt = nil
	task.DeletedAt = nil

	now := s.now()
	task.CreatedAt, task.UpdatedAt = now, now

	generated := task.ID == ""
	if generated {
		task.ID = models.NewTaskID(now)
	}

	requested := dedupe(task.DependsOn)
	for attempt := 0; ; attempt++ {
		all, err := s.store.GetTaskRecords(ctx)
		if err != nil {
			return models.Task{}, err
		}
		task.DependsOn, err = checkedEdges(task.ID, requested, all)
		if err != nil {
			return models.Task{}, err
		}

		created, err := s.store.CreateTask(ctx, task)
		if err == nil {
			log.Info().Str("task_id", string(created.ID)).Msg("task created")
			return created, nil
		}
		if !generated || !errors.Is(err, store.ErrDuplicateKey) || attempt+1 >= maxIDAttempts {
			return models.Task{}, err
		}
		task.ID = nextID(task.ID)
	}
}

func nextID(id models.TaskID) models.TaskID {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return id + "-1"
	}
	return models.TaskID(strconv.FormatInt(n+1, 10))
}

// checkedEdges builds the dependency list for id one edge at a time,
// rejecting the first edge that would close a cycle.
func checkedEdges(id models.TaskID, requested []models.TaskID, all []models.Task) ([]models.TaskID, error) {
	working := make([]models.Task, 0, len(all)+1)
	for _, t := range all {
		if t.ID != id {
			working = append(working, t)
		}
	}
	working = append(working, models.Task{ID: id})
	self := &working[len(working)-1]

	graph := deps.NewGraph(working)
	var out []models.TaskID
	for _, dep := range requested {
		if graph.WouldCreateCycle(id, dep) {
			return nil, store.Validation("depending on %s would create a cycle", dep)
		}
		out = append(out, dep)
		self.DependsOn = out
	}
	return out, nil
}

func (s *BoardService) UpdateTask(ctx context.Context, id models.TaskID, patch models.TaskPatch) (models.Task, error) {
	current, err := s.store.GetTask(ctx, id)
	if err != nil {
		return models.Task{}, err
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return models.Task{}, store.Validation("title is required")
		}
		patch.Title = &title
	}
	if patch.Column != nil {
		if *patch.Column == models.ColumnDone && current.Column != models.ColumnDone {
			return models.Task{}, store.Validation("tasks reach Done by completing them")
		}
		if !patch.Column.IsValid() {
			return models.Task{}, store.Validation("unknown column %q", *patch.Column)
		}
		if current.Column == models.ColumnDone && *patch.Column != models.ColumnDone {
			patch.CompletedAt = models.Clear[time.Time]()
		}
	}
	if err := validateEnums(patch.Priority.Value, patch.Source.Value); err != nil {
		return models.Task{}, err
	}
	if patch.Tags != nil {
		tags := dedupe(*patch.Tags)
		patch.Tags = &tags
	}
	if patch.DependsOn != nil {
		all, err := s.store.GetTaskRecords(ctx)
		if err != nil {
			return models.Task{}, err
		}
		edges, err := checkedEdges(id, dedupe(*patch.DependsOn), all)
		if err != nil {
			return models.Task{}, err
		}
		patch.DependsOn = &edges
	}
	patch.EpicID = clearEmpty(patch.EpicID)
	patch.AssignedTo = clearEmpty(patch.AssignedTo)

	return s.store.UpdateTask(ctx, id, patch)
}

func (s *BoardService) CompleteTask(ctx context.Context, id models.TaskID) (models.Task, error) {
	current, err := s.store.GetTask(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	if current.Column == models.ColumnDone {
		return current, nil
	}
	done := models.ColumnDone
	return s.store.UpdateTask(ctx, id, models.TaskPatch{
		Column:      &done,
		CompletedAt: models.SetTo(s.now()),
	})
}

func (s *BoardService) ReopenTask(ctx context.Context, id models.TaskID) (models.Task, error) {
	current, err := s.store.GetTask(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	if current.Column != models.ColumnDone {
		return models.Task{}, store.Validation("task %s is not done", id)
	}
	backlog := models.ColumnBacklog
	return s.store.UpdateTask(ctx, id, models.TaskPatch{
		Column:      &backlog,
		CompletedAt: models.Clear[time.Time](),
	})
}

func (s *BoardService) AddDependency(ctx context.Context, id, dependsOn models.TaskID) (models.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	if slices.Contains(task.DependsOn, dependsOn) {
		return task, nil
	}
	all, err := s.store.GetTaskRecords(ctx)
	if err != nil {
		return models.Task{}, err
	}
	if deps.WouldCreateCycle(id, dependsOn, all) {
		return models.Task{}, store.Validation("depending on %s would create a cycle", dependsOn)
	}

	next := append(slices.Clone(task.DependsOn), dependsOn)
	return s.store.UpdateTask(ctx, id, models.TaskPatch{DependsOn: &next})
}

func (s *BoardService) RemoveDependency(ctx context.Context, id, dependsOn models.TaskID) (models.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	if !slices.Contains(task.DependsOn, dependsOn) {
		return task, nil
	}
	next := slices.DeleteFunc(slices.Clone(task.DependsOn), func(d models.TaskID) bool { return d == dependsOn })
	return s.store.UpdateTask(ctx, id, models.TaskPatch{DependsOn: &next})
}

// WouldCreateCycle checks the edge against every task record, trashed ones
// included, since a restore brings their edges back.
func (s *BoardService) WouldCreateCycle(ctx context.Context, id, dependsOn models.TaskID) (bool, error) {
	if _, err := s.store.GetTask(ctx, id); err != nil {
		return false, err
	}
	all, err := s.store.GetTaskRecords(ctx)
	if err != nil {
		return false, err
	}
	return deps.WouldCreateCycle(id, dependsOn, all), nil
}

func (s *BoardService) Blockers(ctx context.Context, id models.TaskID) ([]deps.Blocker, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	all, err := s.store.GetAllTasks(ctx)
	if err != nil {
		return nil, err
	}
	return deps.BlockingTasks(task, all), nil
}

// Dependents lists the active tasks that depend on id.
func (s *BoardService) Dependents(ctx context.Context, id models.TaskID) ([]models.TaskID, error) {
	if _, err := s.store.GetTask(ctx, id); err != nil {
		return nil, err
	}
	all, err := s.store.GetAllTasks(ctx)
	if err != nil {
		return nil, err
	}
	return deps.Dependents(id, all), nil
}

func (s *BoardService) TasksByEpic(ctx context.Context, epicID string) ([]models.Task, error) {
	return s.store.GetTasksByEpic(ctx, epicID)
}

func (s *BoardService) TasksByAssignee(ctx context.Context, assignee string) ([]models.Task, error) {
	return s.store.GetTasksByAssignee(ctx, assignee)
}

func (s *BoardService) SoftDelete(ctx context.Context, id models.TaskID) (models.Task, error) {
	return s.lifecycle.SoftDelete(ctx, id)
}

func (s *BoardService) Restore(ctx context.Context, id models.TaskID) (models.Task, error) {
	return s.lifecycle.Restore(ctx, id)
}

func (s *BoardService) HardDelete(ctx context.Context, id models.TaskID) error {
	return s.lifecycle.HardDelete(ctx, id)
}

func (s *BoardService) ListTrashed(ctx context.Context) ([]lifecycle.TrashedTask, error) {
	return s.lifecycle.ListTrashed(ctx)
}

func (s *BoardService) CleanupOldDeletedTasks(ctx context.Context, days int) (int, error) {
	return s.lifecycle.PurgeOlderThan(ctx, days)
}

func validateEnums(priority *models.Priority, source *models.Source) error {
	if priority != nil && !priority.IsValid() {
		return store.Validation("unknown priority %q", *priority)
	}
	if source != nil && !source.IsValid() {
		return store.Validation("unknown source %q", *source)
	}
	return nil
}

func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func clearEmpty(n models.Nullable[string]) models.Nullable[string] {
	if n.Set && n.Value != nil && strings.TrimSpace(*n.Value) == "" {
		return models.Clear[string]()
	}
	return n
}

func dedupe[T comparable](in []T) []T {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[T]bool, len(in))
	out := make([]T, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

var _ TaskService = (*BoardService)(nil)
