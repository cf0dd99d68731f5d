package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"
)

type Column string

const (
	ColumnRecurring  Column = "Recurring"
	ColumnBacklog    Column = "Backlog"
	ColumnInProgress Column = "In Progress"
	ColumnReview     Column = "Review"
	ColumnDone       Column = "Done"
)

// BoardColumns are the columns a user can pick manually. Done is reached
// only by completing a task.
var BoardColumns = []Column{ColumnRecurring, ColumnBacklog, ColumnInProgress, ColumnReview}

// SatisfiedColumn is the column a dependency must reach before its
// dependents stop being blocked.
const SatisfiedColumn = ColumnReview

func (c Column) IsValid() bool {
	return c == ColumnDone || slices.Contains(BoardColumns, c)
}

// IsSelectable reports whether c may be set through a plain update.
func (c Column) IsSelectable() bool {
	return slices.Contains(BoardColumns, c)
}

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
	PriorityNone   Priority = "none"
)

var priorityOrder = map[Priority]int{
	PriorityUrgent: 1,
	PriorityHigh:   2,
	PriorityMedium: 3,
	PriorityLow:    4,
	PriorityNone:   5,
}

func (p Priority) IsValid() bool {
	_, ok := priorityOrder[p]
	return ok
}

// Order ranks priorities for sorting, urgent first.
func (p Priority) Order() int {
	if o, ok := priorityOrder[p]; ok {
		return o
	}
	return priorityOrder[PriorityNone]
}

type Source string

const (
	SourceManual Source = "manual"
	SourceSlack  Source = "slack"
	SourceJira   Source = "jira"
	SourceGitHub Source = "github"
	SourceEmail  Source = "email"
)

func (s Source) IsValid() bool {
	switch s {
	case SourceManual, SourceSlack, SourceJira, SourceGitHub, SourceEmail:
		return true
	}
	return false
}

// KnownTags is the tag vocabulary offered by the board. Unknown tags are
// accepted and stored as-is.
var KnownTags = []string{"bug", "feature", "improvement", "urgent", "documentation"}

// TeamMembers are the people tasks are normally assigned to.
var TeamMembers = []string{"Jason", "Miti"}

// TaskID identifies a task. Board-created ids are millisecond timestamps, imported
// ids may be arbitrary strings; both are carried as text.
type TaskID string

// NewTaskID derives an id from the creation instant.
func NewTaskID(t time.Time) TaskID {
	return TaskID(strconv.FormatInt(t.UnixMilli(), 10))
}

func (id TaskID) String() string { return string(id) }

func (id TaskID) isNumeric() bool {
	if len(id) == 0 || len(id) > 15 || (len(id) > 1 && id[0] == '0') {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}

// MarshalJSON writes numeric ids as JSON numbers so the board UI keeps
// receiving the shape it created.
func (id TaskID) MarshalJSON() ([]byte, error) {
	if id.isNumeric() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *TaskID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = TaskID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("task id must be a string or number: %w", err)
	}
	if _, err := n.Int64(); err != nil {
		return fmt.Errorf("task id must be an integer: %s", n)
	}
	*id = TaskID(n.String())
	return nil
}

type Task struct {
	ID          TaskID     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Column      Column     `json:"column"`
	Tags        []string   `json:"tags,omitempty"`
	EpicID      *string    `json:"epicId,omitempty"`
	AssignedTo  *string    `json:"assignedTo,omitempty"`
	DependsOn   []TaskID   `json:"dependsOn,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Source      *Source    `json:"source,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

// IsDeleted reports whether the task sits in the trash.
func (t Task) IsDeleted() bool {
	return t.DeletedAt != nil
}

func (t Task) HasTag(tag string) bool {
	return slices.Contains(t.Tags, tag)
}

// Clone returns a deep copy so callers can mutate the result freely.
func (t Task) Clone() Task {
	c := t
	c.Tags = slices.Clone(t.Tags)
	c.DependsOn = slices.Clone(t.DependsOn)
	c.EpicID = clonePtr(t.EpicID)
	c.AssignedTo = clonePtr(t.AssignedTo)
	c.Priority = clonePtr(t.Priority)
	c.DueDate = clonePtr(t.DueDate)
	c.Source = clonePtr(t.Source)
	c.CompletedAt = clonePtr(t.CompletedAt)
	c.DeletedAt = clonePtr(t.DeletedAt)
	return c
}

// EffectivePriority returns the explicit priority if set, otherwise one
// derived from the urgent/high tags and then from how close the due date is.
func EffectivePriority(t Task, now time.Time) Priority {
	if t.Priority != nil && t.Priority.IsValid() {
		return *t.Priority
	}
	if t.HasTag("urgent") {
		return PriorityUrgent
	}
	if t.HasTag("high") {
		return PriorityHigh
	}
	if t.DueDate != nil {
		days := DaysUntil(*t.DueDate, now)
		switch {
		case days <= 1:
			return PriorityUrgent
		case days <= 3:
			return PriorityHigh
		case days <= 7:
			return PriorityMedium
		}
	}
	return PriorityNone
}

// DaysUntil is the number of days from now until t, rounded up.
func DaysUntil(t, now time.Time) int {
	return int(math.Ceil(t.Sub(now).Hours() / 24))
}

// IsOverdue reports whether an unfinished task is past its due date.
func (t Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && t.DueDate.Before(now) && t.Column != ColumnDone
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
