package models

import (
	"encoding/json"
	"time"
)

// Nullable is a patch field for an optional attribute. The zero value leaves
// the attribute untouched; Set with a nil Value clears it.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

func SetTo[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Value: &v}
}

func Clear[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

// UnmarshalJSON is only invoked for keys present in the document, so a
// JSON null clears and any other value sets.
func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// TaskPatch is a merge-patch over a task. Nil pointers and unset Nullables
// are left alone.
type TaskPatch struct {
	Title       *string             `json:"title"`
	Description *string             `json:"description"`
	Column      *Column             `json:"column"`
	Tags        *[]string           `json:"tags"`
	EpicID      Nullable[string]    `json:"epicId"`
	AssignedTo  Nullable[string]    `json:"assignedTo"`
	DependsOn   *[]TaskID           `json:"dependsOn"`
	Priority    Nullable[Priority]  `json:"priority"`
	DueDate     Nullable[time.Time] `json:"dueDate"`
	Source      Nullable[Source]    `json:"source"`

	// Lifecycle fields; not accepted from API callers.
	CompletedAt Nullable[time.Time] `json:"-"`
	DeletedAt   Nullable[time.Time] `json:"-"`
}

// IsEmpty reports whether the patch changes nothing.
func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Column == nil && p.Tags == nil &&
		!p.EpicID.Set && !p.AssignedTo.Set && p.DependsOn == nil && !p.Priority.Set &&
		!p.DueDate.Set && !p.Source.Set && !p.CompletedAt.Set && !p.DeletedAt.Set
}

type EpicPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Color       *string `json:"color"`
}

func (p EpicPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Color == nil
}
