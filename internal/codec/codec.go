// Package codec maps tasks and epics onto single-table items.
//
// Each entity lives in its own partition (TASK#<id> or EPIC#<id>) under the
// fixed sort key METADATA. Index attributes are written onto the item itself:
// epicId+taskId feeds the by-epic index and assignedTo+createdAt feeds the
// by-assignee index.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"mission-control/board/internal/models"
	"mission-control/board/internal/table"
)

const (
	TaskPrefix  = "TASK#"
	EpicPrefix  = "EPIC#"
	MetadataSK  = "METADATA"
	TypeTask    = "task"
	TypeEpic    = "epic"
	AttrType    = "type"
	AttrID      = "id"
	AttrTaskID  = "taskId"
	AttrEpicID  = "epicId"
	AttrAssign  = "assignedTo"
	AttrCreated = "createdAt"
	AttrUpdated = "updatedAt"

	IndexByEpic     = "GSI1"
	IndexByAssignee = "GSI2"
)

// TimeLayout is how timestamps are stored: UTC with millisecond precision,
// so lexical order matches time order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

var ErrCorrupt = errors.New("corrupt record")

// Indexes declares the secondary indexes every backend must maintain.
func Indexes() []table.Index {
	return []table.Index{
		{Name: IndexByEpic, HashAttr: AttrEpicID, RangeAttr: AttrTaskID},
		{Name: IndexByAssignee, HashAttr: AttrAssign, RangeAttr: AttrCreated},
	}
}

func TaskKey(id models.TaskID) table.Key {
	return table.Key{PK: TaskPrefix + string(id), SK: MetadataSK}
}

func EpicKey(id string) table.Key {
	return table.Key{PK: EpicPrefix + id, SK: MetadataSK}
}

// IsTaskItem reports whether it is a task's main record, as opposed to an
// epic or an auxiliary record sharing the partition.
func IsTaskItem(it table.Item) bool {
	return strings.HasPrefix(it[table.AttrPK], TaskPrefix) && it[table.AttrSK] == MetadataSK && it[AttrType] == TypeTask
}

func IsEpicItem(it table.Item) bool {
	return strings.HasPrefix(it[table.AttrPK], EpicPrefix) && it[table.AttrSK] == MetadataSK && it[AttrType] == TypeEpic
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func EncodeTask(t models.Task) table.Item {
	key := TaskKey(t.ID)
	it := table.Item{
		table.AttrPK:  key.PK,
		table.AttrSK:  key.SK,
		AttrType:      TypeTask,
		AttrID:        string(t.ID),
		AttrTaskID:    string(t.ID),
		"title":       t.Title,
		"description": t.Description,
		"column":      string(t.Column),
		AttrCreated:   FormatTime(t.CreatedAt),
		AttrUpdated:   FormatTime(t.UpdatedAt),
	}
	if len(t.Tags) > 0 {
		it["tags"] = mustJSON(t.Tags)
	}
	if len(t.DependsOn) > 0 {
		it["dependsOn"] = mustJSON(t.DependsOn)
	}
	putString(it, AttrEpicID, t.EpicID)
	putString(it, AttrAssign, t.AssignedTo)
	if t.Priority != nil {
		it["priority"] = string(*t.Priority)
	}
	if t.Source != nil {
		it["source"] = string(*t.Source)
	}
	putTime(it, "dueDate", t.DueDate)
	putTime(it, "completedAt", t.CompletedAt)
	putTime(it, "deletedAt", t.DeletedAt)
	return it
}

func DecodeTask(it table.Item) (models.Task, error) {
	if !IsTaskItem(it) {
		return models.Task{}, fmt.Errorf("%w: %s is not a task", ErrCorrupt, it[table.AttrPK])
	}
	id := it[AttrID]
	if id == "" {
		id = strings.TrimPrefix(it[table.AttrPK], TaskPrefix)
	}

	t := models.Task{
		ID:          models.TaskID(id),
		Title:       it["title"],
		Description: it["description"],
		Column:      models.Column(it["column"]),
		EpicID:      getString(it, AttrEpicID),
		AssignedTo:  getString(it, AttrAssign),
	}
	if v, ok := it["priority"]; ok && v != "" {
		p := models.Priority(v)
		t.Priority = &p
	}
	if v, ok := it["source"]; ok && v != "" {
		s := models.Source(v)
		t.Source = &s
	}

	var err error
	if t.CreatedAt, err = requireTime(it, AttrCreated); err != nil {
		return models.Task{}, err
	}
	if t.UpdatedAt, err = requireTime(it, AttrUpdated); err != nil {
		return models.Task{}, err
	}
	if t.DueDate, err = getTime(it, "dueDate"); err != nil {
		return models.Task{}, err
	}
	if t.CompletedAt, err = getTime(it, "completedAt"); err != nil {
		return models.Task{}, err
	}
	if t.DeletedAt, err = getTime(it, "deletedAt"); err != nil {
		return models.Task{}, err
	}
	if err := getJSON(it, "tags", &t.Tags); err != nil {
		return models.Task{}, err
	}
	if err := getJSON(it, "dependsOn", &t.DependsOn); err != nil {
		return models.Task{}, err
	}
	return t, nil
}

// EncodeTaskPatch turns a patch into the attributes to set and remove. The
// index attributes travel with the patch, so a single Update keeps the
// indexes in step with the record.
func EncodeTaskPatch(p models.TaskPatch, updatedAt time.Time) (set table.Item, remove []string) {
	set = table.Item{AttrUpdated: FormatTime(updatedAt)}
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Description != nil {
		set["description"] = *p.Description
	}
	if p.Column != nil {
		set["column"] = string(*p.Column)
	}
	if p.Tags != nil {
		if len(*p.Tags) > 0 {
			set["tags"] = mustJSON(*p.Tags)
		} else {
			remove = append(remove, "tags")
		}
	}
	if p.DependsOn != nil {
		if len(*p.DependsOn) > 0 {
			set["dependsOn"] = mustJSON(*p.DependsOn)
		} else {
			remove = append(remove, "dependsOn")
		}
	}
	remove = patchString(set, remove, AttrEpicID, p.EpicID)
	remove = patchString(set, remove, AttrAssign, p.AssignedTo)
	remove = patchString(set, remove, "priority", mapNullable(p.Priority, func(v models.Priority) string { return string(v) }))
	remove = patchString(set, remove, "source", mapNullable(p.Source, func(v models.Source) string { return string(v) }))
	remove = patchString(set, remove, "dueDate", mapNullable(p.DueDate, FormatTime))
	remove = patchString(set, remove, "completedAt", mapNullable(p.CompletedAt, FormatTime))
	remove = patchString(set, remove, "deletedAt", mapNullable(p.DeletedAt, FormatTime))
	return set, remove
}

func EncodeEpic(e models.Epic) table.Item {
	key := EpicKey(e.ID)
	return table.Item{
		table.AttrPK:  key.PK,
		table.AttrSK:  key.SK,
		AttrType:      TypeEpic,
		AttrID:        e.ID,
		"name":        e.Name,
		"description": e.Description,
		"color":       e.Color,
		AttrCreated:   FormatTime(e.CreatedAt),
		AttrUpdated:   FormatTime(e.UpdatedAt),
	}
}

func DecodeEpic(it table.Item) (models.Epic, error) {
	if !IsEpicItem(it) {
		return models.Epic{}, fmt.Errorf("%w: %s is not an epic", ErrCorrupt, it[table.AttrPK])
	}
	id := it[AttrID]
	if id == "" {
		id = strings.TrimPrefix(it[table.AttrPK], EpicPrefix)
	}
	e := models.Epic{
		ID:          id,
		Name:        it["name"],
		Description: it["description"],
		Color:       it["color"],
	}
	var err error
	if e.CreatedAt, err = requireTime(it, AttrCreated); err != nil {
		return models.Epic{}, err
	}
	// Older epics were written without updatedAt.
	if _, ok := it[AttrUpdated]; ok {
		if e.UpdatedAt, err = requireTime(it, AttrUpdated); err != nil {
			return models.Epic{}, err
		}
	} else {
		e.UpdatedAt = e.CreatedAt
	}
	return e, nil
}

func EncodeEpicPatch(p models.EpicPatch, updatedAt time.Time) table.Item {
	set := table.Item{AttrUpdated: FormatTime(updatedAt)}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.Description != nil {
		set["description"] = *p.Description
	}
	if p.Color != nil {
		set["color"] = *p.Color
	}
	return set
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("codec: marshal %T: %v", v, err))
	}
	return string(data)
}

func getJSON(it table.Item, attr string, dst any) error {
	raw, ok := it[attr]
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("%w: %s.%s: %v", ErrCorrupt, it[table.AttrPK], attr, err)
	}
	return nil
}

func putString(it table.Item, attr string, v *string) {
	if v != nil && *v != "" {
		it[attr] = *v
	}
}

func getString(it table.Item, attr string) *string {
	v, ok := it[attr]
	if !ok || v == "" {
		return nil
	}
	return &v
}

func putTime(it table.Item, attr string, v *time.Time) {
	if v != nil {
		it[attr] = FormatTime(*v)
	}
}

func getTime(it table.Item, attr string) (*time.Time, error) {
	raw, ok := it[attr]
	if !ok || raw == "" {
		return nil, nil
	}
	t, err := ParseTime(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", ErrCorrupt, it[table.AttrPK], attr, err)
	}
	return &t, nil
}

func requireTime(it table.Item, attr string) (time.Time, error) {
	t, err := getTime(it, attr)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return time.Time{}, fmt.Errorf("%w: %s is missing %s", ErrCorrupt, it[table.AttrPK], attr)
	}
	return *t, nil
}

// patchString applies a nullable string patch: a value sets the attribute,
// a clear (or empty value) removes it so sparse indexes drop the item.
func patchString(set table.Item, remove []string, attr string, n models.Nullable[string]) []string {
	if !n.Set {
		return remove
	}
	if n.Value == nil || *n.Value == "" {
		return append(remove, attr)
	}
	set[attr] = *n.Value
	return remove
}

func mapNullable[T any](n models.Nullable[T], f func(T) string) models.Nullable[string] {
	if !n.Set {
		return models.Nullable[string]{}
	}
	if n.Value == nil {
		return models.Clear[string]()
	}
	return models.SetTo(f(*n.Value))
}
