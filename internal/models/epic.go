package models

import (
	"time"

	"github.com/gofrs/uuid"
)

// Epic groups tasks under a theme. It does not own its tasks; tasks point
// at it through EpicID.
type Epic struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Color       string    `json:"color"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func NewEpicID() string {
	return "epic-" + uuid.Must(uuid.NewV4()).String()
}
