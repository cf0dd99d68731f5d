package services

import (
	"context"
	"strings"

	"mission-control/board/internal/models"
	"mission-control/board/internal/store"
)

type EpicService interface {
	ListEpics(ctx context.Context) ([]models.Epic, error)
	GetEpic(ctx context.Context, id string) (models.Epic, error)
	CreateEpic(ctx context.Context, epic models.Epic) (models.Epic, error)
	UpdateEpic(ctx context.Context, id string, patch models.EpicPatch) (models.Epic, error)
	DeleteEpic(ctx context.Context, id string) (int, error)
}

const DefaultEpicColor = "#6366f1"

func (s *BoardService) ListEpics(ctx context.Context) ([]models.Epic, error) {
	return s.store.GetAllEpics(ctx)
}

func (s *BoardService) GetEpic(ctx context.Context, id string) (models.Epic, error) {
	return s.store.GetEpic(ctx, id)
}

func (s *BoardService) CreateEpic(ctx context.Context, epic models.Epic) (models.Epic, error) {
	epic.Name = strings.TrimSpace(epic.Name)
	if epic.Name == "" {
		return models.Epic{}, store.Validation("epic name is required")
	}
	if epic.ID == "" {
		epic.ID = models.NewEpicID()
	}
	if epic.Color == "" {
		epic.Color = DefaultEpicColor
	}
	now := s.now()
	epic.CreatedAt, epic.UpdatedAt = now, now
	return s.store.CreateEpic(ctx, epic)
}

func (s *BoardService) UpdateEpic(ctx context.Context, id string, patch models.EpicPatch) (models.Epic, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return models.Epic{}, store.Validation("epic name is required")
		}
		patch.Name = &name
	}
	return s.store.UpdateEpic(ctx, id, patch)
}

// DeleteEpic removes the epic and detaches its tasks, returning how many
// were detached.
func (s *BoardService) DeleteEpic(ctx context.Context, id string) (int, error) {
	return s.store.DeleteEpic(ctx, id)
}

var _ EpicService = (*BoardService)(nil)
