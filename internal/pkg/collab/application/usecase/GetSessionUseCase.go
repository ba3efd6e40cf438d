package usecase

import (
	"context"
	"fmt"

	collab "go-collab/internal/pkg/collab/domain"
	repository "go-collab/internal/pkg/collab/persistence/repository/port"
)

// GetSessionUseCase fetches full session state including participants.
type GetSessionUseCase struct {
	Repo repository.SessionRepository
}

func NewGetSessionUseCase(repo repository.SessionRepository) *GetSessionUseCase {
	return &GetSessionUseCase{Repo: repo}
}

func (uc *GetSessionUseCase) Execute(ctx context.Context, sessionID string) (*collab.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	s, err := uc.Repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return s, nil
}
