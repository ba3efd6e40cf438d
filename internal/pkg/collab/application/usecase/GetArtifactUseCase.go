package usecase

import (
	"context"
	"fmt"

	collab "go-collab/internal/pkg/collab/domain"
	repository "go-collab/internal/pkg/collab/persistence/repository/port"
)

// GetArtifactUseCase fetches the authoritative artifact state for a
// session, including recent version history. Serves both initial join
// state and full-state resync after a client detects a frame gap.
type GetArtifactUseCase struct {
	Repo repository.SessionRepository

	// HistoryLimit caps the returned history entries. Zero means the
	// repository default.
	HistoryLimit int
}

func NewGetArtifactUseCase(repo repository.SessionRepository) *GetArtifactUseCase {
	return &GetArtifactUseCase{Repo: repo}
}

func (uc *GetArtifactUseCase) Execute(ctx context.Context, sessionID string) (*collab.Artifact, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	a, err := uc.Repo.GetArtifact(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	history, err := uc.Repo.GetArtifactHistory(ctx, a.ID, uc.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	a.History = history
	return a, nil
}
