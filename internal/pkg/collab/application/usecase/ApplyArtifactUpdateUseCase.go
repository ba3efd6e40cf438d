package usecase

import (
	"context"
	"errors"
	"fmt"

	repository "go-collab/internal/pkg/collab/persistence/repository/port"
)

// ErrVersionConflict is surfaced to callers when the declared base version
// lost the race against a concurrent editor.
var ErrVersionConflict = errors.New("collab use case: artifact version conflict")

// ApplyArtifactUpdateInput carries one artifact edit declared against a
// base version.
type ApplyArtifactUpdateInput struct {
	SessionID   string
	ArtifactID  string
	AuthorID    string
	BaseVersion int64
	Content     string
	Summary     string
}

// ApplyArtifactUpdateUseCase is the authoritative version bump: the first
// update declared against the current version wins and every concurrent
// update against the same base loses with ErrVersionConflict.
type ApplyArtifactUpdateUseCase struct {
	Repo repository.SessionRepository
}

func NewApplyArtifactUpdateUseCase(repo repository.SessionRepository) *ApplyArtifactUpdateUseCase {
	return &ApplyArtifactUpdateUseCase{Repo: repo}
}

// Execute validates membership and role, then applies the update. Returns
// the new version on success.
func (uc *ApplyArtifactUpdateUseCase) Execute(ctx context.Context, in ApplyArtifactUpdateInput) (int64, error) {
	if in.SessionID == "" || in.ArtifactID == "" || in.AuthorID == "" {
		return 0, fmt.Errorf("sessionId, artifactId and authorId are required")
	}

	p, err := uc.Repo.GetParticipant(ctx, in.SessionID, in.AuthorID)
	if err != nil {
		return 0, ErrNotParticipant
	}
	if !p.Role.CanEdit() {
		return 0, fmt.Errorf("%w: %s cannot edit", ErrForbidden, p.Role)
	}

	v, err := uc.Repo.ApplyArtifactUpdate(ctx, in.ArtifactID, in.BaseVersion, in.Content, in.AuthorID, in.Summary)
	if errors.Is(err, repository.ErrVersionConflict) {
		return 0, ErrVersionConflict
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return v, nil
}
