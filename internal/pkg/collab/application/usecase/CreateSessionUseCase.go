package usecase

import (
	"context"
	"fmt"
	"time"

	collab "go-collab/internal/pkg/collab/domain"
	repository "go-collab/internal/pkg/collab/persistence/repository/port"
)

// CreateSessionInput carries the required data to open a new session.
type CreateSessionInput struct {
	Title       string
	Description string
	Kind        collab.SessionKind
	OwnerID     string
	OwnerName   string
	Settings    *collab.SessionSettings
}

// CreateSessionUseCase creates a session, its primary artifact and the
// owner's participant row.
// Hexagonal: depends on the repository port only.
type CreateSessionUseCase struct {
	Repo repository.SessionRepository
}

func NewCreateSessionUseCase(repo repository.SessionRepository) *CreateSessionUseCase {
	return &CreateSessionUseCase{Repo: repo}
}

// Execute persists the session and returns it with the artifact reference
// populated.
func (uc *CreateSessionUseCase) Execute(ctx context.Context, in CreateSessionInput) (*collab.Session, error) {
	if in.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if in.OwnerID == "" {
		return nil, fmt.Errorf("owner_id is required")
	}
	if !in.Kind.Known() {
		return nil, fmt.Errorf("unknown session kind %q", in.Kind)
	}

	now := time.Now().UTC()
	settings := collab.DefaultSettings()
	if in.Settings != nil {
		settings = *in.Settings
	}
	s := collab.Session{
		Kind:        in.Kind,
		Title:       in.Title,
		Description: in.Description,
		OwnerID:     in.OwnerID,
		Status:      collab.SessionStatusActive,
		Settings:    settings,
		CreatedAt:   now,
	}

	id, err := uc.Repo.CreateSession(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.ID = id

	artifactID, err := uc.Repo.CreateArtifact(ctx, collab.Artifact{
		SessionID: id,
		Kind:      s.PrimaryArtifactKind(),
		Version:   0,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.ArtifactID = artifactID

	owner := collab.Participant{
		UserID:      in.OwnerID,
		DisplayName: in.OwnerName,
		Role:        collab.RoleOwner,
		JoinedAt:    now,
	}
	if err := uc.Repo.AddParticipant(ctx, id, owner); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.Participants = []collab.Participant{owner}

	return &s, nil
}
