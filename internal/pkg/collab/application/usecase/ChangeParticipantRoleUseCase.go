package usecase

import (
	"context"
	"fmt"
	"time"

	collab "go-collab/internal/pkg/collab/domain"
	repository "go-collab/internal/pkg/collab/persistence/repository/port"
)

// ChangeParticipantRoleInput carries one role transition request.
type ChangeParticipantRoleInput struct {
	SessionID string
	ActorID   string
	UserID    string
	NewRole   collab.Role
}

// ChangeParticipantRoleUseCase applies a role transition with an audit
// trail. Only the session owner may change roles, and the owner's own role
// is immutable.
type ChangeParticipantRoleUseCase struct {
	Repo repository.SessionRepository
}

func NewChangeParticipantRoleUseCase(repo repository.SessionRepository) *ChangeParticipantRoleUseCase {
	return &ChangeParticipantRoleUseCase{Repo: repo}
}

func (uc *ChangeParticipantRoleUseCase) Execute(ctx context.Context, in ChangeParticipantRoleInput) error {
	if in.SessionID == "" || in.ActorID == "" || in.UserID == "" {
		return fmt.Errorf("sessionId, actorId and userId are required")
	}
	if !in.NewRole.Known() {
		return fmt.Errorf("unknown role %q", in.NewRole)
	}

	actor, err := uc.Repo.GetParticipant(ctx, in.SessionID, in.ActorID)
	if err != nil {
		return ErrNotParticipant
	}
	if actor.Role != collab.RoleOwner {
		return fmt.Errorf("%w: only the owner changes roles", ErrForbidden)
	}

	target, err := uc.Repo.GetParticipant(ctx, in.SessionID, in.UserID)
	if err != nil {
		return ErrNotParticipant
	}
	if target.Role == collab.RoleOwner {
		return fmt.Errorf("%w: the owner role is immutable", ErrForbidden)
	}
	if target.Role == in.NewRole {
		return nil // no-op transitions are not audited
	}

	err = uc.Repo.UpdateParticipantRole(ctx, in.SessionID, in.UserID, target.Role, in.NewRole, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}
