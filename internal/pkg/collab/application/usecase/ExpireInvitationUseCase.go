package usecase

import (
	"context"
	"fmt"

	repository "go-collab/internal/pkg/collab/persistence/repository/port"
)

// ExpireInvitationUseCase marks a still-pending invitation expired. It is
// the handler body for the scheduled expiry task and must stay idempotent:
// an invitation that was accepted or declined in the meantime is left
// untouched.
type ExpireInvitationUseCase struct {
	Repo repository.SessionRepository
}

func NewExpireInvitationUseCase(repo repository.SessionRepository) *ExpireInvitationUseCase {
	return &ExpireInvitationUseCase{Repo: repo}
}

// Execute reports whether the invitation actually transitioned to expired.
func (uc *ExpireInvitationUseCase) Execute(ctx context.Context, invitationID string) (bool, error) {
	if invitationID == "" {
		return false, fmt.Errorf("invitation id is required")
	}
	expired, err := uc.Repo.ExpireInvitation(ctx, invitationID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return expired, nil
}
