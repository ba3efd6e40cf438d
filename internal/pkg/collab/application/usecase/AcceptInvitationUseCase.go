package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	cacheport "go-collab/internal/infrastructure/cache/port"
	collab "go-collab/internal/pkg/collab/domain"
	repository "go-collab/internal/pkg/collab/persistence/repository/port"
)

// ErrInvitationNotFound is returned when no invitation matches the token.
var ErrInvitationNotFound = errors.New("collab use case: invitation not found")

// AcceptInvitationInput identifies the invitation by token and the user
// accepting it.
type AcceptInvitationInput struct {
	Token    string
	UserID   string
	UserName string
}

// AcceptInvitationUseCase settles a pending invitation to accepted and
// registers the invitee as a participant with the invited role. The cache
// is consulted first on the token; the repository remains authoritative.
type AcceptInvitationUseCase struct {
	Repo  repository.SessionRepository
	Cache cacheport.Cache
}

func NewAcceptInvitationUseCase(repo repository.SessionRepository, cache cacheport.Cache) *AcceptInvitationUseCase {
	return &AcceptInvitationUseCase{Repo: repo, Cache: cache}
}

func (uc *AcceptInvitationUseCase) Execute(ctx context.Context, in AcceptInvitationInput) (*collab.Invitation, error) {
	if in.Token == "" || in.UserID == "" {
		return nil, fmt.Errorf("token and userId are required")
	}

	// The cache is an accelerator only; a miss may just mean eviction, so
	// the repository stays authoritative for the token lookup.
	if uc.Cache != nil {
		if _, err := uc.Cache.Get(ctx, InvitationTokenKey(in.Token)); err != nil && !errors.Is(err, cacheport.ErrMiss) {
			return nil, fmt.Errorf("%w: token cache: %v", ErrPersistence, err)
		}
	}

	inv, err := uc.Repo.GetInvitationByToken(ctx, in.Token)
	if err != nil {
		return nil, ErrInvitationNotFound
	}

	now := time.Now().UTC()
	if err := inv.Settle(collab.InvitationAccepted, now); err != nil {
		return nil, err
	}
	if err := uc.Repo.SettleInvitation(ctx, inv.ID, collab.InvitationAccepted); err != nil {
		// The conditional update lost a race with expiry or a second
		// accept attempt.
		return nil, collab.ErrInvitationSettled
	}

	p := collab.Participant{
		UserID:      in.UserID,
		DisplayName: in.UserName,
		Role:        inv.Role,
		JoinedAt:    now,
	}
	if err := uc.Repo.AddParticipant(ctx, inv.SessionID, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	// A settled token has no further use.
	if uc.Cache != nil {
		_, _ = uc.Cache.Del(ctx, InvitationTokenKey(in.Token))
	}

	return inv, nil
}
