package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	cacheport "go-collab/internal/infrastructure/cache/port"
	qport "go-collab/internal/infrastructure/queue/port"
	collab "go-collab/internal/pkg/collab/domain"
	repository "go-collab/internal/pkg/collab/persistence/repository/port"
)

// ExpireInvitationTaskType is the queue task name for settling an
// invitation that ran past its expiry.
const ExpireInvitationTaskType = "collab:expire_invitation"

// ExpireInvitationPayload is the JSON payload transported via the queue.
type ExpireInvitationPayload struct {
	InvitationID string `json:"invitationId"`
}

// InvitationTokenKey is the cache key for an invitation token lookup.
func InvitationTokenKey(token string) string {
	return "collab:invitation:token:" + token
}

// DefaultInvitationTTL bounds how long an invitation stays acceptable.
const DefaultInvitationTTL = 72 * time.Hour

// InviteParticipantInput carries the data to issue an invitation.
type InviteParticipantInput struct {
	SessionID      string
	InviterID      string
	InviteeContact string
	InviteeName    string
	Role           collab.Role
	Message        string
	TTL            time.Duration
}

// InviteParticipantUseCase issues a single-use invitation: the row is
// persisted, the token cached for the accept path, and an expiry task
// scheduled at the exact expiry instant.
type InviteParticipantUseCase struct {
	Repo  repository.SessionRepository
	Cache cacheport.Cache
	Queue qport.Client
}

func NewInviteParticipantUseCase(repo repository.SessionRepository, cache cacheport.Cache, queue qport.Client) *InviteParticipantUseCase {
	return &InviteParticipantUseCase{Repo: repo, Cache: cache, Queue: queue}
}

func (uc *InviteParticipantUseCase) Execute(ctx context.Context, in InviteParticipantInput) (*collab.Invitation, error) {
	if in.SessionID == "" || in.InviterID == "" || in.InviteeContact == "" {
		return nil, fmt.Errorf("sessionId, inviterId and inviteeContact are required")
	}
	if !in.Role.Known() {
		return nil, fmt.Errorf("unknown role %q", in.Role)
	}

	inviter, err := uc.Repo.GetParticipant(ctx, in.SessionID, in.InviterID)
	if err != nil {
		return nil, ErrNotParticipant
	}
	// Inviting at or above your own role requires ownership.
	if inviter.Role != collab.RoleOwner && !inviter.Role.AtLeast(in.Role) {
		return nil, fmt.Errorf("%w: %s cannot grant %s", ErrForbidden, inviter.Role, in.Role)
	}

	ttl := in.TTL
	if ttl <= 0 {
		ttl = DefaultInvitationTTL
	}
	now := time.Now().UTC()
	inv := collab.Invitation{
		SessionID:      in.SessionID,
		InviterID:      in.InviterID,
		InviteeContact: in.InviteeContact,
		InviteeName:    in.InviteeName,
		Role:           in.Role,
		Message:        in.Message,
		Status:         collab.InvitationPending,
		Token:          uuid.NewString(),
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}

	id, err := uc.Repo.CreateInvitation(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	inv.ID = id

	// Cache the token for the accept path. The cache is an accelerator;
	// a failed Set only costs the accept path a DB lookup.
	if uc.Cache != nil {
		_ = uc.Cache.Set(ctx, InvitationTokenKey(inv.Token), id, ttl)
	}

	if uc.Queue != nil {
		payload, err := json.Marshal(ExpireInvitationPayload{InvitationID: id})
		if err == nil {
			_, err = uc.Queue.Enqueue(ctx, qport.Task{Type: ExpireInvitationTaskType, Payload: payload},
				qport.EnqueueOption{Queue: "collab", ProcessAt: inv.ExpiresAt, MaxRetry: 3})
		}
		if err != nil {
			return nil, fmt.Errorf("%w: schedule expiry: %v", ErrPersistence, err)
		}
	}

	return &inv, nil
}
