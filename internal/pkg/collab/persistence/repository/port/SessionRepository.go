package repository

import (
	"context"
	"errors"
	"time"

	collab "go-collab/internal/pkg/collab/domain"
)

// ErrVersionConflict is returned when an artifact update declares a base
// version that no longer matches the stored version.
var ErrVersionConflict = errors.New("repository: artifact version conflict")

// SessionRepository defines persistence operations for the collaboration
// domain. Adapters own SQL and scanning; use cases depend on this port only.
type SessionRepository interface {
	CreateSession(ctx context.Context, s collab.Session) (string, error)
	GetSession(ctx context.Context, id string) (*collab.Session, error)

	CreateArtifact(ctx context.Context, a collab.Artifact) (string, error)
	GetArtifact(ctx context.Context, sessionID string) (*collab.Artifact, error)

	// ApplyArtifactUpdate bumps the artifact version atomically. The update
	// is accepted only when baseVersion matches the stored version;
	// otherwise ErrVersionConflict is returned. On success the new version
	// is returned and a history entry recorded.
	ApplyArtifactUpdate(ctx context.Context, artifactID string, baseVersion int64, content, authorID, summary string) (int64, error)
	GetArtifactHistory(ctx context.Context, artifactID string, limit int) ([]collab.VersionEntry, error)

	AddParticipant(ctx context.Context, sessionID string, p collab.Participant) error
	IsParticipant(ctx context.Context, sessionID, userID string) (bool, error)
	GetParticipant(ctx context.Context, sessionID, userID string) (*collab.Participant, error)

	// UpdateParticipantRole applies a role transition and appends an audit
	// row recording the old and new role.
	UpdateParticipantRole(ctx context.Context, sessionID, userID string, from, to collab.Role, at time.Time) error

	SaveChatMessage(ctx context.Context, m collab.ChatMessage) (string, error)
	GetMessagesBySession(ctx context.Context, sessionID string, limit, offset int) ([]collab.ChatMessage, error)

	SaveComment(ctx context.Context, c collab.Comment) (string, error)
	ResolveComment(ctx context.Context, commentID, userID string, at time.Time) error

	CreateInvitation(ctx context.Context, inv collab.Invitation) (string, error)
	GetInvitationByToken(ctx context.Context, token string) (*collab.Invitation, error)
	SettleInvitation(ctx context.Context, id string, to collab.InvitationStatus) error

	// ExpireInvitation marks a still-pending invitation expired. It reports
	// whether a row was actually transitioned, so already-settled
	// invitations are left untouched.
	ExpireInvitation(ctx context.Context, id string) (bool, error)
}
