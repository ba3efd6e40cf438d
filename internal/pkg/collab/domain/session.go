package collab

import "time"

// SessionKind tells which primary artifact a session is built around.
type SessionKind string

const (
	SessionKindDocument        SessionKind = "document"
	SessionKindWhiteboard      SessionKind = "whiteboard"
	SessionKindProject         SessionKind = "project"
	SessionKindDiscussion      SessionKind = "discussion"
	SessionKindVideoConference SessionKind = "video-conference"
)

// Known reports whether the kind is one of the supported session kinds.
func (k SessionKind) Known() bool {
	switch k {
	case SessionKindDocument, SessionKindWhiteboard, SessionKindProject,
		SessionKindDiscussion, SessionKindVideoConference:
		return true
	}
	return false
}

// SessionStatus follows the session through its lifecycle. Sessions are
// archived, never hard-deleted, so activity history stays intact.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusArchived  SessionStatus = "archived"
)

// SessionSettings carries per-session toggles and limits.
type SessionSettings struct {
	MaxParticipants int           `json:"max_participants"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	AllowChat       bool          `json:"allow_chat"`
	AllowComments   bool          `json:"allow_comments"`
	AllowInvites    bool          `json:"allow_invites"`
}

// DefaultSettings returns the settings applied when a session is created
// without explicit overrides.
func DefaultSettings() SessionSettings {
	return SessionSettings{
		MaxParticipants: 50,
		IdleTimeout:     30 * time.Minute,
		AllowChat:       true,
		AllowComments:   true,
		AllowInvites:    true,
	}
}

// Session is a bounded collaboration context: one primary artifact plus
// the participants working on it.
type Session struct {
	ID          string          `json:"id" db:"id"`
	Kind        SessionKind     `json:"kind" db:"kind"`
	Title       string          `json:"title" db:"title"`
	Description string          `json:"description" db:"description"`
	OwnerID     string          `json:"owner_id" db:"owner_id"`
	Status      SessionStatus   `json:"status" db:"status"`
	Settings    SessionSettings `json:"settings"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`

	// ArtifactID references the session's single primary artifact,
	// appropriate to its kind.
	ArtifactID string `json:"artifact_id" db:"artifact_id"`

	Participants []Participant `json:"participants,omitempty"`
}

// PrimaryArtifactKind maps the session kind to the artifact kind it edits.
// Discussion and video-conference sessions still carry a document artifact
// for shared notes.
func (s *Session) PrimaryArtifactKind() ArtifactKind {
	if s.Kind == SessionKindWhiteboard {
		return ArtifactKindWhiteboard
	}
	return ArtifactKindDocument
}
