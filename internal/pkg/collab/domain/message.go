package collab

import (
	"errors"
	"strings"
	"time"
)

// ChatMessage is an immutable entry in a session's chat thread. The only
// mutation allowed after creation is flipping the Edited flag.
type ChatMessage struct {
	ID        string    `json:"id" db:"id"`
	SessionID string    `json:"session_id" db:"session_id"`
	AuthorID  string    `json:"author_id" db:"author_id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// RecipientID makes the message private to one participant; empty
	// means broadcast to the whole session.
	RecipientID string `json:"recipient_id,omitempty" db:"recipient_id"`

	// ParentID threads the message under an earlier one.
	ParentID string `json:"parent_id,omitempty" db:"parent_id"`

	Edited bool `json:"edited" db:"edited"`
}

var ErrEmptyChatMessage = errors.New("collab: chat message has no content")

// NewChatMessage validates and normalizes a chat message.
func NewChatMessage(m ChatMessage) (*ChatMessage, error) {
	if m.SessionID == "" || m.AuthorID == "" {
		return nil, errors.New("collab: session_id and author_id are required")
	}
	m.Content = strings.TrimSpace(m.Content)
	if m.Content == "" {
		return nil, ErrEmptyChatMessage
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return &m, nil
}
