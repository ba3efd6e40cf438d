package collab

import (
	"errors"
	"time"
)

// ArtifactKind distinguishes the two editable artifact shapes. The content
// payload is opaque to the engine either way: a text blob for documents,
// a serialized element list for whiteboards.
type ArtifactKind string

const (
	ArtifactKindDocument   ArtifactKind = "document"
	ArtifactKindWhiteboard ArtifactKind = "whiteboard"
)

// VersionEntry is one append-only record in an artifact's version history.
type VersionEntry struct {
	Version   int64     `json:"version" db:"version"`
	AuthorID  string    `json:"author_id" db:"author_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Summary   string    `json:"summary" db:"summary"`
}

// Artifact is the shared editable object within a session. Version is
// strictly increasing; an update is accepted only when its declared base
// version matches the current version.
type Artifact struct {
	ID        string         `json:"id" db:"id"`
	SessionID string         `json:"session_id" db:"session_id"`
	Kind      ArtifactKind   `json:"kind" db:"kind"`
	Version   int64          `json:"version" db:"version"`
	Content   string         `json:"content" db:"content"`
	History   []VersionEntry `json:"history,omitempty"`
}

// Domain-level errors for artifact behaviors.
var (
	ErrStaleBase    = errors.New("collab: update based on a stale artifact version")
	ErrVersionGap   = errors.New("collab: update version skips ahead of the current version")
	ErrCommentSpan  = errors.New("collab: comment span is out of order")
	ErrCommentEmpty = errors.New("collab: comment content is empty")
)

// Apply validates an update declared against baseVersion and, on success,
// advances the artifact to version+1 and appends a history entry.
func (a *Artifact) Apply(content string, baseVersion int64, authorID string, summary string, now time.Time) error {
	switch {
	case baseVersion < a.Version:
		return ErrStaleBase
	case baseVersion > a.Version:
		return ErrVersionGap
	}
	a.Version++
	a.Content = content
	a.History = append(a.History, VersionEntry{
		Version:   a.Version,
		AuthorID:  authorID,
		CreatedAt: now,
		Summary:   summary,
	})
	return nil
}

// Comment is an annotation anchored to a fixed span of artifact content.
// Comments are append-only: resolving one sets the resolved fields but
// never deletes it.
type Comment struct {
	ID         string     `json:"id" db:"id"`
	ArtifactID string     `json:"artifact_id" db:"artifact_id"`
	AuthorID   string     `json:"author_id" db:"author_id"`
	Content    string     `json:"content" db:"content"`
	StartIndex int        `json:"start_index" db:"start_index"`
	EndIndex   int        `json:"end_index" db:"end_index"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	Resolved   bool       `json:"resolved" db:"resolved"`
	ResolvedBy string     `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
}

// NewComment validates and normalizes a comment before it is recorded.
func NewComment(c Comment) (*Comment, error) {
	if c.Content == "" {
		return nil, ErrCommentEmpty
	}
	if c.StartIndex < 0 || c.EndIndex < c.StartIndex {
		return nil, ErrCommentSpan
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return &c, nil
}

// Resolve marks the comment resolved. Resolving twice is a no-op that
// preserves the original resolver.
func (c *Comment) Resolve(by string, now time.Time) {
	if c.Resolved {
		return
	}
	c.Resolved = true
	c.ResolvedBy = by
	c.ResolvedAt = &now
}
