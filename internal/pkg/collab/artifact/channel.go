// Package artifact implements the version-stamped update channel for a
// session's shared document or whiteboard.
//
// Local edits apply optimistically as a tentative overlay on top of the
// confirmed base and are sent fire-and-forget with the editor's
// last-observed version. Version conflicts are detected here and handed
// to the caller; this package never resolves them.
package artifact

import (
	"errors"
	"fmt"
	"sync"
	"time"

	collab "go-collab/internal/pkg/collab/domain"
)

// RemoteUpdate is an accepted update authored by another participant.
type RemoteUpdate struct {
	ArtifactID string
	Kind       collab.ArtifactKind
	Version    int64
	AuthorID   string
	Content    string
	Summary    string
}

// Conflict carries both sides of a detected version conflict so the
// caller's merge policy can decide. The confirmed content is untouched.
type Conflict struct {
	ArtifactID       string
	LocalContent     string
	LocalBaseVersion int64
	RemoteContent    string
	RemoteVersion    int64
	RemoteAuthorID   string
}

// ErrResyncPending rejects submissions while a full-state resync is
// outstanding after a detected frame gap.
var ErrResyncPending = errors.New("artifact: resync pending, submissions suspended")

// Hooks are the channel's outbound edges, injected by the lifecycle
// manager. SendUpdate must not block (fire-and-forget transport send);
// RequestResync asks the directory for full session state.
type Hooks struct {
	SendUpdate    func(content string, baseVersion int64, summary string) error
	RequestResync func(artifactID string)
	OnRemote      func(RemoteUpdate)
	OnConflict    func(Conflict)
}

type pendingUpdate struct {
	baseVersion int64
	content     string
	summary     string
}

// Channel reconciles one artifact's local edits with remote updates.
type Channel struct {
	mu        sync.Mutex
	selfID    string
	confirmed collab.Artifact
	tentative *pendingUpdate
	stale     bool
	comments  []collab.Comment
	hooks     Hooks
}

func NewChannel(a collab.Artifact, selfUserID string, hooks Hooks) *Channel {
	return &Channel{selfID: selfUserID, confirmed: a, hooks: hooks}
}

// ArtifactID returns the id of the artifact this channel reconciles.
func (c *Channel) ArtifactID() string {
	return c.confirmed.ID
}

// Version returns the effective version: the tentative overlay counts as
// current+1 until the coordinator confirms or rejects it.
func (c *Channel) Version() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tentative != nil {
		return c.tentative.baseVersion + 1
	}
	return c.confirmed.Version
}

// ConfirmedVersion returns the version of the confirmed base.
func (c *Channel) ConfirmedVersion() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confirmed.Version
}

// Content returns the effective content: tentative overlay when present,
// confirmed base otherwise.
func (c *Channel) Content() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tentative != nil {
		return c.tentative.content
	}
	return c.confirmed.Content
}

// SubmitUpdate applies content as the tentative overlay and sends it with
// the declared base version. It does not wait for acknowledgement. A base
// version older than the confirmed one is a conflict detected before
// anything is sent: the conflict is surfaced, nothing changes locally.
func (c *Channel) SubmitUpdate(content string, baseVersion int64, summary string) error {
	c.mu.Lock()
	if c.stale {
		c.mu.Unlock()
		return ErrResyncPending
	}
	if baseVersion < c.confirmed.Version {
		conflict := Conflict{
			ArtifactID:       c.confirmed.ID,
			LocalContent:     content,
			LocalBaseVersion: baseVersion,
			RemoteContent:    c.confirmed.Content,
			RemoteVersion:    c.confirmed.Version,
		}
		c.mu.Unlock()
		c.emitConflict(conflict)
		return fmt.Errorf("artifact %s: base %d behind confirmed %d: %w",
			conflict.ArtifactID, baseVersion, conflict.RemoteVersion, collab.ErrStaleBase)
	}
	if baseVersion > c.confirmed.Version {
		c.mu.Unlock()
		return collab.ErrVersionGap
	}
	c.tentative = &pendingUpdate{baseVersion: baseVersion, content: content, summary: summary}
	send := c.hooks.SendUpdate
	c.mu.Unlock()

	if send != nil {
		return send(content, baseVersion, summary)
	}
	return nil
}

// ApplyRemote reconciles an inbound update frame. Exactly one of four
// things happens: the own pending edit is confirmed, the update applies
// cleanly, a conflict is surfaced, or a gap triggers a resync request.
func (c *Channel) ApplyRemote(u RemoteUpdate) {
	c.mu.Lock()

	switch {
	case c.stale:
		// Waiting on a full-state resync; replaying a partial log here
		// would violate the version-ordering invariant.
		c.mu.Unlock()
		return

	case u.Version <= c.confirmed.Version:
		conflict := c.conflictWithLocked(u)
		c.mu.Unlock()
		c.emitConflict(conflict)
		return

	case u.Version > c.confirmed.Version+1:
		c.stale = true
		c.tentative = nil
		resync := c.hooks.RequestResync
		id := c.confirmed.ID
		c.mu.Unlock()
		if resync != nil {
			resync(id)
		}
		return
	}

	// u.Version == confirmed+1
	if u.AuthorID == c.selfID && c.tentative != nil {
		// Acknowledgement of the own tentative edit: promote the overlay.
		c.confirmed.Version = u.Version
		c.confirmed.Content = c.tentative.content
		c.appendHistoryLocked(u.Version, c.selfID, c.tentative.summary)
		c.tentative = nil
		c.mu.Unlock()
		return
	}

	if c.tentative != nil {
		// Another author claimed the version slot the tentative edit was
		// based on. The remote update is authoritative; the overlay is
		// rolled back and both payloads go to the caller's merge policy.
		conflict := c.conflictWithLocked(u)
		conflict.LocalContent = c.tentative.content
		conflict.LocalBaseVersion = c.tentative.baseVersion
		c.tentative = nil
		c.applyLocked(u)
		c.mu.Unlock()
		c.emitConflict(conflict)
		c.emitRemote(u)
		return
	}

	c.applyLocked(u)
	c.mu.Unlock()
	c.emitRemote(u)
}

// Reset installs authoritative full state fetched via the directory and
// lifts the resync suspension.
func (c *Channel) Reset(a collab.Artifact) {
	c.mu.Lock()
	c.confirmed = a
	c.tentative = nil
	c.stale = false
	c.mu.Unlock()
}

// Stale reports whether the channel is waiting on a resync.
func (c *Channel) Stale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale
}

// History returns a snapshot of the confirmed version log.
func (c *Channel) History() []collab.VersionEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]collab.VersionEntry, len(c.confirmed.History))
	copy(out, c.confirmed.History)
	return out
}

// AddComment validates and appends a comment anchored to a content span.
func (c *Channel) AddComment(comment collab.Comment) (*collab.Comment, error) {
	comment.ArtifactID = c.confirmed.ID
	validated, err := collab.NewComment(comment)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.comments = append(c.comments, *validated)
	c.mu.Unlock()
	return validated, nil
}

// ResolveComment flags a comment resolved without removing it.
func (c *Channel) ResolveComment(commentID, by string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.comments {
		if c.comments[i].ID == commentID {
			c.comments[i].Resolve(by, now)
			return true
		}
	}
	return false
}

// Comments returns a snapshot of all comments, resolved ones included.
func (c *Channel) Comments() []collab.Comment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]collab.Comment, len(c.comments))
	copy(out, c.comments)
	return out
}

func (c *Channel) conflictWithLocked(u RemoteUpdate) Conflict {
	return Conflict{
		ArtifactID:       c.confirmed.ID,
		LocalContent:     c.confirmed.Content,
		LocalBaseVersion: c.confirmed.Version,
		RemoteContent:    u.Content,
		RemoteVersion:    u.Version,
		RemoteAuthorID:   u.AuthorID,
	}
}

func (c *Channel) applyLocked(u RemoteUpdate) {
	c.confirmed.Version = u.Version
	c.confirmed.Content = u.Content
	c.appendHistoryLocked(u.Version, u.AuthorID, u.Summary)
}

func (c *Channel) appendHistoryLocked(version int64, author, summary string) {
	c.confirmed.History = append(c.confirmed.History, collab.VersionEntry{
		Version:   version,
		AuthorID:  author,
		CreatedAt: time.Now().UTC(),
		Summary:   summary,
	})
}

func (c *Channel) emitConflict(conflict Conflict) {
	if c.hooks.OnConflict != nil {
		c.hooks.OnConflict(conflict)
	}
}

func (c *Channel) emitRemote(u RemoteUpdate) {
	if c.hooks.OnRemote != nil {
		c.hooks.OnRemote(u)
	}
}
