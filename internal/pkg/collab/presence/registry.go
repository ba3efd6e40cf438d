// Package presence keeps the in-process view of who is in a session:
// membership, role, connection status and live cursor state.
package presence

import (
	"sync"
	"time"

	collab "go-collab/internal/pkg/collab/domain"
)

// Registry is the authoritative participant set for one session instance.
// It is owned by the session lifecycle manager; external collaborators
// only ever see snapshots.
type Registry struct {
	mu           sync.RWMutex
	participants map[string]*collab.Participant
	cursorSeq    uint64
}

func NewRegistry() *Registry {
	return &Registry{participants: make(map[string]*collab.Participant)}
}

// Upsert inserts or refreshes a participant keyed by user id. A duplicate
// join refreshes name, status and role rather than duplicating the entry;
// role transitions go through the audit trail. Cursor history survives a
// refresh so a reconnecting participant keeps their "last seen" position.
func (r *Registry) Upsert(p collab.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.participants[p.UserID]
	if !ok {
		cp := p
		if cp.JoinedAt.IsZero() {
			cp.JoinedAt = time.Now().UTC()
		}
		r.participants[p.UserID] = &cp
		return
	}

	existing.DisplayName = p.DisplayName
	existing.Status = p.Status
	existing.ChangeRole(p.Role, time.Now().UTC())
}

// Remove deletes the participant entirely. Used on explicit leave;
// abrupt disconnects should call MarkOffline instead.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	delete(r.participants, userID)
	r.mu.Unlock()
}

// MarkOffline keeps the entry (role, cursor history) but flags it
// offline, so a later reconnection restores rather than recreates it.
func (r *Registry) MarkOffline(userID string) {
	r.mu.Lock()
	if p, ok := r.participants[userID]; ok {
		p.Status = collab.StatusOffline
	}
	r.mu.Unlock()
}

// Get returns a snapshot of the participant, if present.
func (r *Registry) Get(userID string) (collab.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[userID]
	if !ok {
		return collab.Participant{}, false
	}
	return *p, true
}

// List returns a snapshot of every tracked participant.
func (r *Registry) List() []collab.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]collab.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	return out
}

// UpdateCursor records a cursor position for the participant. Ordering is
// last-write-wins by arrival order at this registry; remote timestamps
// are stored for display but never compared.
func (r *Registry) UpdateCursor(userID string, x, y float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[userID]
	if !ok {
		return false
	}
	r.cursorSeq++
	p.Cursor = &collab.CursorPosition{
		X:          x,
		Y:          y,
		Seq:        r.cursorSeq,
		ReportedAt: time.Now().UTC(),
	}
	return true
}

// ActiveEditors returns participants currently online with a role that
// may edit. Offline participants keep their cursor for "last seen"
// display but never count as editing.
func (r *Registry) ActiveEditors() []collab.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []collab.Participant
	for _, p := range r.participants {
		if p.Status == collab.StatusOffline {
			continue
		}
		if !p.Role.CanEdit() {
			continue
		}
		out = append(out, *p)
	}
	return out
}

// Len reports the number of tracked participants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// Clear drops all participants. Called when a session is torn down.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.participants = make(map[string]*collab.Participant)
	r.mu.Unlock()
}
