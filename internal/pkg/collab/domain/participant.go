package collab

import "time"

// Role expresses a participant's permission level within a session.
// Roles form a strict order: owner > editor > commenter > viewer. Every
// capability granted to a lower role is granted to the higher ones.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleEditor    Role = "editor"
	RoleCommenter Role = "commenter"
	RoleViewer    Role = "viewer"
)

var roleRank = map[Role]int{
	RoleViewer:    0,
	RoleCommenter: 1,
	RoleEditor:    2,
	RoleOwner:     3,
}

// Known reports whether r is one of the defined roles.
func (r Role) Known() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r grants everything min grants.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min]
}

// CanEdit reports whether the role may mutate the session's artifact.
func (r Role) CanEdit() bool { return r.AtLeast(RoleEditor) }

// CanComment reports whether the role may post chat messages and comments.
func (r Role) CanComment() bool { return r.AtLeast(RoleCommenter) }

// ConnectionStatus is the live connection state of a participant.
type ConnectionStatus string

const (
	StatusOnline  ConnectionStatus = "online"
	StatusAway    ConnectionStatus = "away"
	StatusOffline ConnectionStatus = "offline"
)

// CursorPosition is a participant's last reported cursor location.
// Seq is assigned by the local registry in arrival order; remote
// timestamps are kept for display but never compared (clock skew).
type CursorPosition struct {
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Seq        uint64    `json:"-"`
	ReportedAt time.Time `json:"reported_at"`
}

// RoleChange is one append-only audit entry for a role transition.
// Roles are never silently overwritten.
type RoleChange struct {
	From      Role      `json:"from"`
	To        Role      `json:"to"`
	ChangedAt time.Time `json:"changed_at"`
}

// Participant captures one user's membership, role and live state within
// a session. A session never holds two participants with the same UserID.
type Participant struct {
	UserID      string           `json:"user_id" db:"user_id"`
	DisplayName string           `json:"display_name" db:"display_name"`
	Role        Role             `json:"role" db:"role"`
	Status      ConnectionStatus `json:"status"`
	Cursor      *CursorPosition  `json:"cursor,omitempty"`
	JoinedAt    time.Time        `json:"joined_at" db:"joined_at"`
	RoleHistory []RoleChange     `json:"role_history,omitempty"`
}

// ChangeRole records a role transition in the audit trail and applies it.
// A no-op transition is not recorded.
func (p *Participant) ChangeRole(to Role, now time.Time) {
	if to == p.Role {
		return
	}
	p.RoleHistory = append(p.RoleHistory, RoleChange{From: p.Role, To: to, ChangedAt: now})
	p.Role = to
}
