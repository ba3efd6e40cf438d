package collab

import (
	"errors"
	"time"
)

// InvitationStatus is the single-transition state of an invitation.
// Pending is the only non-terminal status.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationExpired  InvitationStatus = "expired"
)

var (
	ErrInvitationSettled = errors.New("collab: invitation already settled")
	ErrInvitationExpired = errors.New("collab: invitation expired")
)

// Invitation grants one contact a role in a session via a single-use
// token. Status transitions exactly once out of pending; an invitation
// past its expiry is expired even if never explicitly acted upon.
type Invitation struct {
	ID             string           `json:"id" db:"id"`
	SessionID      string           `json:"session_id" db:"session_id"`
	InviterID      string           `json:"inviter_id" db:"inviter_id"`
	InviteeContact string           `json:"invitee_contact" db:"invitee_contact"`
	InviteeName    string           `json:"invitee_name" db:"invitee_name"`
	Role           Role             `json:"role" db:"role"`
	Message        string           `json:"message,omitempty" db:"message"`
	Status         InvitationStatus `json:"status" db:"status"`
	Token          string           `json:"token" db:"token"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	ExpiresAt      time.Time        `json:"expires_at" db:"expires_at"`
}

// EffectiveStatus folds automatic expiry into the stored status.
func (i *Invitation) EffectiveStatus(now time.Time) InvitationStatus {
	if i.Status == InvitationPending && now.After(i.ExpiresAt) {
		return InvitationExpired
	}
	return i.Status
}

// Settle applies the terminal transition to accepted or declined. It
// fails if the invitation has already settled or expired.
func (i *Invitation) Settle(to InvitationStatus, now time.Time) error {
	if to != InvitationAccepted && to != InvitationDeclined {
		return errors.New("collab: invitations settle only to accepted or declined")
	}
	switch i.EffectiveStatus(now) {
	case InvitationPending:
		i.Status = to
		return nil
	case InvitationExpired:
		i.Status = InvitationExpired
		return ErrInvitationExpired
	default:
		return ErrInvitationSettled
	}
}
