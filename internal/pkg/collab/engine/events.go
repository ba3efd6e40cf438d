package engine

import (
	"go-collab/internal/pkg/collab/artifact"
	collab "go-collab/internal/pkg/collab/domain"
)

// Events is the typed subscription surface of a session manager: the
// only channel through which external collaborators (UI, persistence,
// notifications) observe session activity. Nil fields are simply not
// notified. Subscribe before joining; handlers run on the session's
// dispatch goroutine and must not block.
type Events struct {
	Connected         func()
	Disconnected      func(reason string)
	ParticipantJoined func(collab.Participant)
	ParticipantLeft   func(userID string)
	DocumentUpdate    func(artifact.RemoteUpdate)
	WhiteboardUpdate  func(artifact.RemoteUpdate)
	CursorUpdate      func(userID string, cursor collab.CursorPosition)
	ChatMessage       func(collab.ChatMessage)
	CommentAdded      func(collab.Comment)
	Conflict          func(artifact.Conflict)
	Error             func(err error)
}

func (m *Manager) emitConnected() {
	for _, s := range m.subscribers() {
		if s.Connected != nil {
			s.Connected()
		}
	}
}

func (m *Manager) emitDisconnected(reason string) {
	for _, s := range m.subscribers() {
		if s.Disconnected != nil {
			s.Disconnected(reason)
		}
	}
}

func (m *Manager) emitParticipantJoined(p collab.Participant) {
	for _, s := range m.subscribers() {
		if s.ParticipantJoined != nil {
			s.ParticipantJoined(p)
		}
	}
}

func (m *Manager) emitParticipantLeft(userID string) {
	for _, s := range m.subscribers() {
		if s.ParticipantLeft != nil {
			s.ParticipantLeft(userID)
		}
	}
}

func (m *Manager) emitRemoteUpdate(u artifact.RemoteUpdate) {
	for _, s := range m.subscribers() {
		switch u.Kind {
		case collab.ArtifactKindWhiteboard:
			if s.WhiteboardUpdate != nil {
				s.WhiteboardUpdate(u)
			}
		default:
			if s.DocumentUpdate != nil {
				s.DocumentUpdate(u)
			}
		}
	}
}

func (m *Manager) emitCursor(userID string, cursor collab.CursorPosition) {
	for _, s := range m.subscribers() {
		if s.CursorUpdate != nil {
			s.CursorUpdate(userID, cursor)
		}
	}
}

func (m *Manager) emitChat(msg collab.ChatMessage) {
	for _, s := range m.subscribers() {
		if s.ChatMessage != nil {
			s.ChatMessage(msg)
		}
	}
}

func (m *Manager) emitCommentAdded(c collab.Comment) {
	for _, s := range m.subscribers() {
		if s.CommentAdded != nil {
			s.CommentAdded(c)
		}
	}
}

func (m *Manager) emitConflict(c artifact.Conflict) {
	for _, s := range m.subscribers() {
		if s.Conflict != nil {
			s.Conflict(c)
		}
	}
}

func (m *Manager) emitError(err error) {
	for _, s := range m.subscribers() {
		if s.Error != nil {
			s.Error(err)
		}
	}
}
