// Package protocol defines the wire frames exchanged with a session
// coordination endpoint and the typed event dispatch on top of them.
//
// A frame is one JSON message: a small envelope (type, session, user,
// timestamp) plus a kind-specific payload. The set of kinds is closed;
// frames of an unknown kind still decode (into UnknownBody) so newer
// servers can talk to older clients.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	collab "go-collab/internal/pkg/collab/domain"
)

// Kind identifies a frame/event variant.
type Kind string

const (
	// Client-originated commands.
	KindJoin         Kind = "join"
	KindLeave        Kind = "leave"
	KindCursorUpdate Kind = "cursor_update"
	KindChatMessage  Kind = "chat_message"
	KindCommentAdd   Kind = "comment_add"

	// Bidirectional artifact updates.
	KindDocumentUpdate   Kind = "document_update"
	KindWhiteboardUpdate Kind = "whiteboard_update"

	// Server-originated events.
	KindParticipantJoined Kind = "participant_joined"
	KindParticipantLeft   Kind = "participant_left"
	KindCommentAdded      Kind = "comment_added"
	KindError             Kind = "error"
)

// ErrDecode marks a malformed frame. Decode errors are logged and the
// frame dropped; they never crash dispatch.
var ErrDecode = errors.New("protocol: malformed frame")

// Event is one decoded frame: envelope metadata plus a typed body.
type Event struct {
	SessionID string
	UserID    string
	Timestamp int64 // unix milliseconds, informational only
	Body      Body
}

// Kind returns the variant of the event's body.
func (e Event) Kind() Kind { return e.Body.Kind() }

// Body is the closed set of frame payloads.
type Body interface {
	Kind() Kind
}

type JoinBody struct {
	UserName string      `json:"user_name"`
	Role     collab.Role `json:"role"`
}

func (JoinBody) Kind() Kind { return KindJoin }

type LeaveBody struct{}

func (LeaveBody) Kind() Kind { return KindLeave }

type CursorBody struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (CursorBody) Kind() Kind { return KindCursorUpdate }

type ChatBody struct {
	MessageID   string `json:"message_id,omitempty"`
	Content     string `json:"content"`
	RecipientID string `json:"recipient_id,omitempty"`
	ParentID    string `json:"parent_id,omitempty"`
	Edited      bool   `json:"edited,omitempty"`
}

func (ChatBody) Kind() Kind { return KindChatMessage }

// ArtifactUpdate carries a version-stamped content payload. BaseVersion
// is set on client submissions; Version is authoritative on frames the
// coordinator fans out.
type ArtifactUpdate struct {
	ArtifactID  string `json:"artifact_id"`
	Version     int64  `json:"version,omitempty"`
	BaseVersion int64  `json:"base_version,omitempty"`
	Content     string `json:"content"`
	Summary     string `json:"summary,omitempty"`
}

type DocumentUpdateBody struct {
	ArtifactUpdate
}

func (DocumentUpdateBody) Kind() Kind { return KindDocumentUpdate }

type WhiteboardUpdateBody struct {
	ArtifactUpdate
}

func (WhiteboardUpdateBody) Kind() Kind { return KindWhiteboardUpdate }

// CommentPayload is shared by the comment_add command and the
// comment_added event.
type CommentPayload struct {
	CommentID  string `json:"comment_id,omitempty"`
	ArtifactID string `json:"artifact_id"`
	Content    string `json:"content"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

type CommentAddBody struct {
	CommentPayload
}

func (CommentAddBody) Kind() Kind { return KindCommentAdd }

type CommentAddedBody struct {
	CommentPayload
}

func (CommentAddedBody) Kind() Kind { return KindCommentAdded }

type ParticipantJoinedBody struct {
	UserName string      `json:"user_name"`
	Role     collab.Role `json:"role"`
}

func (ParticipantJoinedBody) Kind() Kind { return KindParticipantJoined }

type ParticipantLeftBody struct{}

func (ParticipantLeftBody) Kind() Kind { return KindParticipantLeft }

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (ErrorBody) Kind() Kind { return KindError }

// UnknownBody preserves a frame of an unrecognized kind so the catch-all
// handler can inspect or forward it.
type UnknownBody struct {
	Type    string
	Payload json.RawMessage
}

func (u UnknownBody) Kind() Kind { return Kind(u.Type) }

type envelope struct {
	Type      Kind            `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Encode serializes an event into a wire frame.
func Encode(e Event) ([]byte, error) {
	if e.Body == nil {
		return nil, errors.New("protocol: encode: nil body")
	}
	env := envelope{
		Type:      e.Body.Kind(),
		SessionID: e.SessionID,
		UserID:    e.UserID,
		Timestamp: e.Timestamp,
	}
	if u, ok := e.Body.(UnknownBody); ok {
		env.Payload = u.Payload
	} else {
		payload, err := json.Marshal(e.Body)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode %s: %w", env.Type, err)
		}
		// Bodies with no fields serialize as "{}"; omit them entirely.
		if string(payload) != "{}" {
			env.Payload = payload
		}
	}
	return json.Marshal(env)
}

// Decode parses a wire frame into a typed event. Frames of an unknown
// kind decode into UnknownBody rather than failing.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if env.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrDecode)
	}

	e := Event{SessionID: env.SessionID, UserID: env.UserID, Timestamp: env.Timestamp}

	var body Body
	var err error
	switch env.Type {
	case KindJoin:
		body, err = decodeBody[JoinBody](env.Payload)
	case KindLeave:
		body = LeaveBody{}
	case KindCursorUpdate:
		body, err = decodeBody[CursorBody](env.Payload)
	case KindChatMessage:
		body, err = decodeBody[ChatBody](env.Payload)
	case KindCommentAdd:
		body, err = decodeBody[CommentAddBody](env.Payload)
	case KindCommentAdded:
		body, err = decodeBody[CommentAddedBody](env.Payload)
	case KindDocumentUpdate:
		body, err = decodeBody[DocumentUpdateBody](env.Payload)
	case KindWhiteboardUpdate:
		body, err = decodeBody[WhiteboardUpdateBody](env.Payload)
	case KindParticipantJoined:
		body, err = decodeBody[ParticipantJoinedBody](env.Payload)
	case KindParticipantLeft:
		body = ParticipantLeftBody{}
	case KindError:
		body, err = decodeBody[ErrorBody](env.Payload)
	default:
		body = UnknownBody{Type: string(env.Type), Payload: env.Payload}
	}
	if err != nil {
		return Event{}, fmt.Errorf("%w: payload for %s: %v", ErrDecode, env.Type, err)
	}
	e.Body = body
	return e, nil
}

func decodeBody[T Body](payload json.RawMessage) (Body, error) {
	var b T
	if len(payload) == 0 {
		return b, nil
	}
	if err := json.Unmarshal(payload, &b); err != nil {
		return nil, err
	}
	return b, nil
}
