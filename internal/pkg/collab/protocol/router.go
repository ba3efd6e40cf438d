package protocol

import (
	"github.com/sirupsen/logrus"
)

// Handlers is one set of typed event callbacks. Leaving a field nil
// routes that kind to Unknown (if set). Binding a struct per variant
// instead of a string-keyed map keeps the kind set closed at compile
// time.
type Handlers struct {
	Join              func(Event)
	Leave             func(Event)
	CursorUpdate      func(Event)
	ChatMessage       func(Event)
	CommentAdd        func(Event)
	CommentAdded      func(Event)
	DocumentUpdate    func(Event)
	WhiteboardUpdate  func(Event)
	ParticipantJoined func(Event)
	ParticipantLeft   func(Event)
	Error             func(Event)

	// Unknown receives frames whose kind has no dedicated handler,
	// including kinds added by newer protocol revisions.
	Unknown func(Event)
}

func (h Handlers) forKind(k Kind) func(Event) {
	switch k {
	case KindJoin:
		return h.Join
	case KindLeave:
		return h.Leave
	case KindCursorUpdate:
		return h.CursorUpdate
	case KindChatMessage:
		return h.ChatMessage
	case KindCommentAdd:
		return h.CommentAdd
	case KindCommentAdded:
		return h.CommentAdded
	case KindDocumentUpdate:
		return h.DocumentUpdate
	case KindWhiteboardUpdate:
		return h.WhiteboardUpdate
	case KindParticipantJoined:
		return h.ParticipantJoined
	case KindParticipantLeft:
		return h.ParticipantLeft
	case KindError:
		return h.Error
	default:
		return nil
	}
}

// Router decodes inbound frames and dispatches typed events to every
// bound handler set. A failing handler never blocks dispatch to the
// others.
type Router struct {
	log      logrus.FieldLogger
	bindings []Handlers
}

func NewRouter(log logrus.FieldLogger) *Router {
	return &Router{log: log}
}

// Bind registers a handler set. All bound sets receive every event.
func (r *Router) Bind(h Handlers) {
	r.bindings = append(r.bindings, h)
}

// DispatchRaw decodes raw and dispatches the event. Malformed frames are
// logged and dropped; the returned error lets callers count them.
func (r *Router) DispatchRaw(raw []byte) error {
	e, err := Decode(raw)
	if err != nil {
		r.log.WithError(err).Warn("dropping undecodable frame")
		return err
	}
	r.Dispatch(e)
	return nil
}

// Dispatch delivers e to every bound handler set, isolating failures
// per handler.
func (r *Router) Dispatch(e Event) {
	kind := e.Kind()
	for _, h := range r.bindings {
		fn := h.forKind(kind)
		if fn == nil {
			fn = h.Unknown
		}
		if fn == nil {
			continue
		}
		r.invoke(kind, fn, e)
	}
}

func (r *Router) invoke(kind Kind, fn func(Event), e Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithField("kind", kind).Errorf("event handler panicked: %v", rec)
		}
	}()
	fn(e)
}
