package protocol

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"

	collab "go-collab/internal/pkg/collab/domain"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func sampleEvents() []Event {
	meta := func(b Body) Event {
		return Event{SessionID: "s1", UserID: "u1", Timestamp: 1700000000000, Body: b}
	}
	return []Event{
		meta(JoinBody{UserName: "Ada", Role: collab.RoleEditor}),
		meta(LeaveBody{}),
		meta(CursorBody{X: 12.5, Y: -3}),
		meta(ChatBody{MessageID: "m1", Content: "hello", ParentID: "m0"}),
		meta(CommentAddBody{CommentPayload{ArtifactID: "a1", Content: "typo", StartIndex: 4, EndIndex: 8}}),
		meta(CommentAddedBody{CommentPayload{CommentID: "c1", ArtifactID: "a1", Content: "typo", StartIndex: 4, EndIndex: 8}}),
		meta(DocumentUpdateBody{ArtifactUpdate{ArtifactID: "a1", Version: 3, Content: "draft"}}),
		meta(WhiteboardUpdateBody{ArtifactUpdate{ArtifactID: "a2", BaseVersion: 2, Content: `[{"shape":"rect"}]`}}),
		meta(ParticipantJoinedBody{UserName: "Grace", Role: collab.RoleViewer}),
		meta(ParticipantLeftBody{}),
		meta(ErrorBody{Code: "permission_denied", Message: "viewers cannot edit"}),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, want := range sampleEvents() {
		raw, err := Encode(want)
		if err != nil {
			t.Fatalf("encode %s: %v", want.Kind(), err)
		}
		got, err := Decode(raw)
		if err != nil {
			t.Fatalf("decode %s: %v", want.Kind(), err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s round trip mismatch:\n got %+v\nwant %+v", want.Kind(), got, want)
		}
		again, err := Encode(got)
		if err != nil {
			t.Fatalf("re-encode %s: %v", want.Kind(), err)
		}
		if !bytes.Equal(raw, again) {
			t.Errorf("%s bytes changed across round trip:\n %s\n %s", want.Kind(), raw, again)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{{nope"},
		{"missing type", `{"session_id":"s1"}`},
		{"bad payload", `{"type":"cursor_update","payload":{"x":"far left"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.raw)); !errors.Is(err, ErrDecode) {
				t.Fatalf("error = %v, want ErrDecode", err)
			}
		})
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	raw := []byte(`{"type":"reaction_added","session_id":"s1","payload":{"emoji":"+1"}}`)
	e, err := Decode(raw)
	if err != nil {
		t.Fatalf("unknown kind should decode: %v", err)
	}
	u, ok := e.Body.(UnknownBody)
	if !ok {
		t.Fatalf("body = %T, want UnknownBody", e.Body)
	}
	if u.Type != "reaction_added" {
		t.Errorf("type = %q", u.Type)
	}
}

func TestRouterDispatchAndCatchAll(t *testing.T) {
	r := NewRouter(quietLogger())

	var chats, unknowns int
	r.Bind(Handlers{
		ChatMessage: func(Event) { chats++ },
		Unknown:     func(Event) { unknowns++ },
	})

	r.Dispatch(Event{Body: ChatBody{Content: "hi"}})
	r.Dispatch(Event{Body: CursorBody{}})                       // no handler, falls through to Unknown
	r.Dispatch(Event{Body: UnknownBody{Type: "reaction_added"}}) // forward-compat path

	if chats != 1 {
		t.Errorf("chat handler ran %d times", chats)
	}
	if unknowns != 2 {
		t.Errorf("catch-all ran %d times, want 2", unknowns)
	}
}

func TestRouterIsolatesFailingHandler(t *testing.T) {
	r := NewRouter(quietLogger())

	var delivered []string
	r.Bind(Handlers{ChatMessage: func(Event) { panic("boom") }})
	r.Bind(Handlers{ChatMessage: func(Event) { delivered = append(delivered, "second") }})
	r.Bind(Handlers{ChatMessage: func(Event) { delivered = append(delivered, "third") }})

	r.Dispatch(Event{Body: ChatBody{Content: "hi"}})

	if len(delivered) != 2 {
		t.Fatalf("handlers after the panicking one got %v", delivered)
	}
}

func TestDispatchRawDropsMalformed(t *testing.T) {
	r := NewRouter(quietLogger())
	var calls int
	r.Bind(Handlers{ChatMessage: func(Event) { calls++ }})

	if err := r.DispatchRaw([]byte("}{")); !errors.Is(err, ErrDecode) {
		t.Fatalf("error = %v, want ErrDecode", err)
	}
	if calls != 0 {
		t.Errorf("handler invoked for malformed frame")
	}

	raw, _ := Encode(Event{Body: ChatBody{Content: "ok"}})
	if err := r.DispatchRaw(raw); err != nil {
		t.Fatalf("valid frame: %v", err)
	}
	if calls != 1 {
		t.Errorf("handler calls = %d", calls)
	}
}
