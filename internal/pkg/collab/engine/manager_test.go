package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"go-collab/internal/infrastructure/transport/port"
	"go-collab/internal/pkg/collab/artifact"
	"go-collab/internal/pkg/collab/directory"
	collab "go-collab/internal/pkg/collab/domain"
	"go-collab/internal/pkg/collab/protocol"
	"go-collab/internal/pkg/collab/reconnect"
)

type fakeConn struct {
	mu      sync.Mutex
	sent    [][]byte
	openErr error
	frames  chan []byte
	closed  chan port.CloseInfo
	closes  int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		closed: make(chan port.CloseInfo, 1),
	}
}

func (c *fakeConn) Open(context.Context) error    { return c.openErr }
func (c *fakeConn) Frames() <-chan []byte         { return c.frames }
func (c *fakeConn) Closed() <-chan port.CloseInfo { return c.closed }

func (c *fakeConn) Send(p []byte) error {
	c.mu.Lock()
	c.sent = append(c.sent, p)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close(int, string) {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
}

func (c *fakeConn) sentKinds(t *testing.T) []protocol.Kind {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var kinds []protocol.Kind
	for _, raw := range c.sent {
		e, err := protocol.Decode(raw)
		if err != nil {
			t.Fatalf("sent frame does not decode: %v", err)
		}
		kinds = append(kinds, e.Kind())
	}
	return kinds
}

func (c *fakeConn) countKind(t *testing.T, k protocol.Kind) int {
	n := 0
	for _, got := range c.sentKinds(t) {
		if got == k {
			n++
		}
	}
	return n
}

type fakeDialer struct {
	mu    sync.Mutex
	queue []*fakeConn
}

func (d *fakeDialer) push(c *fakeConn) {
	d.mu.Lock()
	d.queue = append(d.queue, c)
	d.mu.Unlock()
}

func (d *fakeDialer) Dial(string) port.Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return newFakeConn()
	}
	c := d.queue[0]
	d.queue = d.queue[1:]
	return c
}

type fakeClock struct {
	mu      sync.Mutex
	delays  []time.Duration
	waiters []chan time.Time
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	c.delays = append(c.delays, d)
	c.waiters = append(c.waiters, ch)
	return ch
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func (c *fakeClock) fire(i int) {
	c.mu.Lock()
	ch := c.waiters[i]
	c.mu.Unlock()
	ch <- time.Now()
}

func (c *fakeClock) delay(i int) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delays[i]
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// artifactServer serves the directory endpoints the engine uses during
// join and resync.
func artifactServer(t *testing.T, a collab.Artifact) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(a)
	}))
}

// directoryServer serves both the session and artifact endpoints, for
// tests that exercise the join-time roster bootstrap.
func directoryServer(t *testing.T, s collab.Session, a collab.Artifact) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/session/"+s.ID, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(s)
	})
	mux.HandleFunc("/api/v1/session/"+s.ID+"/artifact", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(a)
	})
	return httptest.NewServer(mux)
}

func newTestManager(t *testing.T, d *fakeDialer, clock reconnect.Clock, dir *directory.Client) *Manager {
	t.Helper()
	m, err := NewManager(Options{
		Endpoint:  "ws://coordinator/api/v1/session/ws",
		Dialer:    d,
		Directory: dir,
		Logger:    quietLogger(),
		Clock:     clock,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func editorCreds() Credentials {
	return Credentials{SessionID: "s1", UserID: "alice", UserName: "Alice", Role: collab.RoleEditor}
}

func TestJoinSendsJoinFrameAndTracksSelf(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{}
	d.push(conn)
	m := newTestManager(t, d, &fakeClock{}, nil)

	var connected int
	m.Subscribe(Events{Connected: func() { connected++ }})

	if err := m.JoinSession(context.Background(), editorCreds()); err != nil {
		t.Fatalf("join: %v", err)
	}
	if m.State() != StateJoined {
		t.Fatalf("state = %v", m.State())
	}
	if connected != 1 {
		t.Fatalf("connected events = %d", connected)
	}
	if n := conn.countKind(t, protocol.KindJoin); n != 1 {
		t.Fatalf("join frames sent = %d", n)
	}
	if ps := m.Participants(); len(ps) != 1 || ps[0].UserID != "alice" {
		t.Fatalf("participants = %+v", ps)
	}
}

func TestJoinFailsWhenDialFails(t *testing.T) {
	conn := newFakeConn()
	conn.openErr = errors.New("refused")
	d := &fakeDialer{}
	d.push(conn)
	m := newTestManager(t, d, &fakeClock{}, nil)

	if err := m.JoinSession(context.Background(), editorCreds()); err == nil {
		t.Fatal("expected join error")
	}
	if m.State() != StateIdle {
		t.Fatalf("state = %v", m.State())
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{}
	d.push(conn)
	m := newTestManager(t, d, &fakeClock{}, nil)
	_ = m.JoinSession(context.Background(), editorCreds())

	if err := m.LeaveSession(); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := m.LeaveSession(); err != nil {
		t.Fatalf("second leave: %v", err)
	}
	if n := conn.countKind(t, protocol.KindLeave); n != 1 {
		t.Fatalf("leave frames = %d, want exactly 1", n)
	}
	if m.State() != StateIdle || len(m.Participants()) != 0 {
		t.Fatalf("state=%v participants=%d", m.State(), len(m.Participants()))
	}
}

func TestJoinWhileJoinedPerformsImplicitLeave(t *testing.T) {
	conn1, conn2 := newFakeConn(), newFakeConn()
	d := &fakeDialer{}
	d.push(conn1)
	d.push(conn2)
	m := newTestManager(t, d, &fakeClock{}, nil)

	_ = m.JoinSession(context.Background(), editorCreds())
	creds2 := editorCreds()
	creds2.SessionID = "s2"
	if err := m.JoinSession(context.Background(), creds2); err != nil {
		t.Fatalf("second join: %v", err)
	}

	if n := conn1.countKind(t, protocol.KindLeave); n != 1 {
		t.Fatalf("implicit leave frames on first conn = %d", n)
	}
	if n := conn2.countKind(t, protocol.KindJoin); n != 1 {
		t.Fatalf("join frames on second conn = %d", n)
	}
}

func TestViewerUpdateRejectedBeforeSend(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{}
	d.push(conn)
	m := newTestManager(t, d, &fakeClock{}, nil)

	creds := editorCreds()
	creds.Role = collab.RoleViewer
	_ = m.JoinSession(context.Background(), creds)

	if err := m.SubmitUpdate("content", 0, ""); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("error = %v, want ErrPermissionDenied", err)
	}
	if n := conn.countKind(t, protocol.KindDocumentUpdate); n != 0 {
		t.Fatalf("update frame sent despite denied permission")
	}

	// Viewers cannot chat or comment either, but may move their cursor.
	if _, err := m.SendChatMessage("hi", "", ""); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("chat error = %v", err)
	}
	if _, err := m.AddComment("note", 0, 1); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("comment error = %v", err)
	}
	if err := m.SendCursor(1, 2); err != nil {
		t.Fatalf("cursor: %v", err)
	}
}

func TestEditorSubmitAndRemoteDelivery(t *testing.T) {
	srv := artifactServer(t, collab.Artifact{
		ID: "a1", SessionID: "s1", Kind: collab.ArtifactKindDocument, Version: 1, Content: "v1",
	})
	defer srv.Close()

	conn := newFakeConn()
	d := &fakeDialer{}
	d.push(conn)
	m := newTestManager(t, d, &fakeClock{}, directory.NewClient(srv.URL, nil))

	var updates []artifact.RemoteUpdate
	var mu sync.Mutex
	m.Subscribe(Events{DocumentUpdate: func(u artifact.RemoteUpdate) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	}})

	_ = m.JoinSession(context.Background(), editorCreds())

	if err := m.SubmitUpdate("v2 draft", 1, "edit"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if m.ArtifactVersion() != 2 {
		t.Fatalf("effective version = %d, want 2", m.ArtifactVersion())
	}
	if n := conn.countKind(t, protocol.KindDocumentUpdate); n != 1 {
		t.Fatalf("update frames sent = %d", n)
	}

	// The coordinator echoes the accepted update back to its author.
	echo, _ := protocol.Encode(protocol.Event{
		SessionID: "s1", UserID: "alice", Timestamp: time.Now().UnixMilli(),
		Body: protocol.DocumentUpdateBody{ArtifactUpdate: protocol.ArtifactUpdate{
			ArtifactID: "a1", Version: 2, Content: "v2 draft",
		}},
	})
	conn.frames <- echo
	waitFor(t, func() bool { return m.ArtifactContent() == "v2 draft" && m.ArtifactVersion() == 2 }, "ack promotion")

	// A peer's v3 update is applied and emitted.
	peer, _ := protocol.Encode(protocol.Event{
		SessionID: "s1", UserID: "bob", Timestamp: time.Now().UnixMilli(),
		Body: protocol.DocumentUpdateBody{ArtifactUpdate: protocol.ArtifactUpdate{
			ArtifactID: "a1", Version: 3, Content: "v3",
		}},
	})
	conn.frames <- peer
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) == 1
	}, "remote update event")

	mu.Lock()
	got := updates[0]
	mu.Unlock()
	if got.Version != 3 || got.AuthorID != "bob" {
		t.Fatalf("remote update = %+v", got)
	}
}

func TestJoinBootstrapsRosterFromDirectory(t *testing.T) {
	srv := directoryServer(t, collab.Session{
		ID: "s1", Kind: collab.SessionKindDocument,
		Participants: []collab.Participant{
			{UserID: "alice", DisplayName: "Alice", Role: collab.RoleEditor},
			{UserID: "bob", DisplayName: "Bob", Role: collab.RoleOwner, Status: collab.StatusOnline},
			{UserID: "carol", DisplayName: "Carol", Role: collab.RoleViewer},
		},
	}, collab.Artifact{ID: "a1", SessionID: "s1", Kind: collab.ArtifactKindDocument, Version: 4, Content: "v4"})
	defer srv.Close()

	conn := newFakeConn()
	d := &fakeDialer{}
	d.push(conn)
	m := newTestManager(t, d, &fakeClock{}, directory.NewClient(srv.URL, nil))

	if err := m.JoinSession(context.Background(), editorCreds()); err != nil {
		t.Fatalf("join: %v", err)
	}

	// A late joiner sees the peers who got there first, not just itself.
	if n := len(m.Participants()); n != 3 {
		t.Fatalf("participants = %d, want 3", n)
	}
	bob, ok := m.Participant("bob")
	if !ok || bob.Role != collab.RoleOwner || bob.Status != collab.StatusOnline {
		t.Fatalf("bob = %+v, ok = %v", bob, ok)
	}
	if carol, _ := m.Participant("carol"); carol.Status != collab.StatusOffline {
		t.Fatalf("carol status = %q, want offline", carol.Status)
	}
	if self, _ := m.Participant("alice"); self.Status != collab.StatusOnline {
		t.Fatalf("self status = %q, want online", self.Status)
	}

	// Cursors from a bootstrapped peer land instead of being dropped.
	cursor, _ := protocol.Encode(protocol.Event{
		SessionID: "s1", UserID: "bob",
		Body: protocol.CursorBody{X: 3, Y: 7},
	})
	conn.frames <- cursor
	waitFor(t, func() bool {
		p, ok := m.Participant("bob")
		return ok && p.Cursor != nil && p.Cursor.X == 3
	}, "cursor applied for bootstrapped peer")
}

func TestPresenceFollowsJoinLeaveFrames(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{}
	d.push(conn)
	m := newTestManager(t, d, &fakeClock{}, nil)

	var joined, left []string
	var mu sync.Mutex
	m.Subscribe(Events{
		ParticipantJoined: func(p collab.Participant) {
			mu.Lock()
			joined = append(joined, p.UserID)
			mu.Unlock()
		},
		ParticipantLeft: func(id string) {
			mu.Lock()
			left = append(left, id)
			mu.Unlock()
		},
	})

	_ = m.JoinSession(context.Background(), editorCreds())

	bobJoined, _ := protocol.Encode(protocol.Event{
		SessionID: "s1", UserID: "bob",
		Body: protocol.ParticipantJoinedBody{UserName: "Bob", Role: collab.RoleViewer},
	})
	conn.frames <- bobJoined
	conn.frames <- bobJoined // duplicate join refreshes, never duplicates
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(joined) == 2
	}, "participant_joined events")
	if len(m.Participants()) != 2 {
		t.Fatalf("participants = %+v", m.Participants())
	}

	bobLeft, _ := protocol.Encode(protocol.Event{
		SessionID: "s1", UserID: "bob",
		Body: protocol.ParticipantLeftBody{},
	})
	conn.frames <- bobLeft
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(left) == 1
	}, "participant_left event")
	if _, ok := m.Participant("bob"); ok {
		t.Fatal("bob still present after leave frame")
	}
}

func TestUncleanCloseReconnectsWithLinearDelays(t *testing.T) {
	conn1, conn2 := newFakeConn(), newFakeConn()
	d := &fakeDialer{}
	d.push(conn1)
	clock := &fakeClock{}
	m := newTestManager(t, d, clock, nil)

	var connected, disconnected int
	var mu sync.Mutex
	m.Subscribe(Events{
		Connected:    func() { mu.Lock(); connected++; mu.Unlock() },
		Disconnected: func(string) { mu.Lock(); disconnected++; mu.Unlock() },
	})

	_ = m.JoinSession(context.Background(), editorCreds())

	conn1.closed <- port.CloseInfo{Code: 1006, Reason: "network", WasClean: false}
	waitFor(t, func() bool { return clock.pending() == 1 }, "first retry scheduled")
	if got := clock.delay(0); got != time.Second {
		t.Fatalf("first retry delay = %v, want 1s", got)
	}
	if m.State() != StateReconnecting {
		t.Fatalf("state = %v", m.State())
	}

	d.push(conn2)
	clock.fire(0)
	waitFor(t, func() bool { return m.State() == StateJoined }, "rejoin")

	if n := conn2.countKind(t, protocol.KindJoin); n != 1 {
		t.Fatalf("rejoin frames = %d", n)
	}
	mu.Lock()
	if connected != 2 || disconnected != 1 {
		t.Fatalf("connected=%d disconnected=%d", connected, disconnected)
	}
	mu.Unlock()

	// The attempt counter reset on the successful open: a second drop
	// starts again at the 1s delay.
	conn2.closed <- port.CloseInfo{Code: 1006, Reason: "network", WasClean: false}
	waitFor(t, func() bool { return clock.pending() == 2 }, "second retry scheduled")
	if got := clock.delay(1); got != time.Second {
		t.Fatalf("delay after counter reset = %v, want 1s", got)
	}
}

func TestReconnectExhaustionIsTerminal(t *testing.T) {
	conn1 := newFakeConn()
	d := &fakeDialer{}
	d.push(conn1)
	clock := &fakeClock{}
	m, err := NewManager(Options{
		Endpoint: "ws://coordinator/ws",
		Dialer:   d,
		Logger:   quietLogger(),
		Clock:    clock,
		Policy:   reconnect.Policy{MaxAttempts: 2, BaseDelay: time.Second},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	errs := make(chan error, 4)
	m.Subscribe(Events{Error: func(e error) { errs <- e }})

	_ = m.JoinSession(context.Background(), editorCreds())
	conn1.closed <- port.CloseInfo{Code: 1006, WasClean: false}

	for i := 0; i < 2; i++ {
		waitFor(t, func() bool { return clock.pending() == i+1 }, "retry scheduled")
		failing := newFakeConn()
		failing.openErr = errors.New("still down")
		d.push(failing)
		clock.fire(i)
		if i == 0 {
			// The second attempt is scheduled only after the first fails.
			waitFor(t, func() bool { return clock.pending() == 2 }, "second retry")
			if got := clock.delay(1); got != 2*time.Second {
				t.Fatalf("second delay = %v, want 2s", got)
			}
		}
	}

	select {
	case err := <-errs:
		if !errors.Is(err, reconnect.ErrExhausted) {
			t.Fatalf("error = %v, want ErrExhausted", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no exhaustion error emitted")
	}
	waitFor(t, func() bool { return m.State() == StateFailed }, "failed state")
}

func TestLeaveAfterExhaustionClearsPresence(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{}
	d.push(conn)
	clock := &fakeClock{}
	m, err := NewManager(Options{
		Endpoint: "ws://coordinator/ws",
		Dialer:   d,
		Logger:   quietLogger(),
		Clock:    clock,
		Policy:   reconnect.Policy{MaxAttempts: 1, BaseDelay: time.Second},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	_ = m.JoinSession(context.Background(), editorCreds())
	conn.closed <- port.CloseInfo{Code: 1006, WasClean: false}
	waitFor(t, func() bool { return clock.pending() == 1 }, "retry scheduled")

	failing := newFakeConn()
	failing.openErr = errors.New("still down")
	d.push(failing)
	clock.fire(0)
	waitFor(t, func() bool { return m.State() == StateFailed }, "failed state")

	// An explicit leave from the failed state must not strand entries.
	if err := m.LeaveSession(); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if m.State() != StateIdle {
		t.Fatalf("state = %v, want idle", m.State())
	}
	if n := len(m.Participants()); n != 0 {
		t.Fatalf("participants after leave = %d, want 0", n)
	}
}

func TestCleanCloseDoesNotReconnect(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{}
	d.push(conn)
	clock := &fakeClock{}
	m := newTestManager(t, d, clock, nil)

	_ = m.JoinSession(context.Background(), editorCreds())
	conn.closed <- port.CloseInfo{Code: 1000, Reason: "bye", WasClean: true}

	waitFor(t, func() bool { return m.State() == StateIdle }, "idle after clean close")
	if clock.pending() != 0 {
		t.Fatal("retry scheduled for a clean close")
	}
}

func TestLeaveCancelsPendingRetry(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{}
	d.push(conn)
	clock := &fakeClock{}
	m := newTestManager(t, d, clock, nil)

	_ = m.JoinSession(context.Background(), editorCreds())
	conn.closed <- port.CloseInfo{Code: 1006, WasClean: false}
	waitFor(t, func() bool { return clock.pending() == 1 }, "retry scheduled")

	if err := m.LeaveSession(); err != nil {
		t.Fatalf("leave: %v", err)
	}
	clock.fire(0)

	// The canceled retry must not dial or change state.
	time.Sleep(20 * time.Millisecond)
	if m.State() != StateIdle {
		t.Fatalf("state = %v after canceled retry", m.State())
	}
}

func TestMalformedFrameDoesNotCrashDispatch(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{}
	d.push(conn)
	m := newTestManager(t, d, &fakeClock{}, nil)

	var chats int
	var mu sync.Mutex
	m.Subscribe(Events{ChatMessage: func(collab.ChatMessage) {
		mu.Lock()
		chats++
		mu.Unlock()
	}})

	_ = m.JoinSession(context.Background(), editorCreds())

	conn.frames <- []byte("}{ not a frame")
	chat, _ := protocol.Encode(protocol.Event{
		SessionID: "s1", UserID: "bob",
		Body: protocol.ChatBody{MessageID: "m1", Content: "still alive"},
	})
	conn.frames <- chat

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return chats == 1
	}, "chat delivered after malformed frame")
}
