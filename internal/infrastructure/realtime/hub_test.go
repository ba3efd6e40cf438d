package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialPair upgrades one client connection against a test server and returns
// the server-side Connection (attached to the hub) plus the client socket.
func dialPair(t *testing.T, hub *Hub, userID string) (*Connection, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	serverConn := make(chan *Connection, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conn := NewConnection(userID, ws)
		hub.Attach(conn)
		serverConn <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case conn := <-serverConn:
		return conn, client
	case <-time.After(2 * time.Second):
		t.Fatal("server connection not established")
		return nil, nil
	}
}

func readText(t *testing.T, client *websocket.Conn) string {
	t.Helper()
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func TestBroadcastReachesRoomMembersOnly(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	connA, clientA := dialPair(t, hub, "alice")
	connB, clientB := dialPair(t, hub, "bob")
	connC, _ := dialPair(t, hub, "carol")

	hub.Join("s1", connA)
	hub.Join("s1", connB)
	hub.Join("s2", connC)

	delivered := hub.Broadcast("s1", []byte("hello"), "")
	if delivered != 2 {
		t.Fatalf("delivered = %d, want 2", delivered)
	}
	if got := readText(t, clientA); got != "hello" {
		t.Errorf("alice got %q", got)
	}
	if got := readText(t, clientB); got != "hello" {
		t.Errorf("bob got %q", got)
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	connA, _ := dialPair(t, hub, "alice")
	connB, clientB := dialPair(t, hub, "bob")
	hub.Join("s1", connA)
	hub.Join("s1", connB)

	if delivered := hub.Broadcast("s1", []byte("from alice"), "alice"); delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}
	if got := readText(t, clientB); got != "from alice" {
		t.Errorf("bob got %q", got)
	}
}

func TestNotifyUser(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	_, clientA := dialPair(t, hub, "alice")

	if !hub.NotifyUser("alice", []byte("direct")) {
		t.Fatal("notify reported failure for a live user")
	}
	if got := readText(t, clientA); got != "direct" {
		t.Errorf("alice got %q", got)
	}
	if hub.NotifyUser("nobody", []byte("x")) {
		t.Error("notify succeeded for an unknown user")
	}
}

func TestAttachReplacesPreviousConnection(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	first, _ := dialPair(t, hub, "alice")
	hub.Join("s1", first)

	second, _ := dialPair(t, hub, "alice")
	hub.Join("s1", second)

	// The first connection was evicted: the room must contain exactly one
	// entry for alice and sends to it must fail.
	if members := hub.Members("s1"); len(members) != 1 || members[0] != "alice" {
		t.Fatalf("members = %v", members)
	}
	deadline := time.Now().Add(time.Second)
	for first.Send([]byte("late")) == nil {
		if time.Now().After(deadline) {
			t.Fatal("send on the replaced connection still succeeds")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDetachLeavesAllRooms(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	conn, _ := dialPair(t, hub, "alice")
	hub.Join("s1", conn)
	hub.Join("s2", conn)

	hub.Detach(conn)

	if n := hub.Broadcast("s1", []byte("x"), ""); n != 0 {
		t.Errorf("s1 delivered = %d after detach", n)
	}
	if n := hub.Broadcast("s2", []byte("x"), ""); n != 0 {
		t.Errorf("s2 delivered = %d after detach", n)
	}
}
