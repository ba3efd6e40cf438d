package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"go-collab/internal/infrastructure/transport/port"
)

var testUpgrader = websocket.Upgrader{}

// wsEchoServer upgrades, pushes one greeting frame and then reads until
// the client goes away.
func wsEchoServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_ = ws.WriteMessage(websocket.TextMessage, []byte("hello"))
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestCloseLeavesFramesOpen(t *testing.T) {
	c := newWsConn(wsEchoServer(t))
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	select {
	case frame := <-c.Frames():
		if string(frame) != "hello" {
			t.Fatalf("frame = %q", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound frame delivered")
	}

	c.Close(websocket.CloseNormalClosure, "done")
	select {
	case info := <-c.Closed():
		if !info.WasClean {
			t.Fatalf("local close reported unclean: %+v", info)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no close notification")
	}

	// The frames channel stays open after teardown; a reader racing the
	// close must block or drain leftovers, never observe a closed channel.
	select {
	case _, ok := <-c.Frames():
		if !ok {
			t.Fatal("frames channel closed during shutdown")
		}
	case <-time.After(100 * time.Millisecond):
	}

	if err := c.Send([]byte("late")); !errors.Is(err, port.ErrNotConnected) {
		t.Fatalf("send after close = %v, want ErrNotConnected", err)
	}
}

func TestSendBeforeOpenFails(t *testing.T) {
	c := newWsConn("ws://unused")
	if err := c.Send([]byte("x")); !errors.Is(err, port.ErrNotConnected) {
		t.Fatalf("send before open = %v, want ErrNotConnected", err)
	}
}
