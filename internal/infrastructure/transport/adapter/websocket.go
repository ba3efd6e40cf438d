package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"go-collab/internal/infrastructure/transport/port"
)

const (
	writeWait   = 10 * time.Second
	pingPeriod  = 30 * time.Second
	readTimeout = 60 * time.Second
	maxFrameLen = 1 << 20 // 1MB payload cap
)

// WsConn is a client-side websocket connection satisfying port.Conn.
// Outbound writes are coordinated through a buffered channel and a single
// write loop; a slow consumer closes the connection to keep backpressure
// bounded.
type WsConn struct {
	endpoint string

	ws         *websocket.Conn
	send       chan []byte
	frames     chan []byte
	closed     chan port.CloseInfo
	done       chan struct{}
	once       sync.Once
	opened     atomic.Bool
	localClose atomic.Bool
}

// Ensure interface compliance at compile time
var _ port.Conn = (*WsConn)(nil)

func newWsConn(endpoint string) *WsConn {
	return &WsConn{
		endpoint: endpoint,
		send:     make(chan []byte, 128),
		frames:   make(chan []byte, 128),
		closed:   make(chan port.CloseInfo, 1),
		done:     make(chan struct{}),
	}
}

// Open dials the endpoint and starts the read and write loops. It must be
// called exactly once per connection.
func (c *WsConn) Open(ctx context.Context) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", c.endpoint, err)
	}
	c.ws = ws
	c.opened.Store(true)

	ws.SetReadLimit(maxFrameLen)
	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go c.writeLoop()
	go c.readLoop()
	return nil
}

// Send enqueues payload for delivery. Sending before Open fails with
// port.ErrNotConnected.
func (c *WsConn) Send(payload []byte) error {
	if !c.opened.Load() {
		return port.ErrNotConnected
	}
	select {
	case <-c.done:
		return port.ErrNotConnected
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return errors.New("transport: send buffer exceeded")
	}
}

func (c *WsConn) Frames() <-chan []byte { return c.frames }

func (c *WsConn) Closed() <-chan port.CloseInfo { return c.closed }

// Close terminates the connection. A locally initiated close is reported
// as clean; the reconnection policy must never fire for it.
func (c *WsConn) Close(code int, reason string) {
	c.localClose.Store(true)
	c.shutdown(port.CloseInfo{Code: code, Reason: reason, WasClean: true})
}

func (c *WsConn) shutdown(info port.CloseInfo) {
	c.once.Do(func() {
		close(c.done)
		if c.ws != nil {
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(info.Code, info.Reason), time.Now().Add(writeWait))
			_ = c.ws.Close()
		}
		// frames is never closed here: readLoop may be mid-send on it, and
		// consumers learn about teardown through Closed() instead.
		c.closed <- info
	})
}

func (c *WsConn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.localClose.Load() {
				// shutdown already reported the close
				return
			}
			info := port.CloseInfo{Code: websocket.CloseAbnormalClosure, Reason: err.Error()}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				info.Code = closeErr.Code
				info.Reason = closeErr.Text
				info.WasClean = closeErr.Code == websocket.CloseNormalClosure ||
					closeErr.Code == websocket.CloseGoingAway
			}
			c.shutdown(info)
			return
		}
		select {
		case c.frames <- data:
		case <-c.done:
			return
		}
	}
}

func (c *WsConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.writeMessage(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				return
			}
		}
	}
}

func (c *WsConn) writeMessage(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *WsConn) writePing() error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}

// WsDialer mints WsConn instances.
type WsDialer struct{}

var _ port.Dialer = WsDialer{}

func (WsDialer) Dial(endpoint string) port.Conn {
	return newWsConn(endpoint)
}
