package port

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by Send before the connection has opened
// or after it has closed.
var ErrNotConnected = errors.New("transport: not connected")

// CloseInfo describes how a connection ended. WasClean=false is the sole
// trigger for reconnection consideration.
type CloseInfo struct {
	Code     int
	Reason   string
	WasClean bool
}

// Conn is one persistent, bidirectional, message-oriented connection to
// a session coordination endpoint. Exactly one physical connection per
// instance; a Conn is not reusable after it closes.
type Conn interface {
	// Open establishes the physical connection. It suspends until the
	// connection is up or the attempt fails.
	Open(ctx context.Context) error

	// Send enqueues one frame for delivery. It does not block on the
	// network; it fails with ErrNotConnected before Open.
	Send(payload []byte) error

	// Frames delivers inbound frames in arrival order. The channel is
	// closed when the connection ends.
	Frames() <-chan []byte

	// Closed delivers exactly one CloseInfo when the connection ends.
	Closed() <-chan CloseInfo

	// Close tears the connection down with the given status code. Safe
	// to call at any time, repeatedly.
	Close(code int, reason string)
}

// Dialer mints a fresh Conn for an endpoint. Reconnection uses a new
// Conn per attempt.
type Dialer interface {
	Dial(endpoint string) Conn
}
