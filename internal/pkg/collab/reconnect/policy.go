// Package reconnect implements the bounded-retry reconnection policy for
// the live session connection as a pure state machine. Timers live with
// the caller; transitions are functions of (state, event) only, so the
// machine is testable without real time.
package reconnect

import (
	"errors"
	"time"
)

// State of the connection as the policy sees it.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrExhausted is surfaced when the retry ceiling is exceeded. The
// machine is terminal at that point; only an explicit rejoin resets it.
var ErrExhausted = errors.New("reconnect: retry attempts exhausted")

// Policy bounds the retry behavior. Delay scales linearly:
// BaseDelay × attemptNumber.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy matches the documented contract: five attempts at
// 1s, 2s, 3s, 4s, 5s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, BaseDelay: time.Second}
}

// Decision is the outcome of feeding a close event into the machine.
type Decision struct {
	// Retry is true when a reconnection attempt should be scheduled
	// after Delay.
	Retry bool
	Delay time.Duration
	// Attempt is the 1-based number of the scheduled attempt.
	Attempt int
}

// Machine tracks connection state and the retry counter. Not safe for
// concurrent use; the lifecycle manager drives it from its event loop.
type Machine struct {
	policy  Policy
	state   State
	attempt int
}

func NewMachine(p Policy) *Machine {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy().MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultPolicy().BaseDelay
	}
	return &Machine{policy: p}
}

func (m *Machine) State() State { return m.state }

// Attempts reports how many reconnection attempts are in flight or done
// since the last successful open.
func (m *Machine) Attempts() int { return m.attempt }

// Connecting marks the initial dial or a scheduled retry being executed.
func (m *Machine) Connecting() {
	if m.state == Failed {
		return
	}
	if m.state != Reconnecting {
		m.state = Connecting
	}
}

// Opened records a successful open. The attempt counter resets, so a
// later unclean drop gets the full retry budget again.
func (m *Machine) Opened() {
	m.state = Connected
	m.attempt = 0
}

// Closed feeds a connection closure into the machine. A clean close
// transitions to Disconnected with no retry. An unclean close schedules
// the next attempt until the ceiling is hit, after which the machine is
// terminally Failed.
func (m *Machine) Closed(wasClean bool) Decision {
	if m.state == Failed {
		return Decision{}
	}
	if wasClean {
		m.state = Disconnected
		m.attempt = 0
		return Decision{}
	}
	if m.attempt >= m.policy.MaxAttempts {
		m.state = Failed
		return Decision{}
	}
	m.attempt++
	m.state = Reconnecting
	return Decision{
		Retry:   true,
		Delay:   m.policy.BaseDelay * time.Duration(m.attempt),
		Attempt: m.attempt,
	}
}

// Halt cancels any pending retry consideration; an explicit leave at any
// state stops the policy immediately.
func (m *Machine) Halt() {
	m.state = Disconnected
	m.attempt = 0
}

// Clock abstracts timer scheduling so retry delays are testable without
// real time.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns the wall-clock implementation.
func SystemClock() Clock { return realClock{} }
