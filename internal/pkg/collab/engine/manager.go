// Package engine implements the session lifecycle manager: the
// session-scoped handle that joins and leaves collaboration sessions,
// owns the presence registry and artifact update channel, and exposes
// the typed event surface external collaborators subscribe to.
//
// One Manager drives one session at a time; multiple concurrent sessions
// are multiple Manager instances with no shared mutable state. All
// inbound frame handling for a session runs on a single dispatch
// goroutine, so presence and artifact mutations never race within a
// session.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-collab/internal/infrastructure/transport/port"
	"go-collab/internal/pkg/collab/artifact"
	"go-collab/internal/pkg/collab/directory"
	collab "go-collab/internal/pkg/collab/domain"
	"go-collab/internal/pkg/collab/presence"
	"go-collab/internal/pkg/collab/protocol"
	"go-collab/internal/pkg/collab/reconnect"
)

// State of the lifecycle manager.
type State int

const (
	StateIdle State = iota
	StateJoining
	StateJoined
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrPermissionDenied rejects an action the participant's role does
	// not allow. Checked before anything is sent.
	ErrPermissionDenied = errors.New("engine: role lacks capability for this action")

	// ErrNotJoined rejects session operations while no session is joined.
	ErrNotJoined = errors.New("engine: no active session")

	ErrUnknownRole = errors.New("engine: unknown role")
)

const (
	closeCodeNormal = 1000
	dialTimeout     = 10 * time.Second
	resyncTimeout   = 10 * time.Second
)

// Credentials identify the local participant for a join. Identity is
// assumed already resolved by the caller (authentication is external).
type Credentials struct {
	SessionID string
	UserID    string
	UserName  string
	Role      collab.Role
}

// Options configures a Manager.
type Options struct {
	// Endpoint is the session coordination endpoint, e.g.
	// "ws://coordinator:8080/api/v1/session/ws".
	Endpoint string

	Dialer    port.Dialer
	Directory *directory.Client
	Logger    *logrus.Logger

	// Policy and Clock default to the documented 5×linear-backoff policy
	// on the system clock.
	Policy reconnect.Policy
	Clock  reconnect.Clock
}

// Manager is a session-scoped collaboration handle. Construct one per
// session via NewManager; callers hold and pass the handle, there is no
// process-wide shared instance.
type Manager struct {
	log       logrus.FieldLogger
	endpoint  string
	dialer    port.Dialer
	directory *directory.Client
	clock     reconnect.Clock
	policy    reconnect.Policy
	router    *protocol.Router
	presence  *presence.Registry

	mu      sync.Mutex
	state   State
	machine *reconnect.Machine
	conn    port.Conn
	creds   Credentials
	channel *artifact.Channel
	token   chan struct{} // closed to cancel the current session's goroutines
	subs    []Events
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("engine: endpoint is required")
	}
	if opts.Dialer == nil {
		return nil, errors.New("engine: dialer is required")
	}
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}
	clock := opts.Clock
	if clock == nil {
		clock = reconnect.SystemClock()
	}

	m := &Manager{
		log:       log.WithField("component", "session-engine"),
		endpoint:  opts.Endpoint,
		dialer:    opts.Dialer,
		directory: opts.Directory,
		clock:     clock,
		policy:    opts.Policy,
		presence:  presence.NewRegistry(),
		machine:   reconnect.NewMachine(opts.Policy),
	}
	m.router = protocol.NewRouter(m.log)
	m.router.Bind(protocol.Handlers{
		ParticipantJoined: m.onParticipantJoined,
		ParticipantLeft:   m.onParticipantLeft,
		CursorUpdate:      m.onCursorUpdate,
		ChatMessage:       m.onChatMessage,
		CommentAdded:      m.onCommentAdded,
		DocumentUpdate:    m.onArtifactUpdate,
		WhiteboardUpdate:  m.onArtifactUpdate,
		Error:             m.onErrorFrame,
		Unknown:           m.onUnknown,
	})
	return m, nil
}

// Subscribe registers an event handler set. Call before JoinSession.
func (m *Manager) Subscribe(e Events) {
	m.mu.Lock()
	m.subs = append(m.subs, e)
	m.mu.Unlock()
}

func (m *Manager) subscribers() []Events {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Events, len(m.subs))
	copy(out, m.subs)
	return out
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Participants returns a snapshot of the presence registry.
func (m *Manager) Participants() []collab.Participant {
	return m.presence.List()
}

// Participant returns a snapshot of one participant.
func (m *Manager) Participant(userID string) (collab.Participant, bool) {
	return m.presence.Get(userID)
}

// ActiveEditors returns the participants currently online with edit
// capability.
func (m *Manager) ActiveEditors() []collab.Participant {
	return m.presence.ActiveEditors()
}

// ArtifactVersion returns the effective version of the session artifact.
func (m *Manager) ArtifactVersion() int64 {
	if ch := m.artifactChannel(); ch != nil {
		return ch.Version()
	}
	return 0
}

// ArtifactContent returns the effective artifact content (tentative
// overlay when an unacknowledged local edit is pending).
func (m *Manager) ArtifactContent() string {
	if ch := m.artifactChannel(); ch != nil {
		return ch.Content()
	}
	return ""
}

// Comments returns a snapshot of the artifact's comments.
func (m *Manager) Comments() []collab.Comment {
	if ch := m.artifactChannel(); ch != nil {
		return ch.Comments()
	}
	return nil
}

func (m *Manager) artifactChannel() *artifact.Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channel
}

// JoinSession opens the live connection and joins the session. It
// suspends until the connection is up or the attempt fails. Calling it
// while already joined to another session performs an implicit leave
// first; rejoining the same session refreshes it.
func (m *Manager) JoinSession(ctx context.Context, creds Credentials) error {
	if creds.SessionID == "" || creds.UserID == "" {
		return errors.New("engine: session id and user id are required")
	}
	if !creds.Role.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownRole, creds.Role)
	}

	m.mu.Lock()
	if m.state == StateJoined || m.state == StateJoining || m.state == StateReconnecting {
		m.mu.Unlock()
		if err := m.LeaveSession(); err != nil {
			return err
		}
		m.mu.Lock()
	}
	m.state = StateJoining
	m.creds = creds
	m.machine = reconnect.NewMachine(m.policy) // fresh budget per explicit join
	m.machine.Connecting()
	token := make(chan struct{})
	m.token = token
	m.mu.Unlock()

	conn := m.dialer.Dial(m.endpoint)
	if err := conn.Open(ctx); err != nil {
		m.mu.Lock()
		m.state = StateIdle
		m.mu.Unlock()
		return fmt.Errorf("engine: join %s: %w", creds.SessionID, err)
	}

	channel := m.newArtifactChannel(ctx, creds)

	m.mu.Lock()
	m.machine.Opened()
	m.conn = conn
	m.channel = channel
	m.state = StateJoined
	m.mu.Unlock()

	if err := m.sendBody(protocol.JoinBody{UserName: creds.UserName, Role: creds.Role}); err != nil {
		m.log.WithError(err).Warn("join frame not sent")
	}
	m.presence.Upsert(collab.Participant{
		UserID:      creds.UserID,
		DisplayName: creds.UserName,
		Role:        creds.Role,
		Status:      collab.StatusOnline,
	})
	m.bootstrapRoster(ctx, creds)

	go m.run(conn, token)
	m.emitConnected()
	return nil
}

// bootstrapRoster seeds presence with the directory's participant list so
// a joiner sees the peers who joined before it, not just itself. Live
// join/leave frames layer on top: Upsert is idempotent, so a peer
// announced both here and by a frame stays a single entry.
func (m *Manager) bootstrapRoster(ctx context.Context, creds Credentials) {
	if m.directory == nil {
		return
	}
	s, err := m.directory.GetSession(ctx, creds.SessionID)
	if err != nil {
		m.log.WithError(err).Warn("participant roster unavailable at join")
		return
	}
	for _, p := range s.Participants {
		if p.UserID == creds.UserID {
			continue
		}
		if p.Status == "" {
			p.Status = collab.StatusOffline
		}
		m.presence.Upsert(p)
	}
}

// LeaveSession sends a best-effort leave frame, halts any pending
// reconnection, tears down the connection and clears presence. Calling
// it when nothing is joined is a no-op: no second frame, no error.
func (m *Manager) LeaveSession() error {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return nil
	}
	if m.state == StateFailed {
		// Reconnection already exhausted: no connection and no frame to
		// send, but the registry still holds the session's participants.
		token := m.token
		m.channel = nil
		m.token = nil
		m.state = StateIdle
		m.mu.Unlock()
		if token != nil {
			close(token)
		}
		m.presence.Clear()
		return nil
	}
	conn := m.conn
	token := m.token
	m.machine.Halt()
	m.conn = nil
	m.channel = nil
	m.token = nil
	m.state = StateIdle
	m.mu.Unlock()

	if token != nil {
		close(token) // cancels pending retries and the dispatch loop
	}
	if conn != nil {
		// Best-effort: the leave frame does not block on acknowledgement.
		if raw, err := protocol.Encode(m.frame(protocol.LeaveBody{})); err == nil {
			_ = conn.Send(raw)
		}
		conn.Close(closeCodeNormal, "left session")
	}
	m.presence.Clear()
	m.emitDisconnected("left session")
	return nil
}

// SubmitUpdate submits a local artifact edit declared against
// baseVersion. It applies optimistically and returns without waiting for
// acknowledgement. Roles below editor are rejected before any frame is
// sent.
func (m *Manager) SubmitUpdate(content string, baseVersion int64, summary string) error {
	m.mu.Lock()
	if m.state != StateJoined {
		m.mu.Unlock()
		return ErrNotJoined
	}
	if !m.creds.Role.CanEdit() {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s cannot edit", ErrPermissionDenied, m.creds.Role)
	}
	channel := m.channel
	m.mu.Unlock()

	if channel == nil {
		return ErrNotJoined
	}
	return channel.SubmitUpdate(content, baseVersion, summary)
}

// SendCursor reports the local cursor position. Any joined role may
// send cursor updates.
func (m *Manager) SendCursor(x, y float64) error {
	m.mu.Lock()
	if m.state != StateJoined {
		m.mu.Unlock()
		return ErrNotJoined
	}
	userID := m.creds.UserID
	m.mu.Unlock()

	m.presence.UpdateCursor(userID, x, y)
	return m.sendBody(protocol.CursorBody{X: x, Y: y})
}

// SendChatMessage posts a chat message, broadcast unless recipientID is
// set. Requires at least the commenter role.
func (m *Manager) SendChatMessage(content, recipientID, parentID string) (*collab.ChatMessage, error) {
	m.mu.Lock()
	if m.state != StateJoined {
		m.mu.Unlock()
		return nil, ErrNotJoined
	}
	if !m.creds.Role.CanComment() {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s cannot chat", ErrPermissionDenied, m.creds.Role)
	}
	creds := m.creds
	m.mu.Unlock()

	msg, err := collab.NewChatMessage(collab.ChatMessage{
		ID:          uuid.NewString(),
		SessionID:   creds.SessionID,
		AuthorID:    creds.UserID,
		Content:     content,
		RecipientID: recipientID,
		ParentID:    parentID,
	})
	if err != nil {
		return nil, err
	}
	err = m.sendBody(protocol.ChatBody{
		MessageID:   msg.ID,
		Content:     msg.Content,
		RecipientID: msg.RecipientID,
		ParentID:    msg.ParentID,
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// AddComment anchors a comment to a span of the artifact's content and
// broadcasts it. Requires at least the commenter role.
func (m *Manager) AddComment(content string, startIndex, endIndex int) (*collab.Comment, error) {
	m.mu.Lock()
	if m.state != StateJoined {
		m.mu.Unlock()
		return nil, ErrNotJoined
	}
	if !m.creds.Role.CanComment() {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s cannot comment", ErrPermissionDenied, m.creds.Role)
	}
	creds := m.creds
	channel := m.channel
	m.mu.Unlock()

	if channel == nil {
		return nil, ErrNotJoined
	}
	comment, err := channel.AddComment(collab.Comment{
		ID:         uuid.NewString(),
		AuthorID:   creds.UserID,
		Content:    content,
		StartIndex: startIndex,
		EndIndex:   endIndex,
	})
	if err != nil {
		return nil, err
	}
	err = m.sendBody(protocol.CommentAddBody{CommentPayload: protocol.CommentPayload{
		CommentID:  comment.ID,
		ArtifactID: comment.ArtifactID,
		Content:    comment.Content,
		StartIndex: comment.StartIndex,
		EndIndex:   comment.EndIndex,
	}})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// ResolveConflict resubmits caller-merged content on top of the current
// confirmed version after a conflict event.
func (m *Manager) ResolveConflict(mergedContent, summary string) error {
	ch := m.artifactChannel()
	if ch == nil {
		return ErrNotJoined
	}
	return m.SubmitUpdate(mergedContent, ch.ConfirmedVersion(), summary)
}

// run is the session's dispatch loop: the only goroutine that processes
// inbound frames, in strict arrival order.
func (m *Manager) run(conn port.Conn, token chan struct{}) {
	frames := conn.Frames()
	for {
		select {
		case <-token:
			return
		case raw, ok := <-frames:
			if !ok {
				frames = nil // drained; wait for the close notification
				continue
			}
			_ = m.router.DispatchRaw(raw)
		case info := <-conn.Closed():
			m.handleClose(conn, info, token)
			return
		}
	}
}

func (m *Manager) handleClose(conn port.Conn, info port.CloseInfo, token chan struct{}) {
	m.mu.Lock()
	if m.conn != conn {
		// Superseded by an explicit leave or a newer connection.
		m.mu.Unlock()
		return
	}
	m.conn = nil

	if info.WasClean {
		m.machine.Closed(true)
		m.state = StateIdle
		m.mu.Unlock()
		m.presence.Clear()
		m.emitDisconnected(info.Reason)
		return
	}

	// Keep entries for reconnection, but nobody is live right now.
	for _, p := range m.presence.List() {
		m.presence.MarkOffline(p.UserID)
	}

	sessionID := m.creds.SessionID
	decision := m.machine.Closed(false)
	if !decision.Retry {
		m.state = StateFailed
		m.mu.Unlock()
		m.emitDisconnected(info.Reason)
		m.emitError(fmt.Errorf("engine: session %s: %w", sessionID, reconnect.ErrExhausted))
		return
	}
	m.state = StateReconnecting
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"attempt": decision.Attempt,
		"delay":   decision.Delay,
		"code":    info.Code,
	}).Info("connection lost, scheduling reconnect")
	m.emitDisconnected(info.Reason)
	go m.retry(token, decision)
}

func (m *Manager) retry(token chan struct{}, decision reconnect.Decision) {
	select {
	case <-token:
		return
	case <-m.clock.After(decision.Delay):
	}

	m.mu.Lock()
	if m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	creds := m.creds
	m.machine.Connecting()
	m.mu.Unlock()

	conn := m.dialer.Dial(m.endpoint)
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	err := conn.Open(ctx)
	cancel()
	if err != nil {
		m.mu.Lock()
		next := m.machine.Closed(false)
		if !next.Retry {
			m.state = StateFailed
			m.mu.Unlock()
			m.emitError(fmt.Errorf("engine: session %s: %w", creds.SessionID, reconnect.ErrExhausted))
			return
		}
		m.mu.Unlock()
		m.log.WithError(err).WithField("attempt", next.Attempt).Warn("reconnect attempt failed")
		go m.retry(token, next)
		return
	}

	m.mu.Lock()
	select {
	case <-token:
		m.mu.Unlock()
		conn.Close(closeCodeNormal, "session left during reconnect")
		return
	default:
	}
	m.machine.Opened()
	m.conn = conn
	m.state = StateJoined
	m.mu.Unlock()

	// Re-invoke the join sequence with identical credentials.
	if err := m.sendBody(protocol.JoinBody{UserName: creds.UserName, Role: creds.Role}); err != nil {
		m.log.WithError(err).Warn("rejoin frame not sent")
	}
	m.presence.Upsert(collab.Participant{
		UserID:      creds.UserID,
		DisplayName: creds.UserName,
		Role:        creds.Role,
		Status:      collab.StatusOnline,
	})

	// Anything could have happened to the roster during the outage.
	rosterCtx, cancelRoster := context.WithTimeout(context.Background(), resyncTimeout)
	m.bootstrapRoster(rosterCtx, creds)
	cancelRoster()

	go m.run(conn, token)
	m.emitConnected()
}

func (m *Manager) newArtifactChannel(ctx context.Context, creds Credentials) *artifact.Channel {
	base := collab.Artifact{SessionID: creds.SessionID, Kind: collab.ArtifactKindDocument}
	if m.directory != nil {
		if a, err := m.directory.GetArtifact(ctx, creds.SessionID); err == nil {
			base = *a
		} else {
			m.log.WithError(err).Warn("artifact state unavailable at join, starting from version 0")
		}
	}

	kind := protocol.KindDocumentUpdate
	if base.Kind == collab.ArtifactKindWhiteboard {
		kind = protocol.KindWhiteboardUpdate
	}
	artifactKind := base.Kind
	artifactID := base.ID

	return artifact.NewChannel(base, creds.UserID, artifact.Hooks{
		SendUpdate: func(content string, baseVersion int64, summary string) error {
			update := protocol.ArtifactUpdate{
				ArtifactID:  artifactID,
				BaseVersion: baseVersion,
				Content:     content,
				Summary:     summary,
			}
			if kind == protocol.KindWhiteboardUpdate {
				return m.sendBody(protocol.WhiteboardUpdateBody{ArtifactUpdate: update})
			}
			return m.sendBody(protocol.DocumentUpdateBody{ArtifactUpdate: update})
		},
		RequestResync: func(id string) {
			go m.resync(creds.SessionID)
		},
		OnRemote: func(u artifact.RemoteUpdate) {
			u.Kind = artifactKind
			m.emitRemoteUpdate(u)
		},
		OnConflict: m.emitConflict,
	})
}

// resync fetches authoritative artifact state after a frame gap.
func (m *Manager) resync(sessionID string) {
	if m.directory == nil {
		m.emitError(errors.New("engine: frame gap detected and no directory client for resync"))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	defer cancel()

	a, err := m.directory.GetArtifact(ctx, sessionID)
	if err != nil {
		m.emitError(fmt.Errorf("engine: resync after frame gap: %w", err))
		return
	}
	if ch := m.artifactChannel(); ch != nil {
		ch.Reset(*a)
		m.log.WithField("version", a.Version).Info("artifact resynced after frame gap")
	}
}

func (m *Manager) frame(body protocol.Body) protocol.Event {
	m.mu.Lock()
	creds := m.creds
	m.mu.Unlock()
	return protocol.Event{
		SessionID: creds.SessionID,
		UserID:    creds.UserID,
		Timestamp: time.Now().UnixMilli(),
		Body:      body,
	}
}

func (m *Manager) sendBody(body protocol.Body) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotJoined
	}
	raw, err := protocol.Encode(m.frame(body))
	if err != nil {
		return err
	}
	return conn.Send(raw)
}

// Frame handlers below run on the dispatch goroutine only.

func (m *Manager) onParticipantJoined(e protocol.Event) {
	body := e.Body.(protocol.ParticipantJoinedBody)
	p := collab.Participant{
		UserID:      e.UserID,
		DisplayName: body.UserName,
		Role:        body.Role,
		Status:      collab.StatusOnline,
	}
	m.presence.Upsert(p)
	if snap, ok := m.presence.Get(e.UserID); ok {
		p = snap
	}
	m.emitParticipantJoined(p)
}

func (m *Manager) onParticipantLeft(e protocol.Event) {
	m.presence.Remove(e.UserID)
	m.emitParticipantLeft(e.UserID)
}

func (m *Manager) onCursorUpdate(e protocol.Event) {
	body := e.Body.(protocol.CursorBody)
	if !m.presence.UpdateCursor(e.UserID, body.X, body.Y) {
		return // cursor for a participant we have never seen join
	}
	if p, ok := m.presence.Get(e.UserID); ok && p.Cursor != nil {
		m.emitCursor(e.UserID, *p.Cursor)
	}
}

func (m *Manager) onChatMessage(e protocol.Event) {
	body := e.Body.(protocol.ChatBody)
	m.emitChat(collab.ChatMessage{
		ID:          body.MessageID,
		SessionID:   e.SessionID,
		AuthorID:    e.UserID,
		Content:     body.Content,
		CreatedAt:   time.UnixMilli(e.Timestamp).UTC(),
		RecipientID: body.RecipientID,
		ParentID:    body.ParentID,
		Edited:      body.Edited,
	})
}

func (m *Manager) onCommentAdded(e protocol.Event) {
	body := e.Body.(protocol.CommentAddedBody)
	m.emitCommentAdded(collab.Comment{
		ID:         body.CommentID,
		ArtifactID: body.ArtifactID,
		AuthorID:   e.UserID,
		Content:    body.Content,
		StartIndex: body.StartIndex,
		EndIndex:   body.EndIndex,
		CreatedAt:  time.UnixMilli(e.Timestamp).UTC(),
	})
}

func (m *Manager) onArtifactUpdate(e protocol.Event) {
	ch := m.artifactChannel()
	if ch == nil {
		return
	}
	var update protocol.ArtifactUpdate
	switch body := e.Body.(type) {
	case protocol.DocumentUpdateBody:
		update = body.ArtifactUpdate
	case protocol.WhiteboardUpdateBody:
		update = body.ArtifactUpdate
	default:
		return
	}
	ch.ApplyRemote(artifact.RemoteUpdate{
		ArtifactID: update.ArtifactID,
		Version:    update.Version,
		AuthorID:   e.UserID,
		Content:    update.Content,
		Summary:    update.Summary,
	})
}

func (m *Manager) onErrorFrame(e protocol.Event) {
	body := e.Body.(protocol.ErrorBody)
	m.emitError(fmt.Errorf("engine: server error %s: %s", body.Code, body.Message))
}

func (m *Manager) onUnknown(e protocol.Event) {
	m.log.WithField("kind", e.Kind()).Debug("ignoring frame of unknown kind")
}
