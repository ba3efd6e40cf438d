package realtime

import (
	"sync"
)

// Hub tracks live websocket connections and their session rooms. One active
// connection per user; joining a session subscribes the connection to that
// session's fan-out.
type Hub struct {
	mu        sync.RWMutex
	conns     map[string]*Connection            // connectionID -> connection
	userConns map[string]string                 // userID -> connectionID
	rooms     map[string]map[string]*Connection // sessionID -> connectionID -> connection
	connRooms map[string]map[string]struct{}    // connectionID -> set of sessionIDs
}

// NewHub constructs an initialized Hub.
func NewHub() *Hub {
	return &Hub{
		conns:     make(map[string]*Connection),
		userConns: make(map[string]string),
		rooms:     make(map[string]map[string]*Connection),
		connRooms: make(map[string]map[string]struct{}),
	}
}

// Attach registers a connection for its user. Any previous connection of the
// same user is removed and closed after the swap, enforcing one active
// socket per user.
func (h *Hub) Attach(conn *Connection) {
	var previous *Connection

	h.mu.Lock()
	if existingID, ok := h.userConns[conn.UserID]; ok {
		if existing := h.conns[existingID]; existing != nil {
			previous = existing
			h.detachLocked(existingID)
		}
	}

	h.conns[conn.ID] = conn
	h.userConns[conn.UserID] = conn.ID
	h.connRooms[conn.ID] = make(map[string]struct{})
	h.mu.Unlock()

	conn.Start()

	if previous != nil {
		previous.Close(4001, "connection replaced")
	}
}

// Detach removes a connection if it is still tracked.
func (h *Hub) Detach(conn *Connection) {
	h.mu.Lock()
	h.detachLocked(conn.ID)
	h.mu.Unlock()
}

// Join subscribes the connection to the session's fan-out.
func (h *Hub) Join(sessionID string, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn.ID]; !ok {
		return
	}

	room := h.rooms[sessionID]
	if room == nil {
		room = make(map[string]*Connection)
		h.rooms[sessionID] = room
	}
	room[conn.ID] = conn

	memberships := h.connRooms[conn.ID]
	if memberships == nil {
		memberships = make(map[string]struct{})
		h.connRooms[conn.ID] = memberships
	}
	memberships[sessionID] = struct{}{}
}

// Leave unsubscribes the connection from the session.
func (h *Hub) Leave(sessionID string, conn *Connection) {
	h.mu.Lock()
	h.leaveLocked(sessionID, conn.ID)
	h.mu.Unlock()
}

// Broadcast writes payload to every connection in the session's room.
// excludeUserID, when non-empty, skips that user. Returns the number of
// connections the payload was handed to.
func (h *Hub) Broadcast(sessionID string, payload []byte, excludeUserID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[sessionID]
	if len(room) == 0 {
		return 0
	}

	delivered := 0
	for _, conn := range room {
		if excludeUserID != "" && conn.UserID == excludeUserID {
			continue
		}
		if err := conn.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

// NotifyUser delivers payload to the user's current connection, if any.
func (h *Hub) NotifyUser(userID string, payload []byte) bool {
	h.mu.RLock()
	connID, ok := h.userConns[userID]
	conn := h.conns[connID]
	h.mu.RUnlock()
	if !ok || conn == nil {
		return false
	}
	return conn.Send(payload) == nil
}

// Members lists the user IDs currently subscribed to the session.
func (h *Hub) Members(sessionID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[sessionID]
	users := make([]string, 0, len(room))
	for _, conn := range room {
		users = append(users, conn.UserID)
	}
	return users
}

// Close terminates all tracked connections and clears hub state.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.conns = make(map[string]*Connection)
	h.userConns = make(map[string]string)
	h.rooms = make(map[string]map[string]*Connection)
	h.connRooms = make(map[string]map[string]struct{})
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close(1001, "hub shutdown")
	}
}

func (h *Hub) detachLocked(connID string) {
	conn, ok := h.conns[connID]
	if !ok {
		return
	}
	delete(h.conns, connID)

	if current, ok := h.userConns[conn.UserID]; ok && current == connID {
		delete(h.userConns, conn.UserID)
	}

	for roomID := range h.connRooms[connID] {
		h.leaveLocked(roomID, connID)
	}
	delete(h.connRooms, connID)
}

func (h *Hub) leaveLocked(sessionID string, connID string) {
	room := h.rooms[sessionID]
	if room == nil {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(h.rooms, sessionID)
	}
	if memberships, ok := h.connRooms[connID]; ok {
		delete(memberships, sessionID)
		if len(memberships) == 0 {
			delete(h.connRooms, connID)
		}
	}
}
