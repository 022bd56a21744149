// Package link provides a weak, liveness-checked reference to a live
// WebSocket connection. The transport (gorilla/websocket) owns the socket;
// a Handle never does. Live is the single place that decides whether the
// connection is still usable; Conn hands out the raw connection without
// that check, for the read pumps.
package link

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Role identifies which half of a logical session a Handle carries.
type Role int

const (
	RolePrimary Role = iota
	RoleSignaling
)

func (r Role) String() string {
	if r == RolePrimary {
		return "primary"
	}
	return "signaling"
}

// State mirrors websocketpp's session::state for a single physical link.
type State int

const (
	Connecting State = iota
	Open
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return "closed"
	}
}

// Handle is a non-owning reference to a *websocket.Conn, guarded by a
// mutex. Writes through Send first call Live; the read pumps get the
// connection from Conn, which skips that check.
type Handle struct {
	mu    sync.RWMutex
	conn  *websocket.Conn
	role  Role
	state State
}

// New wraps an already-open connection.
func New(conn *websocket.Conn, role Role) *Handle {
	return &Handle{conn: conn, role: role, state: Open}
}

// Role reports which half of the session this handle represents.
func (h *Handle) Role() Role {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.role
}

// State reports the last known session state for this link.
func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// SetState updates the tracked state, e.g. on receipt of a close/fail
// callback from the transport.
func (h *Handle) SetState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// Live upgrades the weak reference to a usable connection. It returns
// ok == false if the handle is nil, has no connection, or its last known
// state is not Open — the caller must treat that exactly like a dead
// handle and move on, never dereference conn.
func (h *Handle) Live() (conn *websocket.Conn, ok bool) {
	if h == nil {
		return nil, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.conn == nil || h.state != Open {
		return nil, false
	}
	return h.conn, true
}

// Expired reports whether the handle can no longer be used. It is the
// negation of Live, named to match the distilled spec's "non-expired"
// phrasing used throughout the dispatch and pairing algorithms.
func (h *Handle) Expired() bool {
	_, ok := h.Live()
	return !ok
}

// Send writes one application message on the link if and only if it is
// currently live. It never blocks waiting for a peer; it either enqueues
// the write on the underlying connection or returns an error.
func (h *Handle) Send(messageType int, payload []byte) error {
	conn, ok := h.Live()
	if !ok {
		return ErrHandleDead
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return conn.WriteMessage(messageType, payload)
}

// Close marks the handle Closing and closes the underlying connection
// with the given WebSocket close code and reason.
func (h *Handle) Close(code int, reason string) error {
	h.mu.Lock()
	conn := h.conn
	h.state = Closing
	h.mu.Unlock()

	if conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadlineNow())
	err := conn.Close()
	h.SetState(Closed)
	return err
}

// Conn returns the raw connection for callers that need to install
// read-pump callbacks (session registry, dispatcher, proxy). It does not
// perform a liveness check — callers that want liveness semantics must use
// Live.
func (h *Handle) Conn() *websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conn
}
