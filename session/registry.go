package session

import (
	"log/slog"
	"sync"

	"mobilesig/extension"
	"mobilesig/link"

	"github.com/gorilla/websocket"
)

// Registry pairs physical links into LogicalSessions by connection-id. One
// Registry instance serves every WebSocket upgrade a server process
// accepts; its internal lock is held only for the map lookup/insert/erase,
// never across a network call or callback.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*LogicalSession
	logger   *slog.Logger
}

// NewRegistry returns an empty Registry. logger may be nil, in which case
// slog.Default() is used.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{sessions: make(map[string]*LogicalSession), logger: logger}
}

// Validate is called during the opening handshake, before the upgrade
// completes, to decide whether to accept the offer at all. It does not
// mutate the registry.
func (r *Registry) Validate(offer extension.Attrs) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	connID, _ := offer.Get(extension.AttrConnectionID)
	if connID.Value == "" {
		return false
	}
	isPrimary := primaryOffered(offer)

	sess, exists := r.sessions[connID.Value]
	if !exists {
		return isPrimary
	}
	if isPrimary && !handleGone(sess.Primary) {
		return false
	}
	return true
}

func primaryOffered(offer extension.Attrs) bool {
	_, count := offer.Get(extension.AttrPrimary)
	return count > 0
}

// OnOpen attaches handle to the session named by offer's connection_id,
// applying the pairing transition table. It returns the close code and
// reason to use if the attach is rejected, or (0 /* no close */, "") on
// success.
func (r *Registry) OnOpen(handle *link.Handle, offer extension.Attrs) (closeCode int, closeReason string) {
	connID, _ := offer.Get(extension.AttrConnectionID)
	primary := primaryOffered(offer)

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[connID.Value]
	switch {
	case !exists && primary:
		sess = newLogicalSession(connID.Value, "")
		sess.Primary = handle
		r.sessions[connID.Value] = sess
		r.logger.Info("[session] primary attached", "connection_id", connID.Value)
		return 0, ""

	case exists && primary && handleGone(sess.Primary):
		sess.Primary = handle
		r.logger.Info("[session] primary re-attached", "connection_id", connID.Value)
		return 0, ""

	case exists && primary && !handleGone(sess.Primary):
		r.logger.Warn("[session] rejecting duplicate primary", "connection_id", connID.Value)
		return websocket.CloseProtocolError, "primary link exists"

	case !exists && !primary:
		r.logger.Warn("[session] rejecting orphan signaling offer", "connection_id", connID.Value)
		return websocket.CloseProtocolError, "no primary connection to signal"

	default: // exists && !primary
		sess.Signaling = handle
		r.logger.Info("[session] signaling attached", "connection_id", connID.Value)
		return 0, ""
	}
}

// OnClose clears the half of the session identified by role and erases the
// session entirely once both halves are gone.
func (r *Registry) OnClose(connID string, role link.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[connID]
	if !exists {
		return
	}
	switch role {
	case link.RolePrimary:
		sess.Primary = nil
	case link.RoleSignaling:
		sess.Signaling = nil
	}
	if sess.empty() {
		delete(r.sessions, connID)
		r.logger.Info("[session] erased", "connection_id", connID)
	}
}

// Lookup returns the session for connID, if any.
func (r *Registry) Lookup(connID string) (*LogicalSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[connID]
	return sess, ok
}

// SendDownlink routes payload to connID's session via the shared selection
// order (primary, then signaling).
func (r *Registry) SendDownlink(connID string, payload []byte, opcode int) error {
	sess, ok := r.Lookup(connID)
	if !ok {
		return ErrBothLinksDown
	}
	return sess.SendDownlink(payload, opcode)
}
