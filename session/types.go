// Package session implements the server-side pairing of a mobile client's
// primary and signaling links into one LogicalSession, keyed by the
// connection-id the mobile-signaling extension negotiates.
package session

import (
	"mobilesig/link"
)

// LogicalSession pairs the (at most) two physical links a single mobile
// client maintains: one primary (direct) link and one signaling link
// routed through a coordinator/proxy.
type LogicalSession struct {
	ConnectionID   string
	Primary        *link.Handle
	Signaling      *link.Handle
	DestinationURI string
}

// newLogicalSession returns an empty session for connID; neither half is
// attached yet.
func newLogicalSession(connID, destinationURI string) *LogicalSession {
	return &LogicalSession{ConnectionID: connID, DestinationURI: destinationURI}
}

// empty reports whether both halves of the session are gone, meaning the
// session record itself can be erased from the registry.
func (s *LogicalSession) empty() bool {
	return handleGone(s.Primary) && handleGone(s.Signaling)
}

// handleGone reports whether h is nil or no longer live. A nil
// *link.Handle means the half was never attached; like link.Handle.Expired,
// it counts as gone.
func handleGone(h *link.Handle) bool {
	if h == nil {
		return true
	}
	return h.Expired()
}
