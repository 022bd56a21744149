package session

import (
	"errors"

	"mobilesig/link"
)

// ErrBothLinksDown is returned by SendDownlink (and, identically, by the
// dispatcher package that shares this routing rule) when neither the
// primary nor the signaling handle is currently live.
var ErrBothLinksDown = errors.New("session: both primary and signaling links are down")

// SendDownlink picks the link to write payload on: primary if it is
// currently Open, else signaling if it is Open, else ErrBothLinksDown. This
// is the one routing function the session registry and the client
// dispatcher both call, so their failover policy is identical. The
// signaling proxy does not call it: each of its splices relays between a
// single fixed pair of links.
func SendDownlink(primary, signaling *link.Handle, payload []byte, opcode int) error {
	if _, ok := primary.Live(); ok {
		return primary.Send(opcode, payload)
	}
	if _, ok := signaling.Live(); ok {
		return signaling.Send(opcode, payload)
	}
	return ErrBothLinksDown
}

// SendDownlink routes payload through whichever of the session's two links
// is currently live, preferring Primary.
func (s *LogicalSession) SendDownlink(payload []byte, opcode int) error {
	return SendDownlink(s.Primary, s.Signaling, payload, opcode)
}
