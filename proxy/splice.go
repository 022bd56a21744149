package proxy

import (
	"errors"

	"mobilesig/link"

	"github.com/gorilla/websocket"
)

// pump reads messages from src and writes each one to dst unchanged,
// preserving opcode, until src's connection closes or fails. No payload
// inspection or transformation happens here — the proxy is a pure relay.
// When src goes away, pump actively tears down dst to match it: a clean
// close is mirrored with src's own remote close code, and anything else is
// treated as a failure and closed out with protocol_error.
func pump(src, dst *link.Handle) error {
	conn := src.Conn()
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			code, reason := remoteCloseCodeAndReason(err)
			_ = dst.Close(code, reason)
			return err
		}
		if err := dst.Send(messageType, payload); err != nil {
			return err
		}
	}
}

// remoteCloseCodeAndReason translates a ReadMessage error into the close
// code and reason the peer leg should be torn down with: src's own close
// code on a clean close, protocol_error on anything else (a dropped
// connection, a read timeout, a dial failure surfacing as a read error).
// gorilla/websocket reports a dropped connection as a CloseError with
// CloseAbnormalClosure, so that code counts as a failure, not a clean close.
func remoteCloseCodeAndReason(err error) (int, string) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure {
		return closeErr.Code, "remote destination has gone away"
	}
	return websocket.CloseProtocolError, "outgoing connection has failed"
}
