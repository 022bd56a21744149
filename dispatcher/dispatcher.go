// Package dispatcher implements the client side of the dual-link
// mobile-signaling protocol: a primary (direct) connection to the
// destination and a fallback signaling connection routed through a
// coordinator, with automatic failover between the two.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"mobilesig/extension"
	"mobilesig/link"
	"mobilesig/session"

	"github.com/gorilla/websocket"
)

// MessageHandler receives every inbound payload, tagged with the link it
// arrived on.
type MessageHandler func(role link.Role, messageType int, payload []byte)

// Dispatcher owns one client endpoint's pair of links and picks which one
// carries each outbound message.
type Dispatcher struct {
	config *extension.Config
	logger *slog.Logger

	negotiator *extension.Negotiator
	onMessage  MessageHandler

	mu        sync.Mutex
	primary   *link.Handle
	signaling *link.Handle
	open      bool
	done      bool

	backoff Backoff
}

// New returns a Dispatcher bound to cfg. onMessage may be nil, in which
// case inbound payloads are dropped.
func New(cfg *extension.Config, logger *slog.Logger, onMessage MessageHandler) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		config:     cfg,
		logger:     logger,
		negotiator: extension.NewNegotiator(cfg),
		onMessage:  onMessage,
		backoff:    DefaultBackoff(),
	}
}

// ErrBothLinksDown mirrors session.ErrBothLinksDown; Send returns it
// whenever neither link can currently carry a message.
var ErrBothLinksDown = session.ErrBothLinksDown

// ErrAlreadyDone is returned by Connect once the dispatcher has been shut
// down via Close.
var ErrAlreadyDone = errors.New("dispatcher: already closed")

// Connect dials the configured destination as the primary link. On a
// successful handshake it extracts the server-assigned connection-id and
// dials the coordinator as the signaling link.
func (d *Dispatcher) Connect(ctx context.Context) error {
	d.mu.Lock()
	if d.done {
		d.mu.Unlock()
		return ErrAlreadyDone
	}
	d.mu.Unlock()

	destination := d.config.Destination()
	offer, err := d.negotiator.GenerateOffer(destination)
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Sec-WebSocket-Extensions", offer)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, destination, header)
	if err != nil {
		return err
	}
	return d.onOpenPrimary(ctx, conn, resp)
}

// onOpenPrimary completes the primary handshake and, if a coordinator is
// configured, dials the signaling link.
func (d *Dispatcher) onOpenPrimary(ctx context.Context, conn *websocket.Conn, resp *http.Response) error {
	respAttrs, found := extension.ParseHeader(resp.Header.Get("Sec-WebSocket-Extensions"))
	if !found {
		_ = conn.Close()
		return errors.New("dispatcher: server did not accept mobile-signaling extension")
	}
	if err := d.negotiator.ProcessResponse(respAttrs); err != nil {
		_ = conn.Close()
		return err
	}

	handle := link.New(conn, link.RolePrimary)
	d.mu.Lock()
	d.primary = handle
	d.open = true
	d.mu.Unlock()

	go d.pump(handle)

	if d.config.Coordinator() == "" {
		d.logger.Info("[dispatcher] no coordinator configured, signaling link skipped")
		return nil
	}
	return d.connectSignaling(ctx)
}

// connectSignaling dials the coordinator with a signaling-only offer
// carrying the already-negotiated connection-id.
func (d *Dispatcher) connectSignaling(ctx context.Context) error {
	offer := extension.FormatHeader(extension.Attrs{
		{Name: extension.AttrConnectionID, Value: d.negotiator.ConnectionID, HasValue: true},
		{Name: extension.AttrSecondary},
		{Name: extension.AttrCoordinator, Value: d.config.Coordinator(), HasValue: true},
		{Name: extension.AttrDestination, Value: d.config.Destination(), HasValue: true},
	})

	header := http.Header{}
	header.Set("Sec-WebSocket-Extensions", offer)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.config.Coordinator(), header)
	if err != nil {
		d.logger.Warn("[dispatcher] signaling dial failed", "error", err)
		return err
	}

	handle := link.New(conn, link.RoleSignaling)
	d.mu.Lock()
	d.signaling = handle
	d.mu.Unlock()

	go d.pump(handle)
	return nil
}

// Send writes payload on whichever link is currently live, preferring
// primary, using the same routing function as the server's session registry.
func (d *Dispatcher) Send(messageType int, payload []byte) error {
	d.mu.Lock()
	primary, signaling := d.primary, d.signaling
	d.mu.Unlock()
	return session.SendDownlink(primary, signaling, payload, messageType)
}

// pump runs one link's blocking read loop until it closes or fails, then
// clears that half and, if the surviving half is the signaling link,
// schedules a primary reconnect.
func (d *Dispatcher) pump(handle *link.Handle) {
	conn := handle.Conn()
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			d.logger.Info("[dispatcher] link closed", "role", handle.Role(), "error", err)
			d.onLinkDown(handle)
			return
		}
		if d.onMessage != nil {
			d.onMessage(handle.Role(), messageType, payload)
		}
	}
}

// onLinkDown clears the closed half and, when the primary died while
// signaling is still alive, kicks off a bounded reconnect attempt.
func (d *Dispatcher) onLinkDown(handle *link.Handle) {
	handle.SetState(link.Closed)

	d.mu.Lock()
	switch handle.Role() {
	case link.RolePrimary:
		d.primary = nil
	case link.RoleSignaling:
		d.signaling = nil
	}
	signalingAlive := d.signaling != nil && !d.signaling.Expired()
	primaryGone := handle.Role() == link.RolePrimary
	done := d.done
	d.mu.Unlock()

	if done || !primaryGone || !signalingAlive {
		return
	}
	go d.reconnectPrimary()
}

// reconnectPrimary retries dialing the destination on the configured
// backoff schedule, abandoning the attempt if the signaling link also dies
// in the meantime or the dispatcher is closed.
func (d *Dispatcher) reconnectPrimary() {
	sched := d.backoff
	for attempt := 0; attempt < sched.MaxAttempts; attempt++ {
		d.mu.Lock()
		done := d.done
		signalingAlive := d.signaling != nil && !d.signaling.Expired()
		d.mu.Unlock()
		if done || !signalingAlive {
			d.logger.Info("[dispatcher] abandoning primary reconnect", "attempt", attempt)
			return
		}

		sched.Sleep(attempt)

		destination := d.config.Destination()
		offer, err := d.negotiator.GenerateOffer(destination)
		if err != nil {
			d.logger.Warn("[dispatcher] reconnect offer failed", "error", err)
			continue
		}
		header := http.Header{}
		header.Set("Sec-WebSocket-Extensions", offer)

		conn, resp, err := websocket.DefaultDialer.Dial(destination, header)
		if err != nil {
			d.logger.Warn("[dispatcher] reconnect dial failed", "attempt", attempt, "error", err)
			continue
		}

		respAttrs, found := extension.ParseHeader(resp.Header.Get("Sec-WebSocket-Extensions"))
		if !found {
			_ = conn.Close()
			continue
		}
		if err := d.negotiator.ProcessResponse(respAttrs); err != nil {
			_ = conn.Close()
			continue
		}

		handle := link.New(conn, link.RolePrimary)
		d.mu.Lock()
		d.primary = handle
		d.mu.Unlock()
		go d.pump(handle)
		d.logger.Info("[dispatcher] primary reconnected", "attempt", attempt)
		return
	}
	d.logger.Warn("[dispatcher] primary reconnect exhausted")
}

// Close tears down both links and marks the dispatcher done, preventing
// further reconnect attempts.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	d.done = true
	primary, signaling := d.primary, d.signaling
	d.mu.Unlock()

	var err error
	if primary != nil {
		err = primary.Close(websocket.CloseGoingAway, "client closing")
	}
	if signaling != nil {
		if serr := signaling.Close(websocket.CloseGoingAway, "client closing"); err == nil {
			err = serr
		}
	}
	return err
}
