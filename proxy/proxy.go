// Package proxy implements the signaling proxy: it accepts inbound
// signaling-only connections, dials the declared destination on their
// behalf, and splices the two links together without inspecting payloads.
package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"mobilesig/extension"
	"mobilesig/link"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// ErrPrimaryNotAllowed is returned by Validate when the inbound offer
// carries the primary flag; the proxy only ever forwards signaling links.
var ErrPrimaryNotAllowed = errors.New("proxy: primary connections are not accepted on the signaling path")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// pair tracks one spliced in/out connection so Shutdown can tear it down.
type pair struct {
	splicID string
	in      *link.Handle
	out     *link.Handle
	group   *errgroup.Group
}

// Server is the signaling proxy's inbound HTTP handler plus its table of
// active splices.
type Server struct {
	Config *extension.Config
	Logger *slog.Logger

	mu    sync.Mutex
	pairs map[string]*pair
}

// NewServer returns a Server accepting inbound offers under cfg.
func NewServer(cfg *extension.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Config: cfg, Logger: logger, pairs: make(map[string]*pair)}
}

// Validate parses the inbound offer and returns the destination and
// connection-id to dial out with. It rejects offers carrying the primary
// flag, since this proxy only ever forwards the signaling half.
func (s *Server) Validate(attrs extension.Attrs) (destination, connectionID string, err error) {
	if _, count := attrs.Get(extension.AttrPrimary); count > 0 {
		return "", "", ErrPrimaryNotAllowed
	}
	connID, _ := attrs.Get(extension.AttrConnectionID)
	if connID.Value == "" {
		return "", "", errors.New("proxy: missing connection_id")
	}
	dest, _ := attrs.Get(extension.AttrDestination)
	if dest.Value == "" {
		dest.Value = s.Config.Destination()
	}
	if dest.Value == "" {
		return "", "", errors.New("proxy: no destination configured or offered")
	}
	return dest.Value, connID.Value, nil
}

// dialDestination opens an outbound client connection to destination,
// offering the same connection-id so the far side's session registry pairs
// it with the matching primary.
func (s *Server) dialDestination(ctx context.Context, destination, connectionID string) (*websocket.Conn, error) {
	offer := extension.FormatHeader(extension.Attrs{
		{Name: extension.AttrConnectionID, Value: connectionID, HasValue: true},
		{Name: extension.AttrSecondary},
		{Name: extension.AttrCoordinator, Value: s.Config.Coordinator(), HasValue: true},
		{Name: extension.AttrDestination, Value: destination, HasValue: true},
	})
	header := http.Header{}
	header.Set("Sec-WebSocket-Extensions", offer)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, destination, header)
	return conn, err
}

// ServeHTTP accepts one inbound signaling connection, dials its declared
// destination, and splices the two together for the lifetime of both.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	attrs, found := extension.ParseHeader(r.Header.Get("Sec-WebSocket-Extensions"))
	if !found {
		http.Error(w, "mobile-signaling extension required", http.StatusBadRequest)
		return
	}

	destination, connID, err := s.Validate(attrs)
	if err != nil {
		s.Logger.Warn("[proxy] rejecting inbound offer", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	outConn, err := s.dialDestination(r.Context(), destination, connID)
	if err != nil {
		s.Logger.Error("[proxy] dial destination failed", "destination", destination, "error", err)
		http.Error(w, "failed to reach destination", http.StatusBadGateway)
		return
	}

	responseHeader := http.Header{}
	responseHeader.Set("Sec-WebSocket-Extensions", extension.FormatHeader(extension.Attrs{
		{Name: extension.AttrConnectionID, Value: connID, HasValue: true},
		{Name: extension.AttrSecondary},
		{Name: extension.AttrCoordinator, Value: s.Config.Coordinator(), HasValue: true},
		{Name: extension.AttrDestination, Value: destination, HasValue: true},
	}))

	inConn, err := upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		s.Logger.Error("[proxy] upgrade failed", "error", err)
		_ = outConn.Close()
		return
	}

	inHandle := link.New(inConn, link.RoleSignaling)
	outHandle := link.New(outConn, link.RoleSignaling)

	s.runSplice(connID, inHandle, outHandle)
}

// runSplice registers the pair, splices it, and removes it from the
// tracking table once both directions finish. Each direction's pump
// actively closes the opposite leg as soon as its source goes away, so
// by the time both goroutines return here the peer teardown has already
// happened; the SetState calls below are just a final safety net.
func (s *Server) runSplice(connID string, in, out *link.Handle) {
	splicID := uuid.New().String()
	g := &errgroup.Group{}
	p := &pair{splicID: splicID, in: in, out: out, group: g}

	s.mu.Lock()
	s.pairs[splicID] = p
	s.mu.Unlock()

	s.Logger.Info("[proxy] splice opened", "splice_id", splicID, "connection_id", connID)

	g.Go(func() error { return pump(in, out) })
	g.Go(func() error { return pump(out, in) })

	if err := g.Wait(); err != nil {
		s.Logger.Info("[proxy] splice closed", "splice_id", splicID, "error", err)
	} else {
		s.Logger.Info("[proxy] splice closed", "splice_id", splicID)
	}

	s.mu.Lock()
	delete(s.pairs, splicID)
	s.mu.Unlock()

	in.SetState(link.Closed)
	out.SetState(link.Closed)
}

// Shutdown closes every active outbound link with going_away and waits for
// each splice's worker goroutines to finish, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	pairs := make([]*pair, 0, len(s.pairs))
	for _, p := range s.pairs {
		pairs = append(pairs, p)
	}
	s.mu.Unlock()

	g, gCtx := errgroup.WithContext(ctx)
	for _, p := range pairs {
		p := p
		g.Go(func() error {
			_ = p.out.Close(websocket.CloseGoingAway, "proxy shutting down")
			_ = p.in.Close(websocket.CloseGoingAway, "proxy shutting down")
			done := make(chan error, 1)
			go func() { done <- p.group.Wait() }()
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			case err := <-done:
				return err
			}
		})
	}
	return g.Wait()
}
