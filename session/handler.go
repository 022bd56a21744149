package session

import (
	"log/slog"
	"net/http"
	"time"

	"mobilesig/extension"
	"mobilesig/link"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades incoming HTTP requests to WebSocket connections,
// negotiates the mobile-signaling extension, and wires each accepted
// connection into a Registry.
type Handler struct {
	Registry *Registry
	Config   *extension.Config
	Logger   *slog.Logger
	Timeouts link.Timeouts
}

// NewHandler returns a Handler serving reg under cfg.
func NewHandler(reg *Registry, cfg *extension.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Registry: reg, Config: cfg, Logger: logger, Timeouts: link.DefaultTimeouts()}
}

// ServeHTTP implements http.Handler. It runs the mobile-signaling handshake
// during the upgrade, attaches the resulting handle to the registry, and
// then pumps inbound messages for the lifetime of the connection, routing
// each one through SendDownlink (the echo-via-preferred-link behavior
// carried over from the base signaling server this extension specializes).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Sec-WebSocket-Extensions")
	attrs, found := extension.ParseHeader(header)
	if !found || !h.Config.IsImplemented() {
		h.Logger.Warn("[session] rejecting connection without mobile-signaling offer")
		http.Error(w, "mobile-signaling extension required", http.StatusBadRequest)
		return
	}

	if !h.Registry.Validate(attrs) {
		h.Logger.Warn("[session] rejecting invalid offer", "attrs", attrs)
		http.Error(w, "invalid mobile-signaling offer", http.StatusBadRequest)
		return
	}

	neg := extension.NewNegotiator(h.Config)
	response, err := neg.NegotiateRequest(attrs)
	if err != nil {
		h.Logger.Warn("[session] negotiation failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	responseHeader := http.Header{}
	responseHeader.Set("Sec-WebSocket-Extensions", response)

	conn, err := upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		h.Logger.Error("[session] upgrade failed", "error", err)
		return
	}

	role := link.RoleSignaling
	if neg.Primary {
		role = link.RolePrimary
	}
	handle := link.New(conn, role)

	respAttrs, _ := extension.ParseHeader(response)
	closeCode, closeReason := h.Registry.OnOpen(handle, respAttrs)
	if closeCode != 0 {
		_ = handle.Close(closeCode, closeReason)
		return
	}

	h.pump(handle, neg.ConnectionID)
}

// pump runs the per-connection read loop, delivering every inbound message
// back through the session's preferred link, and clears the session half on
// exit regardless of how the loop ended.
func (h *Handler) pump(handle *link.Handle, connID string) {
	conn := handle.Conn()
	defer func() {
		h.Registry.OnClose(connID, handle.Role())
		handle.SetState(link.Closed)
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Time{})
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			h.Logger.Info("[session] link closed", "connection_id", connID, "role", handle.Role(), "error", err)
			return
		}
		if err := h.Registry.SendDownlink(connID, payload, msgType); err != nil {
			h.Logger.Warn("[session] downlink send failed", "connection_id", connID, "error", err)
		}
	}
}
