// Package telemetry is a small demo application built on top of the core
// mobilesig packages: a client that sends a counter value on a fixed
// interval over the dispatcher, and a server that echoes every inbound
// payload back through the session registry's preferred link. Neither is
// part of the core protocol — they exist to exercise the dispatcher's send
// path and the registry's routing end to end, the way the original
// source's telemetry_loop demo did.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mobilesig/dispatcher"
	"mobilesig/extension"
	"mobilesig/session"

	"github.com/gorilla/websocket"
)

// Client runs a telemetry generator loop over a Dispatcher: every interval
// it sends an incrementing counter, skipping the tick entirely while no
// link is open yet.
type Client struct {
	Dispatcher *dispatcher.Dispatcher
	Logger     *slog.Logger
	Interval   time.Duration
}

// NewClient returns a telemetry Client sending over d every 10 seconds,
// matching the original demo's cadence.
func NewClient(d *dispatcher.Dispatcher, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{Dispatcher: d, Logger: logger, Interval: 10 * time.Second}
}

// Run blocks, sending telemetry until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	var count uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload := []byte(fmt.Sprintf("client: %d", count))
			if err := c.Dispatcher.Send(websocket.TextMessage, payload); err != nil {
				c.Logger.Info("[telemetry] send skipped", "error", err)
				continue
			}
			c.Logger.Debug("[telemetry] sent", "count", count)
			count++
		}
	}
}

// NewEchoServer returns a Handler whose registry echoes every inbound
// message back through the sender's preferred link — the Go-idiomatic
// counterpart of the original source's generateResponse/echo_server demo.
// SendDownlink already implements the echo-via-preferred-link behavior, so
// this is just registry/handler wiring for the demo binary.
func NewEchoServer(cfg *extension.Config, logger *slog.Logger) *session.Handler {
	reg := session.NewRegistry(logger)
	return session.NewHandler(reg, cfg, logger)
}
