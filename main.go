// Command mobilesig runs one role of the mobile-signaling extension: a
// signaling server (session registry), a dual-link client (dispatcher), or
// a signaling proxy, selected with -role.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mobilesig/dispatcher"
	"mobilesig/extension"
	"mobilesig/link"
	"mobilesig/proxy"
	"mobilesig/session"
	"mobilesig/telemetry"
)

func main() {
	role := flag.String("role", "server", "Role to run: server, client, or proxy")
	listen := flag.String("listen", ":8080", "Address to listen on (server and proxy roles)")
	destination := flag.String("destination", "", "Destination WebSocket URI (client and proxy roles)")
	coordinator := flag.String("coordinator", "", "Coordinator WebSocket URI for the signaling link")
	overrideCoordinator := flag.Bool("override-coordinator", false, "Server's coordinator value wins reconciliation")
	enableExtensions := flag.Bool("enable-extensions", true, "Enable the mobile-signaling extension")
	logFile := flag.String("log-file", "", "Write logs as JSON to this file instead of stderr")
	telemetryDemo := flag.Bool("telemetry", false, "Client role only: run the telemetry demo sender loop")

	flag.Parse()

	logger := setupLogging(*role, *logFile)

	cfg := extension.NewConfig()
	cfg.EnableExtensions = *enableExtensions
	cfg.OverrideCoordinator = *overrideCoordinator
	cfg.SetCoordinator(*coordinator)
	cfg.SetDestination(*destination)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *role {
	case "server":
		runServer(ctx, logger, cfg, *listen)
	case "client":
		runClient(ctx, logger, cfg, *telemetryDemo)
	case "proxy":
		runProxy(ctx, logger, cfg, *listen)
	default:
		fmt.Fprintf(os.Stderr, "unknown role %q: must be server, client, or proxy\n", *role)
		os.Exit(2)
	}
}

// runServer starts the session registry's HTTP handler and blocks until
// ctx is cancelled, then shuts the HTTP server down gracefully.
func runServer(ctx context.Context, logger *slog.Logger, cfg *extension.Config, listen string) {
	reg := session.NewRegistry(logger)
	handler := session.NewHandler(reg, cfg, logger)

	mux := http.NewServeMux()
	mux.Handle("/signal", handler)

	srv := &http.Server{Addr: listen, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("[server] listening", "addr", listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("[server] exited with error", "error", err)
		os.Exit(1)
	}
}

// runClient connects the dual-link dispatcher and, if requested, runs the
// telemetry demo generator loop until ctx is cancelled.
func runClient(ctx context.Context, logger *slog.Logger, cfg *extension.Config, telemetryDemo bool) {
	if cfg.Destination() == "" {
		fmt.Fprintln(os.Stderr, "client role requires -destination")
		os.Exit(2)
	}

	onMessage := func(role link.Role, messageType int, payload []byte) {
		logger.Info("[client] received", "role", role, "bytes", len(payload))
	}

	d := dispatcher.New(cfg, logger, onMessage)
	if err := d.Connect(ctx); err != nil {
		logger.Error("[client] connect failed", "error", err)
		os.Exit(1)
	}
	defer d.Close()

	if telemetryDemo {
		telemetry.NewClient(d, logger).Run(ctx)
		return
	}

	<-ctx.Done()
}

// runProxy starts the signaling proxy's HTTP handler and blocks until ctx
// is cancelled, draining active splices on the way out.
func runProxy(ctx context.Context, logger *slog.Logger, cfg *extension.Config, listen string) {
	p := proxy.NewServer(cfg, logger)

	mux := http.NewServeMux()
	mux.Handle("/signal", p)

	srv := &http.Server{Addr: listen, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Shutdown(shutdownCtx)
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("[proxy] listening", "addr", listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("[proxy] exited with error", "error", err)
		os.Exit(1)
	}
}

// setupLogging builds one *slog.Logger per role, generalizing the original
// unified-server's per-service *log.Logger/optional-file-output pattern to
// structured logging: JSON lines to logFile when set, otherwise a
// human-readable handler on stderr tagged with the role.
func setupLogging(role, logFile string) *slog.Logger {
	var out io.Writer = os.Stderr
	var handler slog.Handler

	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %q: %v\n", logFile, err)
			os.Exit(1)
		}
		out = file
		handler = slog.NewJSONHandler(out, nil)
	} else {
		handler = slog.NewTextHandler(out, nil)
	}

	return slog.New(handler).With("role", role)
}
