// Package server assembles the HTTP endpoints: the browser bridge and
// the webhook router.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Options selects the endpoints to serve. Nil handlers are left out.
type Options struct {
	Addr string

	// Bridge is served at /ws.
	Bridge http.Handler
	// Webhooks is served under WebhookPrefix.
	Webhooks      http.Handler
	WebhookPrefix string

	// OnShutdown runs when the server starts shutting down, e.g. to
	// close hijacked websocket connections.
	OnShutdown func()
}

type Server struct {
	http *http.Server
	log  *zap.Logger
}

func New(opts Options, log *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok\n")
	})
	if opts.Bridge != nil {
		mux.Handle("/ws", opts.Bridge)
	}
	if opts.Webhooks != nil {
		prefix := opts.WebhookPrefix
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		mux.Handle(prefix, opts.Webhooks)
	}

	s := &Server{
		http: &http.Server{
			Addr:              opts.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		log: log,
	}
	if opts.OnShutdown != nil {
		s.http.RegisterOnShutdown(opts.OnShutdown)
	}
	return s
}

// Handler returns the routing handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))

	errc := make(chan error, 1)
	go func() { errc <- s.http.Serve(ln) }()

	select {
	case err := <-errc:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("HTTP server shutting down")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
