// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway is the delivery surface of the warden gate: an HTTP
// server exposing the audit event stream, an interactive approval
// channel, and an OpenAI-compatible chat endpoint. Everything that
// leaves through this package has already passed the outbound leak
// guard.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/warden-project/warden/agent"
	"github.com/warden-project/warden/approval"
	"github.com/warden-project/warden/audit"
	"github.com/warden-project/warden/lib/policy"
)

// Responder produces the assistant turn for a chat request. The
// gateway owns authorization, tool dispatch, and leak guarding; the
// responder only proposes.
type Responder interface {
	Respond(ctx context.Context, messages []ChatMessage) (ChatReply, error)
}

// ChatReply is a proposed assistant turn: text plus zero or more tool
// calls for the loop to authorize and execute.
type ChatReply struct {
	Text  string
	Calls []agent.Call
}

// Config configures a Server. Engine, Loop, Ring, Broadcast,
// Responder, and Logger are required.
type Config struct {
	// Address is the TCP listen address.
	Address string

	// PairingTokenHash is the encoded argon2id hash of the pairing
	// token. Empty restricts the server to loopback clients.
	PairingTokenHash string

	// Policy supplies the snapshot for each request. One snapshot is
	// taken per request and used for its whole lifetime.
	Policy func() policy.Snapshot

	Engine    *approval.Engine
	Loop      *agent.Loop
	Ring      *audit.Ring
	Broadcast *audit.Broadcast
	Responder Responder
	Logger    *slog.Logger

	// Recorder receives leak-guard records for responses assembled by
	// the gateway itself. Defaults to Discard.
	Recorder audit.Recorder

	// ShutdownTimeout bounds graceful shutdown. Defaults to 10s.
	ShutdownTimeout time.Duration
}

// Server serves the gate's HTTP surface. Follows the bind-early
// lifecycle: Serve(ctx) blocks until the context is cancelled and
// in-flight requests drain; Ready() closes once the listener is
// bound.
type Server struct {
	config  Config
	pairing *pairingHash
	router  *mux.Router
	log     *slog.Logger

	ready chan struct{}
	addr  net.Addr
}

// New builds a Server. Fails when the pairing hash is present but
// malformed; a gate that silently dropped authentication would be
// worse than one that refuses to start.
func New(config Config) (*Server, error) {
	if config.Engine == nil || config.Loop == nil || config.Ring == nil ||
		config.Broadcast == nil || config.Responder == nil || config.Logger == nil {
		return nil, errors.New("gateway: Engine, Loop, Ring, Broadcast, Responder, and Logger are required")
	}
	if config.Policy == nil {
		return nil, errors.New("gateway: Policy source is required")
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	if config.Recorder == nil {
		config.Recorder = audit.Discard{}
	}

	s := &Server{
		config: config,
		log:    config.Logger,
		ready:  make(chan struct{}),
	}
	if config.PairingTokenHash != "" {
		parsed, err := parsePairingHash(config.PairingTokenHash)
		if err != nil {
			return nil, err
		}
		s.pairing = parsed
	}

	r := mux.NewRouter()
	r.Handle("/v1/events", s.authenticated(http.HandlerFunc(s.handleEvents))).Methods(http.MethodGet)
	r.Handle("/v1/channel", s.authenticated(http.HandlerFunc(s.handleChannel))).Methods(http.MethodGet)
	r.Handle("/v1/chat/completions", s.authenticated(http.HandlerFunc(s.handleChat))).Methods(http.MethodPost)
	r.Handle("/v1/approvals", s.authenticated(http.HandlerFunc(s.handleListApprovals))).Methods(http.MethodGet)
	r.Handle("/v1/approvals/{id}", s.authenticated(http.HandlerFunc(s.handleResolveApproval))).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router = r
	return s, nil
}

// Router returns the HTTP handler, for serving through an external
// listener in tests.
func (s *Server) Router() http.Handler { return s.router }

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr is the resolved listen address, valid after Ready closes.
func (s *Server) Addr() net.Addr { return s.addr }

// Serve binds the listener and accepts connections until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler: s.router,

		// No ReadTimeout / WriteTimeout: the event stream and the
		// channel hold their connections open indefinitely.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.log.Info("gateway listening", "address", s.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("gateway shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	s.log.Info("gateway stopped")
	return nil
}

// authenticated wraps a handler with pairing-token verification. With
// no hash configured the gate only talks to loopback clients.
func (s *Server) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.pairing == nil {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil || !net.ParseIP(host).IsLoopback() {
				http.Error(w, "pairing required for non-loopback clients", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r)
		if token == "" || !s.pairing.verify(token) {
			// Delay is not needed: argon2 verification already
			// costs tens of milliseconds per attempt.
			http.Error(w, "invalid pairing token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}
