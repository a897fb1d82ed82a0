// Package server exposes chat sessions and answers over an HTTP JSON API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/apexion-ai/wikichat/internal/agent"
)

const (
	maxBodyBytes = 1 << 20

	// writeMargin is added on top of the slowest possible answer.
	writeMargin = 30 * time.Second
)

// DefaultWriteTimeout covers the default 30s search, 30s extract and 120s
// completion limits.
var DefaultWriteTimeout = WriteTimeout(30*time.Second, 120*time.Second)

// WriteTimeout returns the response write limit for an answer that may wait
// on two MediaWiki calls and one completion.
func WriteTimeout(wikiTimeout, completionTimeout time.Duration) time.Duration {
	return 2*wikiTimeout + completionTimeout + writeMargin
}

// Server serves the chat API.
type Server struct {
	chat           *agent.Chat
	allowedOrigins []string
	writeTimeout   time.Duration
	log            zerolog.Logger
}

// New creates a Server.
func New(chat *agent.Chat, allowedOrigins []string, log zerolog.Logger) *Server {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Server{chat: chat, allowedOrigins: allowedOrigins, writeTimeout: DefaultWriteTimeout, log: log}
}

// SetWriteTimeout overrides DefaultWriteTimeout. Non-positive values are ignored.
func (s *Server) SetWriteTimeout(d time.Duration) {
	if d > 0 {
		s.writeTimeout = d
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(RequestLogger(s.log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(CORS(s.allowedOrigins))

	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers the /api routes.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/sessions", s.handleListSessions)
		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/select", s.handleSelectSession)
			r.Post("/messages", s.handlePostMessage)
		})
		r.Post("/answer", s.handleAnswer)
	})
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
