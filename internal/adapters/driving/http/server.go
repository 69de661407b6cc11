package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	maxUpload  int64
	logger     *slog.Logger

	// Services
	conversations driving.ConversationService
	documents     driving.DocumentService
	chat          driving.ChatService
	verifier      driven.TokenVerifier

	// Dependencies checked by /ready, by name
	checks map[string]Pinger
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	Version        string
	AllowedOrigins []string
	// MaxUploadBytes bounds a multipart upload request (default: 32 MiB)
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		Version:        "dev",
		AllowedOrigins: []string{"*"},
		MaxUploadBytes: 32 << 20,
	}
}

// Deps holds the services the server exposes.
type Deps struct {
	Conversations driving.ConversationService
	Documents     driving.DocumentService
	Chat          driving.ChatService
	Verifier      driven.TokenVerifier
	// Checks are pinged by /ready; nil entries are skipped
	Checks map[string]Pinger
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Deps) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}

	s := &Server{
		router:        http.NewServeMux(),
		version:       cfg.Version,
		maxUpload:     maxUpload,
		logger:        logger,
		conversations: deps.Conversations,
		documents:     deps.Documents,
		chat:          deps.Chat,
		verifier:      deps.Verifier,
		checks:        deps.Checks,
	}

	s.setupRoutes()

	handler := NewRecoveryMiddleware(logger).Handler(
		NewLoggingMiddleware(logger).Handler(
			NewCORSMiddleware(cfg.AllowedOrigins).Handler(s.router)))

	// No WriteTimeout: chat streams stay open for as long as the model talks.
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	auth := NewAuthMiddleware(s.verifier)
	protected := func(h http.HandlerFunc) http.Handler {
		return auth.Authenticate(h)
	}

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)
	s.router.HandleFunc("GET /openapi.json", s.handleOpenAPI)

	// Conversations
	s.router.Handle("POST /api/v1/conversations", protected(s.handleCreateConversation))
	s.router.Handle("GET /api/v1/conversations", protected(s.handleListConversations))
	s.router.Handle("POST /api/v1/conversations/classify", protected(s.handleClassify))
	s.router.Handle("GET /api/v1/conversations/{id}", protected(s.handleGetConversation))
	s.router.Handle("DELETE /api/v1/conversations/{id}", protected(s.handleDeleteConversation))
	s.router.Handle("GET /api/v1/conversations/{id}/messages", protected(s.handleListMessages))
	s.router.Handle("POST /api/v1/conversations/{id}/messages/stream", protected(s.handleStreamMessage))

	// Documents
	s.router.Handle("POST /api/v1/conversations/{id}/documents", protected(s.handleUploadDocuments))
	s.router.Handle("GET /api/v1/conversations/{id}/documents", protected(s.handleListDocuments))
	s.router.Handle("GET /api/v1/documents/{id}", protected(s.handleGetDocument))
	s.router.Handle("DELETE /api/v1/documents/{id}", protected(s.handleDeleteDocument))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
