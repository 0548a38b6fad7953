// Package server exposes the session engine over HTTP: JSON endpoints for
// the conversation and prompt operations, a server-sent-events endpoint for
// streaming exchanges, plus health and metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"deepchat/internal/chat"
	"deepchat/internal/prompt"
)

// Server hosts the HTTP API.
type Server struct {
	engine  *chat.Service
	prompts *prompt.Registry
	logger  *zap.Logger

	httpServer *http.Server
}

// Config holds HTTP server settings.
type Config struct {
	ListenAddr string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{ListenAddr: ":8080"}
}

// NewServer creates the HTTP server around the session engine.
func NewServer(cfg Config, engine *chat.Service, prompts *prompt.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		engine:  engine,
		prompts: prompts,
		logger:  logger,
	}

	s.httpServer = &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     s.Routes(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: streaming responses are open-ended.
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Routes builds the request mux. Exposed so tests can drive the handlers
// without binding a listener.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat/message", s.handleSendMessage)
	mux.HandleFunc("POST /api/chat/stream", s.handleStreamMessage)
	mux.HandleFunc("POST /api/chat/conversation/new", s.handleNewConversation)
	mux.HandleFunc("GET /api/chat/conversation/{id}", s.handleGetConversation)
	mux.HandleFunc("GET /api/chat/conversations", s.handleListConversations)
	mux.HandleFunc("PUT /api/chat/conversation/{id}/title", s.handleRenameConversation)
	mux.HandleFunc("DELETE /api/chat/conversation/{id}", s.handleDeleteConversation)

	mux.HandleFunc("GET /api/chat/prompts", s.handleListPrompts)
	mux.HandleFunc("POST /api/chat/prompts/custom", s.handleCreatePrompt)
	mux.HandleFunc("PUT /api/chat/prompts/custom/{id}", s.handleUpdatePrompt)
	mux.HandleFunc("DELETE /api/chat/prompts/custom/{id}", s.handleDeletePrompt)

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// Start runs the listener until Shutdown or a listener failure.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
