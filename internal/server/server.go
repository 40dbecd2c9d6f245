// Package server implements the HTTP surface described in spec §6: a
// small JSON API in front of the agent loop, with a layered middleware
// chain and optional bearer authentication.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tamalebot/tamalebot/internal/agent"
	"github.com/tamalebot/tamalebot/internal/auth"
	"github.com/tamalebot/tamalebot/internal/audit"
)

// Server is the tamalebot HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler, for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Config holds all dependencies and configuration for creating a Server.
// JWTMgr is optional: nil disables bearer authentication entirely.
type Config struct {
	Loop     *agent.Loop
	Journal  *audit.Journal
	JWTMgr   *auth.JWTManager
	Logger   *slog.Logger
	AgentID  string
	Name     string
	Model    string
	Started  time.Time

	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New creates a new HTTP server with all routes configured.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	h := newHandlers(handlersDeps{
		Loop:    cfg.Loop,
		Journal: cfg.Journal,
		AgentID: cfg.AgentID,
		Name:    cfg.Name,
		Model:   cfg.Model,
		Started: cfg.Started,
		Logger:  cfg.Logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /message", h.handleMessage)
	mux.HandleFunc("POST /clear", h.handleClear)
	mux.HandleFunc("GET /logs", h.handleLogs)
	mux.HandleFunc("GET /memory/stats", h.handleMemoryStats)

	// Middleware chain (outermost executes first): request ID → security
	// headers → CORS → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = corsMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
