package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"parley/internal/infra/config"
	"parley/internal/usecase"
)

// Server is the HTTP API fronting the turn pipeline and session queries.
type Server struct {
	turns    *usecase.Orchestrator
	sessions *usecase.SessionService
	usage    *usecase.UsageRecorder
	limiter  *conversationLimiter
	logger   *slog.Logger

	addr      string
	httpSrv   *http.Server
	boundAddr string
}

// NewServer creates the API server. Rate limiting is active only when the
// config sets a positive per-minute limit.
func NewServer(
	turns *usecase.Orchestrator,
	sessions *usecase.SessionService,
	usage *usecase.UsageRecorder,
	cfg config.ServerConfig,
	logger *slog.Logger,
) *Server {
	return &Server{
		turns:    turns,
		sessions: sessions,
		usage:    usage,
		limiter:  newConversationLimiter(cfg.RateLimitPerMin, cfg.RateLimitBurst),
		logger:   logger,
		addr:     cfg.Addr,
	}
}

// Routes returns the API handler. Exposed separately so tests can drive it
// through httptest without binding a port.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}/messages", s.handleSessionMessages)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /api/admin/usage/daily", s.handleDailyUsage)
	mux.HandleFunc("GET /api/admin/usage/monthly", s.handleMonthlyUsage)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

// Start begins serving. Blocks until the context is cancelled or the listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()

	s.httpSrv = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("api server started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// BoundAddr returns the actual address the server bound to. Only valid after
// Start.
func (s *Server) BoundAddr() string { return s.boundAddr }
