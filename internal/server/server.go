// Package server exposes the bet tracker over HTTP and websockets.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/alanyoungcy/surebet/internal/domain"
	"github.com/alanyoungcy/surebet/internal/server/handler"
	"github.com/alanyoungcy/surebet/internal/server/middleware"
	"github.com/alanyoungcy/surebet/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port          int
	CORSOrigins   []string
	APIKey        string // if empty, authentication is disabled
	OCRRateLimit  int
	OCRRateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// OCR and Hub may be nil.
type Handlers struct {
	Health *handler.HealthHandler
	Bets   *handler.BetHandler
	OCR    *handler.OCRHandler
	Hub    *ws.Hub
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with every route registered. limiter may be nil,
// which disables rate limiting on the upload endpoint.
func NewServer(cfg Config, h Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewRouter(cfg, h, limiter, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 90 * time.Second, // slip extraction can be slow
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// NewRouter builds the chi router with middleware and routes.
func NewRouter(cfg Config, h Handlers, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	// Health check (no auth required).
	r.Get("/api/health", h.Health.HealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.APIKey))

		r.Route("/api/bets", func(r chi.Router) {
			r.Get("/", h.Bets.List)
			r.Post("/", h.Bets.Create)
			r.Get("/summary", h.Bets.Summary)
			r.Get("/{id}", h.Bets.Get)
			r.Patch("/{id}/status", h.Bets.UpdateStatus)
		})

		r.Route("/api/pairs/{pairId}", func(r chi.Router) {
			r.Get("/", h.Bets.Pair)
			r.Get("/history", h.Bets.History)
		})

		if h.OCR != nil {
			r.With(middleware.RateLimit(limiter, "ocr", cfg.OCRRateLimit, cfg.OCRRateWindow, logger)).
				Post("/api/ocr/process", h.OCR.Process)
			r.Get("/api/slips/*", h.OCR.Slip)
		}

		if h.Hub != nil {
			r.Get("/ws", h.Hub.HandleWS)
		}
	})

	return r
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
