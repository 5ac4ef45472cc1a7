// Package web exposes the recognition session over HTTP: attendance views,
// a recognize endpoint, and a live event stream.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/recognizer"
)

// Server represents the web server.
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer creates a new web server around a recognition session.
func NewServer(cfg *config.Config, session *recognizer.Session, enc *embedder.Client, port int, host string) *Server {
	r := chi.NewRouter()

	s := &Server{
		config: cfg,
		router: r,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute))

	h := &Handler{config: cfg, session: session, embedder: enc}
	s.setupRoutes(h)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long timeout for SSE
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes(h *Handler) {
	s.router.Get("/api/v1/health", h.Health)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/identities", h.Identities)
		r.Get("/attendance", h.Attendance)
		r.Get("/attendance/today", h.AttendanceToday)
		r.Post("/recognize", h.Recognize)
		r.Post("/recognize/image", h.RecognizeImage)
		r.Get("/events", h.Events)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
