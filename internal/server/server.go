// Package server is an in-memory reference implementation of the board
// HTTP API the engine consumes: versioned board snapshots with ETag
// support, paginated comment and archive listings, and last-writer-wins
// PUT with baseVersion conflict detection.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// Config holds the server settings.
type Config struct {
	Addr         string
	JWTSecret    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
	// Mutation rate limit per account scope.
	WritesPerSecond float64
	WriteBurst      int
}

type Server struct {
	router     chi.Router
	httpServer *http.Server
	store      *memoryStore
	cfg        Config
}

// New creates a Server with all routes wired.
func New(cfg Config) *Server {
	if cfg.WritesPerSecond <= 0 {
		cfg.WritesPerSecond = 25
	}
	if cfg.WriteBurst <= 0 {
		cfg.WriteBurst = 50
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "If-None-Match"},
		ExposedHeaders: []string{"ETag"},
		MaxAge:         300,
	}).Handler)

	s := &Server{
		router: router,
		store:  newMemoryStore(),
		cfg:    cfg,
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}

	router.Group(func(r chi.Router) {
		r.Use(auth(cfg.JWTSecret))

		r.Get("/board", s.handleGetBoard)
		r.Get("/cards/{id}/comments", s.handleListComments)
		r.Get("/cards/{id}/comments/archive", s.handleListArchive)

		// Mutations are rate limited per scope.
		r.Group(func(r chi.Router) {
			r.Use(rateLimit(cfg.WritesPerSecond, cfg.WriteBurst))

			r.Put("/board", s.handlePutBoard)
			r.Post("/cards/{id}/comments", s.handleAddComment)
			r.Patch("/cards/{id}/comments/{commentID}", s.handleUpdateComment)
			r.Delete("/cards/{id}/comments/{commentID}", s.handleDeleteComment)
			r.Post("/comments/archive/{archiveID}/restore", s.handleRestoreArchived)
		})
	})

	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.cfg.Addr).Msg("board server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
