package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/ladder-cache/internal/cascade"
	"github.com/terra-clan/ladder-cache/internal/config"
	"github.com/terra-clan/ladder-cache/internal/health"
	"github.com/terra-clan/ladder-cache/internal/loader"
)

// Server represents the HTTP API consumed by the dashboard UI
type Server struct {
	config  config.ServerConfig
	router  *chi.Mux
	cascade *cascade.Cascade
	jobs    *loader.Coordinator
	health  *health.Registry
	auth    *AuthMiddleware
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	c *cascade.Cascade,
	jobs *loader.Coordinator,
	registry *health.Registry,
) *Server {
	if registry == nil {
		registry = health.NewRegistry(0)
	}
	s := &Server{
		config:  cfg,
		cascade: c,
		jobs:    jobs,
		health:  registry,
		auth:    NewAuthMiddleware(cfg.APIToken),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		// long-lived, so outside the timeout group
		r.Get("/sections/{section}/job/events", s.handleJobEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/sections", s.handleListSections)

			r.Route("/sections/{section}", func(r chi.Router) {
				r.Get("/contests", s.handleGetContests)
				r.Get("/missing", s.handleGetMissing)
				r.With(s.auth.Authenticate).Post("/update", s.handleUpdateContests)

				r.Route("/job", func(r chi.Router) {
					r.Get("/", s.handleGetJob)
					r.With(s.auth.Authenticate).Post("/", s.handleStartJob)
					r.With(s.auth.Authenticate).Post("/stop", s.handleStopJob)
					r.With(s.auth.Authenticate).Post("/resume", s.handleResumeJob)
				})
			})

			r.Route("/contests/{id}", func(r chi.Router) {
				r.Get("/problems", s.handleGetProblems)
				r.With(s.auth.Authenticate).Post("/refresh", s.handleRefreshContest)
			})
		})
	})

	s.router = r
}

func (s *Server) allowedOrigins() []string {
	if len(s.config.AllowedOrigins) > 0 {
		return s.config.AllowedOrigins
	}
	return []string{"*"}
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
