package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"seatstitch/internal/api/handlers"
	"seatstitch/internal/api/middleware"
	"seatstitch/internal/config"
	"seatstitch/internal/ratelimit"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Deps are the collaborators served over HTTP.
type Deps struct {
	Searcher      handlers.Searcher
	Routes        handlers.RouteResolver
	Tokens        map[string]string
	SearchLimiter *ratelimit.Limiter
	RouteLimiter  *ratelimit.Limiter
}

type Server struct {
	cfg    config.ServerConfig
	deps   Deps
	logger *log.Logger

	handler http.Handler
	srv     *http.Server
}

func NewServer(cfg config.ServerConfig, deps Deps, logger *log.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}

	r := chi.NewRouter()
	s.registerRoutes(r)
	s.handler = middleware.Logging(logger)(r)

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Start() error {
	s.logger.Printf("api: starting server on %s", s.srv.Addr)
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		s.logger.Printf("api: server stopped")
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Print("api: shutting down server")
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Printf("api: error during server shutdown: %v", err)
		return err
	}
	return nil
}

func (s *Server) registerRoutes(r chi.Router) {
	r.Use(middleware.Security)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.healthHandler)

	search := handlers.NewSearchHandler(s.deps.Searcher, s.logger)
	routes := handlers.NewRouteHandler(s.deps.Routes, s.logger)

	r.Group(func(r chi.Router) {
		// auth resolves the caller the rate limiters key on
		r.Use(middleware.Auth(s.deps.Tokens))

		r.With(middleware.RateLimit(s.deps.SearchLimiter, s.logger)).
			Post("/v1/journeys/search", search.Search)

		r.Route("/v1/routes/{train_no}", func(r chi.Router) {
			r.Use(middleware.RateLimit(s.deps.RouteLimiter, s.logger))
			r.Get("/", routes.GetRoute)
			r.Get("/slice", routes.GetSlice)
		})
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
