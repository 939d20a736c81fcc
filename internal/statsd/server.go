package statsd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/riskview/internal/api"
	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/metrics"
	"github.com/opensource-finance/riskview/internal/worker"
)

// BasePath is where the statistics API is mounted.
const BasePath = "/api"

// Deps are the collaborators of the development backend.
type Deps struct {
	Repo       domain.Repository
	Cache      domain.Cache
	Bus        domain.EventBus
	Scorer     worker.Analyzer
	Rules      RuleSource
	Calculator *Calculator
	Metrics    *metrics.Metrics
}

// Server represents the development statistics server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	auth    *Authenticator
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new development statistics server.
func NewServer(cfg domain.ServerConfig, dev domain.DevBackendConfig, deps Deps) *Server {
	if deps.Calculator == nil {
		deps.Calculator = NewCalculator(nil, nil, nil)
	}

	handler := &Handler{
		repo:   deps.Repo,
		cache:  deps.Cache,
		bus:    deps.Bus,
		scorer: deps.Scorer,
		rules:  deps.Rules,
		calc:   deps.Calculator,
	}
	auth := NewAuthenticator(deps.Cache, dev)

	router := chi.NewRouter()

	router.Use(api.RecoverMiddleware)
	router.Use(api.TracingMiddleware)
	router.Use(api.LoggingMiddleware)
	router.Use(api.MetricsMiddleware(deps.Metrics))
	router.Use(middleware.RealIP)

	router.Get("/health", handler.Health)
	if deps.Metrics != nil {
		router.Handle("/metrics", deps.Metrics.Handler())
	}

	router.Route(BasePath, func(r chi.Router) {
		r.Post("/auth/login", auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)

			r.Post("/auth/logout", auth.Logout)
			r.Get("/auth/me", auth.Me)

			r.Route("/statistics", func(r chi.Router) {
				r.Get("/dashboard", handler.Dashboard)
				r.Get("/customer/{id}", handler.Customer)
				r.Get("/model-metrics", handler.ModelMetrics)
				r.Get("/feature-importance", handler.FeatureImportance)
				r.Get("/behavioral-insights", handler.BehavioralInsights)
				r.Post("/transactions/filter", handler.FilterTransactions)
				r.Get("/export", handler.Export)
			})

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", handler.Transactions)
				r.Get("/fraudulent", handler.Fraudulent)
				r.Post("/{id}/analyze", handler.Analyze)
			})
		})
	})

	return &Server{
		router:  router,
		handler: handler,
		auth:    auth,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
