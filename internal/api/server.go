package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/riskview/internal/classify"
	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/filter"
	"github.com/opensource-finance/riskview/internal/metrics"
	"github.com/opensource-finance/riskview/internal/session"
	"github.com/opensource-finance/riskview/internal/view"
)

// Deps are the collaborators of the BFF server.
type Deps struct {
	Source     Source
	Sessions   *session.Manager
	Classifier *classify.Classifier
	Filter     *filter.Engine
	Cache      domain.Cache // health checks
	Derived    domain.Cache // derived view store, nil disables caching
	Bus        domain.EventBus
	Metrics    *metrics.Metrics
	Views      domain.ViewsConfig
	Location   *time.Location
	PageSize   int
	Version    string
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
	watch   domain.Subscription
}

// NewServer creates a new BFF server.
func NewServer(cfg domain.ServerConfig, deps Deps) (*Server, error) {
	if deps.Classifier == nil {
		deps.Classifier = classify.Default()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}

	derived := view.NewDerivedCache(deps.Derived, deps.Sessions.Scope(), deps.Metrics)
	handler := &Handler{
		sessions:   deps.Sessions,
		source:     deps.Source,
		classifier: deps.Classifier,
		filter:     deps.Filter,
		cache:      deps.Cache,
		bus:        deps.Bus,
		derived:    derived,
		views:      newViews(deps.Source, deps.Sessions, deps.Bus, derived, deps.Metrics, deps.PageSize, deps.Views.CustomerViews),
		settings:   deps.Views,
		location:   deps.Location,
		version:    deps.Version,
	}

	s := &Server{handler: handler, config: cfg}
	if deps.Bus != nil {
		sub, err := view.DiscardOnSessionEnd(context.Background(), deps.Bus, deps.Sessions.Scope(), handler.views.all()...)
		if err != nil {
			return nil, fmt.Errorf("failed to watch session events: %w", err)
		}
		s.watch = sub
	}

	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)                  // CORS for browser clients
	router.Use(RecoverMiddleware)               // Recover from panics
	router.Use(TracingMiddleware)               // OpenTelemetry tracing
	router.Use(LoggingMiddleware)               // Request logging
	router.Use(MetricsMiddleware(deps.Metrics)) // Prometheus counters
	router.Use(middleware.RealIP)               // Extract real IP
	router.Use(middleware.Compress(5))          // Gzip compression

	// Health endpoints (no session required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if deps.Metrics != nil {
		router.Handle("/metrics", deps.Metrics.Handler())
	}

	router.Route("/session", func(r chi.Router) {
		r.Post("/login", handler.Login)
		r.Post("/logout", handler.Logout)
		r.Get("/me", handler.Me)
	})

	// Views (session required)
	router.Group(func(r chi.Router) {
		r.Use(SessionMiddleware(deps.Sessions))

		r.Get("/views/dashboard", handler.Dashboard)
		r.Get("/views/timeline", handler.Timeline)
		r.Get("/views/customers/{id}", handler.Customer)
		r.Post("/views/customers/{id}/refresh", handler.RefreshCustomer)
		r.Get("/views/model-metrics", handler.ModelMetrics)
		r.Get("/views/feature-importance", handler.FeatureImportance)
		r.Get("/views/behavioral-insights", handler.BehavioralInsights)
		r.Get("/views/transactions", handler.Transactions)
		r.Post("/views/transactions/search", handler.SearchTransactions)
		r.Get("/views/transactions/fraudulent", handler.Fraudulent)
		r.Post("/views/transactions/{id}/analyze", handler.AnalyzeTransaction)
		r.Post("/views/{name}/refresh", handler.Refresh)

		r.Get("/reports/export", handler.Export)
	})

	s.router = router
	return s, nil
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
	if s.watch != nil {
		if err := s.watch.Unsubscribe(); err != nil {
			slog.Warn("failed to stop session watch", "error", err)
		}
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
