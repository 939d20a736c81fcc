// Riskview - Fraud-risk analytics for the analyst dashboard.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/riskview/internal/api"
	"github.com/opensource-finance/riskview/internal/bus"
	"github.com/opensource-finance/riskview/internal/cache"
	"github.com/opensource-finance/riskview/internal/classify"
	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/filter"
	"github.com/opensource-finance/riskview/internal/metrics"
	"github.com/opensource-finance/riskview/internal/session"
	"github.com/opensource-finance/riskview/internal/statsclient"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("RISKVIEW_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Amounts travel as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	slog.Info("starting riskview",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()
	if os.Getenv("RISKVIEW_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"backend", cfg.Backend.BaseURL,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	classifier, err := classify.New(cfg.Policy)
	if err != nil {
		slog.Error("invalid classification policy", "error", err)
		os.Exit(1)
	}
	location, err := cfg.Views.Location()
	if err != nil {
		slog.Error("invalid timezone", "timezone", cfg.Views.Timezone, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	m, err := metrics.New("riskview")
	if err != nil {
		slog.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	client := statsclient.New(cfg.Backend, m)
	sessions := session.NewManager(client, cacheImpl, busImpl, cfg.Session, m)
	if err := sessions.Init(ctx); err != nil {
		slog.Warn("could not restore session", "error", err)
	}
	client.UseTokens(sessions)

	engine, err := filter.NewEngine(location)
	if err != nil {
		slog.Error("failed to initialize filter engine", "error", err)
		os.Exit(1)
	}

	srv, err := api.NewServer(cfg.Server, api.Deps{
		Source:     client,
		Sessions:   sessions,
		Classifier: classifier,
		Filter:     engine,
		Cache:      cacheImpl,
		Derived:    cache.NewLRUCache(cfg.Views.DerivedCacheSize),
		Bus:        busImpl,
		Metrics:    m,
		Views:      cfg.Views,
		Location:   location,
		PageSize:   cfg.Backend.PageSize,
		Version:    Version,
	})
	if err != nil {
		slog.Error("failed to initialize server", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("riskview is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("riskview shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  RISKVIEW - fraud-risk analytics")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Backend:  %s\n", cfg.Backend.BaseURL)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /session/login              - Sign in against the statistics service")
	fmt.Println("    GET  /views/dashboard            - Dashboard KPIs and trends")
	fmt.Println("    GET  /views/timeline             - Filterable transaction timeline")
	fmt.Println("    GET  /views/transactions         - Transaction analysis list")
	fmt.Println("    POST /views/transactions/{id}/analyze - Score one transaction")
	fmt.Println("    GET  /views/customers/{id}       - Customer drill-down")
	fmt.Println("    GET  /views/model-metrics        - Model quality")
	fmt.Println("    POST /views/{name}/refresh       - Refetch a view")
	fmt.Println("    GET  /reports/export?format=pdf  - Download a report")
	fmt.Println("    GET  /health                     - Health check")
	fmt.Println()
}
