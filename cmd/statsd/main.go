// Riskview - Fraud-risk analytics for the analyst dashboard.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

// Command statsd serves the statistics API from a local store so riskview
// can be developed and tested without the production scoring service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/riskview/internal/bus"
	"github.com/opensource-finance/riskview/internal/cache"
	"github.com/opensource-finance/riskview/internal/classify"
	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/filter"
	"github.com/opensource-finance/riskview/internal/metrics"
	"github.com/opensource-finance/riskview/internal/repository"
	"github.com/opensource-finance/riskview/internal/rules"
	"github.com/opensource-finance/riskview/internal/scoring"
	"github.com/opensource-finance/riskview/internal/statsd"
	"github.com/opensource-finance/riskview/internal/velocity"
	"github.com/opensource-finance/riskview/internal/worker"
)

// workerScope is the bus scope of the scoring pipeline.
const workerScope = "statsd"

func main() {
	port := flag.Int("port", 8080, "HTTP port")
	dbPath := flag.String("db", "", "SQLite path (overrides RISKVIEW_SQLITE_PATH)")
	seed := flag.Bool("seed", false, "Generate demo data when the store is empty")
	seedValue := flag.Uint64("seed-value", statsd.DefaultSeedConfig().Seed, "Random seed for demo data")
	flag.Parse()

	logLevel := slog.LevelInfo
	if os.Getenv("RISKVIEW_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	decimal.MarshalJSONWithoutQuotes = true

	cfg := domain.DefaultConfig()
	if os.Getenv("RISKVIEW_TIER") == "pro" {
		cfg = domain.ProConfig()
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg.Server.Port = *port
	if *dbPath != "" {
		cfg.Repository.SQLitePath = *dbPath
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

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()

	m, err := metrics.New("riskview_statsd")
	if err != nil {
		slog.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

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
	filterEngine, err := filter.NewEngine(location)
	if err != nil {
		slog.Error("failed to initialize filter engine", "error", err)
		os.Exit(1)
	}

	// Scoring pipeline: velocity -> rules -> processor
	velocitySvc := velocity.NewService(repo, cacheImpl)
	engine, err := rules.NewEngine(velocitySvc.GetTransactionCount, cfg.DevBackend.Scoring.MaxWorkers)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	if err := engine.LoadRules(rules.BuiltinRules()); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	scorer := scoring.NewScorer(repo, engine, scoring.NewProcessor(classifier), cfg.DevBackend.Scoring)

	scoringWorker := worker.NewWorker(busImpl, scorer)
	if err := scoringWorker.Start(worker.Config{Scope: workerScope}); err != nil {
		slog.Error("failed to start scoring worker", "error", err)
		os.Exit(1)
	}

	if *seed {
		if err := seedStore(ctx, repo, busImpl, *seedValue); err != nil {
			slog.Error("failed to seed demo data", "error", err)
			os.Exit(1)
		}
	}

	srv := statsd.NewServer(cfg.Server, cfg.DevBackend, statsd.Deps{
		Repo:       repo,
		Cache:      cacheImpl,
		Bus:        busImpl,
		Scorer:     scorer,
		Rules:      engine,
		Calculator: statsd.NewCalculator(classifier, filterEngine, location),
		Metrics:    m,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("statsd is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_path", statsd.BasePath,
		"analyst", cfg.DevBackend.Email,
	)
	fmt.Printf("\n  statsd serving http://%s:%d%s (analyst %s)\n\n",
		cfg.Server.Host, cfg.Server.Port, statsd.BasePath, cfg.DevBackend.Email)

	<-ctx.Done()
	slog.Info("shutting down...")

	if err := scoringWorker.Stop(); err != nil {
		slog.Error("failed to stop scoring worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("statsd shutdown complete")
}

// seedStore fills an empty store and queues the new transactions for scoring.
func seedStore(ctx context.Context, repo domain.Repository, eventBus domain.EventBus, value uint64) error {
	n, err := repo.CountTransactions(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("store already holds data, skipping seed", "transactions", n)
		return nil
	}

	cfg := statsd.DefaultSeedConfig()
	cfg.Seed = value
	report, err := statsd.Seed(ctx, repo, cfg)
	if err != nil {
		return err
	}
	if err := statsd.Ingest(ctx, eventBus, workerScope, report.ScoreIDs); err != nil {
		return err
	}

	slog.Info("demo data seeded",
		"customers", report.Customers,
		"transactions", report.Transactions,
		"queued_for_scoring", len(report.ScoreIDs),
	)
	return nil
}
