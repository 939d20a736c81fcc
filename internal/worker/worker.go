// Package worker scores ingested transactions asynchronously for the
// development statistics backend.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/riskview/internal/bus"
	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/scoring"
)

// Analyzer scores one stored transaction.
type Analyzer interface {
	Analyze(ctx context.Context, id int64) (*domain.TransactionAnalysis, error)
}

// Worker processes transaction.ingested events from the EventBus.
type Worker struct {
	bus    domain.EventBus
	scorer Analyzer

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// Scope is the bus scope the backend publishes ingested transactions on
	Scope string
}

// NewWorker creates a new async worker.
func NewWorker(eventBus domain.EventBus, scorer Analyzer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    eventBus,
		scorer: scorer,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing messages for the configured scope.
func (w *Worker) Start(cfg Config) error {
	if cfg.Scope == "" {
		return fmt.Errorf("worker scope is required")
	}

	sub, err := w.bus.Subscribe(w.ctx, cfg.Scope, domain.TopicTransactionIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processTransaction(ctx, cfg.Scope, msg)
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("scoring worker started",
		"scope", cfg.Scope,
		"topic", domain.TopicTransactionIngested,
	)
	return nil
}

// processTransaction scores one transaction and announces the result.
func (w *Worker) processTransaction(ctx context.Context, scope string, msg *domain.Message) error {
	start := time.Now()

	var ev domain.TransactionEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		slog.Error("failed to parse transaction message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	traceID := ev.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	analysis, err := w.scorer.Analyze(ctx, ev.ID)
	if err != nil {
		slog.Error("transaction scoring failed",
			"transaction_id", ev.ID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	scored := domain.TransactionEvent{
		ID:       ev.ID,
		TraceID:  traceID,
		Decision: analysis.Decision,
		Score:    analysis.FraudProbability,
	}
	if err := bus.PublishJSON(ctx, w.bus, scope, domain.TopicTransactionScored, scored); err != nil {
		slog.Error("failed to publish score",
			"transaction_id", ev.ID,
			"error", err,
		)
	}

	level := slog.LevelDebug
	if scoring.ShouldAlert(analysis) {
		level = slog.LevelInfo
	}
	slog.Log(ctx, level, "transaction scored",
		"transaction_id", ev.ID,
		"trace_id", traceID,
		"decision", analysis.Decision,
		"score", analysis.FraudProbability,
		"reasons", scoring.GetReasons(analysis),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	slog.Info("scoring worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
