package scoring

import (
	"context"
	"errors"
	"fmt"

	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/repository"
	"github.com/opensource-finance/riskview/internal/rules"
)

// Scorer runs the full pipeline for one stored transaction: rules, then
// aggregation, then persistence of the score.
type Scorer struct {
	repo      domain.Repository
	engine    *rules.Engine
	processor *Processor
	window    int
}

// NewScorer wires the pipeline.
func NewScorer(repo domain.Repository, engine *rules.Engine, processor *Processor, cfg domain.ScoringConfig) *Scorer {
	processor.UseWeightedScoring = cfg.WeightedScoring
	return &Scorer{
		repo:      repo,
		engine:    engine,
		processor: processor,
		window:    cfg.VelocityWindowSecs,
	}
}

// Analyze scores the transaction and stores its probability and decision.
// Returns repository.ErrNotFound for unknown IDs.
func (s *Scorer) Analyze(ctx context.Context, id int64) (*domain.TransactionAnalysis, error) {
	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}

	behavior, err := s.repo.GetBehavior(ctx, tx.CustomerID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to load behavior of %s: %w", tx.CustomerID, err)
	}

	factors, err := s.engine.EvaluateAll(ctx, &rules.EvaluateInput{
		Transaction:    *tx,
		Behavior:       behavior,
		VelocityWindow: s.window,
	})
	if err != nil {
		return nil, fmt.Errorf("rule evaluation failed: %w", err)
	}

	analysis := s.processor.Process(ctx, &DecisionInput{Transaction: *tx, Factors: factors})

	if err := s.repo.UpdateScore(ctx, id, analysis.FraudProbability, analysis.Decision); err != nil {
		return nil, fmt.Errorf("failed to store score: %w", err)
	}
	return analysis, nil
}
