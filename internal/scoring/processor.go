// Package scoring turns risk factors into a fraud probability and decision
// for the development statistics backend.
package scoring

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/opensource-finance/riskview/internal/classify"
	"github.com/opensource-finance/riskview/internal/domain"
)

// Processor aggregates risk factors and produces an analysis.
type Processor struct {
	classifier *classify.Classifier

	// Weight configuration for factor aggregation
	UseWeightedScoring bool

	now func() time.Time
}

// NewProcessor creates a processor deciding with the given classifier.
func NewProcessor(classifier *classify.Classifier) *Processor {
	if classifier == nil {
		classifier = classify.Default()
	}
	return &Processor{
		classifier:         classifier,
		UseWeightedScoring: true,
		now:                time.Now,
	}
}

// DecisionInput contains all data needed for a decision.
type DecisionInput struct {
	Transaction domain.TransactionRecord
	Factors     []domain.RiskFactor
}

// Process aggregates the factors into a fraud probability and classifies it.
func (p *Processor) Process(ctx context.Context, input *DecisionInput) *domain.TransactionAnalysis {
	agg := p.aggregate(input.Factors)

	probability := agg.AggregateScore
	decision := p.classifier.Decision(&probability)

	analysis := &domain.TransactionAnalysis{
		TransactionID:    input.Transaction.ID,
		CustomerID:       input.Transaction.CustomerID,
		FraudProbability: probability,
		IsFraud:          decision == domain.DecisionBlock,
		Decision:         decision,
		RiskScore:        probability * 100,
		RiskFactors:      triggered(input.Factors),
		AnalyzedAt:       p.now().UTC().Format(time.RFC3339),
	}
	analysis.AIExplanation = explain(analysis)
	analysis.Recommendations = recommend(decision)
	return analysis
}

// AggregateResult holds the aggregated scoring results.
type AggregateResult struct {
	AggregateScore   float64
	TotalWeight      float64
	FactorsTriggered int
}

// aggregate computes the weighted mean of the factor scores.
func (p *Processor) aggregate(factors []domain.RiskFactor) *AggregateResult {
	agg := &AggregateResult{}
	if len(factors) == 0 {
		return agg
	}

	for _, f := range factors {
		weight := f.Weight
		if weight <= 0 {
			weight = 1.0
		}
		if f.Score > 0 {
			agg.FactorsTriggered++
		}

		if p.UseWeightedScoring {
			agg.AggregateScore += f.Score * weight
			agg.TotalWeight += weight
		} else {
			agg.AggregateScore += f.Score
			agg.TotalWeight += 1.0
		}
	}

	if agg.TotalWeight > 0 {
		agg.AggregateScore = agg.AggregateScore / agg.TotalWeight
	}
	return agg
}

// triggered returns the factors with a positive score, largest contribution first.
func triggered(factors []domain.RiskFactor) []domain.RiskFactor {
	out := make([]domain.RiskFactor, 0, len(factors))
	for _, f := range factors {
		if f.Score > 0 {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score*out[i].Weight > out[j].Score*out[j].Weight
	})
	return out
}

func explain(a *domain.TransactionAnalysis) string {
	if len(a.RiskFactors) == 0 {
		return "No risk factors triggered."
	}
	names := make([]string, len(a.RiskFactors))
	for i, f := range a.RiskFactors {
		names[i] = strings.ToLower(f.Name)
	}
	return "Risk driven by " + strings.Join(names, ", ") + "."
}

func recommend(d domain.Decision) string {
	switch d {
	case domain.DecisionBlock:
		return "Block the transaction and contact the customer."
	case domain.DecisionReview:
		return "Hold the transaction for manual review."
	default:
		return "No action required."
	}
}

// ShouldAlert returns true if the analysis should be surfaced to analysts.
func ShouldAlert(a *domain.TransactionAnalysis) bool {
	return a.Decision == domain.DecisionBlock || a.Decision == domain.DecisionReview
}

// GetReasons extracts human-readable reasons from an analysis.
func GetReasons(a *domain.TransactionAnalysis) []string {
	var reasons []string
	for _, f := range a.RiskFactors {
		if f.Score >= 0.5 && f.Description != "" {
			reasons = append(reasons, f.Description)
		}
	}
	return reasons
}
