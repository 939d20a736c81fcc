// Package kpi derives model-quality metrics from confusion counts.
package kpi

import (
	"math"

	"github.com/opensource-finance/riskview/internal/domain"
)

// DefaultBeta weights recall twice as heavily as precision.
const DefaultBeta = 2.0

// Summarize computes precision, recall, F1, F2 and accuracy.
func Summarize(c domain.ConfusionCounts) domain.ModelMetrics {
	return SummarizeBeta(c, DefaultBeta)
}

// SummarizeBeta computes the metrics with an F-beta weighting. Any zero
// denominator yields 0 for that metric. Negative counts are treated as 0 and
// every ratio is clamped to [0, 1].
func SummarizeBeta(c domain.ConfusionCounts, beta float64) domain.ModelMetrics {
	tp := nonNegative(c.TruePositives)
	fp := nonNegative(c.FalsePositives)
	tn := nonNegative(c.TrueNegatives)
	fn := nonNegative(c.FalseNegatives)

	precision := ratio(tp, tp+fp)
	recall := ratio(tp, tp+fn)

	return domain.ModelMetrics{
		Precision:      precision,
		Recall:         recall,
		F1Score:        fScore(precision, recall, 1),
		FBetaScore:     fScore(precision, recall, beta),
		Accuracy:       ratio(tp+tn, tp+fp+tn+fn),
		TruePositives:  tp,
		FalsePositives: fp,
		TrueNegatives:  tn,
		FalseNegatives: fn,
	}
}

// Recompute replaces the derived ratios of m with values computed from its own
// counts. RocAuc cannot be derived from counts, so it is kept and clamped.
func Recompute(m domain.ModelMetrics, beta float64) domain.ModelMetrics {
	out := SummarizeBeta(m.Counts(), beta)
	out.RocAuc = Clamp(m.RocAuc)
	out.LastUpdated = m.LastUpdated
	return out
}

// Clamp bounds v to [0, 1]. NaN becomes 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func fScore(precision, recall, beta float64) float64 {
	if beta <= 0 || math.IsNaN(beta) || math.IsInf(beta, 0) {
		beta = 1
	}
	b2 := beta * beta
	denom := b2*precision + recall
	if denom == 0 {
		return 0
	}
	return Clamp((1 + b2) * precision * recall / denom)
}

func ratio(num, denom int64) float64 {
	if denom == 0 {
		return 0
	}
	return Clamp(float64(num) / float64(denom))
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
