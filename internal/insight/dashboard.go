// Package insight composes the analytics engines into the views analysts read:
// the dashboard, a customer's risk profile and the full transaction timeline.
package insight

import (
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/riskview/internal/classify"
	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/kpi"
	"github.com/opensource-finance/riskview/internal/ranking"
	"github.com/opensource-finance/riskview/internal/timeline"
)

// TopCustomersShown is the number of risky customers listed on the dashboard.
const TopCustomersShown = 10

// CustomerSummary is a risky customer with its locally derived risk level.
type CustomerSummary struct {
	domain.RiskyCustomer
	RiskLevel domain.RiskLevel `json:"riskLevel"`
}

// DashboardView is the dashboard as presented.
type DashboardView struct {
	TotalTransactions int64            `json:"totalTransactions"`
	FraudCount        int64            `json:"fraudCount"`
	LegitimateCount   int64            `json:"legitimateCount"`
	FraudRate         float64          `json:"fraudRate"`
	RiskLevel         domain.RiskLevel `json:"riskLevel"`

	TotalAmount          decimal.Decimal `json:"totalAmount"`
	FraudAmount          decimal.Decimal `json:"fraudAmount"`
	AvgTransactionAmount decimal.Decimal `json:"avgTransactionAmount"`
	PreventedLosses      decimal.Decimal `json:"preventedLosses"`

	Metrics   domain.ModelMetrics     `json:"metrics"`
	Decisions classify.DecisionCounts `json:"decisions"`

	TopCustomers []CustomerSummary `json:"topCustomers"`

	FraudTrend         []timeline.Bar         `json:"fraudTrend"`
	AmountTrend        []timeline.Bar         `json:"amountTrend"`
	FraudTrendSummary  timeline.SeriesSummary `json:"fraudTrendSummary"`
	AmountTrendSummary timeline.SeriesSummary `json:"amountTrendSummary"`

	Behavioral domain.BehavioralInsights `json:"behavioral"`
}

// Dashboard derives the dashboard view from the backend statistics. Model
// metrics are recomputed from the confusion counts so the ratios always agree
// with the counts shown next to them. Trends chart the whole series unless
// window > 0 asks for the trailing points only.
func Dashboard(stats domain.DashboardStats, c *classify.Classifier, window int) DashboardView {
	rate := classify.FraudRatePercent(stats.FraudCount, stats.TotalTransactions)

	prevented := stats.PreventedLosses
	if prevented.IsZero() {
		prevented = stats.FraudAmount
	}

	top := ranking.TopN(stats.TopRiskyCustomers, TopCustomersShown)
	customers := make([]CustomerSummary, len(top))
	for i, rc := range top {
		customers[i] = CustomerSummary{
			RiskyCustomer: rc,
			RiskLevel:     c.RiskLevel(rc.FraudRate),
		}
	}

	fraudBars := timeline.PointBars(stats.FraudTrend, timeline.MetricCount, timeline.FloorDashboard)
	amountBars := timeline.PointBars(stats.AmountTrend, timeline.MetricAmount, timeline.FloorDashboard)
	fraudShown, amountShown := fraudBars, amountBars
	if window > 0 {
		fraudShown = timeline.LastN(fraudBars, window)
		amountShown = timeline.LastN(amountBars, window)
	}

	return DashboardView{
		TotalTransactions:    stats.TotalTransactions,
		FraudCount:           stats.FraudCount,
		LegitimateCount:      stats.LegitimateCount,
		FraudRate:            rate,
		RiskLevel:            c.RiskLevel(rate),
		TotalAmount:          stats.TotalAmount,
		FraudAmount:          stats.FraudAmount,
		AvgTransactionAmount: stats.AvgTransactionAmount,
		PreventedLosses:      prevented,
		Metrics:              kpi.Recompute(stats.ModelMetrics, c.Policy().FBeta),
		Decisions: classify.DecisionCounts{
			Blocked:  stats.BlockedCount,
			Review:   stats.ReviewCount,
			Approved: stats.ApprovedCount,
		},
		TopCustomers:       customers,
		FraudTrend:         fraudShown,
		AmountTrend:        amountShown,
		FraudTrendSummary:  timeline.Summarize(fraudBars),
		AmountTrendSummary: timeline.Summarize(amountBars),
		Behavioral:         stats.BehavioralInsights,
	}
}
