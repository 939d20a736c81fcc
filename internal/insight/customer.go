package insight

import (
	"github.com/opensource-finance/riskview/internal/classify"
	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/ranking"
	"github.com/opensource-finance/riskview/internal/timeline"
)

// DefaultHistoryLimit is the number of history rows shown per customer.
const DefaultHistoryLimit = 20

// HistoryRow is one transaction of the customer history with its verdict.
type HistoryRow struct {
	domain.TimelineEntry
	Classification domain.Decision `json:"classification"`
	RiskDisplay    string          `json:"riskDisplay"`
}

// CustomerView is the customer analytics page as presented.
type CustomerView struct {
	Profile     domain.CustomerRiskProfile `json:"profile"`
	AmountBars  []timeline.Bar             `json:"amountBars"`
	History     []HistoryRow               `json:"history"`
	HistoryMore int                        `json:"historyMore"`
	DeviceUsage []domain.DeviceUsage       `json:"deviceUsage"`
}

// CustomerProfile derives the risk profile of one customer.
func CustomerProfile(a domain.CustomerAnalytics, c *classify.Classifier, historyLimit int) CustomerView {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}

	rate := classify.FraudRatePercent(a.FraudTransactions, a.TotalTransactions)

	profile := domain.CustomerRiskProfile{
		CustomerID:           a.CustomerID,
		TransactionCount:     a.TotalTransactions,
		FraudCount:           a.FraudTransactions,
		FraudRate:            rate,
		TotalAmount:          a.TotalAmount,
		AvgAmount:            a.AvgAmount,
		AvgRiskScore:         averageRisk(a),
		RiskLevel:            c.RiskLevel(rate),
		DeviceChanges:        a.DeviceChanges,
		OSChanges:            a.OSVersionChanges,
		LoginsLast7Days:      a.LoginsLast7Days,
		LoginsLast30Days:     a.LoginsLast30Days,
		LoginFrequencyChange: a.LoginFrequencyChange,
		Anomalies: c.Anomalies(classify.Behavior{
			DeviceChanges:        a.DeviceChanges,
			OSChanges:            a.OSVersionChanges,
			LoginsLast7Days:      a.LoginsLast7Days,
			LoginFrequencyChange: a.LoginFrequencyChange,
		}),
	}
	if a.RiskProfile != nil {
		profile.MainRiskFactors = a.RiskProfile.MainRiskFactors
		profile.Recommendations = a.RiskProfile.Recommendations
	}

	shown := ranking.TopN(a.TransactionTimeline, historyLimit)
	history := make([]HistoryRow, len(shown))
	for i, e := range shown {
		history[i] = HistoryRow{
			TimelineEntry:  e,
			Classification: c.Decision(e.RiskScore),
			RiskDisplay:    domain.TransactionRecord{FraudProbability: e.RiskScore}.RiskForDisplay(),
		}
	}

	usage := a.DeviceUsage
	if usage == nil {
		usage = []domain.DeviceUsage{}
	}

	return CustomerView{
		Profile:     profile,
		AmountBars:  timeline.AmountSeries(a.AmountTimeline),
		History:     history,
		HistoryMore: len(a.TransactionTimeline) - len(shown),
		DeviceUsage: usage,
	}
}

// averageRisk prefers the backend's risk score and otherwise averages the
// scored history entries. Unscored entries are excluded, not counted as 0.
func averageRisk(a domain.CustomerAnalytics) float64 {
	if a.RiskProfile != nil && a.RiskProfile.RiskScore > 0 {
		return a.RiskProfile.RiskScore
	}
	var sum float64
	var n int
	for _, e := range a.TransactionTimeline {
		if e.RiskScore != nil {
			sum += *e.RiskScore
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
