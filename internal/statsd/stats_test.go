package statsd

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/rules"
)

func prob(p float64) *float64 { return &p }

func sampleRecords() []domain.TransactionRecord {
	day := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return []domain.TransactionRecord{
		{ID: 1, CustomerID: "C1", Amount: decimal.NewFromInt(100), Timestamp: day, IsFraud: true, FraudProbability: prob(0.9), DeviceModel: "Pixel 8", OSVersion: "Android 14"},
		{ID: 2, CustomerID: "C1", Amount: decimal.NewFromInt(50), Timestamp: day.Add(time.Hour), IsFraud: false, FraudProbability: prob(0.6), DeviceModel: "Pixel 8", OSVersion: "Android 14"},
		{ID: 3, CustomerID: "C2", Amount: decimal.NewFromInt(30), Timestamp: day.Add(24 * time.Hour), IsFraud: false, FraudProbability: prob(0.1)},
		{ID: 4, CustomerID: "C2", Amount: decimal.NewFromInt(20), Timestamp: day.Add(25 * time.Hour), IsFraud: true, FraudProbability: prob(0.2)},
		{ID: 5, CustomerID: "C3", Amount: decimal.NewFromInt(200), Timestamp: day.Add(26 * time.Hour), IsFraud: false},
	}
}

func TestModelMetrics(t *testing.T) {
	calc := NewCalculator(nil, nil, time.UTC)
	calc.now = func() time.Time { return time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC) }

	m := calc.ModelMetrics(sampleRecords())

	// scored: 1 TP (0.9 fraud), 1 FP (0.6 legit), 1 TN (0.1 legit), 1 FN (0.2 fraud); record 5 unscored
	if m.TruePositives != 1 || m.FalsePositives != 1 || m.TrueNegatives != 1 || m.FalseNegatives != 1 {
		t.Fatalf("unexpected confusion counts %+v", m)
	}
	if m.Precision != 0.5 || m.Recall != 0.5 || m.Accuracy != 0.5 {
		t.Errorf("unexpected metrics p=%v r=%v a=%v", m.Precision, m.Recall, m.Accuracy)
	}
	// fraud scores {0.9, 0.2} vs legit {0.6, 0.1}: 3 of 4 pairs ordered correctly
	if math.Abs(m.RocAuc-0.75) > 1e-9 {
		t.Errorf("expected AUC 0.75, got %v", m.RocAuc)
	}
	if m.LastUpdated != "2025-03-05T00:00:00Z" {
		t.Errorf("unexpected lastUpdated %q", m.LastUpdated)
	}

	t.Run("SingleClass", func(t *testing.T) {
		m := calc.ModelMetrics([]domain.TransactionRecord{{ID: 1, FraudProbability: prob(0.3)}})
		if m.RocAuc != 0 {
			t.Errorf("expected AUC 0 without both classes, got %v", m.RocAuc)
		}
	})
}

func TestDashboard(t *testing.T) {
	calc := NewCalculator(nil, nil, time.UTC)
	behaviors := []domain.CustomerBehavior{
		{CustomerID: "C1", DeviceChanges: 5, OSChanges: 3, LoginsLast7Days: 25, LoginFrequencyChange: 0.8},
		{CustomerID: "C2", DeviceChanges: 1, OSChanges: 1, LoginsLast7Days: 3},
	}

	stats := calc.Dashboard(sampleRecords(), behaviors)

	if stats.TotalTransactions != 5 || stats.FraudCount != 2 || stats.LegitimateCount != 3 {
		t.Errorf("unexpected counts %+v", stats)
	}
	if stats.FraudRate != 40 {
		t.Errorf("expected fraud rate 40, got %v", stats.FraudRate)
	}
	if !stats.TotalAmount.Equal(decimal.NewFromInt(400)) || !stats.AvgTransactionAmount.Equal(decimal.NewFromInt(80)) {
		t.Errorf("unexpected amounts total=%s avg=%s", stats.TotalAmount, stats.AvgTransactionAmount)
	}
	// only record 1 is fraud and blocked
	if !stats.PreventedLosses.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected prevented losses 100, got %s", stats.PreventedLosses)
	}
	if stats.BlockedCount != 1 || stats.ReviewCount != 1 || stats.ApprovedCount != 2 {
		t.Errorf("unexpected decision counts %d/%d/%d", stats.BlockedCount, stats.ReviewCount, stats.ApprovedCount)
	}

	if len(stats.TopRiskyCustomers) != 3 || stats.TopRiskyCustomers[0].CustomerID != "C1" {
		t.Fatalf("unexpected risky customers %+v", stats.TopRiskyCustomers)
	}
	top := stats.TopRiskyCustomers[0]
	if top.DeviceChanges == nil || *top.DeviceChanges != 5 || math.Abs(top.AvgRiskScore-0.75) > 1e-9 {
		t.Errorf("unexpected top customer %+v", top)
	}
	if stats.TopRiskyCustomers[2].DeviceChanges != nil {
		t.Error("customer without behavior must omit behavioral fields")
	}

	if len(stats.FraudTrend) != 2 || stats.FraudTrend[0].Date != "2025-03-01" || *stats.FraudTrend[0].Count != 1 {
		t.Errorf("unexpected fraud trend %+v", stats.FraudTrend)
	}
	if !stats.AmountTrend[1].Amount.Equal(decimal.NewFromInt(250)) {
		t.Errorf("unexpected amount trend %+v", stats.AmountTrend)
	}

	bi := stats.BehavioralInsights
	if bi.AvgDeviceChanges != 3 || bi.HighFrequencyUsers != 1 || bi.SuspiciousLoginPatterns != 1 || bi.AnomalousSessionPatterns != 1 {
		t.Errorf("unexpected behavioral insights %+v", bi)
	}

	t.Run("Empty", func(t *testing.T) {
		stats := calc.Dashboard(nil, nil)
		if stats.FraudRate != 0 || !stats.AvgTransactionAmount.IsZero() || stats.FraudTrend == nil {
			t.Errorf("unexpected empty dashboard %+v", stats)
		}
	})
}

func TestCustomer(t *testing.T) {
	calc := NewCalculator(nil, nil, time.UTC)
	records := sampleRecords()[:2]
	behavior := &domain.CustomerBehavior{CustomerID: "C1", DeviceChanges: 5, LoginsLast7Days: 25, BurstinessScore: 0.7}

	a := calc.Customer("C1", records, behavior)

	if a.TotalTransactions != 2 || a.FraudTransactions != 1 || !a.AvgAmount.Equal(decimal.NewFromInt(75)) {
		t.Errorf("unexpected totals %+v", a)
	}
	if a.TransactionTimeline[0].TransactionID != 2 {
		t.Error("expected newest transaction first in history")
	}
	if len(a.AmountTimeline) != 1 || !a.AmountTimeline[0].IsFraud || a.AmountTimeline[0].TransactionCount != 2 {
		t.Errorf("unexpected amount timeline %+v", a.AmountTimeline)
	}
	if len(a.DeviceUsage) != 1 || a.DeviceUsage[0].UsageCount != 2 {
		t.Errorf("unexpected device usage %+v", a.DeviceUsage)
	}
	if a.AvgSessionIntervalSec == nil || *a.AvgSessionIntervalSec != 3600 {
		t.Errorf("expected one hour interval, got %v", a.AvgSessionIntervalSec)
	}
	if a.BurstinessScore == nil || *a.BurstinessScore != 0.7 {
		t.Errorf("expected burstiness from behavior, got %v", a.BurstinessScore)
	}

	p := a.RiskProfile
	if p == nil || p.OverallRiskLevel != domain.RiskCritical {
		t.Fatalf("expected CRITICAL profile for 50%% fraud rate, got %+v", p)
	}
	if len(p.BehavioralAnomalies) != 2 || len(p.MainRiskFactors) != 3 {
		t.Errorf("unexpected profile %+v", p)
	}

	t.Run("NoBehavior", func(t *testing.T) {
		a := calc.Customer("C3", sampleRecords()[4:], nil)
		if a.BurstinessScore != nil || a.AvgSessionIntervalSec != nil {
			t.Errorf("expected nil optional fields, got %+v", a)
		}
		if a.RiskProfile.OverallRiskLevel != domain.RiskLow {
			t.Errorf("expected LOW, got %s", a.RiskProfile.OverallRiskLevel)
		}
	})
}

func TestFilter(t *testing.T) {
	calc := NewCalculator(nil, nil, time.UTC)
	records := sampleRecords()
	minAmount := decimal.NewFromInt(40)

	tests := []struct {
		name    string
		req     domain.TransactionFilterRequest
		wantIDs []int64
	}{
		{"All", domain.TransactionFilterRequest{}, []int64{5, 4, 3, 2, 1}},
		{"Fraud", domain.TransactionFilterRequest{FraudStatus: domain.FraudStatusFraud}, []int64{4, 1}},
		{"DateRange", domain.TransactionFilterRequest{DateFrom: "2025-03-01", DateTo: "2025-03-02"}, []int64{2, 1}},
		{"DateToIsMidnight", domain.TransactionFilterRequest{DateFrom: "2025-03-01", DateTo: "2025-03-01"}, []int64{}},
		{"DateTimeBound", domain.TransactionFilterRequest{DateTo: "2025-03-01T10:30"}, []int64{1}},
		{"MinAmount", domain.TransactionFilterRequest{MinAmount: &minAmount}, []int64{5, 2, 1}},
		{"RiskLevelCritical", domain.TransactionFilterRequest{RiskLevel: "critical"}, []int64{1}},
		{"RiskLevelLow", domain.TransactionFilterRequest{RiskLevel: "low"}, []int64{4, 3}},
		{"Decision", domain.TransactionFilterRequest{Decision: domain.DecisionReview}, []int64{2}},
		{"Customer", domain.TransactionFilterRequest{CustomerID: "C2"}, []int64{4, 3}},
		{"BadDateIgnored", domain.TransactionFilterRequest{DateFrom: "yesterday"}, []int64{5, 4, 3, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := calc.Filter(records, tt.req)
			if int(out.Total) != len(tt.wantIDs) || len(out.Transactions) != len(tt.wantIDs) {
				t.Fatalf("expected %d records, got %d", len(tt.wantIDs), out.Total)
			}
			for i, id := range tt.wantIDs {
				if out.Transactions[i].ID != id {
					t.Errorf("position %d: expected id %d, got %d", i, id, out.Transactions[i].ID)
				}
			}
		})
	}

	out := calc.Filter(records, domain.TransactionFilterRequest{FraudStatus: domain.FraudStatusFraud})
	if out.FraudCount != 2 || !out.TotalAmount.Equal(decimal.NewFromInt(120)) || math.Abs(out.AvgRiskScore-0.55) > 1e-9 {
		t.Errorf("unexpected summary %+v", out)
	}
}

func TestFeatureImportance(t *testing.T) {
	fi := FeatureImportance(rules.BuiltinRules())
	if len(fi) != len(rules.BuiltinRules()) {
		t.Fatalf("expected one feature per rule, got %d", len(fi))
	}
	if fi[0].FeatureName != "amount" || fi[0].Category != domain.CategoryTransaction {
		t.Errorf("expected amount to rank first, got %+v", fi[0])
	}
	for i := 1; i < len(fi); i++ {
		if fi[i].Importance > fi[i-1].Importance {
			t.Errorf("features not ordered by importance at %d", i)
		}
	}
}
