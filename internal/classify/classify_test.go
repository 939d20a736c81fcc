package classify

import (
	"errors"
	"math"
	"testing"

	"github.com/opensource-finance/riskview/internal/domain"
)

func prob(v float64) *float64 { return &v }

func TestDecision(t *testing.T) {
	c := Default()

	tests := []struct {
		name string
		p    *float64
		want domain.Decision
	}{
		{"absent", nil, domain.DecisionUnknown},
		{"nan", prob(math.NaN()), domain.DecisionUnknown},
		{"zero is a real score", prob(0), domain.DecisionApprove},
		{"low", prob(0.2), domain.DecisionApprove},
		{"just below review", prob(0.4999), domain.DecisionApprove},
		{"review boundary", prob(0.50), domain.DecisionReview},
		{"review", prob(0.62), domain.DecisionReview},
		{"just below block", prob(0.8499), domain.DecisionReview},
		{"block boundary", prob(0.85), domain.DecisionBlock},
		{"certain", prob(1), domain.DecisionBlock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Decision(tt.p); got != tt.want {
				t.Errorf("Decision() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecisionMonotonic(t *testing.T) {
	c := Default()
	prev := c.Decision(prob(0))
	for i := 1; i <= 1000; i++ {
		p := float64(i) / 1000
		d := c.Decision(prob(p))
		if d.Severity() < prev.Severity() {
			t.Fatalf("decision decreased at p=%v: %s after %s", p, d, prev)
		}
		prev = d
	}
}

func TestRiskLevel(t *testing.T) {
	c := Default()

	tests := []struct {
		rate float64
		want domain.RiskLevel
	}{
		{0, domain.RiskLow},
		{-1, domain.RiskLow},
		{math.NaN(), domain.RiskLow},
		{0.01, domain.RiskMedium},
		{4.9, domain.RiskMedium},
		{5.0, domain.RiskHigh},
		{19.99, domain.RiskHigh},
		{20, domain.RiskCritical},
		{100, domain.RiskCritical},
	}

	for _, tt := range tests {
		if got := c.RiskLevel(tt.rate); got != tt.want {
			t.Errorf("RiskLevel(%v) = %s, want %s", tt.rate, got, tt.want)
		}
	}
}

func TestFraudRatePercent(t *testing.T) {
	if got := FraudRatePercent(0, 0); got != 0 {
		t.Errorf("expected 0 for empty total, got %v", got)
	}
	if got := FraudRatePercent(3, 0); got != 0 {
		t.Errorf("expected 0 for zero total, got %v", got)
	}
	if got := FraudRatePercent(1, 4); got != 25 {
		t.Errorf("expected 25, got %v", got)
	}
}

func TestNewRejectsInvalidPolicy(t *testing.T) {
	cases := map[string]func(p *domain.Policy){
		"review above block":    func(p *domain.Policy) { p.ReviewAt = 0.9 },
		"block above one":       func(p *domain.Policy) { p.BlockAt = 1.5 },
		"zero review":           func(p *domain.Policy) { p.ReviewAt = 0 },
		"critical below high":   func(p *domain.Policy) { p.CriticalRateAt = 2 },
		"negative device limit": func(p *domain.Policy) { p.DeviceChangesAbove = -1 },
		"zero beta":             func(p *domain.Policy) { p.FBeta = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := domain.DefaultPolicy()
			mutate(&p)
			if _, err := New(p); !errors.Is(err, ErrInvalidPolicy) {
				t.Errorf("expected ErrInvalidPolicy, got %v", err)
			}
		})
	}

	if _, err := New(domain.DefaultPolicy()); err != nil {
		t.Errorf("default policy rejected: %v", err)
	}
}

func TestCustomPolicy(t *testing.T) {
	p := domain.DefaultPolicy()
	p.BlockAt = 0.7
	p.ReviewAt = 0.3
	c, err := New(p)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if got := c.Decision(prob(0.75)); got != domain.DecisionBlock {
		t.Errorf("expected BLOCK with lowered threshold, got %s", got)
	}
	if got := c.Policy().ReviewAt; got != 0.3 {
		t.Errorf("Policy().ReviewAt = %v", got)
	}
}

func TestAnomalies(t *testing.T) {
	c := Default()

	t.Run("none at thresholds", func(t *testing.T) {
		got := c.Anomalies(Behavior{DeviceChanges: 3, OSChanges: 2, LoginsLast7Days: 20, LoginFrequencyChange: 0.5})
		if len(got) != 0 {
			t.Errorf("expected no anomalies, got %v", got)
		}
	})

	t.Run("all above thresholds", func(t *testing.T) {
		got := c.Anomalies(Behavior{DeviceChanges: 4, OSChanges: 3, LoginsLast7Days: 21, LoginFrequencyChange: -0.8})
		want := []string{AnomalyDeviceChanges, AnomalyOSChanges, AnomalyWeeklyLogins, AnomalyLoginFrequency}
		if len(got) != len(want) {
			t.Fatalf("expected %d anomalies, got %v", len(want), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("anomaly[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})
}

func TestAnnotateAndCount(t *testing.T) {
	c := Default()
	records := []domain.TransactionRecord{
		{ID: 1, FraudProbability: prob(0.9)},
		{ID: 2, FraudProbability: prob(0.6)},
		{ID: 3, FraudProbability: prob(0)},
		{ID: 4},
	}

	annotated := c.Annotate(records)
	if len(annotated) != len(records) {
		t.Fatalf("expected %d annotated records, got %d", len(records), len(annotated))
	}
	if annotated[3].Classification != domain.DecisionUnknown || annotated[3].RiskDisplay != domain.NotAvailable {
		t.Errorf("unscored record annotated as %s / %s", annotated[3].Classification, annotated[3].RiskDisplay)
	}
	if annotated[2].RiskDisplay != "0.0%" {
		t.Errorf("zero score displayed as %q", annotated[2].RiskDisplay)
	}
	if records[0].Decision != "" {
		t.Error("input record was mutated")
	}

	counts := c.CountDecisions(records)
	want := DecisionCounts{Blocked: 1, Review: 1, Approved: 1, Unknown: 1}
	if counts != want {
		t.Errorf("CountDecisions() = %+v, want %+v", counts, want)
	}
}
