package scoring

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/riskview/internal/classify"
	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/repository"
	"github.com/opensource-finance/riskview/internal/rules"
)

func TestProcessor(t *testing.T) {
	proc := NewProcessor(classify.Default())
	proc.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	tx := domain.TransactionRecord{ID: 1, CustomerID: "C-1"}

	t.Run("AllLow", func(t *testing.T) {
		a := proc.Process(ctx, &DecisionInput{
			Transaction: tx,
			Factors: []domain.RiskFactor{
				{Name: "a", Score: 0.1, Weight: 1},
				{Name: "b", Score: 0.2, Weight: 1},
				{Name: "c", Score: 0, Weight: 1},
			},
		})
		if a.Decision != domain.DecisionApprove {
			t.Errorf("expected APPROVE, got %s", a.Decision)
		}
		if math.Abs(a.FraudProbability-0.1) > 1e-9 {
			t.Errorf("expected mean 0.1, got %v", a.FraudProbability)
		}
		if len(a.RiskFactors) != 2 {
			t.Errorf("expected only triggered factors, got %d", len(a.RiskFactors))
		}
		if a.AnalyzedAt != "2025-03-01T00:00:00Z" {
			t.Errorf("unexpected analyzedAt %q", a.AnalyzedAt)
		}
		if ShouldAlert(a) {
			t.Error("approved analysis must not alert")
		}
	})

	t.Run("WeightedBlock", func(t *testing.T) {
		a := proc.Process(ctx, &DecisionInput{
			Transaction: tx,
			Factors: []domain.RiskFactor{
				{Name: "Amount", Description: "large", Score: 1, Weight: 0.9},
				{Name: "Night", Description: "night", Score: 0, Weight: 0.1},
			},
		})
		// 0.9 / 1.0 >= 0.85
		if a.Decision != domain.DecisionBlock || !a.IsFraud {
			t.Errorf("expected BLOCK, got %s (p=%v)", a.Decision, a.FraudProbability)
		}
		if !ShouldAlert(a) {
			t.Error("blocked analysis must alert")
		}
		if reasons := GetReasons(a); len(reasons) != 1 || reasons[0] != "large" {
			t.Errorf("unexpected reasons %v", reasons)
		}
		if a.Recommendations == "" || a.AIExplanation == "" {
			t.Error("expected explanation and recommendation")
		}
	})

	t.Run("Unweighted", func(t *testing.T) {
		p := NewProcessor(nil)
		p.UseWeightedScoring = false
		a := p.Process(ctx, &DecisionInput{
			Transaction: tx,
			Factors: []domain.RiskFactor{
				{Name: "a", Score: 1, Weight: 0.9},
				{Name: "b", Score: 0, Weight: 0.1},
			},
		})
		if a.FraudProbability != 0.5 || a.Decision != domain.DecisionReview {
			t.Errorf("expected plain mean 0.5 and REVIEW, got %v %s", a.FraudProbability, a.Decision)
		}
	})

	t.Run("NoFactors", func(t *testing.T) {
		a := proc.Process(ctx, &DecisionInput{Transaction: tx})
		if a.FraudProbability != 0 || a.Decision != domain.DecisionApprove {
			t.Errorf("expected zero score, got %+v", a)
		}
	})
}

func TestScorer(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "scoring-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	engine, err := rules.NewEngine(nil, 4)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := engine.LoadRules(rules.BuiltinRules()); err != nil {
		t.Fatalf("LoadRules: %v", err)
	}

	scorer := NewScorer(repo, engine, NewProcessor(classify.Default()), domain.ScoringConfig{WeightedScoring: true})
	ctx := context.Background()

	if err := repo.SaveTransaction(ctx, &domain.TransactionRecord{
		ID: 1, TransactionID: "TX-1", CustomerID: "C-1", RecipientID: "R-1",
		Amount:    decimal.NewFromInt(9000),
		Timestamp: time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("SaveTransaction: %v", err)
	}
	if err := repo.SaveBehavior(ctx, &domain.CustomerBehavior{
		CustomerID: "C-1", DeviceChanges: 6, OSChanges: 4, LoginsLast7Days: 30, LoginFrequencyChange: 0.9,
	}); err != nil {
		t.Fatalf("SaveBehavior: %v", err)
	}

	t.Run("ScoresAndStores", func(t *testing.T) {
		a, err := scorer.Analyze(ctx, 1)
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		// every factor but velocity fires: 1 - 0.20 = 0.80
		if math.Abs(a.FraudProbability-0.8) > 1e-9 || a.Decision != domain.DecisionReview {
			t.Errorf("unexpected analysis p=%v decision=%s", a.FraudProbability, a.Decision)
		}

		stored, err := repo.GetTransaction(ctx, 1)
		if err != nil {
			t.Fatalf("GetTransaction: %v", err)
		}
		if stored.FraudProbability == nil || *stored.FraudProbability != a.FraudProbability || stored.Decision != a.Decision {
			t.Errorf("score not persisted: %+v", stored)
		}
	})

	t.Run("UnknownTransaction", func(t *testing.T) {
		if _, err := scorer.Analyze(ctx, 404); !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
