package velocity

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/riskview/internal/cache"
	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/repository"
)

func TestVelocityService(t *testing.T) {
	// Create temp database
	tmpFile, err := os.CreateTemp("", "velocity-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	lruCache := cache.NewLRUCache(100)
	defer lruCache.Close()

	svc := NewService(repo, lruCache)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("EmptyDatabase", func(t *testing.T) {
		tx := domain.TransactionRecord{ID: 99, CustomerID: "C-0", Timestamp: base}
		count, err := svc.GetTransactionCount(ctx, tx, 3600)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 0 {
			t.Errorf("expected count 0 for empty database, got %d", count)
		}
	})

	// five transactions ten minutes apart, ending at base
	for i := 0; i < 5; i++ {
		tx := &domain.TransactionRecord{
			ID:            int64(i + 1),
			TransactionID: fmt.Sprintf("TX-%d", i+1),
			CustomerID:    "C-1",
			RecipientID:   "R-1",
			Amount:        decimal.NewFromInt(100),
			Timestamp:     base.Add(-time.Duration(4-i) * 10 * time.Minute),
		}
		if err := repo.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("failed to save transaction: %v", err)
		}
	}

	t.Run("WindowCountsUpToTransaction", func(t *testing.T) {
		last := domain.TransactionRecord{ID: 5, CustomerID: "C-1", Timestamp: base}
		count, err := svc.GetTransactionCount(ctx, last, 3600)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 5 {
			t.Errorf("expected 5 transactions in the hour, got %d", count)
		}

		third := domain.TransactionRecord{ID: 3, CustomerID: "C-1", Timestamp: base.Add(-20 * time.Minute)}
		count, err = svc.GetTransactionCount(ctx, third, 3600)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 3 {
			t.Errorf("expected later transactions excluded, got %d", count)
		}
	})

	t.Run("ShortWindow", func(t *testing.T) {
		last := domain.TransactionRecord{ID: 5, CustomerID: "C-1", Timestamp: base}
		count, err := svc.GetTransactionCount(ctx, last, 900)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 transactions in 15 minutes, got %d", count)
		}
	})

	t.Run("UnknownTime", func(t *testing.T) {
		count, err := svc.GetTransactionCount(ctx, domain.TransactionRecord{ID: 6, CustomerID: "C-1"}, 3600)
		if err != nil || count != 0 {
			t.Errorf("expected 0 without a timestamp, got %d (%v)", count, err)
		}
	})

	t.Run("MissingCustomer", func(t *testing.T) {
		if _, err := svc.GetTransactionCount(ctx, domain.TransactionRecord{ID: 1, Timestamp: base}, 60); err == nil {
			t.Error("expected error for missing customer id")
		}
	})
}
