// Package velocity provides transaction velocity calculation.
package velocity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/riskview/internal/domain"
)

const cacheScope = "velocity"

// Service counts a customer's transactions inside a sliding window.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	ttl   time.Duration
}

// NewService creates a new velocity service. cache may be nil.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		ttl:   time.Minute,
	}
}

// GetTransactionCount returns the number of transactions the customer of tx
// made in the windowSecs seconds up to and including tx.
// This is the VelocityGetter function signature expected by the rule engine.
func (s *Service) GetTransactionCount(ctx context.Context, tx domain.TransactionRecord, windowSecs int) (int64, error) {
	if tx.CustomerID == "" {
		return 0, fmt.Errorf("customer id is required")
	}
	if tx.Timestamp.IsZero() || windowSecs <= 0 {
		return 0, nil
	}

	key := strconv.FormatInt(tx.ID, 10) + ":" + strconv.Itoa(windowSecs)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, cacheScope, key); err == nil && raw != nil {
			if n, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
				return n, nil
			}
		}
	}

	txs, err := s.repo.ListTransactionsByCustomer(ctx, tx.CustomerID)
	if err != nil {
		return 0, fmt.Errorf("failed to get transactions: %w", err)
	}

	since := tx.Timestamp.Add(-time.Duration(windowSecs) * time.Second)
	var count int64
	for _, t := range txs {
		if t.Timestamp.After(since) && !t.Timestamp.After(tx.Timestamp) {
			count++
		}
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, cacheScope, key, []byte(strconv.FormatInt(count, 10)), s.ttl)
	}
	return count, nil
}
