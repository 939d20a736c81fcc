// Package filter narrows transaction snapshots by the timeline view criteria.
package filter

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/riskview/internal/domain"
)

var defaultEngine = sync.OnceValue(func() *Engine {
	e, err := NewEngine(nil)
	if err != nil {
		slog.Error("filter expression engine unavailable", "error", err)
		return &Engine{}
	}
	return e
})

// Apply returns the records matching every set predicate of c, in their original order.
// The input slice is never modified. Apply(records, domain.FilterCriteria{}) returns a copy of records.
func Apply(records []domain.TransactionRecord, c domain.FilterCriteria) []domain.TransactionRecord {
	return defaultEngine().Apply(records, c)
}

// Apply filters records using this engine's compiled expression cache.
func (e *Engine) Apply(records []domain.TransactionRecord, c domain.FilterCriteria) []domain.TransactionRecord {
	out := make([]domain.TransactionRecord, 0, len(records))

	var expr *compiledExpression
	if c.Expression != "" {
		expr = e.compile(c.Expression)
	}
	loc := e.location()

	device := strings.ToLower(strings.TrimSpace(c.Device))
	customer := strings.ToLower(strings.TrimSpace(c.CustomerID))
	status := c.NormalizedFraudStatus()

	for _, r := range records {
		if !inDateRange(r.Timestamp, c.DateFrom, c.DateTo) {
			continue
		}
		if c.MinAmount != nil && r.Amount.LessThan(*c.MinAmount) {
			continue
		}
		if c.MaxAmount != nil && r.Amount.GreaterThan(*c.MaxAmount) {
			continue
		}
		switch status {
		case domain.FraudStatusFraud:
			if !r.IsFraud {
				continue
			}
		case domain.FraudStatusSafe:
			if r.IsFraud {
				continue
			}
		}
		if device != "" && !strings.Contains(strings.ToLower(r.DeviceModel), device) {
			continue
		}
		if customer != "" && !strings.Contains(strings.ToLower(r.CustomerID), customer) {
			continue
		}
		if expr != nil && !expr.matches(r, loc) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// inDateRange checks the inclusive bounds. A record without a timestamp fails any set bound.
func inDateRange(ts time.Time, from, to *time.Time) bool {
	if from == nil && to == nil {
		return true
	}
	if ts.IsZero() {
		return false
	}
	if from != nil && ts.Before(*from) {
		return false
	}
	if to != nil && ts.After(*to) {
		return false
	}
	return true
}
