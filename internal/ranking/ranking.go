// Package ranking orders transaction views by the selected sort key.
package ranking

import (
	"cmp"
	"slices"

	"github.com/opensource-finance/riskview/internal/domain"
)

// DefaultTableLimit is the number of rows the timeline table shows.
const DefaultTableLimit = 100

// Rank returns a new slice ordered by key, descending. Ties keep their input
// order. Unknown keys sort by date. An unscored record ranks as risk 0.
func Rank(records []domain.TransactionRecord, key domain.SortKey) []domain.TransactionRecord {
	out := slices.Clone(records)
	if out == nil {
		out = []domain.TransactionRecord{}
	}

	var compare func(a, b domain.TransactionRecord) int
	switch key {
	case domain.SortByAmount:
		compare = func(a, b domain.TransactionRecord) int {
			return b.Amount.Cmp(a.Amount)
		}
	case domain.SortByRisk:
		compare = func(a, b domain.TransactionRecord) int {
			return cmp.Compare(b.RiskForRanking(), a.RiskForRanking())
		}
	default:
		compare = func(a, b domain.TransactionRecord) int {
			return b.Timestamp.Compare(a.Timestamp)
		}
	}

	slices.SortStableFunc(out, compare)
	return out
}

// TopN returns at most n leading records. n <= 0 returns records unchanged.
func TopN[T any](records []T, n int) []T {
	if n <= 0 || len(records) <= n {
		return records
	}
	return records[:n]
}

// TopCustomers returns the n customers with the highest fraud rate, then
// transaction count. Input order breaks remaining ties.
func TopCustomers(customers []domain.RiskyCustomer, n int) []domain.RiskyCustomer {
	out := slices.Clone(customers)
	slices.SortStableFunc(out, func(a, b domain.RiskyCustomer) int {
		if c := cmp.Compare(b.FraudRate, a.FraudRate); c != 0 {
			return c
		}
		return cmp.Compare(b.TransactionCount, a.TransactionCount)
	})
	return TopN(out, n)
}
