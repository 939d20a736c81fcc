package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FraudStatus selects records by their ground-truth fraud flag.
type FraudStatus string

const (
	FraudStatusAll   FraudStatus = "all"
	FraudStatusFraud FraudStatus = "fraud"
	FraudStatusSafe  FraudStatus = "safe"
)

// SortKey selects the ordering applied by the ranking engine.
type SortKey string

const (
	SortByDate   SortKey = "date"
	SortByAmount SortKey = "amount"
	SortByRisk   SortKey = "risk"
)

// FilterCriteria holds the view parameters of the transaction timeline.
// A nil pointer or empty string means the predicate is unset and matches everything.
type FilterCriteria struct {
	DateFrom    *time.Time       `json:"dateFrom,omitempty"`
	DateTo      *time.Time       `json:"dateTo,omitempty"`
	MinAmount   *decimal.Decimal `json:"minAmount,omitempty"`
	MaxAmount   *decimal.Decimal `json:"maxAmount,omitempty"`
	FraudStatus FraudStatus      `json:"fraudStatus,omitempty"`
	Device      string           `json:"deviceModel,omitempty"`
	CustomerID  string           `json:"customerId,omitempty"`
	SortBy      SortKey          `json:"sortBy,omitempty"`

	// Expression is an optional CEL predicate evaluated per record.
	Expression string `json:"expression,omitempty"`
}

// Key returns a canonical representation used to cache derived views.
// Two criteria with the same key always produce the same view.
func (c FilterCriteria) Key() string {
	var b strings.Builder
	writeTime := func(name string, t *time.Time) {
		b.WriteString(name)
		b.WriteByte('=')
		if t != nil {
			b.WriteString(t.UTC().Format(time.RFC3339Nano))
		}
		b.WriteByte(';')
	}
	writeDecimal := func(name string, d *decimal.Decimal) {
		b.WriteString(name)
		b.WriteByte('=')
		if d != nil {
			b.WriteString(d.String())
		}
		b.WriteByte(';')
	}
	writeString := func(name, v string) {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteByte(';')
	}

	writeTime("from", c.DateFrom)
	writeTime("to", c.DateTo)
	writeDecimal("min", c.MinAmount)
	writeDecimal("max", c.MaxAmount)
	writeString("fraud", string(c.NormalizedFraudStatus()))
	writeString("device", strings.ToLower(c.Device))
	writeString("customer", strings.ToLower(c.CustomerID))
	writeString("sort", string(c.NormalizedSortKey()))
	writeString("expr", c.Expression)
	return b.String()
}

// NormalizedFraudStatus maps unknown selectors to "all".
func (c FilterCriteria) NormalizedFraudStatus() FraudStatus {
	switch c.FraudStatus {
	case FraudStatusFraud, FraudStatusSafe:
		return c.FraudStatus
	default:
		return FraudStatusAll
	}
}

// NormalizedSortKey maps unknown keys to "date".
func (c FilterCriteria) NormalizedSortKey() SortKey {
	switch c.SortBy {
	case SortByAmount, SortByRisk:
		return c.SortBy
	default:
		return SortByDate
	}
}

// IsEmpty reports whether no filtering predicate is set.
func (c FilterCriteria) IsEmpty() bool {
	return c.DateFrom == nil && c.DateTo == nil &&
		c.MinAmount == nil && c.MaxAmount == nil &&
		c.NormalizedFraudStatus() == FraudStatusAll &&
		c.Device == "" && c.CustomerID == "" && c.Expression == ""
}

// TransactionFilterRequest is the body of POST /statistics/transactions/filter.
// Dates are sent as YYYY-MM-DD strings and the risk level in lower case;
// empty fields are omitted.
type TransactionFilterRequest struct {
	FraudStatus FraudStatus      `json:"fraudStatus,omitempty"`
	DateFrom    string           `json:"dateFrom,omitempty"`
	DateTo      string           `json:"dateTo,omitempty"`
	MinAmount   *decimal.Decimal `json:"minAmount,omitempty"`
	MaxAmount   *decimal.Decimal `json:"maxAmount,omitempty"`
	RiskLevel   string           `json:"riskLevel,omitempty"`
	Decision    Decision         `json:"decision,omitempty"`
	CustomerID  string           `json:"customerId,omitempty"`
}
