package insight

import (
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/riskview/internal/classify"
	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/filter"
	"github.com/opensource-finance/riskview/internal/ranking"
)

// DefaultListLimit is the number of cards on the transaction analysis page.
const DefaultListLimit = 50

// TransactionListView is the transaction analysis page: the loaded records
// split by fraud flag, with the counts shown on the status switch.
type TransactionListView struct {
	FraudStatus domain.FraudStatus `json:"fraudStatus"`

	Total      int `json:"total"`
	FraudCount int `json:"fraudCount"`
	SafeCount  int `json:"safeCount"`
	Filtered   int `json:"filtered"`
	Shown      int `json:"shown"`

	Rows []classify.Annotated `json:"rows"`
}

// TransactionList keeps the records matching status in snapshot order and
// lists at most limit of them. The counts always cover the whole snapshot.
func TransactionList(records []domain.TransactionRecord, status domain.FraudStatus, c *classify.Classifier, limit int) TransactionListView {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	criteria := domain.FilterCriteria{FraudStatus: status}
	filtered := filter.Apply(records, criteria)

	fraud := 0
	for _, r := range records {
		if r.IsFraud {
			fraud++
		}
	}

	rows := c.Annotate(ranking.TopN(filtered, limit))
	return TransactionListView{
		FraudStatus: criteria.NormalizedFraudStatus(),
		Total:       len(records),
		FraudCount:  fraud,
		SafeCount:   len(records) - fraud,
		Filtered:    len(filtered),
		Shown:       len(rows),
		Rows:        rows,
	}
}

// SearchView is a server-side filter result as presented.
type SearchView struct {
	Total        int64                   `json:"total"`
	FraudCount   int64                   `json:"fraudCount"`
	TotalAmount  decimal.Decimal         `json:"totalAmount"`
	AvgRiskScore float64                 `json:"avgRiskScore"`
	Rows         []classify.Annotated    `json:"rows"`
	Decisions    classify.DecisionCounts `json:"decisions"`
}

// Search annotates the records returned by the backend filter.
func Search(res domain.FilteredTransactions, c *classify.Classifier) SearchView {
	return SearchView{
		Total:        res.Total,
		FraudCount:   res.FraudCount,
		TotalAmount:  res.TotalAmount,
		AvgRiskScore: res.AvgRiskScore,
		Rows:         c.Annotate(res.Transactions),
		Decisions:    c.CountDecisions(res.Transactions),
	}
}
