package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Decision is the classifier verdict for a scored transaction.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReview  Decision = "REVIEW"
	DecisionBlock   Decision = "BLOCK"
	DecisionUnknown Decision = "UNKNOWN"
)

// Severity orders decisions so that BLOCK > REVIEW > APPROVE > UNKNOWN.
func (d Decision) Severity() int {
	switch d {
	case DecisionBlock:
		return 3
	case DecisionReview:
		return 2
	case DecisionApprove:
		return 1
	default:
		return 0
	}
}

// RiskLevel is the customer-level severity bucket.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Severity orders risk levels from LOW (0) to CRITICAL (3).
func (l RiskLevel) Severity() int {
	switch l {
	case RiskCritical:
		return 3
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// NotAvailable is shown in place of an absent fraud probability.
const NotAvailable = "N/A"

// TransactionRecord is one transaction as fetched from the statistics service.
// Records are never mutated after decoding; derived views copy them.
type TransactionRecord struct {
	ID            int64           `json:"id"`
	TransactionID string          `json:"transactionId"`
	CustomerID    string          `json:"customerId"`
	RecipientID   string          `json:"recipientId"`
	Amount        decimal.Decimal `json:"amount"`
	Timestamp     time.Time       `json:"transactionDateTime"`
	IsFraud       bool            `json:"isFraud"`

	// FraudProbability is nil when the model has not scored the transaction.
	FraudProbability *float64 `json:"fraudProbability,omitempty"`

	// Decision is empty when the backend did not send one.
	Decision Decision `json:"decision,omitempty"`

	DeviceModel string `json:"deviceModel,omitempty"`
	OSVersion   string `json:"osVersion,omitempty"`
}

// RiskForRanking returns the fraud probability, treating an absent score as 0.
func (r TransactionRecord) RiskForRanking() float64 {
	if r.FraudProbability == nil {
		return 0
	}
	return *r.FraudProbability
}

// RiskForDisplay formats the fraud probability as a percentage, or N/A when absent.
func (r TransactionRecord) RiskForDisplay() string {
	if r.FraudProbability == nil {
		return NotAvailable
	}
	return fmt.Sprintf("%.1f%%", *r.FraudProbability*100)
}

// HasDevice reports whether the record carries a device identifier.
func (r TransactionRecord) HasDevice() bool {
	return strings.TrimSpace(r.DeviceModel) != ""
}

// timestampLayouts are tried in order when decoding transactionDateTime.
// Layouts without a zone are interpreted in the local time zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a backend timestamp. Zone-less values use loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

type transactionRecordJSON struct {
	ID               int64           `json:"id"`
	TransactionID    string          `json:"transactionId"`
	CustomerID       string          `json:"customerId"`
	RecipientID      string          `json:"recipientId"`
	Amount           decimal.Decimal `json:"amount"`
	Timestamp        string          `json:"transactionDateTime"`
	IsFraud          bool            `json:"isFraud"`
	FraudProbability *float64        `json:"fraudProbability,omitempty"`
	Decision         Decision        `json:"decision,omitempty"`
	DeviceModel      string          `json:"deviceModel,omitempty"`
	OSVersion        string          `json:"osVersion,omitempty"`
}

// UnmarshalJSON accepts both zoned and zone-less transactionDateTime values.
// A missing or unparseable timestamp decodes as the zero time rather than failing.
func (r *TransactionRecord) UnmarshalJSON(data []byte) error {
	var raw transactionRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = TransactionRecord{
		ID:               raw.ID,
		TransactionID:    raw.TransactionID,
		CustomerID:       raw.CustomerID,
		RecipientID:      raw.RecipientID,
		Amount:           raw.Amount,
		IsFraud:          raw.IsFraud,
		FraudProbability: raw.FraudProbability,
		Decision:         raw.Decision,
		DeviceModel:      raw.DeviceModel,
		OSVersion:        raw.OSVersion,
	}
	if raw.Timestamp != "" {
		if ts, err := ParseTimestamp(raw.Timestamp, time.Local); err == nil {
			r.Timestamp = ts
		}
	}
	return nil
}

// MarshalJSON writes the timestamp in RFC 3339.
func (r TransactionRecord) MarshalJSON() ([]byte, error) {
	raw := transactionRecordJSON{
		ID:               r.ID,
		TransactionID:    r.TransactionID,
		CustomerID:       r.CustomerID,
		RecipientID:      r.RecipientID,
		Amount:           r.Amount,
		IsFraud:          r.IsFraud,
		FraudProbability: r.FraudProbability,
		Decision:         r.Decision,
		DeviceModel:      r.DeviceModel,
		OSVersion:        r.OSVersion,
	}
	if !r.Timestamp.IsZero() {
		raw.Timestamp = r.Timestamp.Format(time.RFC3339Nano)
	}
	return json.Marshal(raw)
}

// TransactionPage is a page of records from GET /transactions.
type TransactionPage struct {
	Records []TransactionRecord
	Page    int
	Size    int
}

// TransactionAnalysis is the result of POST /transactions/{id}/analyze.
type TransactionAnalysis struct {
	TransactionID    int64        `json:"transactionId"`
	CustomerID       string       `json:"customerId"`
	FraudProbability float64      `json:"fraudProbability"`
	IsFraud          bool         `json:"isFraud"`
	Decision         Decision     `json:"decision"`
	RiskScore        float64      `json:"riskScore"`
	RiskFactors      []RiskFactor `json:"riskFactors"`
	AIExplanation    string       `json:"aiExplanation,omitempty"`
	Recommendations  string       `json:"recommendations,omitempty"`
	AnalyzedAt       string       `json:"analyzedAt"`
}

// RiskFactor is one weighted contributor to a transaction's risk score.
type RiskFactor struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
	Weight      float64 `json:"weight"`
}
