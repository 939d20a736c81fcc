// Package classify maps fraud probabilities to decisions and fraud rates to risk levels.
package classify

import (
	"errors"
	"fmt"
	"math"

	"github.com/opensource-finance/riskview/internal/domain"
)

// ErrInvalidPolicy is returned when policy thresholds are out of order or out of range.
var ErrInvalidPolicy = errors.New("invalid classification policy")

// Behavioral anomaly labels.
const (
	AnomalyDeviceChanges  = "unusual device activity"
	AnomalyOSChanges      = "frequent OS version changes"
	AnomalyWeeklyLogins   = "high login activity"
	AnomalyLoginFrequency = "sharp login frequency change"
)

// Classifier applies a validated Policy. It holds no mutable state.
type Classifier struct {
	policy domain.Policy
}

// New validates the policy and returns a classifier for it.
func New(policy domain.Policy) (*Classifier, error) {
	if err := Validate(policy); err != nil {
		return nil, err
	}
	return &Classifier{policy: policy}, nil
}

// Default returns a classifier using domain.DefaultPolicy.
func Default() *Classifier {
	return &Classifier{policy: domain.DefaultPolicy()}
}

// Validate checks 0 < ReviewAt < BlockAt <= 1 and 0 < HighRateAt < CriticalRateAt.
func Validate(p domain.Policy) error {
	if !(p.ReviewAt > 0 && p.ReviewAt < p.BlockAt && p.BlockAt <= 1) {
		return fmt.Errorf("%w: decision thresholds review=%v block=%v", ErrInvalidPolicy, p.ReviewAt, p.BlockAt)
	}
	if !(p.HighRateAt > 0 && p.HighRateAt < p.CriticalRateAt) {
		return fmt.Errorf("%w: rate thresholds high=%v critical=%v", ErrInvalidPolicy, p.HighRateAt, p.CriticalRateAt)
	}
	if p.DeviceChangesAbove < 0 || p.OSChangesAbove < 0 || p.WeeklyLoginsAbove < 0 || p.LoginShiftAbove < 0 {
		return fmt.Errorf("%w: behavioral thresholds must not be negative", ErrInvalidPolicy)
	}
	if p.FBeta <= 0 || math.IsNaN(p.FBeta) || math.IsInf(p.FBeta, 0) {
		return fmt.Errorf("%w: fbeta=%v", ErrInvalidPolicy, p.FBeta)
	}
	return nil
}

// Policy returns a copy of the thresholds in use.
func (c *Classifier) Policy() domain.Policy {
	return c.policy
}

// Decision classifies a fraud probability. An absent or NaN probability is UNKNOWN.
// A probability of exactly 0 is a real score and yields APPROVE.
func (c *Classifier) Decision(p *float64) domain.Decision {
	if p == nil || math.IsNaN(*p) {
		return domain.DecisionUnknown
	}
	switch {
	case *p >= c.policy.BlockAt:
		return domain.DecisionBlock
	case *p >= c.policy.ReviewAt:
		return domain.DecisionReview
	default:
		return domain.DecisionApprove
	}
}

// RiskLevel buckets a fraud rate expressed in percent.
func (c *Classifier) RiskLevel(rate float64) domain.RiskLevel {
	switch {
	case math.IsNaN(rate) || rate <= 0:
		return domain.RiskLow
	case rate < c.policy.HighRateAt:
		return domain.RiskMedium
	case rate < c.policy.CriticalRateAt:
		return domain.RiskHigh
	default:
		return domain.RiskCritical
	}
}

// FraudRatePercent returns fraud/total*100, or 0 when total is not positive.
func FraudRatePercent(fraud, total int64) float64 {
	if total <= 0 || fraud <= 0 {
		return 0
	}
	return float64(fraud) / float64(total) * 100
}

// Behavior carries the counters inspected for behavioral anomalies.
type Behavior struct {
	DeviceChanges        int
	OSChanges            int
	LoginsLast7Days      int
	LoginFrequencyChange float64
}

// Anomalies lists the behavioral thresholds the customer exceeds, in a fixed order.
func (c *Classifier) Anomalies(b Behavior) []string {
	anomalies := make([]string, 0, 4)
	if b.DeviceChanges > c.policy.DeviceChangesAbove {
		anomalies = append(anomalies, AnomalyDeviceChanges)
	}
	if b.OSChanges > c.policy.OSChangesAbove {
		anomalies = append(anomalies, AnomalyOSChanges)
	}
	if b.LoginsLast7Days > c.policy.WeeklyLoginsAbove {
		anomalies = append(anomalies, AnomalyWeeklyLogins)
	}
	if math.Abs(b.LoginFrequencyChange) > c.policy.LoginShiftAbove {
		anomalies = append(anomalies, AnomalyLoginFrequency)
	}
	return anomalies
}

// Annotated pairs a record with the classifier's verdict.
type Annotated struct {
	Record         domain.TransactionRecord `json:"record"`
	Classification domain.Decision          `json:"classification"`
	RiskDisplay    string                   `json:"riskDisplay"`
}

// Annotate classifies every record. The input slice is not modified.
func (c *Classifier) Annotate(records []domain.TransactionRecord) []Annotated {
	out := make([]Annotated, len(records))
	for i, r := range records {
		out[i] = Annotated{
			Record:         r,
			Classification: c.Decision(r.FraudProbability),
			RiskDisplay:    r.RiskForDisplay(),
		}
	}
	return out
}

// DecisionCounts tallies records per decision.
type DecisionCounts struct {
	Blocked  int64 `json:"blocked"`
	Review   int64 `json:"review"`
	Approved int64 `json:"approved"`
	Unknown  int64 `json:"unknown"`
}

// CountDecisions classifies and tallies records.
func (c *Classifier) CountDecisions(records []domain.TransactionRecord) DecisionCounts {
	var counts DecisionCounts
	for _, r := range records {
		switch c.Decision(r.FraudProbability) {
		case domain.DecisionBlock:
			counts.Blocked++
		case domain.DecisionReview:
			counts.Review++
		case domain.DecisionApprove:
			counts.Approved++
		default:
			counts.Unknown++
		}
	}
	return counts
}
