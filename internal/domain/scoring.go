package domain

// RiskRule is a CEL expression scored against one transaction by the
// development backend. The expression returns a bool, int or double; the
// result is clamped to [0,1] and weighted into the transaction's risk score.
type RiskRule struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Expression  string  `json:"expression"`
	Weight      float64 `json:"weight"`
	Enabled     bool    `json:"enabled"`
}

// Feature categories shared by risk rules and feature importance.
const (
	CategoryTransaction = "transaction"
	CategoryBehavioral  = "behavioral"
	CategoryDevice      = "device"
	CategoryTemporal    = "temporal"
)

// ScoringConfig tunes the development backend's scoring pipeline.
type ScoringConfig struct {
	VelocityWindowSecs int  `json:"velocityWindowSecs"`
	MaxWorkers         int  `json:"maxWorkers"`
	WeightedScoring    bool `json:"weightedScoring"`
}
