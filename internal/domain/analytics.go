package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ConfusionCounts are the TP/FP/TN/FN tallies behind every model-quality metric.
type ConfusionCounts struct {
	TruePositives  int64 `json:"truePositives"`
	FalsePositives int64 `json:"falsePositives"`
	TrueNegatives  int64 `json:"trueNegatives"`
	FalseNegatives int64 `json:"falseNegatives"`
}

// Total returns TP+FP+TN+FN.
func (c ConfusionCounts) Total() int64 {
	return c.TruePositives + c.FalsePositives + c.TrueNegatives + c.FalseNegatives
}

// Validate rejects negative counts.
func (c ConfusionCounts) Validate() error {
	if c.TruePositives < 0 || c.FalsePositives < 0 || c.TrueNegatives < 0 || c.FalseNegatives < 0 {
		return fmt.Errorf("negative confusion count: tp=%d fp=%d tn=%d fn=%d",
			c.TruePositives, c.FalsePositives, c.TrueNegatives, c.FalseNegatives)
	}
	return nil
}

// ConsistentWith reports whether the counts cover exactly the scored records.
func (c ConfusionCounts) ConsistentWith(scored int64) bool {
	return c.Total() == scored
}

// ModelMetrics are the quality metrics of the fraud-scoring model.
type ModelMetrics struct {
	Precision  float64 `json:"precision"`
	Recall     float64 `json:"recall"`
	F1Score    float64 `json:"f1Score"`
	FBetaScore float64 `json:"fbetaScore"`
	RocAuc     float64 `json:"rocAuc"`
	Accuracy   float64 `json:"accuracy"`

	TruePositives  int64 `json:"truePositives"`
	FalsePositives int64 `json:"falsePositives"`
	TrueNegatives  int64 `json:"trueNegatives"`
	FalseNegatives int64 `json:"falseNegatives"`

	LastUpdated string `json:"lastUpdated,omitempty"`
}

// Counts extracts the confusion counts carried by the metrics payload.
func (m ModelMetrics) Counts() ConfusionCounts {
	return ConfusionCounts{
		TruePositives:  m.TruePositives,
		FalsePositives: m.FalsePositives,
		TrueNegatives:  m.TrueNegatives,
		FalseNegatives: m.FalseNegatives,
	}
}

// DashboardStats is the payload of GET /statistics/dashboard.
type DashboardStats struct {
	TotalTransactions int64   `json:"totalTransactions"`
	FraudCount        int64   `json:"fraudCount"`
	LegitimateCount   int64   `json:"legitimateCount"`
	FraudRate         float64 `json:"fraudRate"`

	TotalAmount          decimal.Decimal `json:"totalAmount"`
	FraudAmount          decimal.Decimal `json:"fraudAmount"`
	AvgTransactionAmount decimal.Decimal `json:"avgTransactionAmount"`
	PreventedLosses      decimal.Decimal `json:"preventedLosses"`

	ModelMetrics ModelMetrics `json:"modelMetrics"`

	BlockedCount  int64 `json:"blockedCount"`
	ReviewCount   int64 `json:"reviewCount"`
	ApprovedCount int64 `json:"approvedCount"`

	TopRiskyCustomers []RiskyCustomer `json:"topRiskyCustomers"`

	FraudTrend  []TimeSeriesPoint `json:"fraudTrend"`
	AmountTrend []TimeSeriesPoint `json:"amountTrend"`

	BehavioralInsights BehavioralInsights `json:"behavioralInsights"`
}

// RiskyCustomer is one entry of the dashboard's top risky customers list.
type RiskyCustomer struct {
	CustomerID       string          `json:"customerId"`
	TransactionCount int64           `json:"transactionCount"`
	FraudCount       int64           `json:"fraudCount"`
	FraudRate        float64         `json:"fraudRate"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	AvgRiskScore     float64         `json:"avgRiskScore"`

	DeviceChanges        *int     `json:"deviceChanges,omitempty"`
	OSChanges            *int     `json:"osChanges,omitempty"`
	LoginFrequencyChange *float64 `json:"loginFrequencyChange,omitempty"`
	BurstinessScore      *float64 `json:"burstinessScore,omitempty"`
}

// TimeSeriesPoint is one point of a dashboard trend series.
type TimeSeriesPoint struct {
	Date         string           `json:"date"`
	Count        *int64           `json:"count,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	AvgRiskScore *float64         `json:"avgRiskScore,omitempty"`
	Precision    *float64         `json:"precision,omitempty"`
	Recall       *float64         `json:"recall,omitempty"`
}

// BehavioralInsights aggregates behavioral signals across all customers.
type BehavioralInsights struct {
	AvgDeviceChanges         float64 `json:"avgDeviceChanges"`
	AvgOSChanges             float64 `json:"avgOsChanges"`
	SuspiciousLoginPatterns  int64   `json:"suspiciousLoginPatterns"`
	HighFrequencyUsers       int64   `json:"highFrequencyUsers"`
	AnomalousSessionPatterns int64   `json:"anomalousSessionPatterns"`
}

// FeatureImportance describes how much one model feature contributes.
type FeatureImportance struct {
	FeatureName string  `json:"featureName"`
	Importance  float64 `json:"importance"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
}

// CustomerAnalytics is the payload of GET /statistics/customer/{id}.
type CustomerAnalytics struct {
	CustomerID string `json:"customerId"`

	TotalTransactions int64           `json:"totalTransactions"`
	FraudTransactions int64           `json:"fraudTransactions"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	AvgAmount         decimal.Decimal `json:"avgAmount"`

	DeviceChanges        int     `json:"deviceChanges"`
	OSVersionChanges     int     `json:"osVersionChanges"`
	LoginsLast7Days      int     `json:"loginsLast7Days"`
	LoginsLast30Days     int     `json:"loginsLast30Days"`
	LoginFrequencyChange float64 `json:"loginFrequencyChange"`
	LatestPhoneModel     string  `json:"latestPhoneModel,omitempty"`
	LatestOSVersion      string  `json:"latestOsVersion,omitempty"`

	AvgSessionIntervalSec *float64 `json:"avgSessionIntervalSec,omitempty"`
	BurstinessScore       *float64 `json:"burstinessScore,omitempty"`
	FanoFactor            *float64 `json:"fanoFactor,omitempty"`
	SessionIntervalStd    *float64 `json:"sessionIntervalStd,omitempty"`

	TransactionTimeline []TimelineEntry `json:"transactionTimeline"`
	AmountTimeline      []AmountPoint   `json:"amountTimeline"`
	DeviceUsage         []DeviceUsage   `json:"deviceUsage,omitempty"`

	RiskProfile *BackendRiskProfile `json:"riskProfile,omitempty"`
}

// BackendRiskProfile is the risk profile as computed by the statistics service.
type BackendRiskProfile struct {
	OverallRiskLevel    RiskLevel `json:"overallRiskLevel"`
	RiskScore           float64   `json:"riskScore"`
	MainRiskFactors     []string  `json:"mainRiskFactors"`
	BehavioralAnomalies []string  `json:"behavioralAnomalies"`
	Recommendations     []string  `json:"recommendations"`
}

// TimelineEntry is one row of a customer's transaction history.
type TimelineEntry struct {
	TransactionID   int64           `json:"transactionId"`
	TransactionDate string          `json:"transactionDate"`
	Amount          decimal.Decimal `json:"amount"`
	IsFraud         bool            `json:"isFraud"`
	RecipientID     string          `json:"recipientId"`
	RiskScore       *float64        `json:"riskScore,omitempty"`
	Decision        Decision        `json:"decision,omitempty"`
}

// AmountPoint is one day of a customer's amount timeline.
type AmountPoint struct {
	Date             string          `json:"date"`
	Amount           decimal.Decimal `json:"amount"`
	IsFraud          bool            `json:"isFraud"`
	TransactionCount int64           `json:"transactionCount"`
}

// DeviceUsage records how often a customer used one device.
type DeviceUsage struct {
	DeviceModel string `json:"deviceModel"`
	OSVersion   string `json:"osVersion"`
	UsageCount  int64  `json:"usageCount"`
	LastUsed    string `json:"lastUsed"`
}

// CustomerRiskProfile is the locally derived risk profile of one customer.
type CustomerRiskProfile struct {
	CustomerID        string          `json:"customerId"`
	TransactionCount  int64           `json:"transactionCount"`
	FraudCount        int64           `json:"fraudCount"`
	FraudRate         float64         `json:"fraudRate"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	AvgAmount         decimal.Decimal `json:"avgAmount"`
	AvgRiskScore      float64         `json:"avgRiskScore"`
	RiskLevel         RiskLevel       `json:"riskLevel"`

	DeviceChanges        int     `json:"deviceChanges"`
	OSChanges            int     `json:"osChanges"`
	LoginsLast7Days      int     `json:"loginsLast7Days"`
	LoginsLast30Days     int     `json:"loginsLast30Days"`
	LoginFrequencyChange float64 `json:"loginFrequencyChange"`

	Anomalies       []string `json:"anomalies"`
	MainRiskFactors []string `json:"mainRiskFactors,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// TimeBucket aggregates the records of one local calendar day.
type TimeBucket struct {
	Date          string          `json:"date"`
	Count         int             `json:"count"`
	FraudCount    int             `json:"fraudCount"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	DeviceChanges int             `json:"deviceChanges"`
}

// FilteredTransactions is the payload of POST /statistics/transactions/filter.
type FilteredTransactions struct {
	Transactions []TransactionRecord `json:"transactions"`
	Total        int64               `json:"total"`
	FraudCount   int64               `json:"fraudCount"`
	TotalAmount  decimal.Decimal     `json:"totalAmount"`
	AvgRiskScore float64             `json:"avgRiskScore"`
}
