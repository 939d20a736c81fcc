package statsd

import (
	"cmp"
	"math"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/riskview/internal/classify"
	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/filter"
	"github.com/opensource-finance/riskview/internal/kpi"
	"github.com/opensource-finance/riskview/internal/ranking"
	"github.com/opensource-finance/riskview/internal/timeline"
)

// topRiskyCustomers is the size of the dashboard's risky customer list.
const topRiskyCustomers = 10

// Calculator derives every statistics payload from stored records.
type Calculator struct {
	classifier *classify.Classifier
	filter     *filter.Engine
	loc        *time.Location
	now        func() time.Time
}

// NewCalculator creates a calculator. A nil filter engine uses the package default.
func NewCalculator(classifier *classify.Classifier, engine *filter.Engine, loc *time.Location) *Calculator {
	if classifier == nil {
		classifier = classify.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Calculator{classifier: classifier, filter: engine, loc: loc, now: time.Now}
}

// Dashboard builds the GET /statistics/dashboard payload.
func (c *Calculator) Dashboard(records []domain.TransactionRecord, behaviors []domain.CustomerBehavior) domain.DashboardStats {
	stats := domain.DashboardStats{
		TotalTransactions: int64(len(records)),
		TotalAmount:       decimal.Zero,
		FraudAmount:       decimal.Zero,
		PreventedLosses:   decimal.Zero,
	}

	for _, r := range records {
		stats.TotalAmount = stats.TotalAmount.Add(r.Amount)
		if r.IsFraud {
			stats.FraudCount++
			stats.FraudAmount = stats.FraudAmount.Add(r.Amount)
			if c.classifier.Decision(r.FraudProbability) == domain.DecisionBlock {
				stats.PreventedLosses = stats.PreventedLosses.Add(r.Amount)
			}
		}
	}
	stats.LegitimateCount = stats.TotalTransactions - stats.FraudCount
	stats.FraudRate = classify.FraudRatePercent(stats.FraudCount, stats.TotalTransactions)
	stats.AvgTransactionAmount = average(stats.TotalAmount, stats.TotalTransactions)

	stats.ModelMetrics = c.ModelMetrics(records)

	decisions := c.classifier.CountDecisions(records)
	stats.BlockedCount = decisions.Blocked
	stats.ReviewCount = decisions.Review
	stats.ApprovedCount = decisions.Approved

	stats.TopRiskyCustomers = c.riskyCustomers(records, behaviors)
	stats.FraudTrend, stats.AmountTrend = c.trends(records)
	stats.BehavioralInsights = c.BehavioralInsights(behaviors)
	return stats
}

// ModelMetrics scores the model against the ground-truth fraud flag. Only
// scored records count; BLOCK and REVIEW are positive predictions.
func (c *Calculator) ModelMetrics(records []domain.TransactionRecord) domain.ModelMetrics {
	var counts domain.ConfusionCounts
	scored := make([]domain.TransactionRecord, 0, len(records))

	for _, r := range records {
		d := c.classifier.Decision(r.FraudProbability)
		if d == domain.DecisionUnknown {
			continue
		}
		scored = append(scored, r)

		predicted := d == domain.DecisionBlock || d == domain.DecisionReview
		switch {
		case predicted && r.IsFraud:
			counts.TruePositives++
		case predicted && !r.IsFraud:
			counts.FalsePositives++
		case !predicted && r.IsFraud:
			counts.FalseNegatives++
		default:
			counts.TrueNegatives++
		}
	}

	m := kpi.SummarizeBeta(counts, c.classifier.Policy().FBeta)
	m.RocAuc = rocAuc(scored)
	m.LastUpdated = c.now().UTC().Format(time.RFC3339)
	return m
}

// rocAuc is the probability that a random fraud record outscores a random
// legitimate one, ties counting half. Returns 0 without both classes.
func rocAuc(scored []domain.TransactionRecord) float64 {
	sorted := slices.Clone(scored)
	slices.SortStableFunc(sorted, func(a, b domain.TransactionRecord) int {
		return cmp.Compare(*a.FraudProbability, *b.FraudProbability)
	})

	var positives, negatives float64
	var rankSum float64
	for i := 0; i < len(sorted); {
		j := i
		for j < len(sorted) && *sorted[j].FraudProbability == *sorted[i].FraudProbability {
			j++
		}
		// average 1-based rank of the tie group
		rank := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			if sorted[k].IsFraud {
				positives++
				rankSum += rank
			} else {
				negatives++
			}
		}
		i = j
	}

	if positives == 0 || negatives == 0 {
		return 0
	}
	return kpi.Clamp((rankSum - positives*(positives+1)/2) / (positives * negatives))
}

func (c *Calculator) riskyCustomers(records []domain.TransactionRecord, behaviors []domain.CustomerBehavior) []domain.RiskyCustomer {
	type acc struct {
		customer domain.RiskyCustomer
		riskSum  float64
		scored   int64
	}

	index := make(map[string]int)
	accs := make([]*acc, 0)
	for _, r := range records {
		i, ok := index[r.CustomerID]
		if !ok {
			i = len(accs)
			index[r.CustomerID] = i
			accs = append(accs, &acc{customer: domain.RiskyCustomer{CustomerID: r.CustomerID, TotalAmount: decimal.Zero}})
		}
		a := accs[i]
		a.customer.TransactionCount++
		a.customer.TotalAmount = a.customer.TotalAmount.Add(r.Amount)
		if r.IsFraud {
			a.customer.FraudCount++
		}
		if r.FraudProbability != nil {
			a.riskSum += *r.FraudProbability
			a.scored++
		}
	}

	byCustomer := make(map[string]domain.CustomerBehavior, len(behaviors))
	for _, b := range behaviors {
		byCustomer[b.CustomerID] = b
	}

	customers := make([]domain.RiskyCustomer, 0, len(accs))
	for _, a := range accs {
		rc := a.customer
		rc.FraudRate = classify.FraudRatePercent(rc.FraudCount, rc.TransactionCount)
		if a.scored > 0 {
			rc.AvgRiskScore = a.riskSum / float64(a.scored)
		}
		if b, ok := byCustomer[rc.CustomerID]; ok {
			rc.DeviceChanges = &b.DeviceChanges
			rc.OSChanges = &b.OSChanges
			rc.LoginFrequencyChange = &b.LoginFrequencyChange
			rc.BurstinessScore = &b.BurstinessScore
		}
		customers = append(customers, rc)
	}
	return ranking.TopCustomers(customers, topRiskyCustomers)
}

// trends returns the daily fraud count and amount series, oldest day first.
// Undated records are left out of the series.
func (c *Calculator) trends(records []domain.TransactionRecord) (fraud, amount []domain.TimeSeriesPoint) {
	fraud = []domain.TimeSeriesPoint{}
	amount = []domain.TimeSeriesPoint{}

	for _, b := range timeline.BucketByDay(chronological(records), c.loc) {
		if b.Date == timeline.UndatedBucket {
			continue
		}
		fraudCount := int64(b.FraudCount)
		total := b.TotalAmount
		fraud = append(fraud, domain.TimeSeriesPoint{Date: b.Date, Count: &fraudCount})
		amount = append(amount, domain.TimeSeriesPoint{Date: b.Date, Amount: &total})
	}
	return fraud, amount
}

// BehavioralInsights aggregates the behavioral counters of every customer.
func (c *Calculator) BehavioralInsights(behaviors []domain.CustomerBehavior) domain.BehavioralInsights {
	var insights domain.BehavioralInsights
	if len(behaviors) == 0 {
		return insights
	}

	policy := c.classifier.Policy()
	var devices, oses int
	for _, b := range behaviors {
		devices += b.DeviceChanges
		oses += b.OSChanges
		if math.Abs(b.LoginFrequencyChange) > policy.LoginShiftAbove {
			insights.SuspiciousLoginPatterns++
		}
		if b.LoginsLast7Days > policy.WeeklyLoginsAbove {
			insights.HighFrequencyUsers++
		}
		if len(c.classifier.Anomalies(behaviorOf(b))) >= 2 {
			insights.AnomalousSessionPatterns++
		}
	}
	n := float64(len(behaviors))
	insights.AvgDeviceChanges = float64(devices) / n
	insights.AvgOSChanges = float64(oses) / n
	return insights
}

// FeatureImportance describes the loaded risk rules, most important first.
func FeatureImportance(rules []*domain.RiskRule) []domain.FeatureImportance {
	out := make([]domain.FeatureImportance, 0, len(rules))
	for _, r := range rules {
		out = append(out, domain.FeatureImportance{
			FeatureName: r.ID,
			Importance:  r.Weight,
			Category:    r.Category,
			Description: r.Description,
		})
	}
	slices.SortStableFunc(out, func(a, b domain.FeatureImportance) int {
		return cmp.Compare(b.Importance, a.Importance)
	})
	return out
}

// Customer builds the GET /statistics/customer/{id} payload. records must
// belong to the customer; behavior may be nil.
func (c *Calculator) Customer(customerID string, records []domain.TransactionRecord, behavior *domain.CustomerBehavior) domain.CustomerAnalytics {
	ordered := chronological(records)

	a := domain.CustomerAnalytics{
		CustomerID:          customerID,
		TotalTransactions:   int64(len(ordered)),
		TotalAmount:         decimal.Zero,
		TransactionTimeline: make([]domain.TimelineEntry, 0, len(ordered)),
		AmountTimeline:      []domain.AmountPoint{},
	}

	var riskSum float64
	var scored int
	for _, r := range ordered {
		a.TotalAmount = a.TotalAmount.Add(r.Amount)
		if r.IsFraud {
			a.FraudTransactions++
		}
		if r.FraudProbability != nil {
			riskSum += *r.FraudProbability
			scored++
		}

		entry := domain.TimelineEntry{
			TransactionID: r.ID,
			Amount:        r.Amount,
			IsFraud:       r.IsFraud,
			RecipientID:   r.RecipientID,
			RiskScore:     r.FraudProbability,
			Decision:      r.Decision,
		}
		if !r.Timestamp.IsZero() {
			entry.TransactionDate = r.Timestamp.In(c.loc).Format(time.RFC3339)
		}
		a.TransactionTimeline = append(a.TransactionTimeline, entry)
	}
	a.AvgAmount = average(a.TotalAmount, a.TotalTransactions)

	// newest transaction first in the history
	slices.Reverse(a.TransactionTimeline)

	a.AmountTimeline = c.amountTimeline(ordered)
	a.DeviceUsage = c.deviceUsage(ordered)

	if behavior != nil {
		a.DeviceChanges = behavior.DeviceChanges
		a.OSVersionChanges = behavior.OSChanges
		a.LoginsLast7Days = behavior.LoginsLast7Days
		a.LoginsLast30Days = behavior.LoginsLast30Days
		a.LoginFrequencyChange = behavior.LoginFrequencyChange
		a.LatestPhoneModel = behavior.LatestPhoneModel
		a.LatestOSVersion = behavior.LatestOSVersion
		burstiness := behavior.BurstinessScore
		a.BurstinessScore = &burstiness
	}
	a.AvgSessionIntervalSec, a.SessionIntervalStd, a.FanoFactor = intervalStats(ordered)

	var avgRisk float64
	if scored > 0 {
		avgRisk = riskSum / float64(scored)
	}
	a.RiskProfile = c.riskProfile(a, avgRisk)
	return a
}

func (c *Calculator) amountTimeline(ordered []domain.TransactionRecord) []domain.AmountPoint {
	points := []domain.AmountPoint{}
	index := make(map[string]int)
	for _, r := range ordered {
		if r.Timestamp.IsZero() {
			continue
		}
		day := r.Timestamp.In(c.loc).Format(timeline.DateLayout)
		i, ok := index[day]
		if !ok {
			i = len(points)
			index[day] = i
			points = append(points, domain.AmountPoint{Date: day, Amount: decimal.Zero})
		}
		points[i].Amount = points[i].Amount.Add(r.Amount)
		points[i].TransactionCount++
		if r.IsFraud {
			points[i].IsFraud = true
		}
	}
	return points
}

func (c *Calculator) deviceUsage(ordered []domain.TransactionRecord) []domain.DeviceUsage {
	var usage []domain.DeviceUsage
	index := make(map[string]int)
	for _, r := range ordered {
		if !r.HasDevice() {
			continue
		}
		key := r.DeviceModel + "\x00" + r.OSVersion
		i, ok := index[key]
		if !ok {
			i = len(usage)
			index[key] = i
			usage = append(usage, domain.DeviceUsage{DeviceModel: r.DeviceModel, OSVersion: r.OSVersion})
		}
		usage[i].UsageCount++
		if !r.Timestamp.IsZero() {
			usage[i].LastUsed = r.Timestamp.In(c.loc).Format(time.RFC3339)
		}
	}
	return usage
}

// intervalStats returns the mean and standard deviation of the seconds between
// consecutive transactions, and the Fano factor of daily counts. All are nil
// with fewer than two dated transactions.
func intervalStats(ordered []domain.TransactionRecord) (mean, std, fano *float64) {
	var times []time.Time
	for _, r := range ordered {
		if !r.Timestamp.IsZero() {
			times = append(times, r.Timestamp)
		}
	}
	if len(times) < 2 {
		return nil, nil, nil
	}

	intervals := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		intervals = append(intervals, times[i].Sub(times[i-1]).Seconds())
	}
	m, s := meanStd(intervals)

	daily := make(map[string]float64)
	for _, t := range times {
		daily[t.UTC().Format(timeline.DateLayout)]++
	}
	counts := make([]float64, 0, len(daily))
	for _, n := range daily {
		counts = append(counts, n)
	}
	dm, ds := meanStd(counts)
	var f float64
	if dm > 0 {
		f = ds * ds / dm
	}
	return &m, &s, &f
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		std += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(std / float64(len(values)))
}

func (c *Calculator) riskProfile(a domain.CustomerAnalytics, avgRisk float64) *domain.BackendRiskProfile {
	rate := classify.FraudRatePercent(a.FraudTransactions, a.TotalTransactions)
	anomalies := c.classifier.Anomalies(classify.Behavior{
		DeviceChanges:        a.DeviceChanges,
		OSChanges:            a.OSVersionChanges,
		LoginsLast7Days:      a.LoginsLast7Days,
		LoginFrequencyChange: a.LoginFrequencyChange,
	})

	profile := &domain.BackendRiskProfile{
		OverallRiskLevel:    c.classifier.RiskLevel(rate),
		RiskScore:           avgRisk * 100,
		MainRiskFactors:     []string{},
		BehavioralAnomalies: anomalies,
		Recommendations:     []string{},
	}

	policy := c.classifier.Policy()
	if a.FraudTransactions > 0 {
		profile.MainRiskFactors = append(profile.MainRiskFactors, "confirmed fraudulent transactions")
	}
	if avgRisk >= policy.ReviewAt {
		profile.MainRiskFactors = append(profile.MainRiskFactors, "high average model score")
	}
	if len(anomalies) > 0 {
		profile.MainRiskFactors = append(profile.MainRiskFactors, "behavioral anomalies")
	}

	switch profile.OverallRiskLevel {
	case domain.RiskCritical:
		profile.Recommendations = append(profile.Recommendations, "Freeze the account pending investigation")
	case domain.RiskHigh:
		profile.Recommendations = append(profile.Recommendations, "Require step-up authentication")
	case domain.RiskMedium:
		profile.Recommendations = append(profile.Recommendations, "Monitor upcoming transactions")
	}
	if len(anomalies) > 0 {
		profile.Recommendations = append(profile.Recommendations, "Verify recent device and login changes with the customer")
	}
	return profile
}

// Filter applies a POST /statistics/transactions/filter request.
// Unparseable dates are ignored and dateTo is inclusive up to the instant
// it names. Records are returned newest first.
func (c *Calculator) Filter(records []domain.TransactionRecord, req domain.TransactionFilterRequest) domain.FilteredTransactions {
	criteria := domain.FilterCriteria{
		MinAmount:   req.MinAmount,
		MaxAmount:   req.MaxAmount,
		FraudStatus: req.FraudStatus,
		CustomerID:  req.CustomerID,
	}
	// Dates follow the timeline query rules: a date-only bound is local midnight.
	bounds := filter.ParseCriteria(url.Values{
		filter.ParamDateFrom: {req.DateFrom},
		filter.ParamDateTo:   {req.DateTo},
	}, c.loc)
	criteria.DateFrom = bounds.DateFrom
	criteria.DateTo = bounds.DateTo

	var matched []domain.TransactionRecord
	if c.filter != nil {
		matched = c.filter.Apply(records, criteria)
	} else {
		matched = filter.Apply(records, criteria)
	}

	level := strings.ToLower(strings.TrimSpace(req.RiskLevel))
	out := domain.FilteredTransactions{
		Transactions: []domain.TransactionRecord{},
		TotalAmount:  decimal.Zero,
	}
	var riskSum float64
	var scored int
	for _, r := range ranking.Rank(matched, domain.SortByDate) {
		if level != "" && c.recordRiskLevel(r) != level {
			continue
		}
		if req.Decision != "" && c.classifier.Decision(r.FraudProbability) != req.Decision {
			continue
		}
		out.Transactions = append(out.Transactions, r)
		out.TotalAmount = out.TotalAmount.Add(r.Amount)
		if r.IsFraud {
			out.FraudCount++
		}
		if r.FraudProbability != nil {
			riskSum += *r.FraudProbability
			scored++
		}
	}
	out.Total = int64(len(out.Transactions))
	if scored > 0 {
		out.AvgRiskScore = riskSum / float64(scored)
	}
	return out
}

// recordRiskLevel buckets one record's probability in lower case:
// critical at BlockAt, high at ReviewAt, medium at half ReviewAt.
// Unscored records have no level.
func (c *Calculator) recordRiskLevel(r domain.TransactionRecord) string {
	if r.FraudProbability == nil {
		return ""
	}
	p := *r.FraudProbability
	policy := c.classifier.Policy()
	switch {
	case p >= policy.BlockAt:
		return "critical"
	case p >= policy.ReviewAt:
		return "high"
	case p >= policy.ReviewAt/2:
		return "medium"
	default:
		return "low"
	}
}

func behaviorOf(b domain.CustomerBehavior) classify.Behavior {
	return classify.Behavior{
		DeviceChanges:        b.DeviceChanges,
		OSChanges:            b.OSChanges,
		LoginsLast7Days:      b.LoginsLast7Days,
		LoginFrequencyChange: b.LoginFrequencyChange,
	}
}

// chronological returns a copy ordered oldest first; undated records go last.
func chronological(records []domain.TransactionRecord) []domain.TransactionRecord {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b domain.TransactionRecord) int {
		switch {
		case a.Timestamp.IsZero() && b.Timestamp.IsZero():
			return 0
		case a.Timestamp.IsZero():
			return 1
		case b.Timestamp.IsZero():
			return -1
		}
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func average(total decimal.Decimal, n int64) decimal.Decimal {
	if n <= 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(n)).Round(2)
}
