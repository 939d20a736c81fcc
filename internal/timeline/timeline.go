// Package timeline groups transactions into calendar-day buckets and scales them for charts.
package timeline

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/riskview/internal/domain"
)

// DateLayout is the bucket key format.
const DateLayout = "2006-01-02"

// UndatedBucket collects records whose timestamp could not be decoded.
const UndatedBucket = domain.NotAvailable

// DefaultWindow is the number of trailing buckets charts display.
const DefaultWindow = 30

// Minimum visible bar heights, in percent.
const (
	FloorNone      = 0.0
	FloorDevices   = 10.0
	FloorDashboard = 5.0
)

// BucketByDay groups records by local calendar date in loc. Buckets appear in
// the order their first record appears. The counts always sum to len(records).
func BucketByDay(records []domain.TransactionRecord, loc *time.Location) []domain.TimeBucket {
	if loc == nil {
		loc = time.Local
	}

	type acc struct {
		bucket  domain.TimeBucket
		devices map[string]struct{}
	}

	index := make(map[string]int)
	accs := make([]*acc, 0)

	for _, r := range records {
		key := UndatedBucket
		if !r.Timestamp.IsZero() {
			key = r.Timestamp.In(loc).Format(DateLayout)
		}

		i, ok := index[key]
		if !ok {
			i = len(accs)
			index[key] = i
			accs = append(accs, &acc{
				bucket:  domain.TimeBucket{Date: key, TotalAmount: decimal.Zero},
				devices: make(map[string]struct{}),
			})
		}

		a := accs[i]
		a.bucket.Count++
		if r.IsFraud {
			a.bucket.FraudCount++
		}
		a.bucket.TotalAmount = a.bucket.TotalAmount.Add(r.Amount)
		if r.HasDevice() {
			a.devices[r.DeviceModel] = struct{}{}
		}
	}

	out := make([]domain.TimeBucket, len(accs))
	for i, a := range accs {
		a.bucket.DeviceChanges = len(a.devices)
		out[i] = a.bucket
	}
	return out
}

// LastN returns the trailing n elements of s. n <= 0 or n >= len(s) returns s unchanged.
func LastN[T any](s []T, n int) []T {
	if n <= 0 || n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}
