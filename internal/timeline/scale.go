package timeline

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/riskview/internal/domain"
)

// Metric selects which bucket field a chart plots.
type Metric string

const (
	MetricCount   Metric = "count"
	MetricFraud   Metric = "fraud"
	MetricAmount  Metric = "amount"
	MetricDevices Metric = "devices"
)

// Bar is one scaled chart column.
type Bar struct {
	Date   string  `json:"date"`
	Value  float64 `json:"value"`
	Height float64 `json:"height"` // percent of the tallest bar
}

// Scale returns value as a percentage of top. The denominator is never below 1,
// so an all-zero series renders flat instead of dividing by zero.
func Scale(value, top float64) float64 {
	if math.IsNaN(value) || value <= 0 {
		return 0
	}
	return value / math.Max(1, top) * 100
}

// Value extracts the metric from a bucket.
func (m Metric) Value(b domain.TimeBucket) float64 {
	switch m {
	case MetricFraud:
		return float64(b.FraudCount)
	case MetricAmount:
		return b.TotalAmount.InexactFloat64()
	case MetricDevices:
		return float64(b.DeviceChanges)
	default:
		return float64(b.Count)
	}
}

// BarHeights scales every bucket against the largest value in buckets.
// Heights below floor are raised to floor.
func BarHeights(buckets []domain.TimeBucket, metric Metric, floor float64) []Bar {
	top := 0.0
	for _, b := range buckets {
		top = math.Max(top, metric.Value(b))
	}

	bars := make([]Bar, len(buckets))
	for i, b := range buckets {
		v := metric.Value(b)
		bars[i] = Bar{
			Date:   b.Date,
			Value:  v,
			Height: math.Max(Scale(v, top), floor),
		}
	}
	return bars
}

// PointBars scales dashboard trend points. Missing values count as 0.
func PointBars(points []domain.TimeSeriesPoint, metric Metric, floor float64) []Bar {
	values := make([]float64, len(points))
	top := 0.0
	for i, p := range points {
		switch metric {
		case MetricAmount:
			if p.Amount != nil {
				values[i] = p.Amount.InexactFloat64()
			}
		default:
			if p.Count != nil {
				values[i] = float64(*p.Count)
			}
		}
		top = math.Max(top, values[i])
	}

	bars := make([]Bar, len(points))
	for i, p := range points {
		bars[i] = Bar{
			Date:   p.Date,
			Value:  values[i],
			Height: math.Max(Scale(values[i], top), floor),
		}
	}
	return bars
}

// AmountSeries scales a customer's amount timeline. Unlike the bucket charts
// it has no minimum denominator: when the largest amount is 0 every bar is 0.
func AmountSeries(points []domain.AmountPoint) []Bar {
	top := decimal.Zero
	for _, p := range points {
		if p.Amount.GreaterThan(top) {
			top = p.Amount
		}
	}

	bars := make([]Bar, len(points))
	for i, p := range points {
		bars[i] = Bar{Date: p.Date, Value: p.Amount.InexactFloat64()}
		if top.IsPositive() && p.Amount.IsPositive() {
			bars[i].Height = p.Amount.Div(top).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
	}
	return bars
}

// SeriesSummary is the average and peak of a bar series.
type SeriesSummary struct {
	Average float64 `json:"average"`
	Peak    float64 `json:"peak"`
}

// Summarize returns the average and peak values. An empty series yields zeros.
func Summarize(bars []Bar) SeriesSummary {
	if len(bars) == 0 {
		return SeriesSummary{}
	}
	var sum, peak float64
	for i, b := range bars {
		sum += b.Value
		if i == 0 || b.Value > peak {
			peak = b.Value
		}
	}
	return SeriesSummary{Average: sum / float64(len(bars)), Peak: peak}
}
