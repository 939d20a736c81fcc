package insight

import (
	"time"

	"github.com/opensource-finance/riskview/internal/classify"
	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/filter"
	"github.com/opensource-finance/riskview/internal/ranking"
	"github.com/opensource-finance/riskview/internal/timeline"
)

// TimelineOptions bounds the presentation of the timeline view.
type TimelineOptions struct {
	Location   *time.Location
	Window     int // trailing buckets charted
	TableLimit int // rows listed
	Filter     *filter.Engine
}

// TimelineResult is the full transaction timeline as presented.
type TimelineResult struct {
	Criteria domain.FilterCriteria `json:"criteria"`

	Total    int `json:"total"`    // records in the snapshot
	Filtered int `json:"filtered"` // records passing the criteria
	Shown    int `json:"shown"`    // rows listed

	Rows      []classify.Annotated    `json:"rows"`
	Decisions classify.DecisionCounts `json:"decisions"`
	Buckets   []domain.TimeBucket     `json:"buckets"`

	CountBars  []timeline.Bar `json:"countBars"`
	AmountBars []timeline.Bar `json:"amountBars"`
	DeviceBars []timeline.Bar `json:"deviceBars"`

	// ExpressionError explains why the expression predicate was skipped.
	ExpressionError string `json:"expressionError,omitempty"`
}

// TimelineView runs the full pipeline over a snapshot: filter, bucket by day,
// rank, classify and cap the table. Buckets follow snapshot order so the
// chart does not depend on the table's sort key.
func TimelineView(records []domain.TransactionRecord, criteria domain.FilterCriteria, c *classify.Classifier, opts TimelineOptions) TimelineResult {
	if opts.Window <= 0 {
		opts.Window = timeline.DefaultWindow
	}
	if opts.TableLimit <= 0 {
		opts.TableLimit = ranking.DefaultTableLimit
	}

	var filtered []domain.TransactionRecord
	if opts.Filter != nil {
		filtered = opts.Filter.Apply(records, criteria)
	} else {
		filtered = filter.Apply(records, criteria)
	}

	buckets := timeline.BucketByDay(filtered, opts.Location)
	ranked := ranking.Rank(filtered, criteria.NormalizedSortKey())
	rows := c.Annotate(ranking.TopN(ranked, opts.TableLimit))

	res := TimelineResult{
		Criteria:   criteria,
		Total:      len(records),
		Filtered:   len(filtered),
		Shown:      len(rows),
		Rows:       rows,
		Decisions:  c.CountDecisions(filtered),
		Buckets:    buckets,
		CountBars:  timeline.LastN(timeline.BarHeights(buckets, timeline.MetricCount, timeline.FloorNone), opts.Window),
		AmountBars: timeline.LastN(timeline.BarHeights(buckets, timeline.MetricAmount, timeline.FloorNone), opts.Window),
		DeviceBars: timeline.LastN(timeline.BarHeights(buckets, timeline.MetricDevices, timeline.FloorDevices), opts.Window),
	}
	if opts.Filter != nil && criteria.Expression != "" {
		if err := opts.Filter.Validate(criteria.Expression); err != nil {
			res.ExpressionError = err.Error()
		}
	}
	return res
}
