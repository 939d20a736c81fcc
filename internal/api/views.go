package api

import (
	"context"
	"errors"

	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/metrics"
	"github.com/opensource-finance/riskview/internal/session"
	"github.com/opensource-finance/riskview/internal/statsclient"
	"github.com/opensource-finance/riskview/internal/view"
)

// View names used in routes, metrics and events.
const (
	ViewDashboard          = "dashboard"
	ViewTimeline           = "timeline"
	ViewCustomer           = "customer"
	ViewModelMetrics       = "model-metrics"
	ViewFeatureImportance  = "feature-importance"
	ViewBehavioralInsights = "behavioral-insights"
	ViewTransactions       = "transactions"
)

// Source is the statistics service as seen by the views.
type Source interface {
	Dashboard(ctx context.Context) (*domain.DashboardStats, error)
	CustomerAnalytics(ctx context.Context, customerID string) (*domain.CustomerAnalytics, error)
	ModelMetrics(ctx context.Context) (*domain.ModelMetrics, error)
	FeatureImportance(ctx context.Context) ([]domain.FeatureImportance, error)
	BehavioralInsights(ctx context.Context) (*domain.BehavioralInsights, error)
	Transactions(ctx context.Context, page, size int) (*domain.TransactionPage, error)
	FilterTransactions(ctx context.Context, req domain.TransactionFilterRequest) (*domain.FilteredTransactions, error)
	Fraudulent(ctx context.Context) ([]domain.TransactionRecord, error)
	Analyze(ctx context.Context, id int64) (*domain.TransactionAnalysis, error)
	Export(ctx context.Context, format string) (*statsclient.Report, error)
}

// views holds one snapshot per analyst view.
type views struct {
	dashboard  *view.Snapshot[*domain.DashboardStats]
	timeline   *view.Snapshot[[]domain.TransactionRecord]
	model      *view.Snapshot[*domain.ModelMetrics]
	features   *view.Snapshot[[]domain.FeatureImportance]
	behavioral *view.Snapshot[*domain.BehavioralInsights]
	customers  *view.Keyed[*domain.CustomerAnalytics]
	derived    *view.DerivedCache
}

// refresher is the type-erased part of a snapshot the refresh route needs.
type refresher interface {
	Refresh(ctx context.Context) error
	Status() view.Status
}

func newViews(src Source, sessions *session.Manager, eventBus domain.EventBus, derived *view.DerivedCache, m *metrics.Metrics, pageSize, customerViews int) *views {
	scope := ""
	if sessions != nil {
		scope = sessions.Scope()
	}

	v := &views{derived: derived}

	// A rejected token ends the session so presentation returns to login,
	// and its views go with it before the next login can read them.
	guard := func(ctx context.Context, err error) error {
		if err != nil && sessions != nil && errors.Is(err, statsclient.ErrUnauthorized) {
			sessions.Invalidate(ctx)
			v.discard()
		}
		return err
	}

	*v = views{
		dashboard: view.NewSnapshot(ViewDashboard, func(ctx context.Context) (*domain.DashboardStats, error) {
			stats, err := src.Dashboard(ctx)
			return stats, guard(ctx, err)
		}, view.Options[*domain.DashboardStats]{Bus: eventBus, Scope: scope, Metrics: m}),

		timeline: view.NewSnapshot(ViewTimeline, func(ctx context.Context) ([]domain.TransactionRecord, error) {
			page, err := src.Transactions(ctx, 0, pageSize)
			if err != nil {
				return nil, guard(ctx, err)
			}
			return page.Records, nil
		}, view.Options[[]domain.TransactionRecord]{
			Bus:     eventBus,
			Scope:   scope,
			Metrics: m,
			Size:    func(r []domain.TransactionRecord) int { return len(r) },
		}),

		model: view.NewSnapshot(ViewModelMetrics, func(ctx context.Context) (*domain.ModelMetrics, error) {
			mm, err := src.ModelMetrics(ctx)
			return mm, guard(ctx, err)
		}, view.Options[*domain.ModelMetrics]{Bus: eventBus, Scope: scope, Metrics: m}),

		features: view.NewSnapshot(ViewFeatureImportance, func(ctx context.Context) ([]domain.FeatureImportance, error) {
			fi, err := src.FeatureImportance(ctx)
			return fi, guard(ctx, err)
		}, view.Options[[]domain.FeatureImportance]{
			Bus:     eventBus,
			Scope:   scope,
			Metrics: m,
			Size:    func(f []domain.FeatureImportance) int { return len(f) },
		}),

		behavioral: view.NewSnapshot(ViewBehavioralInsights, func(ctx context.Context) (*domain.BehavioralInsights, error) {
			bi, err := src.BehavioralInsights(ctx)
			return bi, guard(ctx, err)
		}, view.Options[*domain.BehavioralInsights]{Bus: eventBus, Scope: scope, Metrics: m}),

		customers: view.NewKeyed(ViewCustomer, func(ctx context.Context, id string) (*domain.CustomerAnalytics, error) {
			ca, err := src.CustomerAnalytics(ctx, id)
			return ca, guard(ctx, err)
		}, view.Options[*domain.CustomerAnalytics]{Bus: eventBus, Scope: scope, Metrics: m}, customerViews),

		derived: derived,
	}
	return v
}

// byName resolves the refreshable single-snapshot views.
func (v *views) byName(name string) (refresher, bool) {
	switch name {
	case ViewDashboard:
		return v.dashboard, true
	case ViewTimeline, ViewTransactions:
		return v.timeline, true
	case ViewModelMetrics:
		return v.model, true
	case ViewFeatureImportance:
		return v.features, true
	case ViewBehavioralInsights:
		return v.behavioral, true
	default:
		return nil, false
	}
}

func (v *views) discard() {
	for _, d := range v.all() {
		d.Discard()
	}
}

func (v *views) all() []view.Discarder {
	all := []view.Discarder{v.dashboard, v.timeline, v.model, v.features, v.behavioral, v.customers}
	if v.derived != nil {
		all = append(all, v.derived)
	}
	return all
}
