package view

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/metrics"
)

// DerivedCache memoizes encoded derived views keyed by
// (view, snapshot sequence, criteria key). A snapshot never changes once
// applied, so an entry is valid for as long as the cache keeps it.
// Discard starts a new generation so entries of a previous session are
// never served again.
type DerivedCache struct {
	store      domain.Cache
	scope      string
	metrics    *metrics.Metrics
	generation atomic.Uint64
}

// NewDerivedCache stores derived views in store under scope.
// A nil store disables caching.
func NewDerivedCache(store domain.Cache, scope string, m *metrics.Metrics) *DerivedCache {
	return &DerivedCache{store: store, scope: scope, metrics: m}
}

// Discard invalidates every entry written so far.
func (d *DerivedCache) Discard() {
	d.generation.Add(1)
}

func (d *DerivedCache) key(view string, seq uint64, criteria string) string {
	return "derived:" + strconv.FormatUint(d.generation.Load(), 10) + ":" +
		view + ":" + strconv.FormatUint(seq, 10) + ":" + criteria
}

// Derive returns the encoded view for the key, building and storing it on a miss.
func Derive[V any](ctx context.Context, d *DerivedCache, view string, seq uint64, criteria string, build func() V) (json.RawMessage, error) {
	if d == nil || d.store == nil {
		encoded, err := json.Marshal(build())
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s view: %w", view, err)
		}
		return encoded, nil
	}

	key := d.key(view, seq, criteria)
	cached, err := d.store.Get(ctx, d.scope, key)
	if err != nil {
		slog.Debug("derived view cache read failed", "view", view, "error", err)
	}
	if cached != nil {
		d.metrics.ObserveDerived(true)
		return json.RawMessage(cached), nil
	}
	d.metrics.ObserveDerived(false)

	encoded, err := json.Marshal(build())
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s view: %w", view, err)
	}
	if err := d.store.Set(ctx, d.scope, key, encoded, 0); err != nil {
		slog.Debug("derived view cache write failed", "view", view, "error", err)
	}
	return encoded, nil
}
