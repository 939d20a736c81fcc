package view

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/riskview/internal/bus"
	"github.com/opensource-finance/riskview/internal/cache"
	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/metrics"
)

func TestRefreshLifecycle(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	fail := false
	s := NewSnapshot("dashboard", func(ctx context.Context) (int, error) {
		n := int(calls.Add(1))
		if fail {
			return 0, errors.New("backend unavailable")
		}
		return n * 10, nil
	}, Options[int]{})

	t.Run("EmptyBeforeFetch", func(t *testing.T) {
		if _, st, ok := s.Get(); ok || st.State != StateEmpty {
			t.Errorf("expected empty state, got %+v", st)
		}
	})

	t.Run("Ready", func(t *testing.T) {
		if err := s.Refresh(ctx); err != nil {
			t.Fatalf("Refresh: %v", err)
		}
		data, st, ok := s.Get()
		if !ok || data != 10 || st.State != StateReady || st.Sequence != 1 {
			t.Errorf("unexpected snapshot %d %+v", data, st)
		}
	})

	t.Run("ErrorKeepsLastGood", func(t *testing.T) {
		fail = true
		if err := s.Refresh(ctx); err == nil {
			t.Fatal("expected fetch error")
		}
		data, st, ok := s.Get()
		if !ok || data != 10 {
			t.Errorf("expected last good snapshot 10, got %d", data)
		}
		if st.State != StateError || st.Error == "" || st.ErrorAt.IsZero() {
			t.Errorf("expected error state, got %+v", st)
		}
	})

	t.Run("EnsureDoesNotRetry", func(t *testing.T) {
		before := calls.Load()
		if err := s.Ensure(ctx); err != nil {
			t.Fatalf("Ensure: %v", err)
		}
		if calls.Load() != before {
			t.Error("Ensure must not refetch an errored view")
		}
	})

	t.Run("ManualRetryClearsError", func(t *testing.T) {
		fail = false
		if err := s.Refresh(ctx); err != nil {
			t.Fatalf("Refresh: %v", err)
		}
		if st := s.Status(); st.State != StateReady || st.Error != "" {
			t.Errorf("expected ready after retry, got %+v", st)
		}
	})
}

func TestStaleResponseDiscarded(t *testing.T) {
	ctx := context.Background()
	slow := make(chan struct{})
	var calls atomic.Int32

	m, err := metrics.New("test")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	s := NewSnapshot("timeline", func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			<-slow
			return "old", nil
		}
		return "new", nil
	}, Options[string]{Metrics: m})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.Refresh(ctx)
	}()

	// wait until the slow fetch has taken sequence 1
	deadline := time.Now().Add(time.Second)
	for calls.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	close(slow)
	wg.Wait()

	data, st, _ := s.Get()
	if data != "new" {
		t.Errorf("expected newer snapshot to win, got %q", data)
	}
	if st.Sequence != 2 {
		t.Errorf("expected applied sequence 2, got %d", st.Sequence)
	}
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	s := NewSnapshot("model-metrics", func(ctx context.Context) (int, error) {
		return 1, nil
	}, Options[int]{})

	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	s.Discard()

	if _, st, ok := s.Get(); ok || st.State != StateEmpty {
		t.Errorf("expected empty after discard, got %+v", st)
	}
	if err := s.Ensure(ctx); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if _, _, ok := s.Get(); !ok {
		t.Error("expected Ensure to refetch after discard")
	}
}

func TestRefreshPublishesEvents(t *testing.T) {
	ctx := context.Background()
	events := bus.NewChannelBus(10)
	defer events.Close()

	got := make(chan domain.SnapshotEvent, 2)
	_, err := events.Subscribe(ctx, "analyst", domain.TopicSnapshotRefreshed, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.SnapshotEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		got <- ev
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	s := NewSnapshot("timeline", func(ctx context.Context) ([]int, error) {
		return []int{1, 2, 3}, nil
	}, Options[[]int]{Bus: events, Scope: "analyst", Size: func(v []int) int { return len(v) }})

	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	select {
	case ev := <-got:
		if ev.View != "timeline" || ev.Records != 3 || ev.Sequence != 1 {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected snapshot.refreshed event")
	}
}

func TestKeyed(t *testing.T) {
	ctx := context.Background()
	k := NewKeyed("customer", func(ctx context.Context, key string) (string, error) {
		return "profile-" + key, nil
	}, Options[string]{}, 0)

	a := k.For("C1")
	if k.For("C1") != a {
		t.Error("expected the same snapshot for the same key")
	}
	if err := a.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if data, _, _ := a.Get(); data != "profile-C1" {
		t.Errorf("unexpected data %q", data)
	}

	k.Discard()
	if k.Len() != 0 {
		t.Errorf("expected no keys after discard, got %d", k.Len())
	}
	if _, _, ok := a.Get(); ok {
		t.Error("expected discarded snapshot to be empty")
	}
}

func TestKeyedEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	k := NewKeyed("customer", func(ctx context.Context, key string) (string, error) {
		return "profile-" + key, nil
	}, Options[string]{}, 2)

	a := k.For("C1")
	if err := a.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	b := k.For("C2")
	if k.For("C1") != a {
		t.Fatal("expected C1 to be kept")
	}

	k.For("C3")
	if k.Len() != 2 {
		t.Errorf("expected 2 keys, got %d", k.Len())
	}
	if _, _, ok := a.Get(); !ok {
		t.Error("recently used C1 should still hold its snapshot")
	}
	if k.For("C2") == b {
		t.Error("expected C2 to be evicted and recreated")
	}
	if k.For("C1") == a {
		t.Error("expected C1 to be evicted after C2 and C3 were used")
	}
	if _, _, ok := a.Get(); ok {
		t.Error("expected evicted snapshot to be discarded")
	}
}

func TestDerive(t *testing.T) {
	ctx := context.Background()
	d := NewDerivedCache(cache.NewLRUCache(16), "analyst", nil)

	builds := 0
	build := func() map[string]int {
		builds++
		return map[string]int{"shown": 5}
	}

	first, err := Derive(ctx, d, "timeline", 1, "sort=date;", build)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	second, err := Derive(ctx, d, "timeline", 1, "sort=date;", build)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if builds != 1 {
		t.Errorf("expected one build for identical keys, got %d", builds)
	}
	if string(first) != string(second) {
		t.Errorf("expected identical output, got %s vs %s", first, second)
	}

	if _, err := Derive(ctx, d, "timeline", 2, "sort=date;", build); err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if builds != 2 {
		t.Errorf("expected rebuild for a new snapshot sequence, got %d builds", builds)
	}

	d.Discard()
	if _, err := Derive(ctx, d, "timeline", 2, "sort=date;", build); err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if builds != 3 {
		t.Errorf("expected rebuild after discard, got %d builds", builds)
	}

	t.Run("NilCache", func(t *testing.T) {
		out, err := Derive[int](ctx, nil, "x", 1, "", func() int { return 7 })
		if err != nil || string(out) != "7" {
			t.Errorf("unexpected %s %v", out, err)
		}
	})
}

func TestDiscardOnSessionEnd(t *testing.T) {
	ctx := context.Background()
	events := bus.NewChannelBus(10)
	defer events.Close()

	s := NewSnapshot("dashboard", func(ctx context.Context) (int, error) { return 1, nil }, Options[int]{})
	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if _, err := DiscardOnSessionEnd(ctx, events, "analyst", s); err != nil {
		t.Fatalf("DiscardOnSessionEnd: %v", err)
	}
	if err := events.Publish(ctx, "analyst", domain.TopicSessionEnded, []byte(`{}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s.Status().State == StateEmpty {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("expected snapshot discarded after session end")
}
