package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/riskview/internal/domain"
)

func waitFor(t *testing.T, ch <-chan *domain.Message) *domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()
	scope := "analyst"

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		got := make(chan *domain.Message, 1)
		_, err := bus.Subscribe(ctx, scope, domain.TopicSessionEnded, func(ctx context.Context, msg *domain.Message) error {
			got <- msg
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if err := bus.Publish(ctx, scope, domain.TopicSessionEnded, []byte("bye")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		msg := waitFor(t, got)
		if string(msg.Payload) != "bye" {
			t.Errorf("expected payload 'bye', got '%s'", msg.Payload)
		}
		if msg.Scope != scope || msg.Topic != domain.TopicSessionEnded {
			t.Errorf("unexpected envelope %+v", msg)
		}
		if msg.ID == "" || msg.Timestamp == 0 {
			t.Error("expected message id and timestamp")
		}
	})

	t.Run("ScopeIsolation", func(t *testing.T) {
		var other atomic.Int32
		mine := make(chan *domain.Message, 1)

		_, _ = bus.Subscribe(ctx, "analyst-1", "isolation", func(ctx context.Context, msg *domain.Message) error {
			mine <- msg
			return nil
		})
		_, _ = bus.Subscribe(ctx, "analyst-2", "isolation", func(ctx context.Context, msg *domain.Message) error {
			other.Add(1)
			return nil
		})

		_ = bus.Publish(ctx, "analyst-1", "isolation", []byte("x"))
		waitFor(t, mine)
		time.Sleep(20 * time.Millisecond)

		if other.Load() != 0 {
			t.Error("message crossed scopes")
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32
		sub, _ := bus.Subscribe(ctx, scope, "unsub", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})
		if sub.Topic() != "unsub" {
			t.Errorf("Topic() = %q", sub.Topic())
		}

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("unsubscribe failed: %v", err)
		}
		_ = bus.Publish(ctx, scope, "unsub", []byte("x"))
		time.Sleep(20 * time.Millisecond)

		if count.Load() != 0 {
			t.Errorf("received %d messages after unsubscribe", count.Load())
		}
	})

	t.Run("RequiresScope", func(t *testing.T) {
		if err := bus.Publish(ctx, "", "t", nil); !errors.Is(err, ErrScopeRequired) {
			t.Errorf("expected ErrScopeRequired, got %v", err)
		}
		if _, err := bus.Subscribe(ctx, "", "t", nil); !errors.Is(err, ErrScopeRequired) {
			t.Errorf("expected ErrScopeRequired, got %v", err)
		}
	})

	t.Run("PublishJSON", func(t *testing.T) {
		got := make(chan *domain.Message, 1)
		_, _ = bus.Subscribe(ctx, scope, domain.TopicSnapshotRefreshed, func(ctx context.Context, msg *domain.Message) error {
			got <- msg
			return nil
		})

		event := domain.SnapshotEvent{View: "dashboard", Sequence: 3}
		if err := PublishJSON(ctx, bus, scope, domain.TopicSnapshotRefreshed, event); err != nil {
			t.Fatalf("PublishJSON failed: %v", err)
		}

		var decoded domain.SnapshotEvent
		if err := json.Unmarshal(waitFor(t, got).Payload, &decoded); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if decoded != event {
			t.Errorf("decoded %+v, want %+v", decoded, event)
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(10)
	ctx := context.Background()

	_, _ = bus.Subscribe(ctx, "s", "t", func(ctx context.Context, msg *domain.Message) error { return nil })

	if err := bus.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
	if err := bus.Publish(ctx, "s", "t", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := bus.Ping(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Ping, got %v", err)
	}
}

func TestNew(t *testing.T) {
	b, err := New(domain.EventBusConfig{Type: "channel"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer b.Close()
	if _, ok := b.(*ChannelBus); !ok {
		t.Error("expected ChannelBus")
	}

	if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestSubject(t *testing.T) {
	if got := subject("analyst", domain.TopicSessionEnded); got != "riskview.analyst.session.ended" {
		t.Errorf("subject() = %q", got)
	}
}
