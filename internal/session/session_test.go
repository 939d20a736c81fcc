package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/riskview/internal/bus"
	"github.com/opensource-finance/riskview/internal/cache"
	"github.com/opensource-finance/riskview/internal/domain"
)

type fakeAuth struct {
	loginErr  error
	logoutErr error
	expiresIn int64
	logouts   int
}

func (f *fakeAuth) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &domain.LoginResponse{
		AccessToken: "token-" + req.Email,
		TokenType:   "Bearer",
		User:        domain.User{ID: 1, Email: req.Email, Role: domain.RoleUser},
		ExpiresIn:   f.expiresIn,
	}, nil
}

func (f *fakeAuth) Logout(ctx context.Context) error {
	f.logouts++
	return f.logoutErr
}

var testConfig = domain.SessionConfig{Scope: "analyst", TTL: time.Hour}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	store := cache.NewLRUCache(10)
	m := NewManager(&fakeAuth{expiresIn: 600}, store, nil, testConfig, nil)

	data, err := m.Login(ctx, domain.LoginRequest{Email: " a@bank.local ", Password: "pw"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if data.Token != "token-a@bank.local" {
		t.Errorf("unexpected token %q", data.Token)
	}
	if m.Token() != data.Token {
		t.Errorf("Token() = %q, want %q", m.Token(), data.Token)
	}

	persisted, err := store.GetSession(ctx, "analyst")
	if err != nil || persisted == nil {
		t.Fatalf("expected persisted session, got %v %v", persisted, err)
	}
	if persisted.Token != data.Token {
		t.Errorf("persisted token mismatch")
	}
}

func TestLoginValidation(t *testing.T) {
	m := NewManager(&fakeAuth{}, nil, nil, testConfig, nil)

	t.Run("MissingPassword", func(t *testing.T) {
		if _, err := m.Login(context.Background(), domain.LoginRequest{Email: "a@b.c"}); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("BackendRejects", func(t *testing.T) {
		m := NewManager(&fakeAuth{loginErr: errors.New("bad credentials")}, nil, nil, testConfig, nil)
		if _, err := m.Login(context.Background(), domain.LoginRequest{Email: "a@b.c", Password: "x"}); err == nil {
			t.Error("expected login error")
		}
		if _, err := m.Current(); !errors.Is(err, ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})
}

func TestInitRestoresSession(t *testing.T) {
	ctx := context.Background()
	store := cache.NewLRUCache(10)

	first := NewManager(&fakeAuth{}, store, nil, testConfig, nil)
	if _, err := first.Login(ctx, domain.LoginRequest{Email: "a@b.c", Password: "pw"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	second := NewManager(&fakeAuth{}, store, nil, testConfig, nil)
	if err := second.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	current, err := second.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if current.User.Email != "a@b.c" {
		t.Errorf("unexpected restored user %q", current.User.Email)
	}
}

func TestInitDropsExpiredSession(t *testing.T) {
	ctx := context.Background()
	store := cache.NewLRUCache(10)
	expired := &domain.SessionData{
		Token:     "old",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := store.SetSession(ctx, "analyst", expired, 0); err != nil {
		t.Fatalf("SetSession: %v", err)
	}

	m := NewManager(&fakeAuth{}, store, nil, testConfig, nil)
	if err := m.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := m.Current(); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
	if data, _ := store.GetSession(ctx, "analyst"); data != nil {
		t.Error("expected expired session to be cleared")
	}
}

func TestExpiry(t *testing.T) {
	m := NewManager(&fakeAuth{}, nil, nil, testConfig, nil)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	if _, err := m.Login(context.Background(), domain.LoginRequest{Email: "a@b.c", Password: "pw"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if m.Token() == "" {
		t.Fatal("expected live token")
	}

	now = now.Add(2 * time.Hour)
	if m.Token() != "" {
		t.Error("expected token to expire after the configured TTL")
	}
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	store := cache.NewLRUCache(10)
	events := bus.NewChannelBus(10)
	defer events.Close()

	ended := make(chan domain.SessionEvent, 1)
	_, err := events.Subscribe(ctx, "analyst", domain.TopicSessionEnded, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.SessionEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		ended <- ev
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	auth := &fakeAuth{logoutErr: errors.New("backend down")}
	m := NewManager(auth, store, events, testConfig, nil)
	if _, err := m.Login(ctx, domain.LoginRequest{Email: "a@b.c", Password: "pw"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if auth.logouts != 1 {
		t.Errorf("expected backend logout call, got %d", auth.logouts)
	}
	if m.Token() != "" {
		t.Error("expected session cleared despite backend failure")
	}
	if data, _ := store.GetSession(ctx, "analyst"); data != nil {
		t.Error("expected persisted session cleared")
	}

	select {
	case ev := <-ended:
		if ev.Email != "a@b.c" {
			t.Errorf("unexpected event email %q", ev.Email)
		}
	case <-time.After(time.Second):
		t.Fatal("expected session.ended event")
	}
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	m := NewManager(&fakeAuth{}, cache.NewLRUCache(10), nil, testConfig, nil)

	m.Invalidate(ctx)

	if _, err := m.Login(ctx, domain.LoginRequest{Email: "a@b.c", Password: "pw"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	m.Invalidate(ctx)
	if _, err := m.Current(); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
}
