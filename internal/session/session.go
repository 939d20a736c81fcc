// Package session owns the analyst session: it logs in against the
// statistics service, persists the token in the cache so a restart keeps
// the analyst signed in, and announces session start and end on the bus.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/riskview/internal/bus"
	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/metrics"
)

// ErrNotAuthenticated is returned when no live session exists.
var ErrNotAuthenticated = errors.New("not authenticated")

// Authenticator is the part of the statistics client the session needs.
type Authenticator interface {
	Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error)
	Logout(ctx context.Context) error
}

// Manager holds the single analyst session of a riskview process.
type Manager struct {
	auth    Authenticator
	cache   domain.Cache
	bus     domain.EventBus
	metrics *metrics.Metrics
	scope   string
	ttl     time.Duration
	now     func() time.Time

	mu      sync.RWMutex
	current *domain.SessionData
}

// NewManager creates a session manager. cache, bus and m may be nil.
func NewManager(auth Authenticator, cache domain.Cache, eventBus domain.EventBus, cfg domain.SessionConfig, m *metrics.Metrics) *Manager {
	scope := cfg.Scope
	if scope == "" {
		scope = "analyst"
	}
	return &Manager{
		auth:    auth,
		cache:   cache,
		bus:     eventBus,
		metrics: m,
		scope:   scope,
		ttl:     cfg.TTL,
		now:     time.Now,
	}
}

// Scope returns the scope used for cache keys and bus topics.
func (m *Manager) Scope() string {
	return m.scope
}

// Init restores a persisted session. An expired one is dropped.
func (m *Manager) Init(ctx context.Context) error {
	if m.cache == nil {
		return nil
	}

	data, err := m.cache.GetSession(ctx, m.scope)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if data == nil || data.Token == "" {
		return nil
	}
	if data.Expired(m.now()) {
		slog.Info("persisted session expired", "scope", m.scope, "expired_at", data.ExpiresAt)
		return m.cache.SetSession(ctx, m.scope, nil, 0)
	}

	m.mu.Lock()
	m.current = data
	m.mu.Unlock()

	m.metrics.ObserveSession("restored")
	slog.Info("session restored", "scope", m.scope, "email", data.User.Email)
	return nil
}

// Login authenticates against the statistics service and persists the session.
func (m *Manager) Login(ctx context.Context, req domain.LoginRequest) (*domain.SessionData, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return nil, fmt.Errorf("email and password are required")
	}

	resp, err := m.auth.Login(ctx, req)
	if err != nil {
		m.metrics.ObserveSession("login_failed")
		return nil, err
	}

	now := m.now()
	data := &domain.SessionData{
		Token: resp.AccessToken,
		User:  resp.User,
	}
	switch {
	case resp.ExpiresIn > 0:
		data.ExpiresAt = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	case m.ttl > 0:
		data.ExpiresAt = now.Add(m.ttl)
	}

	if m.cache != nil {
		if err := m.cache.SetSession(ctx, m.scope, data, data.ExpiresAt.Sub(now)); err != nil {
			slog.Warn("failed to persist session", "scope", m.scope, "error", err)
		}
	}

	m.mu.Lock()
	m.current = data
	m.mu.Unlock()

	m.metrics.ObserveSession("login")
	m.publish(ctx, domain.TopicSessionStarted, data.User.Email)
	slog.Info("analyst logged in", "scope", m.scope, "email", data.User.Email)
	return data, nil
}

// Logout ends the session. Local state is always cleared, even when the
// statistics service rejects or cannot be reached for the logout call.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.RLock()
	data := m.current
	m.mu.RUnlock()

	if data != nil && m.auth != nil {
		if err := m.auth.Logout(ctx); err != nil {
			slog.Warn("backend logout failed", "scope", m.scope, "error", err)
		}
	}

	m.clear(ctx)

	email := ""
	if data != nil {
		email = data.User.Email
	}
	m.metrics.ObserveSession("logout")
	m.publish(ctx, domain.TopicSessionEnded, email)
	slog.Info("analyst logged out", "scope", m.scope, "email", email)
	return nil
}

// Invalidate drops the session after the service rejected its token.
func (m *Manager) Invalidate(ctx context.Context) {
	m.mu.RLock()
	had := m.current != nil
	m.mu.RUnlock()
	if !had {
		return
	}

	m.clear(ctx)
	m.metrics.ObserveSession("invalidated")
	m.publish(ctx, domain.TopicSessionEnded, "")
	slog.Warn("session invalidated by backend", "scope", m.scope)
}

// Current returns the live session.
func (m *Manager) Current() (*domain.SessionData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil || m.current.Expired(m.now()) {
		return nil, ErrNotAuthenticated
	}
	copied := *m.current
	return &copied, nil
}

// Token returns the bearer token of the live session, or "".
func (m *Manager) Token() string {
	data, err := m.Current()
	if err != nil {
		return ""
	}
	return data.Token
}

func (m *Manager) clear(ctx context.Context) {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	if m.cache != nil {
		if err := m.cache.SetSession(ctx, m.scope, nil, 0); err != nil {
			slog.Warn("failed to clear persisted session", "scope", m.scope, "error", err)
		}
	}
}

func (m *Manager) publish(ctx context.Context, topic, email string) {
	if m.bus == nil {
		return
	}
	event := domain.SessionEvent{Email: email, At: m.now().Unix()}
	if err := bus.PublishJSON(ctx, m.bus, m.scope, topic, event); err != nil {
		slog.Warn("failed to publish session event", "topic", topic, "error", err)
	}
}
