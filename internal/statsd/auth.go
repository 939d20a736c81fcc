package statsd

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/riskview/internal/domain"
)

const (
	// authScope holds dev tokens, failed-login counters and lockouts.
	authScope = "statsd-auth"

	tokenPrefix   = "token:"
	failedPrefix  = "failed:"
	lockoutPrefix = "lockout:"
)

type userKey struct{}

// Authenticator issues and checks opaque bearer tokens for the single
// configured development credential.
type Authenticator struct {
	cache   domain.Cache
	config  domain.DevBackendConfig
	now     func() time.Time
	created time.Time
}

// NewAuthenticator creates an authenticator over the cache.
func NewAuthenticator(cache domain.Cache, cfg domain.DevBackendConfig) *Authenticator {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 12 * time.Hour
	}
	if cfg.MaxFailedLogin <= 0 {
		cfg.MaxFailedLogin = 5
	}
	if cfg.LockoutWindow <= 0 {
		cfg.LockoutWindow = 15 * time.Minute
	}
	return &Authenticator{
		cache:   cache,
		config:  cfg,
		now:     time.Now,
		created: time.Now().UTC(),
	}
}

// Login handles POST /auth/login. The response is not enveloped.
func (a *Authenticator) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	ctx := r.Context()
	locked, err := a.cache.Get(ctx, authScope, lockoutPrefix+email)
	if err != nil {
		slog.Error("lockout lookup failed", "error", err)
		respondError(w, http.StatusInternalServerError, "authentication unavailable")
		return
	}
	if locked != nil {
		respondError(w, http.StatusTooManyRequests, "too many failed attempts, try again later")
		return
	}

	if email != strings.ToLower(a.config.Email) || req.Password != a.config.Password {
		a.recordFailure(ctx, email)
		respondError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	token := uuid.NewString()
	user := domain.User{
		ID:          1,
		Email:       a.config.Email,
		FullName:    "Development Analyst",
		Role:        domain.RoleAdmin,
		Enabled:     true,
		CreatedAt:   a.created,
		LastLoginAt: a.now().UTC(),
	}
	raw, err := json.Marshal(user)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	if err := a.cache.Set(ctx, authScope, tokenPrefix+token, raw, a.config.TokenTTL); err != nil {
		slog.Error("failed to store token", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	_ = a.cache.Delete(ctx, authScope, failedPrefix+email)

	slog.Info("dev analyst logged in", "email", user.Email)
	writeJSON(w, http.StatusOK, domain.LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		User:        user,
		ExpiresIn:   int64(a.config.TokenTTL / time.Second),
	})
}

// recordFailure counts a failed login and locks the account once the
// configured number of failures is reached inside the window.
func (a *Authenticator) recordFailure(ctx context.Context, email string) {
	n, err := a.cache.IncrementCounter(ctx, authScope, failedPrefix+email, a.config.LockoutWindow)
	if err != nil {
		slog.Warn("failed to count failed login", "error", err)
		return
	}
	if n >= int64(a.config.MaxFailedLogin) {
		if err := a.cache.Set(ctx, authScope, lockoutPrefix+email, []byte("1"), a.config.LockoutWindow); err != nil {
			slog.Warn("failed to lock account", "error", err)
			return
		}
		slog.Warn("account locked", "email", email, "failures", n)
	}
}

// Logout handles POST /auth/logout.
func (a *Authenticator) Logout(w http.ResponseWriter, r *http.Request) {
	if token := bearer(r); token != "" {
		if err := a.cache.Delete(r.Context(), authScope, tokenPrefix+token); err != nil {
			slog.Warn("failed to revoke token", "error", err)
		}
	}
	respond(w, http.StatusOK, "logged out")
}

// Me handles GET /auth/me with the analyst's email as a JSON string.
func (a *Authenticator) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(userKey{}).(domain.User)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, user.Email)
}

// Middleware rejects requests without a live bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearer(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		raw, err := a.cache.Get(r.Context(), authScope, tokenPrefix+token)
		if err != nil {
			slog.Error("token lookup failed", "error", err)
			respondError(w, http.StatusInternalServerError, "authentication unavailable")
			return
		}
		if raw == nil {
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		var user domain.User
		if err := json.Unmarshal(raw, &user); err != nil {
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
