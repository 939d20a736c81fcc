package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/riskview/internal/classify"
	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/filter"
	"github.com/opensource-finance/riskview/internal/insight"
	"github.com/opensource-finance/riskview/internal/kpi"
	"github.com/opensource-finance/riskview/internal/session"
	"github.com/opensource-finance/riskview/internal/statsclient"
	"github.com/opensource-finance/riskview/internal/view"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	sessions   *session.Manager
	source     Source
	classifier *classify.Classifier
	filter     *filter.Engine
	cache      domain.Cache
	bus        domain.EventBus
	derived    *view.DerivedCache
	views      *views
	settings   domain.ViewsConfig
	location   *time.Location
	version    string
}

// ViewResponse is the data of every /views response.
type ViewResponse struct {
	Name string `json:"name"`
	view.Status
	View json.RawMessage `json:"view,omitempty"`
}

// SessionResponse is the data of the /session routes.
type SessionResponse struct {
	Authenticated bool        `json:"authenticated"`
	User          domain.User `json:"user"`
	ExpiresAt     time.Time   `json:"expiresAt,omitzero"`
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	respond(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready reports whether an analyst session is live.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	_, err := h.sessions.Current()
	respond(w, http.StatusOK, map[string]bool{
		"ready":         true,
		"authenticated": err == nil,
	})
}

// Login handles POST /session/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	data, err := h.sessions.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, statsclient.ErrUnauthorized) {
			respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		slog.Error("login failed", "error", err)
		respondError(w, http.StatusBadGateway, "statistics service unavailable")
		return
	}

	respond(w, http.StatusOK, SessionResponse{
		Authenticated: true,
		User:          data.User,
		ExpiresAt:     data.ExpiresAt,
	})
}

// Logout handles POST /session/logout. It always succeeds locally.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context()); err != nil {
		slog.Error("logout failed", "error", err)
	}
	// session.ended is delivered asynchronously and may be dropped.
	h.views.discard()
	respond(w, http.StatusOK, SessionResponse{Authenticated: false})
}

// Me handles GET /session/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	data, err := h.sessions.Current()
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}
	respond(w, http.StatusOK, SessionResponse{
		Authenticated: true,
		User:          data.User,
		ExpiresAt:     data.ExpiresAt,
	})
}

// Dashboard handles GET /views/dashboard.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap := h.views.dashboard
	_ = snap.Ensure(ctx)

	stats, status, ok := snap.Get()
	// The dashboard charts whole trends unless a window is asked for.
	window := queryWindow(r)
	var encoded json.RawMessage
	if ok && stats != nil {
		var err error
		encoded, err = view.Derive(ctx, h.derived, ViewDashboard, status.Sequence, "window="+strconv.Itoa(window), func() insight.DashboardView {
			return insight.Dashboard(*stats, h.classifier, window)
		})
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	h.respondView(w, r, ViewDashboard, status, encoded)
}

// Timeline handles GET /views/timeline.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap := h.views.timeline
	_ = snap.Ensure(ctx)

	records, status, ok := snap.Get()
	criteria := filter.ParseCriteria(r.URL.Query(), h.location)
	window := h.window(r)

	var encoded json.RawMessage
	if ok {
		var err error
		key := criteria.Key() + "window=" + strconv.Itoa(window) + ";"
		encoded, err = view.Derive(ctx, h.derived, ViewTimeline, status.Sequence, key, func() insight.TimelineResult {
			return insight.TimelineView(records, criteria, h.classifier, insight.TimelineOptions{
				Location:   h.location,
				Window:     window,
				TableLimit: h.settings.TableLimit,
				Filter:     h.filter,
			})
		})
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	h.respondView(w, r, ViewTimeline, status, encoded)
}

// Customer handles GET /views/customers/{id}.
func (h *Handler) Customer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "customer id is required")
		return
	}

	snap := h.views.customers.For(id)
	_ = snap.Ensure(ctx)

	analytics, status, ok := snap.Get()
	name := ViewCustomer + ":" + id
	var encoded json.RawMessage
	if ok && analytics != nil {
		var err error
		encoded, err = view.Derive(ctx, h.derived, name, status.Sequence, "", func() insight.CustomerView {
			return insight.CustomerProfile(*analytics, h.classifier, h.settings.HistoryLimit)
		})
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	h.respondView(w, r, name, status, encoded)
}

// ModelMetrics handles GET /views/model-metrics. Ratios are recomputed
// from the confusion counts.
func (h *Handler) ModelMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap := h.views.model
	_ = snap.Ensure(ctx)

	mm, status, ok := snap.Get()
	var encoded json.RawMessage
	if ok && mm != nil {
		var err error
		encoded, err = view.Derive(ctx, h.derived, ViewModelMetrics, status.Sequence, "", func() domain.ModelMetrics {
			return kpi.Recompute(*mm, h.classifier.Policy().FBeta)
		})
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	h.respondView(w, r, ViewModelMetrics, status, encoded)
}

// FeatureImportance handles GET /views/feature-importance.
func (h *Handler) FeatureImportance(w http.ResponseWriter, r *http.Request) {
	snap := h.views.features
	_ = snap.Ensure(r.Context())

	features, status, ok := snap.Get()
	var encoded json.RawMessage
	if ok {
		var err error
		encoded, err = json.Marshal(features)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	h.respondView(w, r, ViewFeatureImportance, status, encoded)
}

// BehavioralInsights handles GET /views/behavioral-insights.
func (h *Handler) BehavioralInsights(w http.ResponseWriter, r *http.Request) {
	snap := h.views.behavioral
	_ = snap.Ensure(r.Context())

	bi, status, ok := snap.Get()
	var encoded json.RawMessage
	if ok && bi != nil {
		var err error
		encoded, err = json.Marshal(bi)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	h.respondView(w, r, ViewBehavioralInsights, status, encoded)
}

// Transactions handles GET /views/transactions, the analysis page list.
// It shares the timeline snapshot.
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap := h.views.timeline
	_ = snap.Ensure(ctx)

	records, status, ok := snap.Get()
	fraudStatus := filter.ParseCriteria(r.URL.Query(), h.location).NormalizedFraudStatus()

	var encoded json.RawMessage
	if ok {
		var err error
		encoded, err = view.Derive(ctx, h.derived, ViewTransactions, status.Sequence, "fraudStatus="+string(fraudStatus), func() insight.TransactionListView {
			return insight.TransactionList(records, fraudStatus, h.classifier, insight.DefaultListLimit)
		})
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	h.respondView(w, r, ViewTransactions, status, encoded)
}

// SearchTransactions handles POST /views/transactions/search. The filter
// runs on the statistics service over its whole store.
func (h *Handler) SearchTransactions(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionFilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	res, err := h.source.FilterTransactions(r.Context(), req)
	if err != nil {
		h.respondSourceError(w, r, "transaction search", err)
		return
	}
	respond(w, http.StatusOK, insight.Search(*res, h.classifier))
}

// Fraudulent handles GET /views/transactions/fraudulent.
func (h *Handler) Fraudulent(w http.ResponseWriter, r *http.Request) {
	records, err := h.source.Fraudulent(r.Context())
	if err != nil {
		h.respondSourceError(w, r, "fraudulent transactions", err)
		return
	}
	respond(w, http.StatusOK, h.classifier.Annotate(records))
}

// AnalyzeTransaction handles POST /views/transactions/{id}/analyze. The
// backend rescoring is not cached; the timeline picks it up on refresh.
func (h *Handler) AnalyzeTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "transaction id must be a positive integer")
		return
	}

	analysis, err := h.source.Analyze(r.Context(), id)
	if err != nil {
		h.respondSourceError(w, r, "transaction analysis", err)
		return
	}
	respond(w, http.StatusOK, analysis)
}

// Refresh handles POST /views/{name}/refresh, the manual retry.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	snap, ok := h.views.byName(name)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown view: "+name)
		return
	}
	h.refresh(w, r, name, snap)
}

// RefreshCustomer handles POST /views/customers/{id}/refresh.
func (h *Handler) RefreshCustomer(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "customer id is required")
		return
	}
	h.refresh(w, r, ViewCustomer+":"+id, h.views.customers.For(id))
}

// refresh refetches one view; a failure is reported through the view state.
func (h *Handler) refresh(w http.ResponseWriter, r *http.Request, name string, snap refresher) {
	if err := snap.Refresh(r.Context()); err != nil {
		slog.Info("manual refresh failed", "view", name, "error", err)
	}
	h.respondView(w, r, name, snap.Status(), nil)
}

// Export handles GET /reports/export and streams the backend document.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format != "pdf" && format != "excel" {
		respondError(w, http.StatusBadRequest, "format must be pdf or excel")
		return
	}

	report, err := h.source.Export(r.Context(), format)
	if err != nil {
		h.respondSourceError(w, r, "report export", err)
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(report.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(report.Body)
}

// respondView writes a view with its state. A view in error state answers
// 502 and still carries the last good snapshot when one exists.
func (h *Handler) respondView(w http.ResponseWriter, r *http.Request, name string, status view.Status, encoded json.RawMessage) {
	if _, err := h.sessions.Current(); err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	resp := ViewResponse{Name: name, Status: status, View: encoded}
	if status.State == view.StateError {
		writeJSON(w, http.StatusBadGateway, domain.Envelope[ViewResponse]{
			Success: false,
			Message: status.Error,
			Data:    resp,
		})
		return
	}
	respond(w, http.StatusOK, resp)
}

// respondSourceError maps a direct statistics call failure to a response.
// A rejected token ends the session like a failed view fetch does.
func (h *Handler) respondSourceError(w http.ResponseWriter, r *http.Request, what string, err error) {
	var httpErr *statsclient.HTTPError
	switch {
	case errors.Is(err, statsclient.ErrUnauthorized):
		h.sessions.Invalidate(r.Context())
		h.views.discard()
		respondError(w, http.StatusUnauthorized, "session rejected by statistics service")
	case errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound:
		respondError(w, http.StatusNotFound, what+": not found")
	case errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotImplemented:
		respondError(w, http.StatusNotImplemented, what+" is not available")
	default:
		slog.Error("statistics call failed", "call", what, "error", err)
		respondError(w, http.StatusBadGateway, err.Error())
	}
}

func (h *Handler) window(r *http.Request) int {
	if n := queryWindow(r); n > 0 {
		return n
	}
	return h.settings.TrendWindow
}

// queryWindow returns the window query parameter, or 0 when it is absent
// or invalid.
func queryWindow(r *http.Request) int {
	if raw := r.URL.Query().Get("window"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

func respond[T any](w http.ResponseWriter, status int, data T) {
	writeJSON(w, status, domain.Envelope[T]{Success: true, Message: "ok", Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, domain.Envelope[any]{Success: false, Message: message})
}
