// Package statsd serves the statistics API consumed by riskview from a local
// store. It exists for development and end-to-end testing.
package statsd

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/repository"
	"github.com/opensource-finance/riskview/internal/worker"
)

// maxPageSize caps GET /transactions.
const maxPageSize = 1000

// RuleSource lists the risk rules behind feature importance.
type RuleSource interface {
	GetLoadedRules() []*domain.RiskRule
}

// Handler contains the statistics HTTP handlers.
type Handler struct {
	repo   domain.Repository
	cache  domain.Cache
	bus    domain.EventBus
	scorer worker.Analyzer
	rules  RuleSource
	calc   *Calculator
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := map[string]string{"repository": "ok", "cache": "ok", "bus": "ok"}
	status := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		checks["repository"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			checks["cache"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(ctx); err != nil {
			checks["bus"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	if status != http.StatusOK {
		writeJSON(w, status, domain.Envelope[map[string]string]{Success: false, Message: "unhealthy", Data: checks})
		return
	}
	respond(w, status, checks)
}

// Dashboard handles GET /statistics/dashboard.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	records, err := h.repo.ListTransactions(r.Context(), 0, 0)
	if err != nil {
		h.storeError(w, "dashboard", err)
		return
	}
	behaviors, err := h.repo.ListBehaviors(r.Context())
	if err != nil {
		h.storeError(w, "dashboard", err)
		return
	}
	respond(w, http.StatusOK, h.calc.Dashboard(records, behaviors))
}

// Customer handles GET /statistics/customer/{id}.
func (h *Handler) Customer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	records, err := h.repo.ListTransactionsByCustomer(ctx, id)
	if err != nil {
		h.storeError(w, "customer", err)
		return
	}
	behavior, err := h.repo.GetBehavior(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		h.storeError(w, "customer", err)
		return
	}
	if len(records) == 0 && behavior == nil {
		respondError(w, http.StatusNotFound, "customer not found")
		return
	}
	respond(w, http.StatusOK, h.calc.Customer(id, records, behavior))
}

// ModelMetrics handles GET /statistics/model-metrics.
func (h *Handler) ModelMetrics(w http.ResponseWriter, r *http.Request) {
	records, err := h.repo.ListTransactions(r.Context(), 0, 0)
	if err != nil {
		h.storeError(w, "model metrics", err)
		return
	}
	respond(w, http.StatusOK, h.calc.ModelMetrics(records))
}

// FeatureImportance handles GET /statistics/feature-importance.
func (h *Handler) FeatureImportance(w http.ResponseWriter, r *http.Request) {
	var rules []*domain.RiskRule
	if h.rules != nil {
		rules = h.rules.GetLoadedRules()
	}
	respond(w, http.StatusOK, FeatureImportance(rules))
}

// BehavioralInsights handles GET /statistics/behavioral-insights.
func (h *Handler) BehavioralInsights(w http.ResponseWriter, r *http.Request) {
	behaviors, err := h.repo.ListBehaviors(r.Context())
	if err != nil {
		h.storeError(w, "behavioral insights", err)
		return
	}
	respond(w, http.StatusOK, h.calc.BehavioralInsights(behaviors))
}

// FilterTransactions handles POST /statistics/transactions/filter.
func (h *Handler) FilterTransactions(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionFilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	records, err := h.repo.ListTransactions(r.Context(), 0, 0)
	if err != nil {
		h.storeError(w, "filter", err)
		return
	}
	respond(w, http.StatusOK, h.calc.Filter(records, req))
}

// Export handles GET /statistics/export. Report rendering is not provided.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format != "pdf" && format != "excel" {
		respondError(w, http.StatusBadRequest, "format must be pdf or excel")
		return
	}
	respondError(w, http.StatusNotImplemented, "report export is not available on the development backend")
}

// Transactions handles GET /transactions?page=&size=. Pages are zero-based.
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	page, size := 0, 50
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid page")
			return
		}
		page = n
	}
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid size")
			return
		}
		size = min(n, maxPageSize)
	}

	records, err := h.repo.ListTransactions(r.Context(), page*size, size)
	if err != nil {
		h.storeError(w, "transactions", err)
		return
	}
	respond(w, http.StatusOK, records)
}

// Fraudulent handles GET /transactions/fraudulent.
func (h *Handler) Fraudulent(w http.ResponseWriter, r *http.Request) {
	records, err := h.repo.ListTransactions(r.Context(), 0, 0)
	if err != nil {
		h.storeError(w, "fraudulent", err)
		return
	}
	out := h.calc.Filter(records, domain.TransactionFilterRequest{FraudStatus: domain.FraudStatusFraud})
	respond(w, http.StatusOK, out.Transactions)
}

// Analyze handles POST /transactions/{id}/analyze.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	analysis, err := h.scorer.Analyze(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		respondError(w, http.StatusNotFound, "transaction not found")
		return
	}
	if err != nil {
		h.storeError(w, "analyze", err)
		return
	}
	respond(w, http.StatusOK, analysis)
}

func (h *Handler) storeError(w http.ResponseWriter, op string, err error) {
	slog.Error("statistics request failed", "operation", op, "error", err)
	respondError(w, http.StatusInternalServerError, "failed to load statistics")
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
