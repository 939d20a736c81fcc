// Package statsclient is the typed HTTP client for the statistics,
// transaction and auth endpoints of the fraud-scoring service.
package statsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/metrics"
)

var tracer = otel.Tracer("riskview-statsclient")

// maxErrorBody bounds how much of a failed response is kept in HTTPError.
const maxErrorBody = 4 << 10

// TokenSource yields the bearer token of the current session.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

// Token returns f().
func (f TokenFunc) Token() string { return f() }

// Client talks to the statistics service.
type Client struct {
	baseURL string
	http    *http.Client
	metrics *metrics.Metrics
	tokens  TokenSource
}

// New creates a client for cfg.BaseURL. m may be nil.
func New(cfg domain.BackendConfig, m *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		metrics: m,
	}
}

// UseTokens sets where the bearer token comes from.
func (c *Client) UseTokens(ts TokenSource) {
	c.tokens = ts
}

// BaseURL returns the service root the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Report is an exported document as returned by the service.
type Report struct {
	ContentType string
	Filename    string
	Body        []byte
}

// Dashboard fetches GET /statistics/dashboard.
func (c *Client) Dashboard(ctx context.Context) (*domain.DashboardStats, error) {
	return fetch[*domain.DashboardStats](ctx, c, http.MethodGet, "statistics.dashboard", "/statistics/dashboard", nil, nil)
}

// CustomerAnalytics fetches GET /statistics/customer/{id}.
func (c *Client) CustomerAnalytics(ctx context.Context, customerID string) (*domain.CustomerAnalytics, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, fmt.Errorf("customer id is required")
	}
	return fetch[*domain.CustomerAnalytics](ctx, c, http.MethodGet, "statistics.customer",
		"/statistics/customer/"+url.PathEscape(customerID), nil, nil)
}

// ModelMetrics fetches GET /statistics/model-metrics.
func (c *Client) ModelMetrics(ctx context.Context) (*domain.ModelMetrics, error) {
	return fetch[*domain.ModelMetrics](ctx, c, http.MethodGet, "statistics.model_metrics", "/statistics/model-metrics", nil, nil)
}

// FeatureImportance fetches GET /statistics/feature-importance.
func (c *Client) FeatureImportance(ctx context.Context) ([]domain.FeatureImportance, error) {
	return fetch[[]domain.FeatureImportance](ctx, c, http.MethodGet, "statistics.feature_importance", "/statistics/feature-importance", nil, nil)
}

// BehavioralInsights fetches GET /statistics/behavioral-insights.
func (c *Client) BehavioralInsights(ctx context.Context) (*domain.BehavioralInsights, error) {
	return fetch[*domain.BehavioralInsights](ctx, c, http.MethodGet, "statistics.behavioral_insights", "/statistics/behavioral-insights", nil, nil)
}

// FilterTransactions posts to /statistics/transactions/filter.
func (c *Client) FilterTransactions(ctx context.Context, req domain.TransactionFilterRequest) (*domain.FilteredTransactions, error) {
	return fetch[*domain.FilteredTransactions](ctx, c, http.MethodPost, "statistics.filter", "/statistics/transactions/filter", nil, req)
}

// Transactions fetches one page of GET /transactions.
func (c *Client) Transactions(ctx context.Context, page, size int) (*domain.TransactionPage, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 50
	}
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(size))

	records, err := fetch[[]domain.TransactionRecord](ctx, c, http.MethodGet, "transactions.list", "/transactions", query, nil)
	if err != nil {
		return nil, err
	}
	return &domain.TransactionPage{Records: records, Page: page, Size: size}, nil
}

// Fraudulent fetches GET /transactions/fraudulent.
func (c *Client) Fraudulent(ctx context.Context) ([]domain.TransactionRecord, error) {
	return fetch[[]domain.TransactionRecord](ctx, c, http.MethodGet, "transactions.fraudulent", "/transactions/fraudulent", nil, nil)
}

// Analyze posts to /transactions/{id}/analyze.
func (c *Client) Analyze(ctx context.Context, id int64) (*domain.TransactionAnalysis, error) {
	path := "/transactions/" + strconv.FormatInt(id, 10) + "/analyze"
	return fetch[*domain.TransactionAnalysis](ctx, c, http.MethodPost, "transactions.analyze", path, nil, nil)
}

// Export fetches GET /statistics/export as an opaque document.
func (c *Client) Export(ctx context.Context, format string) (*Report, error) {
	switch format {
	case "pdf", "excel":
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	query := url.Values{}
	query.Set("format", format)

	resp, err := c.send(ctx, http.MethodGet, "statistics.export", "/statistics/export", query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}

	report := &Report{
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}
	if report.ContentType == "" {
		report.ContentType = "application/octet-stream"
	}
	report.Filename = "fraud-report.pdf"
	if format == "excel" {
		report.Filename = "fraud-report.xlsx"
	}
	return report, nil
}

// Login posts credentials to /auth/login. The response is not enveloped.
func (c *Client) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error) {
	resp, err := c.send(ctx, http.MethodPost, "auth.login", "/auth/login", nil, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out domain.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("%w: login response carries no token", ErrBackend)
	}
	return &out, nil
}

// Logout posts to /auth/logout.
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.send(ctx, http.MethodPost, "auth.logout", "/auth/logout", nil, nil)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// Me fetches GET /auth/me, which answers with the analyst identity as a
// JSON string or as plain text.
func (c *Client) Me(ctx context.Context) (string, error) {
	resp, err := c.send(ctx, http.MethodGet, "auth.me", "/auth/me", nil, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read identity: %w", err)
	}
	var identity string
	if err := json.Unmarshal(body, &identity); err == nil {
		return identity, nil
	}
	return strings.TrimSpace(string(body)), nil
}

// fetch performs a request and unwraps the {success, message, data} envelope.
func fetch[T any](ctx context.Context, c *Client, method, endpoint, path string, query url.Values, body any) (T, error) {
	var zero T

	resp, err := c.send(ctx, method, endpoint, path, query, body)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	var env domain.Envelope[T]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return zero, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	if !env.Success {
		return zero, fmt.Errorf("%w: %s: %s", ErrBackend, endpoint, env.Message)
	}
	return env.Data, nil
}

// send executes one request. Non-2xx responses are returned as *HTTPError
// with the body already consumed.
func (c *Client) send(ctx context.Context, method, endpoint, path string, query url.Values, body any) (*http.Response, error) {
	ctx, span := tracer.Start(ctx, "statsclient "+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
		),
	)
	defer span.End()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveBackend(endpoint, 0, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return nil, fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	c.metrics.ObserveBackend(endpoint, resp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		httpErr := &HTTPError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw),
		}
		span.SetStatus(codes.Error, httpErr.Error())
		slog.Debug("statistics service error",
			"endpoint", endpoint,
			"status", resp.StatusCode,
			"message", httpErr.Message,
		)
		return nil, httpErr
	}
	return resp, nil
}

// errorMessage extracts the message of an enveloped error body, or the raw text.
func errorMessage(raw []byte) string {
	var env struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err == nil {
		if env.Message != "" {
			return env.Message
		}
		if env.Error != "" {
			return env.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
