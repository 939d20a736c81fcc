package statsclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opensource-finance/riskview/internal/domain"
	"github.com/opensource-finance/riskview/internal/metrics"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m, err := metrics.New("test")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	return New(domain.BackendConfig{BaseURL: srv.URL + "/", Timeout: 2 * time.Second}, m)
}

func writeEnvelope(w http.ResponseWriter, success bool, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": success,
		"message": message,
		"data":    data,
	})
}

func TestDashboard(t *testing.T) {
	var gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/statistics/dashboard" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		writeEnvelope(w, true, "ok", map[string]any{
			"totalTransactions": 1000,
			"fraudCount":        25,
			"totalAmount":       "125000.50",
		})
	})
	client.UseTokens(TokenFunc(func() string { return "tok-123" }))

	stats, err := client.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if stats.TotalTransactions != 1000 || stats.FraudCount != 25 {
		t.Errorf("unexpected counts: %+v", stats)
	}
	if stats.TotalAmount.String() != "125000.5" {
		t.Errorf("expected amount 125000.5, got %s", stats.TotalAmount)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("expected bearer token, got %q", gotAuth)
	}
}

func TestEnvelopeFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, false, "model offline", nil)
	})

	_, err := client.ModelMetrics(context.Background())
	if !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
}

func TestHTTPErrors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		unauthorized bool
	}{
		{"Unauthorized", http.StatusUnauthorized, true},
		{"Forbidden", http.StatusForbidden, true},
		{"ServerError", http.StatusInternalServerError, false},
		{"NotFound", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"success":false,"message":"nope"}`))
			})

			_, err := client.CustomerAnalytics(context.Background(), "CUST-1")
			var httpErr *HTTPError
			if !errors.As(err, &httpErr) {
				t.Fatalf("expected *HTTPError, got %v", err)
			}
			if httpErr.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, httpErr.StatusCode)
			}
			if httpErr.Message != "nope" {
				t.Errorf("expected message nope, got %q", httpErr.Message)
			}
			if errors.Is(err, ErrUnauthorized) != tt.unauthorized {
				t.Errorf("errors.Is(ErrUnauthorized) = %v, want %v", !tt.unauthorized, tt.unauthorized)
			}
		})
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(domain.BackendConfig{BaseURL: url, Timeout: time.Second}, nil)
	if _, err := client.FeatureImportance(context.Background()); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestTransactions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("page"); got != "2" {
			t.Errorf("expected page=2, got %s", got)
		}
		if got := r.URL.Query().Get("size"); got != "25" {
			t.Errorf("expected size=25, got %s", got)
		}
		writeEnvelope(w, true, "", []map[string]any{
			{"id": 1, "customerId": "C1", "amount": 10, "transactionDateTime": "2024-03-01T10:00:00", "fraudProbability": 0.9},
			{"id": 2, "customerId": "C2", "amount": 20},
		})
	})

	page, err := client.Transactions(context.Background(), 2, 25)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(page.Records) != 2 || page.Page != 2 || page.Size != 25 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Records[0].FraudProbability == nil || *page.Records[0].FraudProbability != 0.9 {
		t.Errorf("expected probability 0.9")
	}
	if page.Records[1].FraudProbability != nil {
		t.Errorf("expected absent probability to stay nil")
	}
	if !page.Records[1].Timestamp.IsZero() {
		t.Errorf("expected zero timestamp for missing value")
	}
}

func TestFilterTransactions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var req domain.TransactionFilterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req.FraudStatus != domain.FraudStatusFraud || req.DateFrom != "2024-01-01" {
			t.Errorf("unexpected request: %+v", req)
		}
		writeEnvelope(w, true, "", map[string]any{"total": 3, "fraudCount": 3})
	})

	out, err := client.FilterTransactions(context.Background(), domain.TransactionFilterRequest{
		FraudStatus: domain.FraudStatusFraud,
		DateFrom:    "2024-01-01",
	})
	if err != nil {
		t.Fatalf("FilterTransactions: %v", err)
	}
	if out.Total != 3 || out.FraudCount != 3 {
		t.Errorf("unexpected result: %+v", out)
	}
}

func TestAuth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req domain.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(domain.LoginResponse{
			AccessToken: "abc",
			TokenType:   "Bearer",
			User:        domain.User{Email: req.Email},
			ExpiresIn:   3600,
		})
	})
	mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`"analyst@bank.local"`))
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	client := newTestClient(t, mux.ServeHTTP)

	t.Run("Login", func(t *testing.T) {
		resp, err := client.Login(context.Background(), domain.LoginRequest{Email: "a@b.c", Password: "secret"})
		if err != nil {
			t.Fatalf("Login: %v", err)
		}
		if resp.AccessToken != "abc" || resp.User.Email != "a@b.c" {
			t.Errorf("unexpected login response: %+v", resp)
		}
	})

	t.Run("LoginRejected", func(t *testing.T) {
		_, err := client.Login(context.Background(), domain.LoginRequest{Email: "a@b.c", Password: "wrong"})
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("Me", func(t *testing.T) {
		who, err := client.Me(context.Background())
		if err != nil {
			t.Fatalf("Me: %v", err)
		}
		if who != "analyst@bank.local" {
			t.Errorf("unexpected identity %q", who)
		}
	})

	t.Run("Logout", func(t *testing.T) {
		if err := client.Logout(context.Background()); err != nil {
			t.Errorf("Logout: %v", err)
		}
	})
}

func TestExport(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "%PDF-1.7")
	})

	t.Run("PDF", func(t *testing.T) {
		report, err := client.Export(context.Background(), "pdf")
		if err != nil {
			t.Fatalf("Export: %v", err)
		}
		if report.ContentType != "application/pdf" || string(report.Body) != "%PDF-1.7" {
			t.Errorf("unexpected report: %+v", report)
		}
		if report.Filename != "fraud-report.pdf" {
			t.Errorf("unexpected filename %s", report.Filename)
		}
	})

	t.Run("UnsupportedFormat", func(t *testing.T) {
		if _, err := client.Export(context.Background(), "csv"); err == nil {
			t.Error("expected error for csv")
		}
	})
}
