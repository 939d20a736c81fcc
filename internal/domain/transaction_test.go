package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTransactionRecordJSONKeepsSubSecondTimestamp(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 15, 30, 123456789, time.UTC)
	in := TransactionRecord{ID: 7, CustomerID: "C1", Amount: decimal.NewFromInt(10), Timestamp: ts}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), "2025-03-01T10:15:30.123456789Z") {
		t.Errorf("expected nanosecond timestamp, got %s", data)
	}

	var out TransactionRecord
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Timestamp.Equal(ts) {
		t.Errorf("timestamp changed: %v -> %v", ts, out.Timestamp)
	}
}

func TestTransactionRecordJSONOmitsZeroTimestamp(t *testing.T) {
	data, err := json.Marshal(TransactionRecord{ID: 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out TransactionRecord
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Timestamp.IsZero() {
		t.Errorf("expected zero timestamp, got %v", out.Timestamp)
	}
}
