package ledgerclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestListTransactions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transactions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("since_id"); got != "42" {
			t.Errorf("expected since_id=42, got %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "200" {
			t.Errorf("expected limit=200, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transactions":[
			{"transaction_id":43,"account_id":"1011226111","amount":5000,"direction":"credit","timestamp":"2025-06-15T12:00:00Z"},
			{"transaction_id":44,"account_id":"1033623433","amount":2500,"direction":"debit","timestamp":"2025-06-15T12:01:00Z"}
		]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", 5*time.Second)
	events, err := client.ListTransactions(context.Background(), 42, 200)
	if err != nil {
		t.Fatalf("ListTransactions returned error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].TransactionID != 43 || events[0].Amount != 5000 {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
}

func TestListAccountTransactions(t *testing.T) {
	since := time.Date(2025, 5, 16, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/1011226111/transactions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("since"); got != "2025-05-16T12:00:00Z" {
			t.Errorf("unexpected since param %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transactions":[{"transaction_id":7,"account_id":"1011226111","amount":100,"direction":"credit","timestamp":"2025-06-01T00:00:00Z"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second)
	events, err := client.ListAccountTransactions(context.Background(), "1011226111", since)
	if err != nil {
		t.Fatalf("ListAccountTransactions returned error: %v", err)
	}
	if len(events) != 1 || events[0].TransactionID != 7 {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestCreditAccount(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantOutcome CreditOutcome
		wantErr     bool
	}{
		{name: "created", status: http.StatusCreated, wantOutcome: CreditApplied},
		{name: "ok", status: http.StatusOK, wantOutcome: CreditApplied},
		{name: "conflict means already applied", status: http.StatusConflict, wantOutcome: CreditAlreadyApplied},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/credits" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				var payload CreditRequest
				if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
					t.Errorf("failed to decode payload: %v", err)
				}
				if payload.IdempotencyKey == "" {
					t.Error("expected an idempotency key in the payload")
				}
				if payload.Amount != 5000 {
					t.Errorf("expected amount 5000, got %d", payload.Amount)
				}
				w.WriteHeader(tt.status)
				if tt.wantErr {
					_, _ = w.Write([]byte(`{"message":"ledger exploded"}`))
				}
			}))
			defer server.Close()

			client := NewClient(server.URL, "test-key", 5*time.Second)
			outcome, err := client.CreditAccount(context.Background(), "1011226111", 5000, "promo-abc-1011226111")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				var apiErr *ErrorResponse
				if !errors.As(err, &apiErr) {
					t.Fatalf("expected ErrorResponse, got %T", err)
				}
				if apiErr.StatusCode != tt.status {
					t.Fatalf("expected status %d, got %d", tt.status, apiErr.StatusCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreditAccount returned error: %v", err)
			}
			if outcome != tt.wantOutcome {
				t.Fatalf("expected outcome %q, got %q", tt.wantOutcome, outcome)
			}
		})
	}
}

func TestFindCreditByIdempotencyKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/credits/promo-abc-1011226111":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"posted","credit":{"transaction_id":9001,"account_id":"1011226111","amount":5000,"idempotency_key":"promo-abc-1011226111","timestamp":"2025-06-15T12:00:00Z"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", 5*time.Second)

	credit, err := client.FindCreditByIdempotencyKey(context.Background(), "promo-abc-1011226111")
	if err != nil {
		t.Fatalf("FindCreditByIdempotencyKey returned error: %v", err)
	}
	if credit.TransactionID != 9001 || credit.Amount != 5000 {
		t.Fatalf("unexpected credit: %+v", credit)
	}

	_, err = client.FindCreditByIdempotencyKey(context.Background(), "promo-missing")
	if !errors.Is(err, ErrCreditNotFound) {
		t.Fatalf("expected ErrCreditNotFound, got %v", err)
	}
}
