package processor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/payoutops/internal/delivery"
	"github.com/punchamoorthee/payoutops/internal/domain"
)

func TestCreatePayoutForwardsReference(t *testing.T) {
	var mu sync.Mutex
	var got domain.CreatePayoutRequest
	var corr string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.URL.Path != "/payouts" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		corr = r.Header.Get(delivery.CorrelationHeader)
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(domain.Payout{
			ID:             got.PayoutID,
			UserID:         got.UserID,
			Amount:         got.Amount,
			Currency:       got.Currency,
			Status:         domain.StatusPending,
			IdempotencyKey: got.IdempotencyKey,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	p, err := c.CreatePayout(context.Background(), domain.CreatePayoutRequest{
		PayoutID:       12,
		UserID:         3,
		Amount:         decimal.RequireFromString("10.50"),
		Currency:       "EUR",
		IdempotencyKey: "K",
	}, "corr-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if got.PayoutID != 12 || corr != "corr-1" {
		t.Fatalf("reference not forwarded: %+v corr=%q", got, corr)
	}
	if p.ID != 12 || p.Status != domain.StatusPending || !p.Amount.Equal(decimal.RequireFromString("10.5")) {
		t.Fatalf("unexpected payout %+v", p)
	}
}

func TestCreatePayoutRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).CreatePayout(context.Background(), domain.CreatePayoutRequest{IdempotencyKey: "K"}, "")
	if !domain.HasTextCode(err, domain.ErrorUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestRequestResend(t *testing.T) {
	var mu sync.Mutex
	var got domain.ResendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.URL.Path != "/resend" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL, time.Second).RequestResend(context.Background(), 4, "corr-4"); err != nil {
		t.Fatalf("resend: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if got.PayoutID != 4 || got.RequestID != "corr-4" {
		t.Fatalf("unexpected resend body %+v", got)
	}
}

func TestRequestResendFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	c := NewClient(srv.URL, time.Second)
	if err := c.RequestResend(context.Background(), 4, "c"); !domain.HasTextCode(err, domain.ErrorUpstream) {
		t.Fatalf("expected upstream error for 404, got %v", err)
	}

	srv.Close()
	if err := c.RequestResend(context.Background(), 4, "c"); !domain.HasTextCode(err, domain.ErrorUpstream) {
		t.Fatalf("expected upstream error for closed server, got %v", err)
	}
}
