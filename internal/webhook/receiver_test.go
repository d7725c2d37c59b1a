package webhook

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/payoutops/internal/domain"
	"github.com/punchamoorthee/payoutops/internal/resend"
	"github.com/punchamoorthee/payoutops/internal/signature"
	"github.com/punchamoorthee/payoutops/internal/store"
)

const (
	testSecret = "shared-callback-secret"
	testNow    = int64(1760000000)
)

type countingRequester struct {
	mu    sync.Mutex
	calls int
}

func (c *countingRequester) RequestResend(context.Context, int64, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil
}

type fixture struct {
	receiver  *Receiver
	store     *store.MemoryStore
	requester *countingRequester
	resends   *resend.Coordinator
	payoutID  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := store.NewMemoryStore()
	p, _, err := s.CreatePayout(context.Background(), domain.Payout{
		UserID:         1,
		Amount:         decimal.RequireFromString("50.00"),
		Currency:       "USD",
		Status:         domain.StatusPending,
		IdempotencyKey: "K1",
	})
	if err != nil {
		t.Fatalf("seed payout: %v", err)
	}

	req := &countingRequester{}
	coord := resend.NewCoordinator(resend.NewMemoryLedger(0), req, 3, logger)
	r := NewReceiver(s, coord, testSecret, 300*time.Second, logger)
	r.Now = func() time.Time { return time.Unix(testNow, 0) }

	return &fixture{receiver: r, store: s, requester: req, resends: coord, payoutID: p.ID}
}

func signedBody(t *testing.T, fields map[string]any, secret string) ([]byte, string) {
	t.Helper()
	body, err := signature.Canonicalize(fields)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	sig, err := signature.Sign(fields, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return body, sig
}

func (f *fixture) status(t *testing.T) domain.Status {
	t.Helper()
	p, err := f.store.GetPayout(context.Background(), f.payoutID)
	if err != nil {
		t.Fatalf("get payout: %v", err)
	}
	return p.Status
}

func TestHandleAppliesFreshSignedNotification(t *testing.T) {
	f := newFixture(t)
	body, sig := signedBody(t, map[string]any{
		"payout_id":  f.payoutID,
		"new_status": "PAID",
		"request_id": "r1",
		"timestamp":  testNow,
	}, testSecret)

	res, err := f.receiver.Handle(context.Background(), body, sig)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.Outcome != OutcomeApplied || res.CorrelationID != "r1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := f.status(t); got != domain.StatusPaid {
		t.Fatalf("expected PAID, got %s", got)
	}
	if f.requester.calls != 0 {
		t.Fatalf("fresh notification must not request a resend")
	}
}

func TestHandleRejectsForgedSignature(t *testing.T) {
	f := newFixture(t)
	body, sig := signedBody(t, map[string]any{
		"payout_id":  f.payoutID,
		"new_status": "PAID",
		"request_id": "r2",
		"timestamp":  testNow,
	}, "wrong-secret")

	_, err := f.receiver.Handle(context.Background(), body, sig)
	if !domain.HasTextCode(err, domain.ErrorInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
	if rich, _ := domain.AsError(err); rich.Code != 400 {
		t.Fatalf("expected HTTP 400, got %d", rich.Code)
	}
	if got := f.status(t); got != domain.StatusPending {
		t.Fatalf("forged notification mutated status to %s", got)
	}
	if f.requester.calls != 0 {
		t.Fatalf("forged notification must not request a resend")
	}
}

func TestHandleRejectsTamperedBody(t *testing.T) {
	f := newFixture(t)
	_, sig := signedBody(t, map[string]any{
		"payout_id":  f.payoutID,
		"new_status": "PAID",
		"request_id": "r3",
		"timestamp":  testNow,
	}, testSecret)
	tampered, _ := signedBody(t, map[string]any{
		"payout_id":  f.payoutID,
		"new_status": "BOUNCED",
		"request_id": "r3",
		"timestamp":  testNow,
	}, testSecret)

	if _, err := f.receiver.Handle(context.Background(), tampered, sig); !domain.HasTextCode(err, domain.ErrorInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestHandleStalenessBoundary(t *testing.T) {
	tests := []struct {
		name    string
		age     int64
		outcome Outcome
	}{
		{"exactly max age", 300, OutcomeApplied},
		{"one second past max age", 301, OutcomeResendRequested},
		{"ten minutes old", 600, OutcomeResendRequested},
		{"future within window", -300, OutcomeApplied},
		{"future past window", -301, OutcomeResendRequested},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			body, sig := signedBody(t, map[string]any{
				"payout_id":  f.payoutID,
				"new_status": "PAID",
				"request_id": "r4",
				"timestamp":  testNow - tt.age,
			}, testSecret)

			res, err := f.receiver.Handle(context.Background(), body, sig)
			if err != nil {
				t.Fatalf("handle: %v", err)
			}
			if res.Outcome != tt.outcome {
				t.Fatalf("expected %s, got %s", tt.outcome, res.Outcome)
			}
			if tt.outcome == OutcomeResendRequested {
				if got := f.status(t); got != domain.StatusPending {
					t.Fatalf("stale notification mutated status to %s", got)
				}
				if !res.ResendRequested || f.resends.Attempts(f.payoutID, "r4") != 1 {
					t.Fatalf("expected one resend request, got %+v attempts=%d", res, f.resends.Attempts(f.payoutID, "r4"))
				}
			}
		})
	}
}

func TestHandleStaleResendsAreCapped(t *testing.T) {
	f := newFixture(t)
	body, sig := signedBody(t, map[string]any{
		"payout_id":  f.payoutID,
		"new_status": "PAID",
		"request_id": "r5",
		"timestamp":  testNow - 600,
	}, testSecret)

	for i := 1; i <= 4; i++ {
		res, err := f.receiver.Handle(context.Background(), body, sig)
		if err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
		if want := i <= 3; res.ResendRequested != want {
			t.Fatalf("delivery %d: resend_requested=%v, want %v", i, res.ResendRequested, want)
		}
	}
	if f.requester.calls != 3 {
		t.Fatalf("expected 3 outbound resend calls, got %d", f.requester.calls)
	}
}

func TestHandleMissingTimestampIsStale(t *testing.T) {
	f := newFixture(t)
	body, sig := signedBody(t, map[string]any{
		"payout_id":  f.payoutID,
		"new_status": "PAID",
		"request_id": "r6",
	}, testSecret)

	res, err := f.receiver.Handle(context.Background(), body, sig)
	if err != nil || res.Outcome != OutcomeResendRequested {
		t.Fatalf("expected resend outcome, got %+v %v", res, err)
	}
}

func TestHandleRejectsInvalidTimestamp(t *testing.T) {
	for _, ts := range []any{int64(0), int64(-5), "1760000000", 1.5} {
		f := newFixture(t)
		body, sig := signedBody(t, map[string]any{
			"payout_id":  f.payoutID,
			"new_status": "PAID",
			"request_id": "r7",
			"timestamp":  ts,
		}, testSecret)
		if _, err := f.receiver.Handle(context.Background(), body, sig); !domain.HasTextCode(err, domain.ErrorBadInput) {
			t.Fatalf("timestamp %v: expected bad input, got %v", ts, err)
		}
	}
}

func TestHandleRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	body, sig := signedBody(t, map[string]any{
		"payout_id":  f.payoutID,
		"new_status": "FROZEN",
		"request_id": "r8",
		"timestamp":  testNow,
	}, testSecret)

	_, err := f.receiver.Handle(context.Background(), body, sig)
	if !domain.HasTextCode(err, domain.ErrorBadInput) {
		t.Fatalf("expected bad input, got %v", err)
	}
	if got := f.status(t); got != domain.StatusPending {
		t.Fatalf("unknown status mutated payout to %s", got)
	}
}

func TestHandleUnknownPayout(t *testing.T) {
	f := newFixture(t)
	body, sig := signedBody(t, map[string]any{
		"payout_id":  int64(999),
		"new_status": "PAID",
		"request_id": "r9",
		"timestamp":  testNow,
	}, testSecret)

	if _, err := f.receiver.Handle(context.Background(), body, sig); !domain.HasTextCode(err, domain.ErrorNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHandleMalformedBodies(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{`not json`, `[1,2]`, `{"new_status":"PAID"}`, `{"payout_id":-1}`, `{"payout_id":"1"}`} {
		if _, err := f.receiver.Handle(context.Background(), []byte(body), "00"); !domain.HasTextCode(err, domain.ErrorBadInput) {
			t.Fatalf("body %s: expected bad input, got %v", body, err)
		}
	}
}

func TestHandleGeneratesCorrelationID(t *testing.T) {
	f := newFixture(t)
	body, sig := signedBody(t, map[string]any{
		"payout_id":  f.payoutID,
		"new_status": "EXECUTED",
		"timestamp":  testNow,
	}, testSecret)

	res, err := f.receiver.Handle(context.Background(), body, sig)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.CorrelationID == "" {
		t.Fatalf("expected a generated correlation id")
	}
}
