package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/payoutops/internal/domain"
	"github.com/punchamoorthee/payoutops/internal/store"
	"github.com/punchamoorthee/payoutops/internal/worker"
)

type stubForwarder struct {
	mu   sync.Mutex
	reqs []domain.CreatePayoutRequest
	err  error
}

func (f *stubForwarder) CreatePayout(_ context.Context, req domain.CreatePayoutRequest, _ string) (domain.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return domain.Payout{ID: req.PayoutID, Status: domain.StatusPending}, f.err
}

type queueDispatcher struct {
	jobs   []worker.ForwardJob
	refuse bool
}

func (d *queueDispatcher) Submit(job worker.ForwardJob) bool {
	if d.refuse {
		return false
	}
	d.jobs = append(d.jobs, job)
	return true
}

func newService() (*PayoutService, *store.MemoryStore, *stubForwarder, *queueDispatcher) {
	st := store.NewMemoryStore()
	fwd := &stubForwarder{}
	disp := &queueDispatcher{}
	svc := NewPayoutService(st, fwd, domain.NewCurrencies([]string{"USD", "EUR"}), slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.Dispatcher = disp
	return svc, st, fwd, disp
}

func request(userID int64, key string) domain.CreatePayoutRequest {
	return domain.CreatePayoutRequest{
		UserID:         userID,
		Amount:         decimal.RequireFromString("20.00"),
		Currency:       "USD",
		IdempotencyKey: key,
	}
}

func TestCreatePayoutStoresInitiatedAndQueues(t *testing.T) {
	svc, _, _, disp := newService()

	p, created, err := svc.CreatePayout(context.Background(), request(1, "K1"))
	if err != nil || !created {
		t.Fatalf("expected creation, got created=%v err=%v", created, err)
	}
	if p.Status != domain.StatusInitiated {
		t.Fatalf("expected INITIATED, got %s", p.Status)
	}
	if len(disp.jobs) != 1 || disp.jobs[0].Payout.ID != p.ID || disp.jobs[0].CorrelationID == "" {
		t.Fatalf("expected one forwarding job, got %+v", disp.jobs)
	}
}

func TestCreatePayoutReplay(t *testing.T) {
	svc, st, _, disp := newService()
	ctx := context.Background()

	first, _, _ := svc.CreatePayout(ctx, request(1, "K1"))

	// Still INITIATED: the replay gets another chance at forwarding.
	again, created, err := svc.CreatePayout(ctx, request(1, "K1"))
	if err != nil || created || again.ID != first.ID {
		t.Fatalf("unexpected replay result %+v created=%v err=%v", again, created, err)
	}
	if len(disp.jobs) != 2 {
		t.Fatalf("expected replay of INITIATED payout to requeue, got %d jobs", len(disp.jobs))
	}

	if _, _, err := st.CompareAndSetStatus(ctx, first.ID, domain.StatusInitiated, domain.StatusPending); err != nil {
		t.Fatalf("cas: %v", err)
	}
	if _, _, err := svc.CreatePayout(ctx, request(1, "K1")); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(disp.jobs) != 2 {
		t.Fatalf("forwarded payout must not be queued again, got %d jobs", len(disp.jobs))
	}
}

func TestCreatePayoutRejectsKeyReuseByAnotherUser(t *testing.T) {
	svc, _, _, disp := newService()
	ctx := context.Background()

	if _, _, err := svc.CreatePayout(ctx, request(1, "K1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	p, _, err := svc.CreatePayout(ctx, request(2, "K1"))
	if !domain.HasTextCode(err, domain.ErrorConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if p.ID != 0 {
		t.Fatalf("another user's payout leaked: %+v", p)
	}
	if len(disp.jobs) != 1 {
		t.Fatalf("mismatched replay must not be queued, got %d jobs", len(disp.jobs))
	}
}

func TestCreatePayoutQueueFullStillStores(t *testing.T) {
	svc, st, _, disp := newService()
	disp.refuse = true

	p, created, err := svc.CreatePayout(context.Background(), request(1, "K1"))
	if err != nil || !created {
		t.Fatalf("expected stored payout despite full queue, got %v", err)
	}
	if got, _ := st.GetPayout(context.Background(), p.ID); got.Status != domain.StatusInitiated {
		t.Fatalf("expected INITIATED, got %s", got.Status)
	}
}

func TestCreatePayoutValidation(t *testing.T) {
	svc, _, _, disp := newService()

	req := request(1, "K1")
	req.Amount = decimal.RequireFromString("1000000.01")
	if _, _, err := svc.CreatePayout(context.Background(), req); !domain.HasTextCode(err, domain.ErrorBadInput) {
		t.Fatalf("expected bad input, got %v", err)
	}
	if len(disp.jobs) != 0 {
		t.Fatalf("invalid payout must not be queued")
	}
}

func TestForwardMarksPending(t *testing.T) {
	svc, st, fwd, disp := newService()
	ctx := context.Background()

	p, _, _ := svc.CreatePayout(ctx, request(1, "K1"))
	if err := svc.Forward(ctx, disp.jobs[0]); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if len(fwd.reqs) != 1 || fwd.reqs[0].PayoutID != p.ID || fwd.reqs[0].IdempotencyKey != "K1" {
		t.Fatalf("processor request did not carry the payout reference: %+v", fwd.reqs)
	}
	if got, _ := st.GetPayout(ctx, p.ID); got.Status != domain.StatusPending {
		t.Fatalf("expected PENDING after ack, got %s", got.Status)
	}
}

func TestForwardDoesNotOverwriteWebhookStatus(t *testing.T) {
	svc, st, _, disp := newService()
	ctx := context.Background()

	p, _, _ := svc.CreatePayout(ctx, request(1, "K1"))
	st.UpdateStatus(ctx, p.ID, domain.StatusPaid)

	if err := svc.Forward(ctx, disp.jobs[0]); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if got, _ := st.GetPayout(ctx, p.ID); got.Status != domain.StatusPaid {
		t.Fatalf("expected PAID to survive the late ack, got %s", got.Status)
	}
}

func TestForwardFailureLeavesInitiated(t *testing.T) {
	svc, st, fwd, disp := newService()
	fwd.err = errors.New("processor unreachable")
	ctx := context.Background()

	p, _, _ := svc.CreatePayout(ctx, request(1, "K1"))
	if err := svc.Forward(ctx, disp.jobs[0]); err == nil {
		t.Fatalf("expected forwarding error")
	}
	if got, _ := st.GetPayout(ctx, p.ID); got.Status != domain.StatusInitiated {
		t.Fatalf("expected INITIATED, got %s", got.Status)
	}
}

func TestGetPayout(t *testing.T) {
	svc, _, _, _ := newService()
	if _, err := svc.GetPayout(context.Background(), 404); !domain.HasTextCode(err, domain.ErrorNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetPayout(context.Background(), 0); !domain.HasTextCode(err, domain.ErrorBadInput) {
		t.Fatalf("expected bad input, got %v", err)
	}
}

func TestListPayoutsPagination(t *testing.T) {
	svc, _, _, _ := newService()
	ctx := context.Background()
	for i := range 12 {
		if _, _, err := svc.CreatePayout(ctx, request(1, fmt.Sprintf("K%d", i))); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	svc.CreatePayout(ctx, request(2, "other-user"))

	page, err := svc.ListPayouts(ctx, 1, 0, DefaultPageLimit)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Payouts) != 10 || page.Pagination.Total != 12 || !page.Pagination.HasMore {
		t.Fatalf("unexpected first page %+v", page.Pagination)
	}
	if page.Payouts[0].ID < page.Payouts[1].ID {
		t.Fatalf("expected newest first")
	}

	page, err = svc.ListPayouts(ctx, 1, 10, DefaultPageLimit)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Payouts) != 2 || page.Pagination.HasMore || page.Pagination.CurrentOffset != 10 {
		t.Fatalf("unexpected second page %+v", page.Pagination)
	}

	page, _ = svc.ListPayouts(ctx, 3, 0, 5)
	if page.Payouts == nil || len(page.Payouts) != 0 {
		t.Fatalf("expected empty non-nil page, got %#v", page.Payouts)
	}
}

func TestListPayoutsValidation(t *testing.T) {
	svc, _, _, _ := newService()
	cases := []struct {
		userID        int64
		offset, limit int
	}{
		{0, 0, 10},
		{1, -1, 10},
		{1, 0, 0},
		{1, 0, 51},
	}
	for _, c := range cases {
		if _, err := svc.ListPayouts(context.Background(), c.userID, c.offset, c.limit); !domain.HasTextCode(err, domain.ErrorBadInput) {
			t.Fatalf("%+v: expected bad input, got %v", c, err)
		}
	}
}
