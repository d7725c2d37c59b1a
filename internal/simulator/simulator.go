// Package simulator emulates an external payment processor: it accepts
// payouts idempotently, executes them in the background and reports the
// outcome through signed webhook notifications.
package simulator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/punchamoorthee/payoutops/internal/delivery"
	"github.com/punchamoorthee/payoutops/internal/domain"
)

// Deliverer is the part of the delivery engine the simulator drives.
type Deliverer interface {
	Deliver(ctx context.Context, n domain.Notification, secret string, correlationID string) delivery.Result
}

type Simulator struct {
	Registry   Registry
	Engine     Deliverer
	Decide     DecisionFunc
	Delay      DelayFunc
	Secret     string
	Currencies domain.Currencies
	Logger     *slog.Logger

	Now              func() time.Time
	Sleep            func(time.Duration)
	NewCorrelationID func() string

	tasks   sync.WaitGroup
	pending atomic.Int64
}

func New(registry Registry, engine Deliverer, secret string, currencies domain.Currencies, statuses []domain.Status, delay DelayFunc, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	if len(statuses) == 0 {
		statuses = domain.DefaultSimulatedStatuses()
	}
	return &Simulator{
		Registry:   registry,
		Engine:     engine,
		Decide:     RandomDecision(statuses),
		Delay:      delay,
		Secret:     secret,
		Currencies: currencies,
		Logger:     logger,
		Now: func() time.Time {
			return time.Now().UTC()
		},
		Sleep:            time.Sleep,
		NewCorrelationID: uuid.NewString,
	}
}

// CreatePayout registers the payout and schedules its execution. Replaying an
// idempotency key returns the stored record unchanged with created=false.
func (s *Simulator) CreatePayout(_ context.Context, req domain.CreatePayoutRequest) (Record, bool, error) {
	if err := req.Validate(s.Currencies); err != nil {
		return Record{}, false, err
	}

	now := s.Now()
	stored, created, err := s.Registry.PutIfAbsent(Record{
		Payout: domain.Payout{
			ID:             req.PayoutID,
			UserID:         req.UserID,
			Amount:         req.Amount,
			Currency:       req.Currency,
			Status:         domain.StatusPending,
			IdempotencyKey: req.IdempotencyKey,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	})
	if errors.Is(err, ErrIDCollision) {
		return Record{}, false, domain.Conflict("payout id already registered", map[string]any{"payout_id": req.PayoutID})
	}
	if err != nil {
		return Record{}, false, domain.Internal(err, "register payout", nil)
	}
	if !created {
		if !req.SamePayload(stored.Payout) {
			s.Logger.Warn("idempotency key reused with a different payload",
				"payout_id", stored.ID,
				"user_id", req.UserID,
				"stored_user_id", stored.UserID,
			)
			return Record{}, false, domain.IdempotencyMismatch(req.IdempotencyKey)
		}
		return stored, false, nil
	}

	correlationID := s.NewCorrelationID()
	s.Logger.Info("payout created",
		"correlation_id", correlationID,
		"payout_id", stored.ID,
		"user_id", stored.UserID,
	)
	s.spawn(func() { s.execute(stored.IdempotencyKey, correlationID) })
	return stored, true, nil
}

// Payout looks a record up by its payout id.
func (s *Simulator) Payout(id int64) (Record, bool) {
	return s.Registry.GetByID(id)
}

// Resend re-delivers the last decided status of a payout in the background.
func (s *Simulator) Resend(_ context.Context, payoutID int64, correlationID string) error {
	rec, ok := s.Registry.GetByID(payoutID)
	if !ok {
		return domain.NotFound("payout not found", map[string]any{"payout_id": payoutID})
	}
	if rec.Decided == "" {
		return domain.Conflict("payout has no notification to resend yet", map[string]any{"payout_id": payoutID})
	}
	if correlationID == "" {
		correlationID = rec.RequestID
	}

	s.Logger.Info("resend scheduled",
		"correlation_id", correlationID,
		"payout_id", payoutID,
		"new_status", rec.Decided,
	)
	s.spawn(func() { s.deliver(rec.IdempotencyKey, rec.ID, rec.Decided, correlationID) })
	return nil
}

// Shutdown waits for background executions and deliveries to finish.
func (s *Simulator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending is the number of executions and deliveries still running.
func (s *Simulator) Pending() int64 {
	return s.pending.Load()
}

func (s *Simulator) spawn(task func()) {
	s.tasks.Add(1)
	s.pending.Add(1)
	go func() {
		defer s.tasks.Done()
		defer s.pending.Add(-1)
		task()
	}()
}

func (s *Simulator) execute(key string, correlationID string) {
	if s.Delay != nil {
		delay := s.Delay()
		s.Logger.Info("simulating processing delay", "correlation_id", correlationID, "delay", delay.String())
		s.Sleep(delay)
	}

	var status domain.Status
	rec, err := s.Registry.Update(key, func(r *Record) {
		status = s.Decide(*r)
		r.Decided = status
		r.RequestID = correlationID
	})
	if err != nil {
		s.Logger.Error("payout vanished before execution", "correlation_id", correlationID, "error", err)
		return
	}
	s.deliver(key, rec.ID, status, correlationID)
}

func (s *Simulator) deliver(key string, payoutID int64, status domain.Status, correlationID string) {
	n := domain.Notification{
		PayoutID:  payoutID,
		NewStatus: string(status),
		RequestID: correlationID,
	}
	// Detached from any request context: once started, delivery runs to completion.
	res := s.Engine.Deliver(context.Background(), n, s.Secret, correlationID)
	if !res.Delivered {
		return
	}
	_, err := s.Registry.Update(key, func(r *Record) {
		r.Status = status
		r.UpdatedAt = s.Now()
	})
	if err != nil {
		s.Logger.Error("record delivered status", "correlation_id", correlationID, "payout_id", payoutID, "error", err)
	}
}
