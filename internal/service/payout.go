package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/punchamoorthee/payoutops/internal/domain"
	"github.com/punchamoorthee/payoutops/internal/store"
	"github.com/punchamoorthee/payoutops/internal/worker"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 50
)

// Forwarder submits a payout to the payment processor.
type Forwarder interface {
	CreatePayout(ctx context.Context, req domain.CreatePayoutRequest, correlationID string) (domain.Payout, error)
}

// Dispatcher queues forwarding work in the background.
type Dispatcher interface {
	Submit(job worker.ForwardJob) bool
}

type PayoutService struct {
	store      store.PayoutStore
	processor  Forwarder
	currencies domain.Currencies
	logger     *slog.Logger

	// Dispatcher is set once the worker pool exists, since the pool runs Forward.
	Dispatcher       Dispatcher
	NewCorrelationID func() string
}

func NewPayoutService(s store.PayoutStore, processor Forwarder, currencies domain.Currencies, logger *slog.Logger) *PayoutService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PayoutService{
		store:            s,
		processor:        processor,
		currencies:       currencies,
		logger:           logger,
		NewCorrelationID: uuid.NewString,
	}
}

// CreatePayout stores the payout as INITIATED and queues it for the processor.
// A replay of a key whose payout never reached the processor queues it again.
func (s *PayoutService) CreatePayout(ctx context.Context, req domain.CreatePayoutRequest) (domain.Payout, bool, error) {
	// 1. Validate
	if err := req.Validate(s.currencies); err != nil {
		return domain.Payout{}, false, err
	}

	// 2. Idempotent insert
	stored, created, err := s.store.CreatePayout(ctx, domain.Payout{
		UserID:         req.UserID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Status:         domain.StatusInitiated,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return domain.Payout{}, false, domain.Internal(err, "create payout", map[string]any{"idempotency_key": req.IdempotencyKey})
	}
	if !created && !req.SamePayload(stored) {
		s.logger.Warn("idempotency key reused with a different payload",
			"payout_id", stored.ID,
			"user_id", req.UserID,
			"stored_user_id", stored.UserID,
		)
		return domain.Payout{}, false, domain.IdempotencyMismatch(req.IdempotencyKey)
	}

	// 3. Hand off to the processor
	if stored.Status == domain.StatusInitiated {
		correlationID := s.NewCorrelationID()
		log := s.logger.With("correlation_id", correlationID, "payout_id", stored.ID)
		if s.Dispatcher == nil || !s.Dispatcher.Submit(worker.ForwardJob{Payout: stored, CorrelationID: correlationID}) {
			log.Warn("payout forwarding queue unavailable, payout stays INITIATED")
		} else {
			log.Info("payout queued for processor", "created", created)
		}
	}

	return stored, created, nil
}

// Forward sends one stored payout to the processor and marks it PENDING on ack.
func (s *PayoutService) Forward(ctx context.Context, job worker.ForwardJob) error {
	p := job.Payout
	_, err := s.processor.CreatePayout(ctx, domain.CreatePayoutRequest{
		PayoutID:       p.ID,
		UserID:         p.UserID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		IdempotencyKey: p.IdempotencyKey,
	}, job.CorrelationID)
	if err != nil {
		return err
	}

	// A webhook may already have moved the payout on; only INITIATED advances.
	_, moved, err := s.store.CompareAndSetStatus(ctx, p.ID, domain.StatusInitiated, domain.StatusPending)
	if err != nil {
		return domain.Internal(err, "mark payout pending", map[string]any{"payout_id": p.ID})
	}
	s.logger.Info("payout accepted by processor",
		"correlation_id", job.CorrelationID,
		"payout_id", p.ID,
		"marked_pending", moved,
	)
	return nil
}

func (s *PayoutService) GetPayout(ctx context.Context, id int64) (domain.Payout, error) {
	if id <= 0 {
		return domain.Payout{}, domain.BadInput("payout id must be a positive integer", map[string]any{"payout_id": id})
	}
	p, err := s.store.GetPayout(ctx, id)
	if errors.Is(err, store.ErrPayoutNotFound) {
		return domain.Payout{}, domain.NotFound("Payout not found", map[string]any{"payout_id": id})
	}
	if err != nil {
		return domain.Payout{}, domain.Internal(err, "get payout", map[string]any{"payout_id": id})
	}
	return p, nil
}

// ListPayouts returns one page of a user's payouts, newest first.
func (s *PayoutService) ListPayouts(ctx context.Context, userID int64, offset, limit int) (domain.PayoutPage, error) {
	if userID <= 0 {
		return domain.PayoutPage{}, domain.BadInput("user_id must be a positive integer", map[string]any{"user_id": userID})
	}
	if offset < 0 {
		return domain.PayoutPage{}, domain.BadInput("offset must be >= 0", map[string]any{"offset": offset})
	}
	if limit < 1 || limit > MaxPageLimit {
		return domain.PayoutPage{}, domain.BadInput("limit must be between 1 and 50", map[string]any{"limit": limit})
	}

	payouts, total, err := s.store.ListPayouts(ctx, userID, offset, limit)
	if err != nil {
		return domain.PayoutPage{}, domain.Internal(err, "list payouts", map[string]any{"user_id": userID})
	}
	if payouts == nil {
		payouts = []domain.Payout{}
	}
	return domain.PayoutPage{
		Payouts: payouts,
		Pagination: domain.Pagination{
			Total:         total,
			CurrentOffset: offset,
			HasMore:       offset+len(payouts) < total,
		},
	}, nil
}

func (s *PayoutService) Currencies() []string {
	return s.currencies.List()
}

func (s *PayoutService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
