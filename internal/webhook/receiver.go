// Package webhook accepts signed payout status notifications from the processor.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/punchamoorthee/payoutops/internal/domain"
	"github.com/punchamoorthee/payoutops/internal/signature"
	"github.com/punchamoorthee/payoutops/internal/store"
)

var webhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "payout_webhooks_received_total",
	Help: "Inbound payout notifications, labeled by outcome",
}, []string{"outcome"})

type Outcome string

const (
	OutcomeApplied         Outcome = "applied"
	OutcomeResendRequested Outcome = "resend_requested"
	outcomeRejected        Outcome = "rejected"
)

// Result describes an accepted notification.
type Result struct {
	Outcome       Outcome
	CorrelationID string
	PayoutID      int64
	// ResendRequested is only meaningful for OutcomeResendRequested.
	ResendRequested bool
	Payout          domain.Payout
}

// StatusUpdater is the slice of the payout store the receiver mutates.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id int64, status domain.Status) (domain.Payout, error)
}

// ResendRequester asks for a notification to be delivered again.
type ResendRequester interface {
	RequestResend(ctx context.Context, payoutID int64, correlationID string) bool
}

type Receiver struct {
	Store   StatusUpdater
	Resends ResendRequester
	Secret  string
	MaxAge  time.Duration
	Logger  *slog.Logger
	Now     func() time.Time
}

func NewReceiver(s StatusUpdater, resends ResendRequester, secret string, maxAge time.Duration, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{
		Store:   s,
		Resends: resends,
		Secret:  secret,
		MaxAge:  maxAge,
		Logger:  logger,
		Now:     time.Now,
	}
}

// Handle verifies and applies one notification. Gates run in a fixed order:
// shape, signature, freshness, status, then a single store update. Stale
// notifications are not errors; they trigger a resend request instead.
func (r *Receiver) Handle(ctx context.Context, body []byte, sig string) (Result, error) {
	res, err := r.handle(ctx, body, sig)
	if err != nil {
		webhooksReceived.WithLabelValues(string(outcomeRejected)).Inc()
		return res, err
	}
	webhooksReceived.WithLabelValues(string(res.Outcome)).Inc()
	return res, nil
}

func (r *Receiver) handle(ctx context.Context, body []byte, sig string) (Result, error) {
	payload, err := signature.DecodePayload(body)
	if err != nil {
		r.Logger.Warn("malformed webhook body", "error", err)
		return Result{}, domain.BadInput("request body must be a JSON object", nil)
	}

	correlationID, _ := payload["request_id"].(string)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	res := Result{CorrelationID: correlationID}
	log := r.Logger.With("correlation_id", correlationID)

	payoutID, ok := positiveInt(payload["payout_id"])
	if !ok {
		log.Warn("webhook without valid payout_id", "payout_id", payload["payout_id"])
		return res, domain.BadInput("payout_id must be a positive integer", nil)
	}
	res.PayoutID = payoutID
	log = log.With("payout_id", payoutID)

	if !signature.Verify(payload, sig, r.Secret) {
		log.Error("invalid webhook signature")
		return res, domain.InvalidSignature(map[string]any{"payout_id": payoutID})
	}

	raw, present := payload["timestamp"]
	if present && raw != nil {
		ts, ok := positiveInt(raw)
		if !ok {
			log.Warn("invalid webhook timestamp", "timestamp", raw)
			return res, domain.BadInput("timestamp must be a positive integer", map[string]any{"payout_id": payoutID})
		}
		age := r.Now().Unix() - ts
		if age < 0 {
			age = -age
		}
		if age <= int64(r.MaxAge/time.Second) {
			return r.apply(ctx, log, res, payload)
		}
		log.Warn("webhook too old", "age_seconds", age, "max_age", r.MaxAge.String())
	} else {
		log.Warn("webhook without timestamp")
	}

	res.Outcome = OutcomeResendRequested
	res.ResendRequested = r.Resends.RequestResend(ctx, payoutID, correlationID)
	return res, nil
}

func (r *Receiver) apply(ctx context.Context, log *slog.Logger, res Result, payload map[string]any) (Result, error) {
	raw, _ := payload["new_status"].(string)
	status, ok := domain.ParseStatus(raw)
	if !ok {
		log.Warn("webhook with invalid status", "new_status", payload["new_status"])
		return res, domain.BadInput("Invalid status: "+raw, map[string]any{"payout_id": res.PayoutID})
	}

	updated, err := r.Store.UpdateStatus(ctx, res.PayoutID, status)
	if errors.Is(err, store.ErrPayoutNotFound) {
		log.Warn("webhook for unknown payout")
		return res, domain.NotFound("Payout not found", map[string]any{"payout_id": res.PayoutID})
	}
	if err != nil {
		log.Error("apply webhook status", "new_status", status, "error", err)
		return res, domain.Internal(err, "update payout status", map[string]any{"payout_id": res.PayoutID})
	}

	log.Info("payout status updated", "new_status", status)
	res.Outcome = OutcomeApplied
	res.Payout = updated
	return res, nil
}

// positiveInt accepts a JSON integer greater than zero.
func positiveInt(v any) (int64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil || i <= 0 {
		return 0, false
	}
	return i, true
}
