// Package resend bounds how often the receiver asks the processor to redeliver
// a notification it could not accept.
package resend

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var resendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "payout_resend_requests_total",
	Help: "Resend requests, labeled by outcome (requested, failed, exhausted)",
}, []string{"outcome"})

// Requester performs the outbound resend call.
type Requester interface {
	RequestResend(ctx context.Context, payoutID int64, correlationID string) error
}

type Coordinator struct {
	Ledger     Ledger
	Requester  Requester
	MaxRetries int
	Logger     *slog.Logger
}

func NewCoordinator(ledger Ledger, requester Requester, maxRetries int, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		Ledger:     ledger,
		Requester:  requester,
		MaxRetries: maxRetries,
		Logger:     logger,
	}
}

// RequestResend asks the processor to redeliver the notification for payoutID.
// It returns true only when an attempt was reserved and the call succeeded.
// A failed call still counts against the ceiling.
func (c *Coordinator) RequestResend(ctx context.Context, payoutID int64, correlationID string) bool {
	log := c.Logger.With("correlation_id", correlationID, "payout_id", payoutID)

	attempt, ok := c.Ledger.Reserve(Key(correlationID, payoutID), c.MaxRetries)
	if !ok {
		resendRequests.WithLabelValues("exhausted").Inc()
		log.Warn("max resend retries reached", "max_retries", c.MaxRetries)
		return false
	}

	if err := c.Requester.RequestResend(ctx, payoutID, correlationID); err != nil {
		resendRequests.WithLabelValues("failed").Inc()
		log.Error("resend request failed", "attempt", attempt, "error", err)
		return false
	}

	resendRequests.WithLabelValues("requested").Inc()
	log.Info("resend requested", "attempt", attempt, "max_retries", c.MaxRetries)
	return true
}

// Attempts reports how many resends were reserved for the pair.
func (c *Coordinator) Attempts(payoutID int64, correlationID string) int {
	return c.Ledger.Count(Key(correlationID, payoutID))
}
