package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/punchamoorthee/payoutops/internal/domain"
	"github.com/punchamoorthee/payoutops/internal/signature"
)

// CorrelationHeader travels with every notification for log stitching.
const CorrelationHeader = "X-Correlation-ID"

var (
	deliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_webhook_delivery_attempts_total",
		Help: "Webhook delivery attempts, labeled by outcome",
	}, []string{"outcome"})

	deliveryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payout_webhook_delivery_duration_seconds",
		Help:    "Latency of single webhook delivery attempts",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"outcome"})
)

// BackoffFunc returns the wait before the retry that follows a failed attempt.
type BackoffFunc func(attempt int) time.Duration

// MaxBackoffExponent caps the exponential wait at 2^10 seconds.
const MaxBackoffExponent = 10

// ExponentialJitter waits 2^attempt seconds plus up to 500ms of jitter.
// The exponent is clamped to [0, MaxBackoffExponent].
func ExponentialJitter(attempt int) time.Duration {
	attempt = min(max(attempt, 0), MaxBackoffExponent)
	base := time.Duration(1<<uint(attempt)) * time.Second
	return base + time.Duration(rand.Int64N(int64(500*time.Millisecond)))
}

// MaxDeliveryTime is the longest a Deliver call can take with ExponentialJitter
// backoff when every attempt runs into the client timeout.
func MaxDeliveryTime(maxRetries int, timeout time.Duration) time.Duration {
	total := time.Duration(maxRetries+1) * timeout
	for attempt := 1; attempt <= maxRetries; attempt++ {
		total += time.Duration(1<<uint(min(attempt, MaxBackoffExponent)))*time.Second + 500*time.Millisecond
	}
	return total
}

// Result summarizes one Deliver call.
type Result struct {
	Delivered  bool
	Attempts   int
	StatusCode int
	Timestamp  int64
	Err        error
}

// Engine signs notifications and POSTs them to the callback URL, retrying
// sequentially with backoff until MaxRetries retries have been spent.
type Engine struct {
	CallbackURL string
	MaxRetries  int
	Client      *http.Client
	Backoff     BackoffFunc
	Sleep       func(ctx context.Context, d time.Duration) error
	Now         func() time.Time
	Logger      *slog.Logger
}

func NewEngine(callbackURL string, maxRetries int, timeout time.Duration, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		CallbackURL: callbackURL,
		MaxRetries:  maxRetries,
		Client:      &http.Client{Timeout: timeout},
		Backoff:     ExponentialJitter,
		Sleep:       sleepContext,
		Now:         time.Now,
		Logger:      logger,
	}
}

// Deliver runs the attempt loop to completion. Attempt n that fails is
// followed by another only while n <= MaxRetries.
func (e *Engine) Deliver(ctx context.Context, n domain.Notification, secret string, correlationID string) Result {
	log := e.Logger.With("correlation_id", correlationID, "payout_id", n.PayoutID)

	var result Result
	for attempt := 1; ; attempt++ {
		result.Attempts = attempt
		n.Timestamp = e.Now().Unix()
		result.Timestamp = n.Timestamp

		log.Info("webhook sent", "attempt", attempt, "new_status", n.NewStatus)
		status, err := e.send(ctx, n, secret, correlationID)
		result.StatusCode = status
		if err == nil {
			result.Delivered = true
			result.Err = nil
			log.Info("webhook delivered", "attempt", attempt, "new_status", n.NewStatus, "status_code", status)
			return result
		}
		result.Err = err

		if attempt > e.MaxRetries {
			log.Error("webhook permanently failed", "retries", attempt-1, "error", err)
			return result
		}

		wait := e.Backoff(attempt)
		log.Warn("webhook failed, retrying", "attempt", attempt, "retry_in", wait.String(), "error", err)
		if err := e.Sleep(ctx, wait); err != nil {
			result.Err = errors.Join(result.Err, err)
			log.Error("webhook retry aborted", "attempt", attempt, "error", err)
			return result
		}
	}
}

func (e *Engine) send(ctx context.Context, n domain.Notification, secret string, correlationID string) (int, error) {
	start := time.Now()
	outcome := "failure"
	defer func() {
		deliveryAttempts.WithLabelValues(outcome).Inc()
		deliveryLatency.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	fields := n.Fields()
	sig, err := signature.Sign(fields, secret)
	if err != nil {
		return 0, err
	}
	body, err := signature.Canonicalize(fields)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.Header, sig)
	req.Header.Set(CorrelationHeader, correlationID)

	resp, err := e.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook transport: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("webhook rejected with status %d", resp.StatusCode)
	}
	outcome = "success"
	return resp.StatusCode, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
