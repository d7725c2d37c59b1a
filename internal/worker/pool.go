// Package worker runs payout forwarding jobs on a fixed set of goroutines.
package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/punchamoorthee/payoutops/internal/domain"
)

var jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "payout_forward_jobs_total",
	Help: "Payout forwarding jobs, labeled by outcome (ok, failed, dropped)",
}, []string{"outcome"})

// ForwardJob hands a stored payout to the processor.
type ForwardJob struct {
	Payout        domain.Payout
	CorrelationID string
}

// HandlerFunc processes one job. Errors are logged, not retried.
type HandlerFunc func(ctx context.Context, job ForwardJob) error

type Pool struct {
	jobs    chan ForwardJob
	handler HandlerFunc
	logger  *slog.Logger
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPool(bufferSize int, handler HandlerFunc, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		jobs:    make(chan ForwardJob, bufferSize),
		handler: handler,
		logger:  logger,
	}
}

func (p *Pool) Start(workerCount int) {
	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for job := range p.jobs {
		if err := p.handler(context.Background(), job); err != nil {
			jobsProcessed.WithLabelValues("failed").Inc()
			p.logger.Error("payout forwarding failed",
				"correlation_id", job.CorrelationID,
				"payout_id", job.Payout.ID,
				"error", err,
			)
			continue
		}
		jobsProcessed.WithLabelValues("ok").Inc()
	}
}

// Submit enqueues job without blocking. It reports false when the queue is
// full or the pool is shutting down.
func (p *Pool) Submit(job ForwardJob) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		jobsProcessed.WithLabelValues("dropped").Inc()
		return false
	}

	select {
	case p.jobs <- job:
		return true
	default:
		jobsProcessed.WithLabelValues("dropped").Inc()
		return false
	}
}

// Shutdown stops accepting jobs and waits for queued ones to drain.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
