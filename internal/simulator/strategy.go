package simulator

import (
	"math/rand/v2"
	"time"

	"github.com/punchamoorthee/payoutops/internal/domain"
)

// DecisionFunc picks the status the processor will report for a payout.
type DecisionFunc func(Record) domain.Status

// RandomDecision draws uniformly from statuses, emulating an opaque processor.
func RandomDecision(statuses []domain.Status) DecisionFunc {
	pool := append([]domain.Status(nil), statuses...)
	return func(Record) domain.Status {
		return pool[rand.IntN(len(pool))]
	}
}

// FixedDecision always reports status.
func FixedDecision(status domain.Status) DecisionFunc {
	return func(Record) domain.Status { return status }
}

// DelayFunc returns the simulated processing latency of one payout.
type DelayFunc func() time.Duration

// UniformDelay draws from [min, max].
func UniformDelay(min, max time.Duration) DelayFunc {
	if max <= min {
		return func() time.Duration { return min }
	}
	span := int64(max - min)
	return func() time.Duration {
		return min + time.Duration(rand.Int64N(span+1))
	}
}
