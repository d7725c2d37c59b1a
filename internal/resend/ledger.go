package resend

import (
	"strconv"
	"sync"
	"time"
)

// Ledger counts resend requests per (correlation id, payout id) pair.
type Ledger interface {
	// Reserve records one more attempt for key unless ceiling attempts have
	// already been recorded. It returns the attempt number that was reserved.
	Reserve(key string, ceiling int) (attempt int, ok bool)
	Count(key string) int
}

// Key builds the ledger key for a payout seen under a correlation id.
func Key(correlationID string, payoutID int64) string {
	return correlationID + ":" + strconv.FormatInt(payoutID, 10)
}

type ledgerEntry struct {
	attempts int
	lastSeen time.Time
}

// MemoryLedger is a process-local ledger. With a positive TTL an entry whose
// last reservation is older than the TTL starts over from zero.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]*ledgerEntry
	ttl     time.Duration
	Now     func() time.Time
}

func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{
		entries: map[string]*ledgerEntry{},
		ttl:     ttl,
		Now:     time.Now,
	}
}

func (l *MemoryLedger) Reserve(key string, ceiling int) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.Now()
	entry := l.live(key, now)
	if entry == nil {
		entry = &ledgerEntry{}
		l.entries[key] = entry
	}
	if entry.attempts >= ceiling {
		return entry.attempts, false
	}
	entry.attempts++
	entry.lastSeen = now
	return entry.attempts, true
}

func (l *MemoryLedger) Count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry := l.live(key, l.Now()); entry != nil {
		return entry.attempts
	}
	return 0
}

// live returns the entry for key, dropping it first if it expired. Callers hold mu.
func (l *MemoryLedger) live(key string, now time.Time) *ledgerEntry {
	entry, ok := l.entries[key]
	if !ok {
		return nil
	}
	if l.ttl > 0 && now.Sub(entry.lastSeen) > l.ttl {
		delete(l.entries, key)
		return nil
	}
	return entry
}

var _ Ledger = (*MemoryLedger)(nil)
