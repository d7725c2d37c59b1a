package simulator

import (
	"errors"
	"sync"

	"github.com/punchamoorthee/payoutops/internal/domain"
)

var (
	ErrUnknownKey  = errors.New("simulator: unknown idempotency key")
	ErrIDCollision = errors.New("simulator: payout id already registered under another key")
)

// Record is the processor's view of a payout plus what it decided to notify.
type Record struct {
	domain.Payout
	Decided   domain.Status
	RequestID string
}

// Registry stores records by idempotency key. Mutations of one record are
// serialized; records under different keys never block each other.
type Registry interface {
	// PutIfAbsent stores rec unless its key exists. A zero rec.ID asks the
	// registry to allocate the next sequential id.
	PutIfAbsent(rec Record) (stored Record, created bool, err error)
	Get(key string) (Record, bool)
	GetByID(id int64) (Record, bool)
	// Update applies fn to the record under that record's lock.
	Update(key string, fn func(*Record)) (Record, error)
}

type registryEntry struct {
	mu  sync.Mutex
	rec Record
}

type MemoryRegistry struct {
	mu     sync.RWMutex
	byKey  map[string]*registryEntry
	byID   map[int64]*registryEntry
	nextID int64
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		byKey: map[string]*registryEntry{},
		byID:  map[int64]*registryEntry{},
	}
}

func (r *MemoryRegistry) PutIfAbsent(rec Record) (Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byKey[rec.IdempotencyKey]; ok {
		return existing.snapshot(), false, nil
	}

	if rec.ID == 0 {
		for {
			r.nextID++
			if _, taken := r.byID[r.nextID]; !taken {
				break
			}
		}
		rec.ID = r.nextID
	} else if _, taken := r.byID[rec.ID]; taken {
		return Record{}, false, ErrIDCollision
	}

	entry := &registryEntry{rec: rec}
	r.byKey[rec.IdempotencyKey] = entry
	r.byID[rec.ID] = entry
	return rec, true, nil
}

func (r *MemoryRegistry) Get(key string) (Record, bool) {
	r.mu.RLock()
	entry, ok := r.byKey[key]
	r.mu.RUnlock()
	if !ok {
		return Record{}, false
	}
	return entry.snapshot(), true
}

func (r *MemoryRegistry) GetByID(id int64) (Record, bool) {
	r.mu.RLock()
	entry, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return Record{}, false
	}
	return entry.snapshot(), true
}

func (r *MemoryRegistry) Update(key string, fn func(*Record)) (Record, error) {
	r.mu.RLock()
	entry, ok := r.byKey[key]
	r.mu.RUnlock()
	if !ok {
		return Record{}, ErrUnknownKey
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	fn(&entry.rec)
	return entry.rec, nil
}

func (e *registryEntry) snapshot() Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec
}

var _ Registry = (*MemoryRegistry)(nil)
