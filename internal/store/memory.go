package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/punchamoorthee/payoutops/internal/domain"
)

type memoryRow struct {
	mu     sync.Mutex
	payout domain.Payout
}

// MemoryStore keeps payouts in process. The map lock only guards membership;
// each row carries its own lock for status writes.
type MemoryStore struct {
	mu     sync.RWMutex
	rows   map[int64]*memoryRow
	byKey  map[string]int64
	nextID int64
	Now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:  map[int64]*memoryRow{},
		byKey: map[string]int64{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryStore) CreatePayout(_ context.Context, p domain.Payout) (domain.Payout, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[p.IdempotencyKey]; ok {
		return s.snapshot(s.rows[id]), false, nil
	}

	s.nextID++
	now := s.Now()
	p.ID = s.nextID
	p.CreatedAt = now
	p.UpdatedAt = now
	s.rows[p.ID] = &memoryRow{payout: p}
	s.byKey[p.IdempotencyKey] = p.ID
	return p, true, nil
}

func (s *MemoryStore) GetPayout(_ context.Context, id int64) (domain.Payout, error) {
	row, ok := s.row(id)
	if !ok {
		return domain.Payout{}, ErrPayoutNotFound
	}
	return s.snapshot(row), nil
}

func (s *MemoryStore) ListPayouts(_ context.Context, userID int64, offset, limit int) ([]domain.Payout, int, error) {
	s.mu.RLock()
	owned := make([]*memoryRow, 0)
	for _, row := range s.rows {
		if row.payout.UserID == userID {
			owned = append(owned, row)
		}
	}
	s.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool { return owned[i].payout.ID > owned[j].payout.ID })

	total := len(owned)
	if offset >= total {
		return []domain.Payout{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := make([]domain.Payout, 0, end-offset)
	for _, row := range owned[offset:end] {
		page = append(page, s.snapshot(row))
	}
	return page, total, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id int64, status domain.Status) (domain.Payout, error) {
	row, ok := s.row(id)
	if !ok {
		return domain.Payout{}, ErrPayoutNotFound
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	row.payout.Status = status
	row.payout.UpdatedAt = s.Now()
	return row.payout, nil
}

func (s *MemoryStore) CompareAndSetStatus(_ context.Context, id int64, from, to domain.Status) (domain.Payout, bool, error) {
	row, ok := s.row(id)
	if !ok {
		return domain.Payout{}, false, ErrPayoutNotFound
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	if row.payout.Status != from {
		return row.payout, false, nil
	}
	row.payout.Status = to
	row.payout.UpdatedAt = s.Now()
	return row.payout, true, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() {}

func (s *MemoryStore) row(id int64) (*memoryRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	return row, ok
}

func (s *MemoryStore) snapshot(row *memoryRow) domain.Payout {
	row.mu.Lock()
	defer row.mu.Unlock()
	return row.payout
}

var (
	_ PayoutStore = (*MemoryStore)(nil)
	_ PayoutStore = (*PostgresStore)(nil)
)
