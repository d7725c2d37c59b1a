package store

import (
	"context"
	"errors"

	"github.com/punchamoorthee/payoutops/internal/domain"
)

var ErrPayoutNotFound = errors.New("payout not found")

// PayoutStore is the receiver's durable record of payouts. Implementations
// serialize writes to the same payout while letting unrelated payouts proceed.
type PayoutStore interface {
	// CreatePayout inserts p unless its idempotency key already exists, in
	// which case the stored payout is returned with created=false.
	CreatePayout(ctx context.Context, p domain.Payout) (stored domain.Payout, created bool, err error)
	GetPayout(ctx context.Context, id int64) (domain.Payout, error)
	ListPayouts(ctx context.Context, userID int64, offset, limit int) ([]domain.Payout, int, error)
	// UpdateStatus overwrites the status unconditionally.
	UpdateStatus(ctx context.Context, id int64, status domain.Status) (domain.Payout, error)
	// CompareAndSetStatus moves from -> to only if the payout is still in from.
	CompareAndSetStatus(ctx context.Context, id int64, from, to domain.Status) (domain.Payout, bool, error)
	Ping(ctx context.Context) error
	Close()
}
