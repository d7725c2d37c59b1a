package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/payoutops/internal/domain"
)

const payoutColumns = "id, user_id, amount::text, currency, status, idempotency_key, created_at, updated_at"

type PostgresStore struct {
	Db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{Db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.Db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.Db.Ping(ctx)
}

// CreatePayout relies on the unique idempotency_key index to resolve races
// between concurrent replays of the same key.
func (s *PostgresStore) CreatePayout(ctx context.Context, p domain.Payout) (domain.Payout, bool, error) {
	row := s.Db.QueryRow(ctx,
		`INSERT INTO payouts (user_id, amount, currency, status, idempotency_key)
		 VALUES ($1, $2::text::numeric, $3, $4, $5)
		 ON CONFLICT (idempotency_key) DO NOTHING
		 RETURNING `+payoutColumns,
		p.UserID, p.Amount.StringFixed(2), p.Currency, string(p.Status), p.IdempotencyKey,
	)
	created, err := scanPayout(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Payout{}, false, fmt.Errorf("payout insert failed: %w", err)
	}

	existing, err := scanPayout(s.Db.QueryRow(ctx,
		"SELECT "+payoutColumns+" FROM payouts WHERE idempotency_key = $1", p.IdempotencyKey))
	if err != nil {
		return domain.Payout{}, false, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	return existing, false, nil
}

// GetPayout retrieves a single payout by ID.
func (s *PostgresStore) GetPayout(ctx context.Context, id int64) (domain.Payout, error) {
	p, err := scanPayout(s.Db.QueryRow(ctx, "SELECT "+payoutColumns+" FROM payouts WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payout{}, ErrPayoutNotFound
	}
	return p, err
}

// ListPayouts returns a page of the user's payouts, newest first, and the total count.
func (s *PostgresStore) ListPayouts(ctx context.Context, userID int64, offset, limit int) ([]domain.Payout, int, error) {
	var total int
	if err := s.Db.QueryRow(ctx, "SELECT COUNT(*) FROM payouts WHERE user_id = $1", userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("payout count failed: %w", err)
	}

	rows, err := s.Db.Query(ctx,
		"SELECT "+payoutColumns+" FROM payouts WHERE user_id = $1 ORDER BY id DESC OFFSET $2 LIMIT $3",
		userID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("payout query failed: %w", err)
	}
	defer rows.Close()

	payouts := make([]domain.Payout, 0, limit)
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, 0, err
		}
		payouts = append(payouts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return payouts, total, nil
}

// UpdateStatus is a single statement so the row lock serializes concurrent updates.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id int64, status domain.Status) (domain.Payout, error) {
	p, err := scanPayout(s.Db.QueryRow(ctx,
		"UPDATE payouts SET status = $1, updated_at = now() WHERE id = $2 RETURNING "+payoutColumns,
		string(status), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payout{}, ErrPayoutNotFound
	}
	if err != nil {
		return domain.Payout{}, fmt.Errorf("status update failed: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) CompareAndSetStatus(ctx context.Context, id int64, from, to domain.Status) (domain.Payout, bool, error) {
	p, err := scanPayout(s.Db.QueryRow(ctx,
		"UPDATE payouts SET status = $1, updated_at = now() WHERE id = $2 AND status = $3 RETURNING "+payoutColumns,
		string(to), id, string(from)))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Payout{}, false, fmt.Errorf("status update failed: %w", err)
	}
	current, err := s.GetPayout(ctx, id)
	if err != nil {
		return domain.Payout{}, false, err
	}
	return current, false, nil
}

func scanPayout(row pgx.Row) (domain.Payout, error) {
	var (
		p      domain.Payout
		amount string
		status string
	)
	if err := row.Scan(&p.ID, &p.UserID, &amount, &p.Currency, &status, &p.IdempotencyKey, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Payout{}, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.Payout{}, fmt.Errorf("payout %d has invalid amount %q: %w", p.ID, amount, err)
	}
	p.Amount = parsed
	p.Status = domain.Status(status)
	return p, nil
}
