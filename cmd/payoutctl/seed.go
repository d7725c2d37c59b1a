package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/punchamoorthee/payoutops/internal/domain"
)

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Bulk insert synthetic payouts for local testing and benchmarks",
		RunE:  runSeed,
	}
	cmd.Flags().String("db", "", "Postgres connection string (defaults to DB_SOURCE)")
	cmd.Flags().Int("payouts", 1000, "Total payouts the table should hold")
	cmd.Flags().Int("users", 100, "Spread payouts across user ids 1..users")
	cmd.Flags().String("currency", "USD", "Currency of seeded payouts")
	return cmd
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	dsn, err := dbSource(cmd)
	if err != nil {
		return err
	}
	total, _ := cmd.Flags().GetInt("payouts")
	users, _ := cmd.Flags().GetInt("users")
	currency, _ := cmd.Flags().GetString("currency")
	if total <= 0 || users <= 0 {
		return fmt.Errorf("--payouts and --users must be positive")
	}

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	fmt.Fprintln(out, "--- Seeding Database ---")

	// 1. Check existing
	var count int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM payouts").Scan(&count); err != nil {
		return fmt.Errorf("count payouts: %w", err)
	}
	if count >= total {
		fmt.Fprintf(out, "Database already has %d payouts. Skipping.\n", count)
		return nil
	}

	// 2. Generate rows
	statuses := domain.KnownStatuses()
	missing := total - count
	fmt.Fprintf(out, "Generating %d payouts...\n", missing)
	rows := make([][]any, 0, missing)
	now := time.Now().UTC()
	for i := 0; i < missing; i++ {
		cents := rand.Int64N(100_000_00) + 1
		var amount pgtype.Numeric
		if err := amount.Scan(decimal.New(cents, -2).StringFixed(2)); err != nil {
			return fmt.Errorf("encode amount: %w", err)
		}
		rows = append(rows, []any{
			int64(rand.IntN(users) + 1),
			amount,
			currency,
			string(statuses[rand.IntN(len(statuses))]),
			"seed-" + uuid.NewString(),
			now,
			now,
		})
	}

	// 3. Bulk insert using CopyFrom
	copied, err := conn.CopyFrom(
		ctx,
		pgx.Identifier{"payouts"},
		[]string{"user_id", "amount", "currency", "status", "idempotency_key", "created_at", "updated_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("bulk insert failed: %w", err)
	}

	fmt.Fprintf(out, "Successfully seeded %d payouts.\n", copied)
	return nil
}
