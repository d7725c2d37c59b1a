package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "payoutctl",
		Short:   "Operational tooling for the payout receiver and processor",
		Version: Version,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(benchCmd())
	rootCmd.AddCommand(signCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// dbSource prefers the flag and falls back to DB_SOURCE.
func dbSource(cmd *cobra.Command) (string, error) {
	dsn, _ := cmd.Flags().GetString("db")
	if dsn == "" {
		dsn = os.Getenv("DB_SOURCE")
	}
	if dsn == "" {
		return "", fmt.Errorf("database connection string required (--db or DB_SOURCE)")
	}
	return dsn, nil
}
