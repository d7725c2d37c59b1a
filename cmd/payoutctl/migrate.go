package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/punchamoorthee/payoutops/internal/store"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded payout schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := dbSource(cmd)
			if err != nil {
				return err
			}

			pg, err := store.NewPostgresStore(cmd.Context(), dsn)
			if err != nil {
				return err
			}
			defer pg.Close()

			if err := store.Migrate(cmd.Context(), pg.Db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.Flags().String("db", "", "Postgres connection string (defaults to DB_SOURCE)")
	return cmd
}
