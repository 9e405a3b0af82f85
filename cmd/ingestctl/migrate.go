package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/crmingest/internal/store/postgres"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connect(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			return printVersion(cmd, db)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connect(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			return printVersion(cmd, db)
		},
	})
	return cmd
}

func connect(cmd *cobra.Command) (*postgres.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return postgres.Connect(cmd.Context(), cfg.Database)
}

func printVersion(cmd *cobra.Command, db *postgres.DB) error {
	v, err := db.SchemaVersion(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
	return nil
}
