package main

import (
	"fmt"

	"github.com/Veraticus/txnflow/internal/cli"
	"github.com/Veraticus/txnflow/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func migrateCmd() *cobra.Command {
	var status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

This creates the transactions, customer importance, checkpoint and detections
tables along with their indexes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := storage.Open(ctx, storage.Options{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() { _ = store.Close() }()

			current, err := store.SchemaVersion(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if status {
				fmt.Fprintln(out, cli.FormatTitle("Database Migration Status"))
				fmt.Fprintf(out, "Driver:          %s\n", store.Driver())
				fmt.Fprintf(out, "Current version: %d\n", current)
				fmt.Fprintf(out, "Latest version:  %d\n", storage.ExpectedSchemaVersion)
				if current < storage.ExpectedSchemaVersion {
					fmt.Fprintln(out, cli.FormatWarning("Migrations pending, run 'txnflow migrate'"))
				} else {
					fmt.Fprintln(out, cli.FormatSuccess("Schema is up to date"))
				}
				return nil
			}

			logger.Info("running database migrations",
				zap.String("driver", store.Driver()),
				zap.Int("from_version", current))
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Database migrated to version %d", storage.ExpectedSchemaVersion)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "Show current migration status without applying changes")
	return cmd
}
