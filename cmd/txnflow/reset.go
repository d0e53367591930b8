package main

import (
	"fmt"

	"github.com/Veraticus/txnflow/internal/cli"
	"github.com/spf13/cobra"
)

func resetCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and recreate all pipeline tables",
		Long: `Reset drops the transactions, customer importance, checkpoint and
detections tables and recreates an empty schema. Objects already written to
the object store are left alone.

This is a destructive operation.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := openStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			out := cmd.OutOrStdout()
			if !force {
				stats, err := store.Stats(ctx, 0)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "This will delete %d transactions and all detections.\n", stats.TotalTransactions)
				ok, err := cli.Confirm(ctx, cmd.InOrStdin(), out, "Are you sure you want to continue?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "Reset canceled.")
					return nil
				}
			}

			if err := store.Reset(ctx); err != nil {
				return fmt.Errorf("failed to reset database: %w", err)
			}
			fmt.Fprintln(out, cli.FormatSuccess("Database reset"))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")
	return cmd
}
