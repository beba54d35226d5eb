package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create graph constraints, indexes, and the mirror table",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("schema: connecting to store: %w", err)
			}
			defer func() { _ = st.Close(ctx) }()

			if err := st.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("schema: ensuring graph schema: %w", err)
			}
			fmt.Println("Graph schema: OK")

			m, err := newMirror(ctx, logger)
			if err != nil {
				return fmt.Errorf("schema: %w", err)
			}
			if m == nil {
				fmt.Println("Mirror table: skipped (no postgres.dsn configured)")
				return nil
			}
			if err := m.EnsureTable(ctx); err != nil {
				return fmt.Errorf("schema: ensuring mirror table: %w", err)
			}
			fmt.Println("Mirror table: OK")

			return nil
		},
	}
}
