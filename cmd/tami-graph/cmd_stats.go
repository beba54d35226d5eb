package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show entity counts per category",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("stats: connecting to store: %w", err)
			}
			defer func() { _ = st.Close(ctx) }()

			stats, err := st.Stats(ctx, owner)
			if err != nil {
				return fmt.Errorf("stats: fetching statistics: %w", err)
			}

			fmt.Printf("Total entities: %d\n\n", stats.Total)

			fmt.Println("By category:")
			for cat, c := range stats.ByCategory {
				fmt.Printf("  %-14s %d\n", cat, c)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner user id (required)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
