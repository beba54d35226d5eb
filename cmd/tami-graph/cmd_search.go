package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tamihq/tami-graph/internal/models"
)

func searchCmd() *cobra.Command {
	var (
		owner      string
		categories []string
		limit      int
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Search entities by name or alias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("search: connecting to store: %w", err)
			}
			defer func() { _ = st.Close(ctx) }()

			var cats []models.EntityCategory
			for _, raw := range categories {
				cats = append(cats, models.ParseCategory(raw))
			}

			results, err := st.SearchEntities(ctx, owner, args[0], cats, limit)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if len(results) == 0 {
				fmt.Printf("No entities found matching %q.\n", args[0])
				return nil
			}

			if outputJSON {
				out, marshalErr := json.MarshalIndent(results, "", "  ")
				if marshalErr != nil {
					return fmt.Errorf("search: marshaling JSON: %w", marshalErr)
				}
				fmt.Println(string(out))
				return nil
			}

			for i := range results {
				e := &results[i]
				aliases := strings.Join(e.Aliases, ", ")
				fmt.Printf("%-36s  %-12s  %-20s  %s\n", e.ID, e.Category, truncate(e.DisplayValue, 20), aliases)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner user id (required)")
	cmd.Flags().StringSliceVar(&categories, "category", nil, "restrict to category (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 20, "max results")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
