package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tamihq/tami-graph/internal/match"
)

func duplicatesCmd() *cobra.Command {
	var (
		owner         string
		threshold     float64
		maxResults    int
		skipExpensive bool
		outputJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "duplicates <entity-id>",
		Short: "Scan for likely duplicates of an entity",
		Long: `Scores same-category entities of the same owner against the given entity
and prints ranked duplicate candidates. Advisory only; nothing is merged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("duplicates: connecting to store: %w", err)
			}
			defer func() { _ = st.Close(ctx) }()

			matcher := match.NewMatcherWithDefaults(st, newEmbedder(logger), newJudge(logger), matchDefaults(), logger)

			opts := match.Options{
				MaxResults:    maxResults,
				SkipExpensive: skipExpensive,
			}
			if cmd.Flags().Changed("threshold") {
				opts.Threshold = match.Float(threshold)
			}

			candidates, err := matcher.FindDuplicates(ctx, owner, args[0], opts)
			if err != nil {
				return fmt.Errorf("duplicates: %w", err)
			}

			if outputJSON {
				out, marshalErr := json.MarshalIndent(candidates, "", "  ")
				if marshalErr != nil {
					return fmt.Errorf("duplicates: marshaling JSON: %w", marshalErr)
				}
				fmt.Println(string(out))
				return nil
			}

			if len(candidates) == 0 {
				fmt.Println("No duplicate candidates found.")
				return nil
			}

			for i := range candidates {
				c := &candidates[i]
				fmt.Printf("[%d] %.2f  %-36s  %-20s  (%s) %s\n",
					i+1, c.Score, c.Entity.ID, truncate(c.Entity.DisplayValue, 20), c.Method, c.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner user id (required)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum score 0.0-1.0 (default from config)")
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "max candidates 1-100 (default from config)")
	cmd.Flags().BoolVar(&skipExpensive, "skip-expensive", false, "skip the LLM disambiguation step")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
