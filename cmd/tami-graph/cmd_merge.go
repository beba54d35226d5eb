package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tamihq/tami-graph/internal/merge"
)

func mergeCmd() *cobra.Command {
	var (
		owner      string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "merge <target-id> <source-id>",
		Short: "Merge the source entity into the target",
		Long: `Folds the source entity into the target in one atomic transaction:
mention edges are combined per meeting, relationships re-pointed, mention
counts summed, and aliases extended. The source entity is deleted.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("merge: connecting to store: %w", err)
			}
			defer func() { _ = st.Close(ctx) }()

			m, err := newMirror(ctx, logger)
			if err != nil {
				return fmt.Errorf("merge: %w", err)
			}

			engine := merge.NewEngine(st, m, logger)
			merged, err := engine.Merge(ctx, owner, args[0], args[1])
			if err != nil {
				return fmt.Errorf("merge: %w", err)
			}

			if outputJSON {
				out, marshalErr := json.MarshalIndent(merged, "", "  ")
				if marshalErr != nil {
					return fmt.Errorf("merge: marshaling JSON: %w", marshalErr)
				}
				fmt.Println(string(out))
				return nil
			}

			fmt.Printf("Merged %s into %s\n", args[1], args[0])
			fmt.Printf("Name:      %s\n", merged.DisplayValue)
			fmt.Printf("Mentions:  %d\n", merged.MentionCount)
			fmt.Printf("Aliases:   %s\n", strings.Join(merged.Aliases, ", "))
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner user id (required)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
