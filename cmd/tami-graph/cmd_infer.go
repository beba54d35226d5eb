package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func inferCmd() *cobra.Command {
	var (
		owner      string
		minShared  int
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Infer collaboration edges from meeting co-occurrence",
		Long: `Creates COLLABORATES_WITH relationships between people who appear together
in at least --min-shared meetings. Inferred edges are refreshed on rerun;
user- and AI-created edges are left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("infer: connecting to store: %w", err)
			}
			defer func() { _ = st.Close(ctx) }()

			inferred, err := st.InferCollaborations(ctx, owner, minShared)
			if err != nil {
				return fmt.Errorf("infer: %w", err)
			}

			if outputJSON {
				out, marshalErr := json.MarshalIndent(map[string]int{"inferred": inferred}, "", "  ")
				if marshalErr != nil {
					return fmt.Errorf("infer: marshaling JSON: %w", marshalErr)
				}
				fmt.Println(string(out))
				return nil
			}

			fmt.Printf("Inferred %d collaboration edge(s).\n", inferred)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner user id (required)")
	cmd.Flags().IntVar(&minShared, "min-shared", 3, "minimum shared meetings for a pair")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
