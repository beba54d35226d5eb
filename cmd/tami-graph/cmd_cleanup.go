package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tamihq/tami-graph/internal/lifecycle"
)

func cleanupCmd() *cobra.Command {
	var (
		owner      string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup <meeting-id>",
		Short: "Remove a deleted meeting's mention edges and orphaned entities",
		Long: `Runs the graph-side cleanup for a meeting that was deleted from the
primary store: every mention edge into the meeting is removed (decrementing
each entity's mention count by the edge's own count), then auto-created
entities with no remaining mentions are deleted. User-created entities are
always retained.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("cleanup: connecting to store: %w", err)
			}
			defer func() { _ = st.Close(ctx) }()

			m, err := newMirror(ctx, logger)
			if err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}

			engine := lifecycle.NewEngine(st, m, logger)
			report, err := engine.OnMeetingDeleted(ctx, owner, args[0])
			if err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}

			if outputJSON {
				out, marshalErr := json.MarshalIndent(report, "", "  ")
				if marshalErr != nil {
					return fmt.Errorf("cleanup: marshaling JSON: %w", marshalErr)
				}
				fmt.Println(string(out))
				return nil
			}

			fmt.Printf("Entities touched:  %d\n", report.EntitiesTouched)
			fmt.Printf("Orphans removed:   %d\n", report.OrphansRemoved)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner user id (required)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
