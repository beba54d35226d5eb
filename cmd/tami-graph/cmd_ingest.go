package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tamihq/tami-graph/internal/ingest"
	"github.com/tamihq/tami-graph/internal/models"
)

func ingestCmd() *cobra.Command {
	var (
		owner string
		file  string
	)

	cmd := &cobra.Command{
		Use:   "ingest <meeting-id>",
		Short: "Ingest extracted entities for a meeting",
		Long: `Reads a JSON array of extracted entities (from the extraction step) and
upserts them into the graph, recording one mention edge per entity. Reads
from --file, or stdin when --file is "-" or unset.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			var raw []byte
			var err error
			if file == "" || file == "-" {
				raw, err = io.ReadAll(os.Stdin)
			} else {
				raw, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("ingest: reading input: %w", err)
			}

			var extracted []models.ExtractedEntity
			if err := json.Unmarshal(raw, &extracted); err != nil {
				return fmt.Errorf("ingest: parsing input: %w", err)
			}
			if len(extracted) == 0 {
				return fmt.Errorf("ingest: no entities in input")
			}

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("ingest: connecting to store: %w", err)
			}
			defer func() { _ = st.Close(ctx) }()

			m, err := newMirror(ctx, logger)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			pipeline := ingest.NewPipeline(st, m, logger)
			report, err := pipeline.IngestMeeting(ctx, owner, args[0], extracted)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			fmt.Printf("Upserted %d entities (%d failed) for meeting %s\n",
				report.Upserted, report.Failed, args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner user id (required)")
	cmd.Flags().StringVar(&file, "file", "", "JSON input file (default stdin)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
