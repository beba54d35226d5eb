package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to required services",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()
			allOK := true

			// Check Neo4j
			st, err := newStore(ctx, logger)
			if err != nil {
				fmt.Printf("Neo4j: FAIL (%v)\n", err)
				allOK = false
			} else {
				defer func() { _ = st.Close(ctx) }()
				if err := st.EnsureSchema(ctx); err != nil {
					fmt.Printf("Neo4j: FAIL (%v)\n", err)
					allOK = false
				} else {
					fmt.Println("Neo4j: OK")
				}
			}

			// Check Postgres mirror
			m, err := newMirror(ctx, logger)
			if err != nil {
				fmt.Printf("Postgres: FAIL (%v)\n", err)
				allOK = false
			} else if m == nil {
				fmt.Println("Postgres: skipped (no DSN configured)")
			} else if err := m.EnsureTable(ctx); err != nil {
				fmt.Printf("Postgres: FAIL (%v)\n", err)
				allOK = false
			} else {
				fmt.Println("Postgres: OK")
			}

			// Check embedder
			emb := newEmbedder(logger)
			if emb == nil {
				fmt.Println("Embedder: skipped (provider none)")
			} else if _, err := emb.Embed(ctx, "health check"); err != nil {
				fmt.Printf("Embedder: FAIL (%v)\n", err)
				allOK = false
			} else {
				fmt.Println("Embedder: OK")
			}

			// Check Claude API key
			if cfg.Claude.APIKey == "" {
				fmt.Println("Claude API: skipped (no API key configured)")
			} else {
				fmt.Println("Claude API: OK")
			}

			if !allOK {
				return fmt.Errorf("one or more health checks failed")
			}
			return nil
		},
	}
}
