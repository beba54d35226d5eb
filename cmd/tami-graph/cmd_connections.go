package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func connectionsCmd() *cobra.Command {
	var (
		owner      string
		maxHops    int
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "connections <from-id> <to-id>",
		Short: "Find how two entities are connected",
		Long: `Finds shortest paths between two entities of the same owner, traversing
relationships and shared meetings up to the hop limit.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("connections: connecting to store: %w", err)
			}
			defer func() { _ = st.Close(ctx) }()

			paths, err := st.FindConnections(ctx, owner, args[0], args[1], maxHops)
			if err != nil {
				return fmt.Errorf("connections: %w", err)
			}

			if outputJSON {
				out, marshalErr := json.MarshalIndent(paths, "", "  ")
				if marshalErr != nil {
					return fmt.Errorf("connections: marshaling JSON: %w", marshalErr)
				}
				fmt.Println(string(out))
				return nil
			}

			if len(paths) == 0 {
				fmt.Println("No connection found.")
				return nil
			}

			for i := range paths {
				p := &paths[i]
				fmt.Printf("[%d] %d hops\n", i+1, len(p.Edges))
				for j := range p.Nodes {
					n := &p.Nodes[j]
					fmt.Printf("    %-8s %-36s %s\n", n.Kind, n.ID, truncate(n.Name, 40))
					if j < len(p.Edges) {
						fmt.Printf("      | %s\n", p.Edges[j].Type)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner user id (required)")
	cmd.Flags().IntVar(&maxHops, "max-hops", 4, "maximum path length 1-6")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
