package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tamihq/tami-graph/internal/graph"
	"github.com/tamihq/tami-graph/internal/lifecycle"
	"github.com/tamihq/tami-graph/internal/models"
)

func entitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entities",
		Short: "Manage knowledge graph entities",
	}

	cmd.AddCommand(
		entitiesListCmd(),
		entitiesGetCmd(),
		entitiesCreateCmd(),
		entitiesUpdateCmd(),
		entitiesDeleteCmd(),
	)

	return cmd
}

func entitiesListCmd() *cobra.Command {
	var (
		owner      string
		category   string
		searchText string
		limit      int
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's entities grouped by category",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("entities list: connecting to store: %w", err)
			}
			defer func() { _ = st.Close(ctx) }()

			opts := graph.ListOptions{SearchText: searchText, Limit: limit}
			if category != "" {
				cat := models.ParseCategory(category)
				opts.Category = &cat
			}

			listing, err := st.ListEntities(ctx, owner, opts)
			if err != nil {
				return fmt.Errorf("entities list: %w", err)
			}

			if outputJSON {
				out, marshalErr := json.MarshalIndent(listing, "", "  ")
				if marshalErr != nil {
					return fmt.Errorf("entities list: marshaling JSON: %w", marshalErr)
				}
				fmt.Println(string(out))
				return nil
			}

			if listing.Total == 0 {
				fmt.Println("No entities found.")
				return nil
			}

			for _, cat := range models.ValidEntityCategories {
				group := listing.Groups[cat]
				if len(group) == 0 {
					continue
				}
				fmt.Printf("%s (%d)\n", cat, listing.Counts[cat])
				for i := range group {
					e := &group[i].Entity
					fmt.Printf("  %-36s  %-20s  mentions=%d meetings=%d\n",
						e.ID, truncate(e.DisplayValue, 20), e.MentionCount, group[i].MeetingCount)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner user id (required)")
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().StringVar(&searchText, "search", "", "name search text")
	cmd.Flags().IntVar(&limit, "limit", 50, "max results")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func entitiesGetCmd() *cobra.Command {
	var (
		owner      string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "get <entity-id>",
		Short: "Retrieve a single entity with its mentions and relationships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("entities get: connecting to store: %w", err)
			}
			defer func() { _ = st.Close(ctx) }()

			detail, err := st.GetEntityDetail(ctx, owner, args[0])
			if err != nil {
				return fmt.Errorf("entities get: %w", err)
			}

			if outputJSON {
				out, marshalErr := json.MarshalIndent(detail, "", "  ")
				if marshalErr != nil {
					return fmt.Errorf("entities get: marshaling JSON: %w", marshalErr)
				}
				fmt.Println(string(out))
				return nil
			}

			e := &detail.Entity
			fmt.Printf("ID:        %s\n", e.ID)
			fmt.Printf("Name:      %s\n", e.DisplayValue)
			fmt.Printf("Category:  %s\n", e.Category)
			fmt.Printf("Aliases:   %s\n", strings.Join(e.Aliases, ", "))
			fmt.Printf("Mentions:  %d\n", e.MentionCount)
			fmt.Printf("Created:   %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("Updated:   %s\n", e.UpdatedAt.Format("2006-01-02 15:04:05"))
			if len(detail.Mentions) > 0 {
				fmt.Println("\nMeetings:")
				for i := range detail.Mentions {
					m := &detail.Mentions[i]
					fmt.Printf("  %-36s  count=%d  %s\n", m.MeetingID, m.Count, truncate(m.Context, 60))
				}
			}
			if len(detail.Relationships) > 0 {
				fmt.Println("\nRelationships:")
				for i := range detail.Relationships {
					r := &detail.Relationships[i]
					fmt.Printf("  %s -[%s]-> %s\n", r.FromID, r.Type, r.ToID)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner user id (required)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func entitiesCreateCmd() *cobra.Command {
	var (
		owner       string
		category    string
		aliases     []string
		description string
		outputJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "create <display-value>",
		Short: "Create a user-created entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("entities create: connecting to store: %w", err)
			}
			defer func() { _ = st.Close(ctx) }()

			entity, err := st.CreateEntity(ctx, owner, graph.CreateEntityInput{
				Category:     models.ParseCategory(category),
				DisplayValue: args[0],
				Aliases:      aliases,
				Description:  description,
			})
			if err != nil {
				return fmt.Errorf("entities create: %w", err)
			}

			if outputJSON {
				out, marshalErr := json.MarshalIndent(entity, "", "  ")
				if marshalErr != nil {
					return fmt.Errorf("entities create: marshaling JSON: %w", marshalErr)
				}
				fmt.Println(string(out))
				return nil
			}

			fmt.Printf("Created %s (%s) as %s\n", entity.DisplayValue, entity.Category, entity.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner user id (required)")
	cmd.Flags().StringVar(&category, "category", "", "entity category (required)")
	cmd.Flags().StringSliceVar(&aliases, "alias", nil, "alias (repeatable)")
	cmd.Flags().StringVar(&description, "description", "", "entity description")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func entitiesUpdateCmd() *cobra.Command {
	var (
		owner        string
		displayValue string
		description  string
		aliases      []string
		outputJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "update <entity-id>",
		Short: "Update an entity's display value, description, or aliases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("entities update: connecting to store: %w", err)
			}
			defer func() { _ = st.Close(ctx) }()

			var patch graph.EntityPatch
			if cmd.Flags().Changed("name") {
				patch.DisplayValue = &displayValue
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			if cmd.Flags().Changed("alias") {
				patch.Aliases = &aliases
			}

			entity, err := st.UpdateEntity(ctx, owner, args[0], patch)
			if err != nil {
				return fmt.Errorf("entities update: %w", err)
			}

			if outputJSON {
				out, marshalErr := json.MarshalIndent(entity, "", "  ")
				if marshalErr != nil {
					return fmt.Errorf("entities update: marshaling JSON: %w", marshalErr)
				}
				fmt.Println(string(out))
				return nil
			}

			fmt.Printf("Updated %s\n", entity.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner user id (required)")
	cmd.Flags().StringVar(&displayValue, "name", "", "new display value")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringSliceVar(&aliases, "alias", nil, "replacement alias list (repeatable)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func entitiesDeleteCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "delete <entity-id>",
		Short: "Delete an entity and all its edges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			st, err := newStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("entities delete: connecting to store: %w", err)
			}
			defer func() { _ = st.Close(ctx) }()

			m, err := newMirror(ctx, logger)
			if err != nil {
				return fmt.Errorf("entities delete: %w", err)
			}

			cleaner := lifecycle.NewEngine(st, m, logger)
			if err := cleaner.OnEntityDeleted(ctx, owner, args[0]); err != nil {
				return fmt.Errorf("entities delete: %w", err)
			}

			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner user id (required)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
