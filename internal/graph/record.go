package graph

import (
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/tamihq/tami-graph/internal/models"
)

// Helpers that normalize graph-native record values (nodes, integers,
// datetimes, lists) into plain Go values before they leave this package.

// entityFromRow extracts the node under key and maps its properties onto
// an Entity.
func entityFromRow(row map[string]any, key string) (*models.Entity, error) {
	props, err := nodeProps(row[key])
	if err != nil {
		return nil, fmt.Errorf("reading entity column %q: %w", key, err)
	}
	return &models.Entity{
		ID:              asString(props["id"]),
		Owner:           asString(props["user_id"]),
		Category:        models.ParseCategory(asString(props["category"])),
		NormalizedValue: asString(props["normalized_value"]),
		DisplayValue:    asString(props["display_value"]),
		Aliases:         asStringSlice(props["aliases"]),
		Description:     asString(props["description"]),
		MentionCount:    asInt(props["mention_count"]),
		Confidence:      asFloat(props["confidence"]),
		IsUserCreated:   asBool(props["is_user_created"]),
		FirstSeen:       asTime(props["first_seen"]),
		LastSeen:        asTime(props["last_seen"]),
		CreatedAt:       asTime(props["created_at"]),
		UpdatedAt:       asTime(props["updated_at"]),
	}, nil
}

func entitiesFromRows(rows []map[string]any, key string) ([]models.Entity, error) {
	out := make([]models.Entity, 0, len(rows))
	for _, row := range rows {
		e, err := entityFromRow(row, key)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, nil
}

func mentionFromProps(entityID, meetingID string, props map[string]any) models.Mention {
	return models.Mention{
		EntityID:       entityID,
		MeetingID:      meetingID,
		Context:        asString(props["context"]),
		Count:          asInt(props["mention_count"]),
		TimestampStart: asFloat(props["timestamp_start"]),
		TimestampEnd:   asFloat(props["timestamp_end"]),
		Speaker:        asString(props["speaker"]),
		Sentiment:      asFloat(props["sentiment"]),
		CreatedAt:      asTime(props["created_at"]),
	}
}

func nodeProps(v any) (map[string]any, error) {
	switch n := v.(type) {
	case neo4j.Node:
		return n.Props, nil
	case map[string]any:
		return n, nil
	case nil:
		return nil, fmt.Errorf("missing node value")
	default:
		return nil, fmt.Errorf("unexpected node value %T", v)
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	default:
		return time.Time{}
	}
}

func asStringSlice(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
