package models

import (
	"strings"
	"time"
)

// RelationType is a typed semantic link between two entities. The set is
// closed: relationship patterns are built only from these constants, never
// from caller-supplied strings.
type RelationType string

const (
	RelWorksAt          RelationType = "WORKS_AT"
	RelManages          RelationType = "MANAGES"
	RelCollaboratesWith RelationType = "COLLABORATES_WITH"
	RelReportsTo        RelationType = "REPORTS_TO"
	RelUses             RelationType = "USES"
	RelRelatedTo        RelationType = "RELATED_TO"
	RelDependsOn        RelationType = "DEPENDS_ON"
	RelLocatedIn        RelationType = "LOCATED_IN"
	RelScheduledFor     RelationType = "SCHEDULED_FOR"
)

// ValidRelationTypes is the set of all valid relationship types.
var ValidRelationTypes = []RelationType{
	RelWorksAt,
	RelManages,
	RelCollaboratesWith,
	RelReportsTo,
	RelUses,
	RelRelatedTo,
	RelDependsOn,
	RelLocatedIn,
	RelScheduledFor,
}

// IsValid returns true if the relation type is recognized.
func (rt RelationType) IsValid() bool {
	for i := range ValidRelationTypes {
		if rt == ValidRelationTypes[i] {
			return true
		}
	}
	return false
}

// ParseRelationType maps a string to the closed relation type set.
// The second return is false when the string is not a known type.
func ParseRelationType(s string) (RelationType, bool) {
	rt := RelationType(strings.ToUpper(strings.TrimSpace(s)))
	if rt.IsValid() {
		return rt, true
	}
	return "", false
}

// RelDirection selects which relationship edges to list for an entity.
type RelDirection string

const (
	DirectionOutgoing RelDirection = "outgoing"
	DirectionIncoming RelDirection = "incoming"
	DirectionBoth     RelDirection = "both"
)

// Relationship is a typed directed semantic link between two entities.
// Duplicate edges of the same type between the same ordered pair carry no
// extra meaning and are deduplicated on write.
type Relationship struct {
	FromID     string       `json:"from_id"`
	ToID       string       `json:"to_id"`
	Type       RelationType `json:"type"`
	Confidence float64      `json:"confidence"`
	Context    string       `json:"context,omitempty"`
	Source     string       `json:"source,omitempty"` // "ai", "user", "inferred"
	CreatedAt  time.Time    `json:"created_at"`
}

// SourceInferred marks relationship edges derived from co-occurrence
// patterns rather than extraction or user input.
const SourceInferred = "inferred"

// PathNode is one node on a connection path. Paths may pass through
// meetings as well as entities, so nodes carry a kind instead of a full
// Entity.
type PathNode struct {
	ID   string `json:"id"`
	Kind string `json:"kind"` // "entity" or "meeting"
	Name string `json:"name"`
}

// PathEdge is one hop on a connection path. Type is the raw edge type,
// including MENTIONED_IN for hops through a shared meeting.
type PathEdge struct {
	FromID string `json:"from_id"`
	ToID   string `json:"to_id"`
	Type   string `json:"type"`
}

// ConnectionPath is a path connecting two entities through relationship
// and mention edges.
type ConnectionPath struct {
	Nodes []PathNode `json:"nodes"`
	Edges []PathEdge `json:"edges"`
}
