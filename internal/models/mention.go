package models

import "time"

// Mention records that an entity was referenced in a specific meeting.
// There is at most one Mention per (entity, meeting) pair; repeats within
// the same meeting increment Count on the existing edge.
type Mention struct {
	EntityID       string    `json:"entity_id"`
	MeetingID      string    `json:"meeting_id"`
	Context        string    `json:"context,omitempty"`
	Count          int       `json:"mention_count"`
	TimestampStart float64   `json:"timestamp_start,omitempty"`
	TimestampEnd   float64   `json:"timestamp_end,omitempty"`
	Speaker        string    `json:"speaker,omitempty"`
	Sentiment      float64   `json:"sentiment,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ExtractedEntity is one candidate entity produced by the external
// extraction step for a single meeting. The ingest path upserts it into
// the graph by (owner, category, normalized value).
type ExtractedEntity struct {
	Category       string   `json:"category"`
	DisplayValue   string   `json:"display_value"`
	Aliases        []string `json:"aliases,omitempty"`
	Description    string   `json:"description,omitempty"`
	Confidence     float64  `json:"confidence"`
	Context        string   `json:"context,omitempty"`
	MentionCount   int      `json:"mention_count"`
	TimestampStart float64  `json:"timestamp_start,omitempty"`
	TimestampEnd   float64  `json:"timestamp_end,omitempty"`
	Speaker        string   `json:"speaker,omitempty"`
	Sentiment      float64  `json:"sentiment,omitempty"`
}

// EntityDetail is an entity together with its mention edges and
// non-mention relationships, as returned by the detail lookup.
type EntityDetail struct {
	Entity        Entity         `json:"entity"`
	Mentions      []Mention      `json:"mentions,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
}

// CoOccurrence is a pair of entities that appear together in at least
// SharedMeetings distinct meetings.
type CoOccurrence struct {
	First          Entity `json:"first"`
	Second         Entity `json:"second"`
	SharedMeetings int    `json:"shared_meetings"`
}
