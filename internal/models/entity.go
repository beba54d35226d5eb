package models

import (
	"strings"
	"time"
)

// EntityCategory classifies the real-world kind of an entity.
type EntityCategory string

const (
	CategoryPerson       EntityCategory = "person"
	CategoryOrganization EntityCategory = "organization"
	CategoryProject      EntityCategory = "project"
	CategoryTopic        EntityCategory = "topic"
	CategoryLocation     EntityCategory = "location"
	CategoryDate         EntityCategory = "date"
	CategoryProduct      EntityCategory = "product"
	CategoryTechnology   EntityCategory = "technology"
	CategoryOther        EntityCategory = "other"
)

// ValidEntityCategories is the closed set of all entity categories.
var ValidEntityCategories = []EntityCategory{
	CategoryPerson,
	CategoryOrganization,
	CategoryProject,
	CategoryTopic,
	CategoryLocation,
	CategoryDate,
	CategoryProduct,
	CategoryTechnology,
	CategoryOther,
}

// IsValid returns true if the category is recognized.
func (c EntityCategory) IsValid() bool {
	for i := range ValidEntityCategories {
		if c == ValidEntityCategories[i] {
			return true
		}
	}
	return false
}

// Label returns the graph node label for the category. The label set is
// closed; it is never derived from caller-supplied strings.
func (c EntityCategory) Label() string {
	if !c.IsValid() {
		c = CategoryOther
	}
	return strings.ToUpper(string(c[0])) + string(c[1:])
}

// ParseCategory maps a free-form category string to the closed set,
// falling back to CategoryOther for anything unrecognized.
func ParseCategory(s string) EntityCategory {
	c := EntityCategory(strings.ToLower(strings.TrimSpace(s)))
	if c.IsValid() {
		return c
	}
	return CategoryOther
}

// Entity is a resolved real-world referent owned by exactly one user.
type Entity struct {
	ID              string         `json:"id"`
	Owner           string         `json:"owner"`
	Category        EntityCategory `json:"category"`
	NormalizedValue string         `json:"normalized_value"`
	DisplayValue    string         `json:"display_value"`
	Aliases         []string       `json:"aliases,omitempty"`
	Description     string         `json:"description,omitempty"`
	MentionCount    int            `json:"mention_count"`
	Confidence      float64        `json:"confidence"`
	IsUserCreated   bool           `json:"is_user_created"`
	FirstSeen       time.Time      `json:"first_seen"`
	LastSeen        time.Time      `json:"last_seen"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NormalizeValue produces the canonical matching form of a display value:
// lower-cased, trimmed, with runs of whitespace collapsed to single spaces.
func NormalizeValue(display string) string {
	return strings.Join(strings.Fields(strings.ToLower(display)), " ")
}

// MergeAliases appends extra aliases onto base, removing exact duplicates
// while preserving order. Casing variants ("Jon", "jon") are distinct
// aliases: the lower-cased form doubles as a normalized lookup key.
func MergeAliases(base []string, extra ...string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, a := range list {
			a = strings.TrimSpace(a)
			if a == "" || seen[a] {
				continue
			}
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

// EntityListing is an entity paired with the number of distinct meetings
// it appears in, as returned by grouped listings.
type EntityListing struct {
	Entity       Entity `json:"entity"`
	MeetingCount int    `json:"meeting_count"`
}

// GroupedListing maps each category to its entities, ordered by
// mention count descending, with per-category totals.
type GroupedListing struct {
	Groups map[EntityCategory][]EntityListing `json:"groups"`
	Counts map[EntityCategory]int             `json:"counts"`
	Total  int                                `json:"total"`
}

// EntityStats holds per-category entity counts for one owner.
type EntityStats struct {
	ByCategory map[EntityCategory]int64 `json:"by_category"`
	Total      int64                    `json:"total"`
}
