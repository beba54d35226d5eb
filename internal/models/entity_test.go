package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, "john smith", NormalizeValue("  John   Smith "))
	assert.Equal(t, "acme corp", NormalizeValue("ACME Corp"))
	assert.Equal(t, "", NormalizeValue("   "))
	assert.Equal(t, "a b c", NormalizeValue("a\tb\nc"))
}

func TestParseCategory(t *testing.T) {
	assert.Equal(t, CategoryPerson, ParseCategory("person"))
	assert.Equal(t, CategoryPerson, ParseCategory("  Person "))
	assert.Equal(t, CategoryOrganization, ParseCategory("ORGANIZATION"))

	// Unrecognized categories fall back to other instead of minting new labels.
	assert.Equal(t, CategoryOther, ParseCategory("wizard"))
	assert.Equal(t, CategoryOther, ParseCategory(""))
}

func TestCategoryLabel(t *testing.T) {
	assert.Equal(t, "Person", CategoryPerson.Label())
	assert.Equal(t, "Technology", CategoryTechnology.Label())
	assert.Equal(t, "Other", EntityCategory("not-a-category").Label())
}

func TestMergeAliases(t *testing.T) {
	out := MergeAliases([]string{"Jon", "Jonathan"}, "Jon", "jon", "  ", "Johnny")
	assert.Equal(t, []string{"Jon", "Jonathan", "jon", "Johnny"}, out)
}

func TestMergeAliases_KeepsCasingVariants(t *testing.T) {
	// "Jon" and "jon" are both kept: the lower-cased form is the lookup key.
	out := MergeAliases(nil, "Jon", "jon", "Jonathan")
	require.Len(t, out, 3)
	assert.Contains(t, out, "Jon")
	assert.Contains(t, out, "jon")
	assert.Contains(t, out, "Jonathan")
}

func TestParseRelationType(t *testing.T) {
	typ, ok := ParseRelationType("works_at")
	require.True(t, ok)
	assert.Equal(t, RelWorksAt, typ)

	typ, ok = ParseRelationType(" MANAGES ")
	require.True(t, ok)
	assert.Equal(t, RelManages, typ)

	_, ok = ParseRelationType("FRIENDS_WITH")
	assert.False(t, ok)

	_, ok = ParseRelationType("")
	assert.False(t, ok)
}
