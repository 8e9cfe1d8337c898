package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/douglaslinsmeyer/carol-query-engine/internal/catalog"
)

const testCatalogJSON = `{
  "fields": [
    {
      "value": "Event",
      "subfields": [
        {
          "value": "EventDate",
          "input": "date",
          "queryValues": [
            {"value": "EventDate", "conditions": ["is", "is not", "is greater than", "is less than", "is on or after", "is on or before", "is before", "is after"]}
          ]
        },
        {
          "value": "ID",
          "input": "number",
          "queryValues": [
            {"value": "ID", "conditions": ["is", "is not", "is greater than", "is less than"]}
          ]
        }
      ]
    },
    {
      "value": "Narrative",
      "subfields": [
        {
          "value": "Factual",
          "input": "text",
          "queryValues": [
            {"value": "Factual", "conditions": ["contains", "does not contain"]}
          ]
        }
      ]
    },
    {
      "value": "HasSafetyRec",
      "input": "bool",
      "queryValues": [
        {"value": "Yes", "conditions": ["is"]},
        {"value": "No", "conditions": ["is"]}
      ]
    }
  ]
}`

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "possible_values.json")
	require.NoError(t, os.WriteFile(p, []byte(testCatalogJSON), 0o644))
	c, err := catalog.Load(p)
	require.NoError(t, err)
	return c
}

// Scenario 5: single arg "engine power" -> Narrative.Factual contains.
func TestNormalize_FreeText(t *testing.T) {
	n := NewNormalizer(testCatalog(t), nil)
	rule, err := n.Normalize(NewStr("engine power"))
	require.NoError(t, err)
	assert.Equal(t, Rule{Field: "Narrative", Subfield: "Factual", Condition: "contains", Value: "engine power"}, rule)
}

// Scenario 6: "10/24/1950" parses to a past date, canonicalized.
func TestNormalize_PastDate(t *testing.T) {
	n := NewNormalizer(testCatalog(t), nil)
	rule, err := n.Normalize(NewStr("10/24/1950"))
	require.NoError(t, err)
	assert.Equal(t, Rule{Field: "Event", Subfield: "EventDate", Condition: "is on or after", Value: "1950-10-24"}, rule)
}

func TestNormalize_ConditionedDate(t *testing.T) {
	n := NewNormalizer(testCatalog(t), nil)
	rule, err := n.Normalize(NewStr("is before 1/1/1949"))
	require.NoError(t, err)
	assert.Equal(t, "Event", rule.Field)
	assert.Equal(t, "EventDate", rule.Subfield)
	assert.Equal(t, "is before", rule.Condition)
	assert.Equal(t, "1949-01-01", rule.Value)
}

func TestNormalize_ConditionedDate_Malformed(t *testing.T) {
	n := NewNormalizer(testCatalog(t), nil)
	_, err := n.Normalize(NewStr("is before not-a-date"))
	require.Error(t, err)
	qerr, ok := err.(*QueryError)
	require.True(t, ok)
	assert.Equal(t, KindMalformedDate, qerr.Kind)
}

func TestNormalize_ProseRejectedWithoutConfirm(t *testing.T) {
	n := NewNormalizer(testCatalog(t), nil)
	_, err := n.Normalize(NewStr("How many airplanes crash because of engine failure?"))
	require.Error(t, err)
	qerr, ok := err.(*QueryError)
	require.True(t, ok)
	assert.Equal(t, KindMalformed, qerr.Kind)
}

func TestNormalize_ProseConfirmed(t *testing.T) {
	n := NewNormalizer(testCatalog(t), func(string) bool { return true })
	rule, err := n.Normalize(NewStr("the quick brown fox jumps over the lazy dog again and finally"))
	require.NoError(t, err)
	assert.Equal(t, "Narrative", rule.Field)
}

func TestLooksLikeProse_WordCountThreshold(t *testing.T) {
	assert.True(t, looksLikeProse("the quick brown fox jumps over the lazy dog again and finally"))
	assert.False(t, looksLikeProse("engine power"))
}

func TestNormalize_TupleThree(t *testing.T) {
	n := NewNormalizer(testCatalog(t), nil)
	// "Narrative Factual" is an unclassifiable whole token that splits
	// into two classifiable halves, filling both the field and subfield
	// slots from a single tuple component.
	rule, err := n.Normalize(NewTuple3("engine power", "Narrative Factual", "contains"))
	require.NoError(t, err)
	assert.Equal(t, "Narrative", rule.Field)
	assert.Equal(t, "Factual", rule.Subfield)
	assert.Equal(t, "contains", rule.Condition)
	assert.Equal(t, "engine power", rule.Value)
}

func TestNormalize_TupleFour(t *testing.T) {
	n := NewNormalizer(testCatalog(t), nil)
	rule, err := n.Normalize(NewTuple4("Event", "EventDate", "is on or after", "9-23-2010"))
	require.NoError(t, err)
	assert.Equal(t, "Event", rule.Field)
	assert.Equal(t, "EventDate", rule.Subfield)
	assert.Equal(t, "is on or after", rule.Condition)
	assert.Equal(t, "2010-09-23", rule.Value)
}

func TestNormalize_HasSafetyRecNoSubfield(t *testing.T) {
	n := NewNormalizer(testCatalog(t), nil)
	rule, err := n.Normalize(NewTuple4("HasSafetyRec", "", "is", "Yes"))
	require.NoError(t, err)
	assert.Equal(t, "HasSafetyRec", rule.Field)
	assert.Equal(t, "", rule.Subfield)
}

func TestFromStrings_ArityErrors(t *testing.T) {
	_, err := FromStrings()
	require.Error(t, err)

	_, err = FromStrings("a", "b")
	require.Error(t, err)

	_, err = FromStrings("a", "b", "c", "d", "e")
	require.Error(t, err)
}

func TestRule_CompleteRequiresAllSlots(t *testing.T) {
	r := Rule{Field: "Event", Subfield: "EventDate", Condition: "is"}
	require.Error(t, r.Complete())

	ok := Rule{Field: "HasSafetyRec", Condition: "is", Value: "Yes"}
	require.NoError(t, ok.Complete())
}
