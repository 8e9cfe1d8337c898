package catalog

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "fields": [
    {
      "value": "Event",
      "subfields": [
        {
          "value": "EventDate",
          "input": "date",
          "queryValues": [
            {"value": "EventDate", "conditions": ["is", "is not", "is greater than", "is less than", "is on or after", "is on or before"]}
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

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "possible_values.json")
	require.NoError(t, os.WriteFile(p, []byte(sampleJSON), 0o644))
	return p
}

func TestLoad_BuildsUniverses(t *testing.T) {
	c, err := Load(writeSample(t))
	require.NoError(t, err)

	assert.True(t, c.IsField("Event"))
	assert.True(t, c.IsField("event"))
	assert.True(t, c.IsField("EVENT"))
	assert.False(t, c.IsField("Nope"))

	assert.True(t, c.IsSubfield("EventDate"))
	assert.True(t, c.IsSubfield("factual"))

	assert.True(t, c.IsCondition("is greater than"))
	assert.True(t, c.IsCondition("contains"))

	assert.True(t, c.IsValue("Yes"))
}

func TestInputType_LeafFieldNoSubfield(t *testing.T) {
	c, err := Load(writeSample(t))
	require.NoError(t, err)

	it, err := c.InputType("HasSafetyRec", "")
	require.NoError(t, err)
	assert.Equal(t, "bool", it)
}

func TestInputType_UnknownFieldErrors(t *testing.T) {
	c, err := Load(writeSample(t))
	require.NoError(t, err)

	_, err = c.InputType("Nope", "")
	assert.Error(t, err)
}

func TestLoad_MissingFileIsFatal(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoad_MalformedJSONIsFatal(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(p, []byte("{not json"), 0o644))
	_, err := Load(p)
	assert.Error(t, err)
}

func TestLoadOnce_ReturnsSameInstance(t *testing.T) {
	globalOnce = sync.Once{}
	p := writeSample(t)
	c1, err := LoadOnce(p)
	require.NoError(t, err)
	c2, err := LoadOnce(filepath.Join(t.TempDir(), "different.json"))
	require.NoError(t, err)
	assert.Same(t, c1, c2)
}
