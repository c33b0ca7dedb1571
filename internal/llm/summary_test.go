package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStructuredSummaryValid(t *testing.T) {
	raw := `{"summary":"Discussed X","actions":[],"artifacts":[],"keywords":["X","Y"]}`

	parsed, err := ParseStructuredSummary(raw)
	require.NoError(t, err)
	assert.Equal(t, "Discussed X", parsed.Summary)
	assert.Empty(t, parsed.Actions)
	assert.Empty(t, parsed.Artifacts)
	assert.Equal(t, []string{"X", "Y"}, parsed.Keywords)
}

func TestParseStructuredSummaryCodeFence(t *testing.T) {
	raw := "```json\n{\"summary\":\"s\",\"actions\":[\"a\"],\"artifacts\":[],\"keywords\":[]}\n```"

	parsed, err := ParseStructuredSummary(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, parsed.Actions)
}

func TestParseStructuredSummarySchemaViolations(t *testing.T) {
	cases := map[string]string{
		"empty":             "",
		"not json":          "Sure! Here is a summary of the conversation.",
		"missing summary":   `{"actions":[],"artifacts":[],"keywords":[]}`,
		"summary not text":  `{"summary":42,"actions":[],"artifacts":[],"keywords":[]}`,
		"summary empty":     `{"summary":"  ","actions":[],"artifacts":[],"keywords":[]}`,
		"missing actions":   `{"summary":"s","artifacts":[],"keywords":[]}`,
		"actions not array": `{"summary":"s","actions":"a","artifacts":[],"keywords":[]}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			parsed, err := ParseStructuredSummary(raw)
			assert.Nil(t, parsed)
			var schemaErr *SummarySchemaError
			require.ErrorAs(t, err, &schemaErr)
		})
	}
}
