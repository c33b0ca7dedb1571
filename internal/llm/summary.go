package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SummarySchemaError reports a structured-summary response that failed
// schema validation. It is carried in SummaryOutcome.ParseErr so the
// merge pipeline can take its explicit degrade branch.
type SummarySchemaError struct {
	Reason string
}

func (e *SummarySchemaError) Error() string {
	return fmt.Sprintf("summary schema violation: %s", e.Reason)
}

// ParseStructuredSummary validates raw model output against the
// summary schema: a JSON object with a non-empty "summary" string and
// "actions", "artifacts", "keywords" string arrays. Missing arrays are
// a schema violation, not a silent default.
func ParseStructuredSummary(raw string) (*StructuredSummary, error) {
	body := stripCodeFence(strings.TrimSpace(raw))
	if body == "" {
		return nil, &SummarySchemaError{Reason: "empty response"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, &SummarySchemaError{Reason: "not a JSON object: " + err.Error()}
	}

	rawSummary, ok := fields["summary"]
	if !ok {
		return nil, &SummarySchemaError{Reason: "missing field summary"}
	}
	var summary string
	if err := json.Unmarshal(rawSummary, &summary); err != nil {
		return nil, &SummarySchemaError{Reason: "summary is not a string"}
	}
	if strings.TrimSpace(summary) == "" {
		return nil, &SummarySchemaError{Reason: "summary is empty"}
	}

	result := &StructuredSummary{Summary: summary}
	for field, dst := range map[string]*[]string{
		"actions":   &result.Actions,
		"artifacts": &result.Artifacts,
		"keywords":  &result.Keywords,
	} {
		rawField, ok := fields[field]
		if !ok {
			return nil, &SummarySchemaError{Reason: "missing field " + field}
		}
		if err := json.Unmarshal(rawField, dst); err != nil {
			return nil, &SummarySchemaError{Reason: field + " is not a string array"}
		}
	}

	return result, nil
}

// stripCodeFence removes a surrounding markdown code fence, which
// models frequently wrap JSON output in.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
