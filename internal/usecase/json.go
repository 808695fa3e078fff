package usecase

import (
	"encoding/json"
	"strings"

	"cv-evaluation-service/internal/domain"
)

// extractJSON pulls the JSON object out of a model response that may wrap it
// in a markdown code fence or surrounding prose. Returns the raw input when
// no object is found so the decoder produces the real error.
func extractJSON(response string) string {
	if start := strings.Index(response, "```"); start >= 0 {
		rest := response[start+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			if candidate := sliceObject(rest[:end]); candidate != "" {
				return candidate
			}
		}
	}
	if candidate := sliceObject(response); candidate != "" {
		return candidate
	}
	return response
}

// sliceObject returns the substring from the first '{' to the last '}'.
func sliceObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// decodeResponse parses a scoring response into dst. Unknown fields are
// tolerated; a response that is not a JSON object at all is a schema
// violation, not a provider failure.
func decodeResponse(response string, dst any) error {
	raw := extractJSON(response)
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return &domain.SchemaValidationError{Field: "response", Reason: "is not a valid JSON object"}
	}
	return nil
}
