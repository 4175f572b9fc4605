// internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
)

// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

// fencedObjectRegex extracts a JSON object if the response is wrapped in markdown.
var fencedObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")

// ParseJSONResponse decodes a model response into T. Structured-output
// providers return bare JSON, but some models still wrap the object in a
// markdown fence or surround it with prose; both are tolerated.
func ParseJSONResponse[T any](response string) (*T, error) {
	payload := ExtractJSONObject(response)
	if payload == "" {
		return nil, fmt.Errorf("no JSON object in model response: %s", truncateString(strings.TrimSpace(response), 200))
	}

	var result T
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncateString(payload, 500))
	}
	return &result, nil
}

// ExtractJSONObject returns the outermost JSON object in response, or "" if
// there is none.
func ExtractJSONObject(response string) string {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```") {
		if m := fencedObjectRegex.FindStringSubmatch(response); len(m) > 1 {
			return m[1]
		}
	}
	if strings.HasPrefix(response, "{") {
		return response
	}

	first := strings.Index(response, "{")
	last := strings.LastIndex(response, "}")
	if first == -1 || last <= first {
		return ""
	}
	return response[first : last+1]
}

func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
