package llmutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/codebouncer/api/schemas"
)

func TestParseJSONResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"bare", `{"findings": [{"severity": "HIGH", "vuln_type": "XSS", "description": "d", "confidence": 0.5}], "file_risk_score": 7.5, "summary": "s"}`},
		{"fenced", "```json\n{\"findings\": [{\"severity\": \"HIGH\", \"vuln_type\": \"XSS\", \"description\": \"d\", \"confidence\": 0.5}], \"file_risk_score\": 7.5, \"summary\": \"s\"}\n```"},
		{"prose", "Here is the analysis:\n{\"findings\": [{\"severity\": \"HIGH\", \"vuln_type\": \"XSS\", \"description\": \"d\", \"confidence\": 0.5}], \"file_risk_score\": 7.5, \"summary\": \"s\"}\nThanks."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSONResponse[schemas.TriageResponse](tt.response)
			require.NoError(t, err)
			require.Len(t, got.Findings, 1)
			assert.Equal(t, schemas.SeverityHigh, got.Findings[0].Severity)
			assert.Equal(t, 0.5, got.Findings[0].ConfidenceOr(1))
			assert.Equal(t, 7.5, got.FileRiskScore)
			assert.Equal(t, "s", got.Summary)
		})
	}
}

func TestParseJSONResponse_Errors(t *testing.T) {
	t.Run("no object", func(t *testing.T) {
		_, err := ParseJSONResponse[schemas.DeepResponse]("I could not analyse this file.")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no JSON object")
	})

	t.Run("malformed object", func(t *testing.T) {
		_, err := ParseJSONResponse[schemas.DeepResponse](`{"findings": [`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to unmarshal")
	})
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"a":1}`, ExtractJSONObject("  ```\n{\"a\":1}\n```  "))
	assert.Equal(t, `{"a":{"b":2}}`, ExtractJSONObject(`result: {"a":{"b":2}} done`))
	assert.Equal(t, "", ExtractJSONObject("} nothing {"))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", truncateString("abc", 5))
	assert.Equal(t, "ab...", truncateString("abcdef", 2))
	assert.Equal(t, "", truncateString("abc", 0))
	assert.Equal(t, 503, len(truncateString(strings.Repeat("x", 600), 500)))
}
