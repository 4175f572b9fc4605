package prompts

import "github.com/xkilldash9x/codebouncer/api/schemas"

func severityEnum() []string {
	out := make([]string, len(schemas.AllSeverities))
	for i, s := range schemas.AllSeverities {
		out[i] = string(s)
	}
	return out
}

func str() *schemas.JSONSchema { return &schemas.JSONSchema{Type: "string"} }

func findingSchema(deep bool) *schemas.JSONSchema {
	props := map[string]*schemas.JSONSchema{
		"line_number":  {Type: "integer"},
		"severity":     {Type: "string", Enum: severityEnum()},
		"vuln_type":    str(),
		"description":  str(),
		"confidence":   {Type: "number"},
		"code_snippet": str(),
	}
	required := []string{"severity", "vuln_type", "description", "confidence"}

	if deep {
		props["fix_suggestion"] = str()
		props["attack_vector"] = str()
		props["cwe_id"] = str()
		required = []string{"severity", "vuln_type", "description", "fix_suggestion", "confidence"}
	}
	return &schemas.JSONSchema{Type: "object", Properties: props, Required: required}
}

// TriageSchema describes a triage response: findings, a file risk score and
// a summary.
func TriageSchema() *schemas.JSONSchema {
	return &schemas.JSONSchema{
		Type: "object",
		Properties: map[string]*schemas.JSONSchema{
			"findings":        {Type: "array", Items: findingSchema(false)},
			"file_risk_score": {Type: "number"},
			"summary":         str(),
		},
		Required: []string{"findings", "file_risk_score", "summary"},
	}
}

// DeepSchema describes a deep-analysis response. Every finding must carry a
// fix suggestion.
func DeepSchema() *schemas.JSONSchema {
	return &schemas.JSONSchema{
		Type: "object",
		Properties: map[string]*schemas.JSONSchema{
			"findings": {Type: "array", Items: findingSchema(true)},
			"summary":  str(),
		},
		Required: []string{"findings", "summary"},
	}
}
