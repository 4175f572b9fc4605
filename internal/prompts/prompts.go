// Package prompts builds the model-facing text for the triage and deep
// passes, and the JSON schemas their responses must follow.
package prompts

import (
	"fmt"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/codebouncer/api/schemas"
)

const (
	TriageSystemPrompt = "You are a security auditor. Analyze the following source code file for common vulnerabilities."
	DeepSystemPrompt   = "You are an expert application security researcher. A preliminary scan flagged potential vulnerabilities in the following file."
)

// FileContext is the metadata that accompanies a file's code in a prompt.
type FileContext struct {
	Path        string
	Role        string
	RepoContext string
	GitContext  string
}

// NewFileContext derives the role and git summary for a prioritized file.
func NewFileContext(c schemas.FileCandidate, repoContext string) FileContext {
	return FileContext{
		Path:        c.Path,
		Role:        InferRole(c.Path),
		RepoContext: repoContext,
		GitContext:  GitContext(c),
	}
}

func writeHeader(b *strings.Builder, fc FileContext) {
	fmt.Fprintf(b, "File: %s\n", fc.Path)
	fmt.Fprintf(b, "File role: %s\n", fc.Role)
	if fc.RepoContext != "" {
		fmt.Fprintf(b, "\nPROJECT CONTEXT:\n%s\n", fc.RepoContext)
	}
	if fc.GitContext != "" {
		fmt.Fprintf(b, "\nGIT HISTORY:\n%s\n", fc.GitContext)
	}
	b.WriteString("\n")
}

func writeSource(b *strings.Builder, code string) {
	b.WriteString("SOURCE CODE:\n```\n")
	b.WriteString(code)
	b.WriteString("\n```\n\n")
}

// TriagePrompt builds the user prompt for the cheap first pass.
func TriagePrompt(code string, fc FileContext) string {
	var b strings.Builder
	writeHeader(&b, fc)
	b.WriteString("Focus on:\n" +
		"- SQL Injection, Command Injection, XSS, SSRF\n" +
		"- Broken Authentication / Authorization\n" +
		"- Sensitive Data Exposure (hardcoded secrets, API keys)\n" +
		"- Insecure Deserialization\n" +
		"- Security Misconfiguration\n" +
		"- Path Traversal\n\n" +
		"For each finding provide severity, vulnerability type, description, " +
		"confidence (0-1), line number, and the vulnerable code snippet.\n" +
		"If no vulnerabilities are found, return an empty findings array.\n\n")
	writeSource(&b, code)
	b.WriteString("Return your analysis as structured JSON.")
	return b.String()
}

// DeepPrompt builds the user prompt for the costly second pass. The triage
// findings are embedded as indented JSON.
func DeepPrompt(code string, fc FileContext, prior []schemas.ModelFinding) (string, error) {
	if prior == nil {
		prior = []schemas.ModelFinding{}
	}
	priorJSON, err := json.MarshalIndent(prior, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode preliminary findings: %w", err)
	}

	var b strings.Builder
	b.WriteString("Your job is to:\n\n" +
		"1. CONFIRM or REJECT each finding with detailed reasoning.\n" +
		"2. Provide a specific, working code fix for each confirmed vulnerability.\n" +
		"3. Identify any ADDITIONAL vulnerabilities the preliminary scan missed.\n" +
		"4. Assign CWE IDs where applicable.\n\n")
	writeHeader(&b, fc)
	fmt.Fprintf(&b, "PRELIMINARY FINDINGS:\n%s\n\n", priorJSON)
	writeSource(&b, code)
	b.WriteString("For each confirmed finding provide: severity, vuln_type, description, " +
		"fix_suggestion (corrected code), confidence, attack_vector, and CWE ID.\n" +
		"Return your analysis as structured JSON.")
	return b.String(), nil
}

// GitContext summarizes a file's churn and its security-related commits
// (at most three), or returns "" when the file has no git signals.
func GitContext(c schemas.FileCandidate) string {
	var parts []string
	if c.ChangeCount > 0 {
		parts = append(parts, fmt.Sprintf("Modified %d times in recent history", c.ChangeCount))
	}
	if len(c.SecurityCommitMessages) > 0 {
		msgs := c.SecurityCommitMessages[:min(3, len(c.SecurityCommitMessages))]
		parts = append(parts, "Security-related commits: "+strings.Join(msgs, "; "))
	}
	return strings.Join(parts, ". ")
}
