// Package extractor shrinks a source file to the regions worth showing a
// model: functions and classes that touch security-sensitive APIs, or
// context windows around flagged lines when no structure is available.
package extractor

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xkilldash9x/codebouncer/api/schemas"
)

// ExtractSecuritySnippets returns the security-relevant regions of content
// in extraction order. Structural extraction is tried first for files whose
// family supports it. When that yields nothing, or the file does not parse,
// flagged lines are grouped into context windows. An empty result means no
// line matched any security pattern.
func ExtractSecuritySnippets(content, filePath string) []schemas.SecuritySnippet {
	content = normalizeNewlines(content)
	lines := splitLines(content)

	if strategy := strategyFor(filepath.Ext(filePath)); strategy != nil {
		regions, err := strategy.Regions([]byte(content), lines)
		if err == nil {
			if snippets := materialize(regions, lines); len(snippets) > 0 {
				return snippets
			}
		}
	}
	return lineWindows(lines)
}

// materialize keeps the regions whose text matches at least one pattern.
func materialize(regions []Region, lines []string) []schemas.SecuritySnippet {
	var out []schemas.SecuritySnippet
	for _, r := range regions {
		start := max(r.StartLine, 1)
		end := min(r.EndLine, len(lines))
		if start > end {
			continue
		}
		code := strings.Join(lines[start-1:end], "\n")
		reasons := MatchSecurityPatterns(code)
		if len(reasons) == 0 {
			continue
		}
		out = append(out, schemas.SecuritySnippet{
			Name:         r.Name,
			StartLine:    start,
			EndLine:      end,
			Code:         code,
			MatchReasons: reasons,
		})
	}
	return out
}

// BuildFocusedContent renders snippets as labelled blocks for a prompt. It
// returns "" for no snippets, telling the caller to send the whole file.
func BuildFocusedContent(snippets []schemas.SecuritySnippet, _ string) string {
	if len(snippets) == 0 {
		return ""
	}

	blocks := make([]string, 0, len(snippets))
	for _, s := range snippets {
		blocks = append(blocks, fmt.Sprintf("=== %s (lines %d-%d) ===\n[Flagged: %s]\n\n%s",
			s.Name, s.StartLine, s.EndLine, strings.Join(s.MatchReasons, ", "), s.Code))
	}
	return strings.Join(blocks, "\n\n")
}

func normalizeNewlines(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return strings.ReplaceAll(content, "\r", "\n")
}

// splitLines splits normalized content on \n. A trailing line break does not
// start a new line.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}
