package extractor

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/codebouncer/api/schemas"
)

// contextLines is the number of lines kept on each side of a flagged line.
const contextLines = 10

type flaggedLine struct {
	index   int
	reasons []string
}

// lineWindows classifies every line on its own and returns one snippet per
// run of overlapping or touching context windows.
func lineWindows(lines []string) []schemas.SecuritySnippet {
	var flagged []flaggedLine
	for i, line := range lines {
		if reasons := MatchSecurityPatterns(line); len(reasons) > 0 {
			flagged = append(flagged, flaggedLine{index: i, reasons: reasons})
		}
	}
	if len(flagged) == 0 {
		return nil
	}

	total := len(lines)
	// start is inclusive and end exclusive, both 0-indexed.
	start := max(0, flagged[0].index-contextLines)
	end := min(total, flagged[0].index+contextLines+1)
	reasons := append([]string(nil), flagged[0].reasons...)

	var out []schemas.SecuritySnippet
	for _, f := range flagged[1:] {
		wStart := max(0, f.index-contextLines)
		wEnd := min(total, f.index+contextLines+1)
		if wStart <= end {
			end = wEnd
			reasons = mergeReasons(reasons, f.reasons)
			continue
		}
		out = append(out, windowSnippet(lines, start, end, reasons))
		start, end = wStart, wEnd
		reasons = append([]string(nil), f.reasons...)
	}
	return append(out, windowSnippet(lines, start, end, reasons))
}

func windowSnippet(lines []string, start, end int, reasons []string) schemas.SecuritySnippet {
	return schemas.SecuritySnippet{
		Name:         fmt.Sprintf("lines %d-%d", start+1, end),
		StartLine:    start + 1,
		EndLine:      end,
		Code:         strings.Join(lines[start:end], "\n"),
		MatchReasons: reasons,
	}
}
