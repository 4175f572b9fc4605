package extractor

import (
	"regexp"
	"strings"
)

const (
	braceLookahead = 100
	maxRegionSpan  = 50
)

// declarationPattern finds unindented function, arrow-function, class and
// method declarations.
var declarationPattern = regexp.MustCompile(
	`(?m)^(?:export\s+)?(?:default\s+)?` +
		`(?:` +
		`(?:async\s+)?function\s+(\w+)|` +
		`(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s*)?\(?|` +
		`class\s+(\w+)|` +
		`(\w+)\s*\([^)]*\)\s*\{` +
		`)`,
)

// braceStrategy approximates declaration bodies for C-family scripts.
type braceStrategy struct{}

func (braceStrategy) Regions(content []byte, lines []string) ([]Region, error) {
	src := string(content)
	total := len(lines)

	var regions []Region
	for _, m := range declarationPattern.FindAllStringSubmatchIndex(src, -1) {
		name := firstGroup(src, m)
		if name == "" {
			continue
		}
		start := strings.Count(src[:m[0]], "\n") + 1
		if start > total {
			continue
		}
		regions = append(regions, Region{
			Name:      "function: " + name,
			StartLine: start,
			EndLine:   blockEnd(lines, start),
		})
	}
	return regions, nil
}

// firstGroup returns the first non-empty capture of a declarationPattern
// match.
func firstGroup(src string, m []int) string {
	for g := 1; g*2+1 < len(m); g++ {
		if m[g*2] >= 0 && m[g*2+1] > m[g*2] {
			return src[m[g*2]:m[g*2+1]]
		}
	}
	return ""
}

// blockEnd counts braces from the declaration line forward and returns the
// line on which depth returns to zero. Without a balanced block inside the
// lookahead the region is capped at maxRegionSpan lines.
func blockEnd(lines []string, start int) int {
	total := len(lines)
	limit := min(start-1+braceLookahead, total)

	depth := 0
	opened := false
	for i := start - 1; i < limit; i++ {
		for _, ch := range lines[i] {
			switch ch {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
			}
		}
		if opened && depth <= 0 {
			return i + 1
		}
	}
	return min(start+maxRegionSpan-1, total)
}
