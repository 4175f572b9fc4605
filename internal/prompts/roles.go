package prompts

import (
	"regexp"
	"strings"
)

const defaultRole = "Application source"

var roleRules = []struct {
	re   *regexp.Regexp
	role string
}{
	{regexp.MustCompile(`(^|/)api/`), "API endpoint handler"},
	{regexp.MustCompile(`(^|/)(auth|login)`), "Authentication logic"},
	{regexp.MustCompile(`(^|/)middleware`), "Middleware"},
	{regexp.MustCompile(`(^|/)models?/`), "Data model"},
	{regexp.MustCompile(`(^|/)routes?/`), "Route definitions"},
	{regexp.MustCompile(`(^|/)controllers?/`), "Controller"},
	{regexp.MustCompile(`(^|/)handlers?/`), "Request handler"},
	{regexp.MustCompile(`(^|/)(db/|migrations)`), "Database access"},
	{regexp.MustCompile(`(^|/)config`), "Configuration"},
	{regexp.MustCompile(`(^|/)tests?|_test\.|\.test\.|\.spec\.`), "Test code"},
	{regexp.MustCompile(`(^|/)(utils?|helpers?)/`), "Utility helpers"},
}

// InferRole labels a file by the conventions its path follows. The first
// matching rule wins.
func InferRole(path string) string {
	lower := strings.ToLower(path)
	for _, r := range roleRules {
		if r.re.MatchString(lower) {
			return r.role
		}
	}
	return defaultRole
}
