package risk

import (
	"regexp"
	"strings"
)

// Files that can never carry security-relevant code.
var skipNames = map[string]struct{}{
	"package-lock.json": {},
	"yarn.lock":         {},
	"pnpm-lock.yaml":    {},
	"poetry.lock":       {},
	"changelog.md":      {},
	"license.md":        {},
	"license":           {},
	"license.txt":       {},
	"contributing.md":   {},
	".prettierrc":       {},
	".eslintrc":         {},
}

var skipExtensions = map[string]struct{}{
	".md": {}, ".txt": {}, ".rst": {}, ".csv": {},
	".svg": {}, ".png": {}, ".jpg": {}, ".gif": {}, ".ico": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
	".map": {},
}

// Multi-dot suffixes that a single-extension lookup would miss.
var skipSuffixes = []string{".d.ts", ".min.js", ".min.css"}

var skipPathPatterns = compileAll(
	`(^|/)node_modules/`,
	`(^|/)\.git/`,
	`(^|/)dist/`,
	`(^|/)build/`,
	`(^|/)__pycache__/`,
	`(^|/)vendor/`,
)

// Exact basenames that are HIGH regardless of content.
var highRiskNames = map[string]struct{}{
	".env":                {},
	".env.local":          {},
	".env.production":     {},
	"dockerfile":          {},
	"docker-compose.yml":  {},
	"docker-compose.yaml": {},
	"secrets.json":        {},
	"credentials.json":    {},
}

var highRiskPathPatterns = compileAll(
	`\.github/workflows/`,
	`(^|/)auth`,
	`(^|/)login`,
	`(^|/)middleware`,
	`(^|/)api/`,
	`(^|/)routes?/`,
	`(^|/)controllers?/`,
	`(^|/)handlers?/`,
	`(^|/)db/`,
	`(^|/)models?/`,
	`(^|/)config`,
)

// riskKeywords are matched as lowercase substrings of lowercased content.
var riskKeywords = lowerAll(
	// credentials and secrets
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"private_key", "access_key", "credentials",
	// code and command execution
	"eval(", "exec(", "subprocess", "os.system", "child_process",
	// DOM injection
	"innerHTML", "dangerouslySetInnerHTML",
	// SQL verbs
	"SELECT ", "INSERT ", "UPDATE ", "DELETE ",
	// deserialization
	"pickle.loads", "yaml.load",
	// TLS bypass
	"verify=False", "ssl=False",
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

func lowerAll(words ...string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToLower(w)
	}
	return out
}
