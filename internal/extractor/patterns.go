package extractor

import (
	"regexp"
	"slices"
)

type securityPattern struct {
	re     *regexp.Regexp
	reason string
}

// securityPatterns is checked in order; the order fixes the order of match
// reasons on every snippet.
var securityPatterns = []securityPattern{
	{regexp.MustCompile(`(?:import|from)\s+(?:subprocess|os|pickle|yaml|sqlite3|hashlib|hmac|jwt|bcrypt)`), "dangerous import"},
	{regexp.MustCompile(`(?i)(?:SELECT|INSERT|UPDATE|DELETE|CREATE|DROP|ALTER)\s`), "SQL query"},
	{regexp.MustCompile(`(?i)(?:password|passwd|token|secret|api_key|apikey|credential|private_key)`), "sensitive data"},
	{regexp.MustCompile(`(?:eval|exec)\s*\(`), "code execution"},
	{regexp.MustCompile(`(?:os\.system|subprocess\.|child_process|spawn|execFile)`), "command execution"},
	{regexp.MustCompile(`(?:innerHTML|dangerouslySetInnerHTML|\.html\()`), "DOM manipulation"},
	{regexp.MustCompile(`(?:req\.|request\.|res\.|response\.)`), "HTTP handling"},
	{regexp.MustCompile(`(?:open\(|readFile|writeFile|unlink|rmdir|fs\.)`), "file I/O"},
	{regexp.MustCompile(`(?:pickle\.loads|yaml\.load|deserialize|unserialize)`), "deserialization"},
	{regexp.MustCompile(`(?i)(?:verify\s*=\s*False|ssl\s*=\s*False|rejectUnauthorized\s*:\s*false)`), "TLS/SSL bypass"},
	{regexp.MustCompile(`(?:\.query\(|\.execute\(|\.raw\(|\.exec\()`), "database call"},
	{regexp.MustCompile(`(?i)(?:cors|cookie|session|csrf|helmet|auth|login|logout|signup|register)`), "auth/security"},
}

// MatchSecurityPatterns returns the labels of every security category found
// in text, in table order. Each label appears at most once.
func MatchSecurityPatterns(text string) []string {
	var reasons []string
	for _, p := range securityPatterns {
		if p.re.MatchString(text) {
			reasons = append(reasons, p.reason)
		}
	}
	return reasons
}

// mergeReasons appends the labels in add that dst does not already hold.
func mergeReasons(dst, add []string) []string {
	for _, r := range add {
		if !slices.Contains(dst, r) {
			dst = append(dst, r)
		}
	}
	return dst
}
