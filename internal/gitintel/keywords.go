package gitintel

import "regexp"

var securityKeywords = regexp.MustCompile(
	`(?i)\b(fix|bug|vuln|security|auth|inject|xss|csrf|patch|cve|sanitize|escape|validate|exploit|bypass)\b`,
)

// IsSecurityCommit reports whether a commit message uses the security
// vocabulary. Matching is whole-word and case-insensitive.
func IsSecurityCommit(message string) bool {
	return securityKeywords.MatchString(message)
}
