// internal/results/providers/cwe_provider.go
package providers

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnknownCWE is returned for identifiers missing from the catalog.
var ErrUnknownCWE = errors.New("CWE not in catalog")

// CWEEntry holds details about a specific CWE.
type CWEEntry struct {
	ID          string
	Name        string
	Description string
}

// CWEProvider defines the interface for retrieving CWE information.
type CWEProvider interface {
	GetCWE(id string) (*CWEEntry, error)
}

var cweIDPattern = regexp.MustCompile(`(?i)^\s*(?:cwe)?[\s:_-]*(\d+)\s*$`)

// CanonicalID rewrites "89", "cwe_89" or "cwe-89" as "CWE-89". Values that do
// not look like a CWE identifier are returned trimmed and unchanged.
func CanonicalID(id string) string {
	m := cweIDPattern.FindStringSubmatch(id)
	if m == nil {
		return strings.TrimSpace(id)
	}
	num := strings.TrimLeft(m[1], "0")
	if num == "" {
		num = "0"
	}
	return "CWE-" + num
}

// InMemoryCWEProvider serves the CWEs source-code findings most often map to.
type InMemoryCWEProvider struct {
	data map[string]CWEEntry
}

// NewInMemoryCWEProvider creates a new InMemoryCWEProvider with preloaded data.
func NewInMemoryCWEProvider() *InMemoryCWEProvider {
	entries := []CWEEntry{
		{ID: "CWE-20", Name: "Improper Input Validation", Description: "The product receives input or data, but it does not validate or incorrectly validates that the input has the properties that are required to process the data safely and correctly."},
		{ID: "CWE-22", Name: "Improper Limitation of a Pathname to a Restricted Directory ('Path Traversal')", Description: "The product uses external input to construct a pathname that is intended to identify a file or directory located underneath a restricted parent directory, but does not neutralize special elements that can resolve to a location outside of it."},
		{ID: "CWE-78", Name: "Improper Neutralization of Special Elements used in an OS Command ('OS Command Injection')", Description: "The product constructs all or part of an OS command using externally-influenced input, but it does not neutralize special elements that could modify the intended command."},
		{ID: "CWE-79", Name: "Improper Neutralization of Input During Web Page Generation ('Cross-site Scripting')", Description: "The product does not neutralize or incorrectly neutralizes user-controllable input before it is placed in output that is used as a web page that is served to other users."},
		{ID: "CWE-89", Name: "Improper Neutralization of Special Elements used in an SQL Command ('SQL Injection')", Description: "The product constructs all or part of an SQL command using externally-influenced input, but it does not neutralize special elements that could modify the intended SQL command."},
		{ID: "CWE-94", Name: "Improper Control of Generation of Code ('Code Injection')", Description: "The product constructs all or part of a code segment using externally-influenced input, but it does not neutralize special elements that could modify the syntax or behavior of the intended code segment."},
		{ID: "CWE-200", Name: "Exposure of Sensitive Information to an Unauthorized Actor", Description: "The product exposes sensitive information to an actor that is not explicitly authorized to have access to that information."},
		{ID: "CWE-287", Name: "Improper Authentication", Description: "When an actor claims to have a given identity, the product does not prove or insufficiently proves that the claim is correct."},
		{ID: "CWE-306", Name: "Missing Authentication for Critical Function", Description: "The product does not perform any authentication for functionality that requires a provable user identity or consumes a significant amount of resources."},
		{ID: "CWE-327", Name: "Use of a Broken or Risky Cryptographic Algorithm", Description: "The product uses a broken or risky cryptographic algorithm or protocol."},
		{ID: "CWE-330", Name: "Use of Insufficiently Random Values", Description: "The product uses insufficiently random numbers or values in a security context that depends on unpredictable numbers."},
		{ID: "CWE-352", Name: "Cross-Site Request Forgery (CSRF)", Description: "The web application does not sufficiently verify whether a request was intentionally provided by the user who submitted it."},
		{ID: "CWE-502", Name: "Deserialization of Untrusted Data", Description: "The product deserializes untrusted data without sufficiently ensuring that the resulting data will be valid."},
		{ID: "CWE-611", Name: "Improper Restriction of XML External Entity Reference", Description: "The product processes an XML document that can contain XML entities with URIs that resolve to documents outside of the intended sphere of control."},
		{ID: "CWE-639", Name: "Authorization Bypass Through User-Controlled Key", Description: "The system's authorization functionality does not prevent one user from gaining access to another user's data or record by modifying the key value identifying the data."},
		{ID: "CWE-798", Name: "Use of Hard-coded Credentials", Description: "The product contains hard-coded credentials, such as a password or cryptographic key, which it uses for its own inbound authentication, outbound communication to external components, or encryption of internal data."},
		{ID: "CWE-862", Name: "Missing Authorization", Description: "The product does not perform an authorization check when an actor attempts to access a resource or perform an action."},
		{ID: "CWE-918", Name: "Server-Side Request Forgery (SSRF)", Description: "The web server receives a URL or similar request from an upstream component and retrieves the contents of this URL, but it does not sufficiently ensure that the request is being sent to the expected destination."},
		{ID: "CWE-1333", Name: "Inefficient Regular Expression Complexity", Description: "The product uses a regular expression with an inefficient, possibly exponential worst-case computational complexity that consumes excessive CPU cycles."},
	}

	data := make(map[string]CWEEntry, len(entries))
	for _, e := range entries {
		data[e.ID] = e
	}
	return &InMemoryCWEProvider{data: data}
}

// GetCWE retrieves CWE details by ID. The lookup accepts any form CanonicalID
// understands.
func (p *InMemoryCWEProvider) GetCWE(id string) (*CWEEntry, error) {
	canonical := CanonicalID(id)
	entry, exists := p.data[canonical]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCWE, canonical)
	}
	return &entry, nil
}
