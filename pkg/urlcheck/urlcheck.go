// Package urlcheck decides whether a string is an acceptable mapping target.
package urlcheck

import (
	"net/url"
	"strings"
)

// allowedSchemes lists the only schemes a mapping may point at
var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
}

// IsValid reports whether candidate is a well-formed absolute http or https URL.
// Relative references, opaque URLs (javascript:, mailto:) and every other
// scheme are rejected.
func IsValid(candidate string) bool {
	if candidate == "" || strings.ContainsAny(candidate, " \t\r\n") {
		return false
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return false
	}

	if !u.IsAbs() || u.Opaque != "" {
		return false
	}

	// url.Parse has already lowercased the scheme
	if !allowedSchemes[u.Scheme] {
		return false
	}

	// Host alone would accept "http://:80"
	return u.Hostname() != ""
}

// Reason returns a short human-readable explanation of why candidate is
// invalid, or an empty string if it is valid.
func Reason(candidate string) string {
	if IsValid(candidate) {
		return ""
	}
	if candidate == "" {
		return "url is empty"
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return "url does not parse"
	}
	switch {
	case !u.IsAbs():
		return "url must be absolute"
	case !allowedSchemes[u.Scheme]:
		return "url must start with http:// or https://"
	default:
		return "url is not well formed"
	}
}
