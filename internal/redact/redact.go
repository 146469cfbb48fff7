// Package redact scrubs sensitive fragments from strings before they are
// logged. Error messages coming back from the remote content service can
// embed connection strings, hostnames, file paths or credentials from its
// own environment; nothing of that should end up in our logs or event
// payloads verbatim.
package redact

import "regexp"

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

var rules = []rule{
	// Connection strings with inline credentials.
	{regexp.MustCompile(`(?i)\b(postgres|postgresql|mysql|redis|amqp|mongodb)://[^@\s]+@`), "[REDACTED_DSN]"},

	// Keys, tokens and passwords in key=value or key: value form.
	{regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|passwd|auth)(['"\s:=]+)[^'"&\s]{6,}`), "$1$2[REDACTED]"},

	// JWTs (three dot-separated base64url segments starting with eyJ).
	{regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`), "[REDACTED_JWT]"},

	// Absolute unix paths of two or more segments.
	{regexp.MustCompile(`(/[\w.-]+){2,}`), "[REDACTED_PATH]"},

	// Email addresses.
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[REDACTED_EMAIL]"},

	// host:port pairs.
	{regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}:\d{1,5}\b`), "[REDACTED_HOST]"},
}

// String returns s with every sensitive fragment replaced by a placeholder.
func String(s string) string {
	if s == "" {
		return s
	}
	for _, r := range rules {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// Error redacts err.Error(); nil yields the empty string.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
