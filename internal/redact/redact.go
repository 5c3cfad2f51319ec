// Package redact provides utilities for redacting sensitive information from strings
// before they are logged or printed. Task failures and HTTP errors can carry
// request details, and this package keeps API keys, bearer tokens and session
// cookies out of the output.
package redact

import (
	"regexp"
	"strings"
	"sync"
)

// Constants for redaction placeholders
const (
	RedactedKeyPlaceholder    = "[REDACTED_KEY]"
	RedactedCookiePlaceholder = "[REDACTED_COOKIE]"
	RedactedJWTPlaceholder    = "[REDACTED_JWT]"
)

// minSecretLength guards against registering values so short that redacting
// them would mangle ordinary text.
const minSecretLength = 6

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Precompiled regex patterns, applied in order
var (
	bearerRegex = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9_\-.~+/=]{8,}`)
	apiKeyRegex = regexp.MustCompile(
		`(?i)\b(api[_-]?key|token|secret|password)\b(\s*[:=]\s*['"]?)[^\s'"&,]{6,}`,
	)
	cookieRegex   = regexp.MustCompile(`(?i)\b((?:set-)?cookie:\s*)[^\r\n]+`)
	jwtTokenRegex = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`)

	rules = []rule{
		{bearerRegex, "${1}" + RedactedKeyPlaceholder},
		{apiKeyRegex, "${1}${2}" + RedactedKeyPlaceholder},
		{cookieRegex, "${1}" + RedactedCookiePlaceholder},
		{jwtTokenRegex, RedactedJWTPlaceholder},
	}

	mu      sync.RWMutex
	secrets []string
)

// RegisterSecret adds a literal value (such as the configured API key) that
// must never appear in redacted output. Values shorter than six characters
// are ignored.
func RegisterSecret(secret string) {
	secret = strings.TrimSpace(secret)
	if len(secret) < minSecretLength {
		return
	}

	mu.Lock()
	defer mu.Unlock()
	for _, s := range secrets {
		if s == secret {
			return
		}
	}
	secrets = append(secrets, secret)
}

// ResetSecrets forgets all registered secrets
func ResetSecrets() {
	mu.Lock()
	defer mu.Unlock()
	secrets = nil
}

// String redacts sensitive information from the input string
func String(input string) string {
	if input == "" {
		return input
	}

	mu.RLock()
	result := input
	for _, s := range secrets {
		result = strings.ReplaceAll(result, s, RedactedKeyPlaceholder)
	}
	mu.RUnlock()

	for _, r := range rules {
		result = r.pattern.ReplaceAllString(result, r.replacement)
	}

	return result
}

// Error redacts sensitive information from an error's Error() output
func Error(err error) string {
	if err == nil {
		return ""
	}

	return String(err.Error())
}
