// Package redact is the single PII policy for log lines and audit metadata.
//
// Loggable as-is: user IDs, tenant IDs, request IDs, reason codes.
// Masked: email addresses. Never logged: handoff tokens (only a fingerprint),
// cookies, Authorization headers, and the query string of redirect targets.
package redact

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/practiceline/handoff/internal"
)

const mask = "***"

// Email keeps the first rune of the local part and the domain.
func Email(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return mask
	}
	local, domain := email[:at], email[at+1:]
	first := []rune(local)[0]
	return string(first) + mask + "@" + domain
}

// Token returns a fingerprint of a handoff token.
func Token(token string) string {
	return internal.TokenFingerprint(token)
}

// Path drops the query string and fragment of a redirect target.
func Path(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		return path[:i]
	}
	return path
}

var secretKeys = []string{"token", "code", "authorization", "cookie", "password", "secret"}

// SecretKey reports whether a metadata key names something that must never
// be written out. Fingerprints ("token_fp") are allowed.
func SecretKey(key string) bool {
	key = strings.ToLower(key)
	if strings.HasSuffix(key, "_fp") {
		return false
	}
	for _, s := range secretKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// Identity attaches the loggable identity fields to a zerolog event.
func Identity(evt *zerolog.Event, userID, tenantID, email string) *zerolog.Event {
	if evt == nil {
		return nil
	}
	evt = evt.Str("user_id", userID).Str("tenant_id", tenantID)
	if email != "" {
		evt = evt.Str("email", Email(email))
	}
	return evt
}
