package handoff

import (
	"net/url"
	"strings"
	"unicode"
)

const (
	maxIDLength           = 255
	maxEmailLength        = 320
	maxIntendedPathLength = 2048
)

func normalizeIdentity(id Identity) (Identity, error) {
	id.UserID = strings.TrimSpace(id.UserID)
	id.TenantID = strings.TrimSpace(id.TenantID)
	id.Email = strings.TrimSpace(id.Email)

	if id.UserID == "" || len(id.UserID) > maxIDLength {
		return Identity{}, ErrInvalidIdentity
	}
	if id.TenantID == "" || len(id.TenantID) > maxIDLength {
		return Identity{}, ErrInvalidIdentity
	}
	if len(id.Email) > maxEmailLength {
		return Identity{}, ErrInvalidIdentity
	}
	id.IntendedPath = SanitizeIntendedPath(id.IntendedPath)
	return id, nil
}

// SanitizeIntendedPath returns path if it is a same-origin relative path
// and "" otherwise. Protocol-relative paths ("//host"), backslashes, any
// scheme or host, and control characters are rejected.
func SanitizeIntendedPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || len(path) > maxIntendedPathLength {
		return ""
	}
	if path[0] != '/' || strings.HasPrefix(path, "//") {
		return ""
	}
	if strings.ContainsRune(path, '\\') {
		return ""
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return ""
		}
	}

	u, err := url.Parse(path)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return ""
	}
	// "/%2F%2Fevil.com" decodes to "//evil.com" in some routers.
	if strings.HasPrefix(u.Path, "//") {
		return ""
	}
	return path
}
