package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

const (
	handoffTokenRawSize = 32
	// HandoffTokenLength is the encoded length of a handoff token.
	HandoffTokenLength = handoffTokenRawSize * 2
	fingerprintLength  = 8
)

// NewHandoffToken returns 256 bits from crypto/rand as lowercase hex.
func NewHandoffToken() (string, error) {
	var raw [handoffTokenRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// ValidHandoffToken reports whether token has the exact shape produced by
// NewHandoffToken. It does not allocate.
func ValidHandoffToken(token string) bool {
	if len(token) != HandoffTokenLength {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// HashHandoffToken derives the cache key material for token.
func HashHandoffToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokenFingerprint is a short, non-reversible tag safe to put in logs.
func TokenFingerprint(token string) string {
	if token == "" {
		return ""
	}
	return HashHandoffToken(token)[:fingerprintLength]
}
