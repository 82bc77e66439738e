package internal

import (
	"strings"
	"testing"
)

func TestNewHandoffTokenShape(t *testing.T) {
	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		token, err := NewHandoffToken()
		if err != nil {
			t.Fatalf("NewHandoffToken failed: %v", err)
		}
		if len(token) != HandoffTokenLength {
			t.Fatalf("expected length %d, got %d", HandoffTokenLength, len(token))
		}
		if !ValidHandoffToken(token) {
			t.Fatalf("generated token rejected: %q", token)
		}
		if _, dup := seen[token]; dup {
			t.Fatalf("duplicate token generated: %q", token)
		}
		seen[token] = struct{}{}
	}
}

func TestValidHandoffTokenRejectsMalformed(t *testing.T) {
	good := strings.Repeat("ab", HandoffTokenLength/2)
	cases := map[string]string{
		"empty":      "",
		"short":      good[:HandoffTokenLength-1],
		"long":       good + "a",
		"uppercase":  strings.ToUpper(good),
		"non hex":    "zz" + good[2:],
		"whitespace": " " + good[1:],
		"percent":    "%0" + good[2:],
	}
	for name, token := range cases {
		if ValidHandoffToken(token) {
			t.Errorf("%s: expected rejection for %q", name, token)
		}
	}
	if !ValidHandoffToken(good) {
		t.Fatalf("expected %q to be valid", good)
	}
}

func TestHashAndFingerprintAreStable(t *testing.T) {
	token := strings.Repeat("0f", HandoffTokenLength/2)
	if HashHandoffToken(token) != HashHandoffToken(token) {
		t.Fatal("hash must be deterministic")
	}
	if strings.Contains(HashHandoffToken(token), token) {
		t.Fatal("hash must not embed the raw token")
	}
	fp := TokenFingerprint(token)
	if len(fp) != 8 || !strings.HasPrefix(HashHandoffToken(token), fp) {
		t.Fatalf("unexpected fingerprint %q", fp)
	}
	if TokenFingerprint("") != "" {
		t.Fatal("empty token must have empty fingerprint")
	}
}
