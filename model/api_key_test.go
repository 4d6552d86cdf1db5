package model

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

var secretPattern = regexp.MustCompile(`^ak_[0-9a-f]{32}$`)

func TestGenerateAPIKey_Format(t *testing.T) {
	secret, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}

	if !secretPattern.MatchString(secret) {
		t.Errorf("Secret %q does not match ak_<32 hex chars>", secret)
	}
}

func TestGenerateAPIKey_DigestUniqueness(t *testing.T) {
	// All digests of 10k generated secrets must be distinct
	const n = 10000

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		secret, err := GenerateAPIKey()
		if err != nil {
			t.Fatalf("GenerateAPIKey failed on iteration %d: %v", i, err)
		}
		digest := HashAPIKey(secret)
		if seen[digest] {
			t.Fatalf("Duplicate digest after %d secrets", i)
		}
		seen[digest] = true
	}
}

func TestHashAPIKey_Deterministic(t *testing.T) {
	secret := "ak_0123456789abcdef0123456789abcdef"

	first := HashAPIKey(secret)
	second := HashAPIKey(secret)
	if first != second {
		t.Errorf("Same secret produced different digests: %s vs %s", first, second)
	}

	if len(first) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(first))
	}

	other := HashAPIKey("ak_ffffffffffffffffffffffffffffffff")
	if other == first {
		t.Error("Different secrets produced the same digest")
	}
}

func TestPreviewAPIKey_Masking(t *testing.T) {
	secret := "ak_0123456789abcdef0123456789abcdef"

	preview := PreviewAPIKey(secret)
	if preview != "ak_01234567...cdef" {
		t.Errorf("Unexpected preview %q", preview)
	}

	// Deterministic
	if PreviewAPIKey(secret) != preview {
		t.Error("Preview is not deterministic")
	}

	// The redacted middle must not appear in the preview
	if strings.Contains(preview, secret[12:31]) {
		t.Error("Preview leaks the redacted middle of the secret")
	}
}

func TestPreviewAPIKey_ShortInput(t *testing.T) {
	// Inputs too short to mask must never be echoed back
	for _, input := range []string{"", "ak_", "ak_abcd1234"} {
		preview := PreviewAPIKey(input)
		if preview != "ak_..." {
			t.Errorf("PreviewAPIKey(%q) = %q, want ak_...", input, preview)
		}
	}
}

func TestAPIKey_CanAuthorize(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name string
		key  APIKey
		want bool
	}{
		{"active without expiry", APIKey{IsActive: true}, true},
		{"inactive", APIKey{IsActive: false}, false},
		{"active but expired", APIKey{IsActive: true, ExpiresAt: &past}, false},
		{"active with future expiry", APIKey{IsActive: true, ExpiresAt: &future}, true},
		{"inactive and expired", APIKey{IsActive: false, ExpiresAt: &past}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.CanAuthorize(); got != tt.want {
				t.Errorf("CanAuthorize() = %v, want %v", got, tt.want)
			}
		})
	}
}
