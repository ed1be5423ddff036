// Package uuid tests for id generation utilities.
package uuid

import "testing"

// TestNewIsValid verifies generated UUIDs pass validation.
func TestNewIsValid(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := New()
		if !IsValid(id) {
			t.Fatalf("generated UUID failed validation: %s", id)
		}
	}
}

// TestSuffixLength verifies the suffix length contract.
func TestSuffixLength(t *testing.T) {
	for _, n := range []int{1, 6, 12, 32} {
		if got := len(Suffix(n)); got != n {
			t.Errorf("Suffix(%d) length = %d", n, got)
		}
	}

	// Requests beyond the hex pool are clamped, not padded.
	if got := len(Suffix(64)); got != 32 {
		t.Errorf("Suffix(64) length = %d, want 32", got)
	}
}

// TestSuffixUniqueness verifies suffixes do not trivially collide.
func TestSuffixUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		s := Suffix(6)
		if seen[s] {
			t.Fatalf("suffix collision after %d draws: %s", i, s)
		}
		seen[s] = true
	}
}

// TestValidateRejectsMalformed verifies validation failures.
func TestValidateRejectsMalformed(t *testing.T) {
	bad := []string{
		"",
		"not-a-uuid",
		"123e4567-e89b-12d3-a456-426614174000", // v1, not v4
	}
	for _, s := range bad {
		if err := Validate(s); err == nil {
			t.Errorf("expected validation error for %q", s)
		}
	}
}
