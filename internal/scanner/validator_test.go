package scanner

import (
	"math/rand"
	"strings"
	"testing"
)

func TestRules_Validate_Accepts(t *testing.T) {
	rules := DefaultRules()
	valid := []string{
		"ABC123",
		"5901234123457",
		"XYZ789",
		"item-42_a.b/c",
		strings.Repeat("ab1", 16) + "zz",
	}

	for _, code := range valid {
		if !rules.Validate(code) {
			t.Errorf("Expected %q to be accepted", code)
		}
	}
}

func TestRules_Validate_Rejects(t *testing.T) {
	rules := DefaultRules()
	tests := []struct {
		name string
		code string
	}{
		{"empty", ""},
		{"too short", "AB12"},
		{"too long", strings.Repeat("abc123", 9)},
		{"space", "ABC 123"},
		{"symbol", "ABC#123"},
		{"unicode", "ABCÄ123"},
		{"low diversity", "111111"},
		{"two characters", "ababab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rules.Validate(tt.code) {
				t.Errorf("Expected %q to be rejected", tt.code)
			}
		})
	}
}

func TestRules_Validate_LegacyBounds(t *testing.T) {
	rules := LegacyRules()

	if !rules.Validate("A1B2") {
		t.Error("Expected 4-character code to pass legacy rules")
	}
	if !rules.Validate(strings.Repeat("abc123", 20)) {
		t.Error("Expected legacy rules to have no upper bound")
	}
	if rules.Validate("AB1") {
		t.Error("Expected 3-character code to fail legacy rules")
	}
}

func TestRules_Validate_Strict(t *testing.T) {
	rules := DefaultRules()
	rules.Strict = true

	tests := []struct {
		code     string
		expected bool
	}{
		{"5901234123457", true},
		{"4006381333931", true},
		{"ABC12345", false},  // must start with a digit
		{"123456789", false}, // ascending run
		{"987654", false},    // descending run
		{"1200000345", false},
		{"1234000567", true},
	}

	for _, tt := range tests {
		if got := rules.Validate(tt.code); got != tt.expected {
			t.Errorf("Strict Validate(%q) = %v, expected %v", tt.code, got, tt.expected)
		}
	}
}

func TestRules_Validate_ShortOrDisallowedProperty(t *testing.T) {
	rules := DefaultRules()
	rng := rand.New(rand.NewSource(42))
	const alphabet = "abcXYZ0123456789-_./"
	const disallowed = " #%&*+=?!@,;:"

	for i := 0; i < 500; i++ {
		n := rng.Intn(rules.MinLength)
		var b strings.Builder
		for j := 0; j < n; j++ {
			b.WriteByte(alphabet[rng.Intn(len(alphabet))])
		}
		if code := b.String(); rules.Validate(code) {
			t.Fatalf("Expected short code %q to be rejected", code)
		}
	}

	for i := 0; i < 500; i++ {
		n := rules.MinLength + rng.Intn(rules.MaxLength-rules.MinLength)
		buf := make([]byte, n)
		for j := range buf {
			buf[j] = alphabet[rng.Intn(len(alphabet))]
		}
		buf[rng.Intn(n)] = disallowed[rng.Intn(len(disallowed))]
		if code := string(buf); rules.Validate(code) {
			t.Fatalf("Expected code with disallowed character %q to be rejected", code)
		}
	}
}

func TestRules_Validate_DoesNotAllocate(t *testing.T) {
	rules := DefaultRules()
	code := "5901234123457"

	allocs := testing.AllocsPerRun(100, func() {
		rules.Validate(code)
	})
	if allocs != 0 {
		t.Errorf("Expected no allocations, got %.1f", allocs)
	}
}
