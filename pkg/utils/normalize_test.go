package utils

import (
	"strings"
	"testing"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Jane.Doe@Example.COM ", "jane.doe@example.com"},
		{"", ""},
		{"a@b.c", "a@b.c"},
	}
	for _, tt := range tests {
		if got := NormalizeEmail(tt.in); got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("  Jane   DOE "); got != "jane doe" {
		t.Errorf("NormalizeName() = %q, want %q", got, "jane doe")
	}
}

func TestJoinName(t *testing.T) {
	tests := []struct {
		first, last, want string
	}{
		{"Jane", "Doe", "Jane Doe"},
		{"Jane", "", "Jane"},
		{"", " Doe ", "Doe"},
		{"", "", ""},
	}
	for _, tt := range tests {
		if got := JoinName(tt.first, tt.last); got != tt.want {
			t.Errorf("JoinName(%q, %q) = %q, want %q", tt.first, tt.last, got, tt.want)
		}
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := FirstNonEmpty("", "  ", " x ", "y"); got != "x" {
		t.Errorf("FirstNonEmpty() = %q, want x", got)
	}
	if got := FirstNonEmpty(); got != "" {
		t.Errorf("FirstNonEmpty() = %q, want empty", got)
	}
}

func TestIsValidSerial(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"TAG-001", true},
		{"04:A2:3B:1C", true},
		{"tag_01", true},
		{"", false},
		{"has space", false},
		{"bad/slash", false},
		{strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		if got := IsValidSerial(tt.in); got != tt.want {
			t.Errorf("IsValidSerial(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if got := NormalizeSerial("  TAG-001 "); got != "TAG-001" {
		t.Errorf("NormalizeSerial() = %q", got)
	}
}
