package textutil

import "testing"

func TestASCIIDigits(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"فصل ۳", "فصل 3"},
		{"فصل ١٢", "فصل 12"},
		{"Season 4", "Season 4"},
		{"", ""},
		{"۱۰۲۴p", "1024p"},
	}
	for _, tt := range tests {
		if got := ASCIIDigits(tt.in); got != tt.want {
			t.Errorf("ASCIIDigits(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"abc", "***"},
		{"eyJhbGciOiJIUzI1NiJ9.payload.sig9", "****sig9"},
	}
	for _, tt := range tests {
		if got := Mask(tt.in); got != tt.want {
			t.Errorf("Mask(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTernary(t *testing.T) {
	if Ternary(true, "ok", "warn") != "ok" {
		t.Fatal("expected first branch")
	}
	if Ternary(false, 1, 2) != 2 {
		t.Fatal("expected second branch")
	}
}
