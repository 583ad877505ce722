package cmd

import (
	"testing"
	"unicode/utf8"
)

func TestSnippet(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"int   a;\n  int b;", 40, "int a; int b;"},
		{"abcdefghij", 8, "abcde..."},
		{"// перетворення мапи на об'єкт", 10, "// пере..."},
	}
	for _, tt := range tests {
		got := snippet(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("snippet(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("snippet(%q, %d) split a rune: %q", tt.in, tt.n, got)
		}
	}
}
