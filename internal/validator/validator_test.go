package validator

import (
	"errors"
	"strings"
	"testing"
)

func TestCountLines(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"a\n", 1},
		{"a\nb", 2},
		{"a\nb\n", 2},
		{"\n", 1},
		{"a\n\nb", 3},
	}
	for _, tt := range tests {
		if got := CountLines(tt.text); got != tt.want {
			t.Errorf("CountLines(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestNewLineBudget(t *testing.T) {
	src := strings.Repeat("x\n", 10)

	b := NewLineBudget(src, 1)
	if b.Max != 11 {
		t.Errorf("expected 11, got %d", b.Max)
	}

	if got := NewLineBudget(src, -50).Max; got != 1 {
		t.Errorf("expected budget floor of 1, got %d", got)
	}
}

func TestLineBudget_Truncate(t *testing.T) {
	b := LineBudget{Max: 11}
	long := strings.TrimSuffix(strings.Repeat("line\n", 30), "\n")

	out, cut := b.Truncate(long)
	if !cut {
		t.Fatal("expected truncation")
	}
	if CountLines(out) != 11 {
		t.Errorf("expected 11 lines, got %d", CountLines(out))
	}

	short := "a\nb"
	out, cut = b.Truncate(short)
	if cut || out != short {
		t.Errorf("short text should pass unchanged, got %q cut=%v", out, cut)
	}
}

func TestLineBudget_Unlimited(t *testing.T) {
	b := LineBudget{}
	if !b.Allows(strings.Repeat("x\n", 1000)) {
		t.Error("zero budget should be unlimited")
	}
}

func TestCheckCandidate(t *testing.T) {
	b := LineBudget{Max: 2}

	if err := CheckCandidate("  \n", b); !errors.Is(err, ErrEmptyCandidate) {
		t.Errorf("expected ErrEmptyCandidate, got %v", err)
	}
	if err := CheckCandidate("a\nb\nc", b); !errors.Is(err, ErrOverBudget) {
		t.Errorf("expected ErrOverBudget, got %v", err)
	}
	if err := CheckCandidate("a\nb", b); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStreamGuard_StopsAtBudget(t *testing.T) {
	g := NewStreamGuard(LineBudget{Max: 3})

	chunks := []string{"```java\n", "int a;\n", "int b;\n", "int c;\n", "int d;\n"}
	var written int
	for _, c := range chunks {
		written++
		if g.Write(c) {
			break
		}
	}

	if written != 3 {
		t.Errorf("expected stop after 3 chunks, got %d", written)
	}
	if !g.Stopped() {
		t.Error("expected guard to be stopped")
	}
	if got := g.Text(); got != "```java\nint a;\nint b;\n" {
		t.Errorf("unexpected text %q", got)
	}
	if g.TruncatedAtLine() != 3 {
		t.Errorf("expected truncation at 3, got %d", g.TruncatedAtLine())
	}
	if !g.Write("more") {
		t.Error("writes after stop should keep reporting stop")
	}
}

func TestStreamGuard_MultiLineChunk(t *testing.T) {
	g := NewStreamGuard(LineBudget{Max: 2})
	if !g.Write("a\nb\nc\nd\n") {
		t.Fatal("expected stop")
	}
	if got := g.Text(); got != "a\nb" {
		t.Errorf("expected %q, got %q", "a\nb", got)
	}
}

func TestStreamGuard_Unlimited(t *testing.T) {
	g := NewStreamGuard(LineBudget{})
	for i := 0; i < 100; i++ {
		if g.Write("x\n") {
			t.Fatal("unlimited guard must never stop")
		}
	}
	if g.TruncatedAtLine() != 0 {
		t.Error("expected no truncation")
	}
}
