// Package validator enforces the line budget on model output and checks that
// an extracted candidate is usable.
package validator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyCandidate = errors.New("candidate is empty")
	ErrOverBudget     = errors.New("candidate exceeds line budget")
)

// CountLines returns the number of lines in text. A single trailing newline
// does not start a new line.
func CountLines(text string) int {
	if text == "" {
		return 0
	}
	return strings.Count(strings.TrimSuffix(text, "\n"), "\n") + 1
}

// LineBudget caps the number of lines a response may have. Max ≤ 0 means
// unlimited.
type LineBudget struct {
	Max int
}

// NewLineBudget sizes a budget from the lines of source plus offset. The
// result is never below one line.
func NewLineBudget(source string, offset int) LineBudget {
	max := CountLines(source) + offset
	if max < 1 {
		max = 1
	}
	return LineBudget{Max: max}
}

// Unlimited reports whether the budget imposes no cap.
func (b LineBudget) Unlimited() bool { return b.Max <= 0 }

// Allows reports whether text fits within the budget.
func (b LineBudget) Allows(text string) bool {
	return b.Unlimited() || CountLines(text) <= b.Max
}

// Truncate cuts text down to Max lines. cut is true when anything was dropped.
func (b LineBudget) Truncate(text string) (out string, cut bool) {
	if b.Allows(text) {
		return text, false
	}
	lines := strings.Split(text, "\n")
	return strings.Join(lines[:b.Max], "\n"), true
}

// CheckCandidate returns ErrEmptyCandidate for blank candidates and
// ErrOverBudget when the candidate has more lines than the budget allows.
func CheckCandidate(candidate string, b LineBudget) error {
	if strings.TrimSpace(candidate) == "" {
		return ErrEmptyCandidate
	}
	if !b.Allows(candidate) {
		return fmt.Errorf("%w: %d lines, limit %d", ErrOverBudget, CountLines(candidate), b.Max)
	}
	return nil
}

// StreamGuard accumulates streamed chunks and signals when the budget's
// newline count has been reached, so the caller can stop generation early.
type StreamGuard struct {
	budget   LineBudget
	buf      strings.Builder
	newlines int
	stopped  bool
}

// NewStreamGuard returns a guard for b.
func NewStreamGuard(b LineBudget) *StreamGuard {
	return &StreamGuard{budget: b}
}

// Write appends chunk and reports whether generation should stop. Chunks
// written after a stop are ignored.
func (g *StreamGuard) Write(chunk string) (stop bool) {
	if g.stopped {
		return true
	}
	g.buf.WriteString(chunk)
	g.newlines += strings.Count(chunk, "\n")
	if !g.budget.Unlimited() && g.newlines >= g.budget.Max {
		g.stopped = true
	}
	return g.stopped
}

// Stopped reports whether the budget was reached.
func (g *StreamGuard) Stopped() bool { return g.stopped }

// Text returns the accumulated response, truncated to the budget.
func (g *StreamGuard) Text() string {
	out, _ := g.budget.Truncate(g.buf.String())
	return out
}

// TruncatedAtLine returns the line cap that stopped generation, or zero.
func (g *StreamGuard) TruncatedAtLine() int {
	if !g.stopped {
		return 0
	}
	return g.budget.Max
}
