// Package prompt builds the initial, critique and correction prompts of the
// refinement loop and owns the per-unit conversation.
package prompt

import (
	"strings"

	"github.com/valpere/vorewrite/internal/task"
)

// JavaFence opens a Java code block. Ending a prompt with it primes the model
// to answer with code only.
const JavaFence = "```java"

// Builder renders prompts from a task's rule text.
type Builder struct {
	rules task.Rules
}

func NewBuilder(rules task.Rules) *Builder {
	return &Builder{rules: rules}
}

// Initial asks for the first rewrite of code. A non-empty primer is appended
// after "Output:".
func (b *Builder) Initial(contexts, code, primer string) string {
	parts := []string{
		contexts,
		Tagged("rules", b.rules.Initial),
		input(code),
		output(primer),
	}
	return join(parts)
}

// Feedback asks for a checklist critique of candidate. diff is included when
// non-empty.
func (b *Builder) Feedback(contexts, candidate, diff string) string {
	parts := []string{contexts, Tagged("candidate", candidate)}
	if diff != "" {
		parts = append(parts, Tagged("diff", diff))
	}
	parts = append(parts, b.rules.Feedback)
	return join(parts)
}

// Correction asks for a new rewrite of code given the previous candidate and
// optional feedback and diff.
func (b *Builder) Correction(contexts, candidate, code, feedback, diff, primer string) string {
	parts := []string{contexts, Tagged("candidate", candidate)}
	if diff != "" {
		parts = append(parts, Tagged("diff", diff))
	}
	if feedback != "" {
		parts = append(parts, Tagged("feedback", feedback))
	}
	parts = append(parts, b.rules.Correction, input(code), output(primer))
	return join(parts)
}

// Tagged wraps body in <tag> and </tag> lines.
func Tagged(tag, body string) string {
	return "<" + tag + ">\n" + body + "\n</" + tag + ">"
}

func input(code string) string {
	return "Input: " + JavaFence + "\n" + code + "\n```"
}

func output(primer string) string {
	if primer == "" {
		return "Output:"
	}
	return "Output: " + primer
}

func join(parts []string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n\n"))
}
