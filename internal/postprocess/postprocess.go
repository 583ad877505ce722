// Package postprocess turns raw model replies into usable code or feedback.
//
// Replies are cleaned of reasoning blocks and echo preambles first, then the
// code is pulled out of the first fenced block. Truncated replies (cut at the
// line budget) often lack a closing fence, so unterminated fences are handled
// too.
package postprocess

import (
	"regexp"
	"strings"

	"github.com/valpere/vorewrite/internal/markdown"
)

// Clean removes reasoning blocks and introductory echoes and trims the result.
func Clean(text string) string {
	text = removeThinkingBlocks(text)
	text = removeEchoPreamble(text)
	return strings.TrimSpace(text)
}

// Flags: i = case-insensitive, s = dot matches newline. RE2 has no
// backreferences, so each tag pair is spelled out.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// An opened thinking tag whose close was cut off.
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// echoPatterns match a leading sentence ending in a colon that introduces the
// answer, e.g. "Here is the converted code:".
var echoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the)? (?:converted |modernized |rewritten |updated |refactored )?(?:code|implementation|method|version)\s*:`),
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.!]? here(?:'s| is)[^:\n]*:`),
	regexp.MustCompile(`(?i)^output\s*:`),
}

func removeEchoPreamble(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

var (
	closingFenceRe = regexp.MustCompile("(?s)^(.*?)\\s*```")
	openFenceRe    = regexp.MustCompile("(?s)```(?:java)?[ \\t]*\\n?(.*)$")
	diffFenceRe    = regexp.MustCompile("(?s)```diff[ \\t]*\\n(.*?)\\n```")
)

// ExtractCode returns the code in a reply. In order it tries: the first
// non-blank java or untagged fenced block; when primed (the prompt already
// opened a fence) the text before the first closing fence; an unterminated
// fence; and finally the whole cleaned reply.
func ExtractCode(reply string, primed bool) string {
	text := Clean(reply)

	// A primed reply that only closes the fence has a single marker.
	if strings.Count(text, "```") >= 2 {
		if b, ok := markdown.FirstBlock(text, "java", ""); ok {
			return strings.TrimSpace(b.Code)
		}
	}

	if primed && !strings.HasPrefix(text, "```") {
		if m := closingFenceRe.FindStringSubmatch(text); m != nil && strings.TrimSpace(m[1]) != "" {
			return strings.TrimSpace(m[1])
		}
	}

	if m := openFenceRe.FindStringSubmatch(text); m != nil {
		code := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(m[1]), "```"))
		if code != "" {
			return code
		}
	}

	return text
}

// ExtractDiff returns the body of the first ```diff block.
func ExtractDiff(reply string) (string, bool) {
	text := Clean(reply)
	if b, ok := markdown.FirstBlock(text, "diff", "patch"); ok {
		return strings.TrimRight(b.Code, "\n"), true
	}
	if m := diffFenceRe.FindStringSubmatch(text); m != nil && strings.TrimSpace(m[1]) != "" {
		return m[1], true
	}
	return "", false
}

// ExtractFeedback returns a critique reply without surrounding code fences.
func ExtractFeedback(reply string) string {
	text := Clean(reply)
	for _, prefix := range []string{"```java", "```markdown", "```text", "```"} {
		if strings.HasPrefix(text, prefix) {
			text = text[len(prefix):]
			break
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// ExtractJSON returns the first {...} object in a reply, unwrapping a ```json
// fence if present.
func ExtractJSON(reply string) string {
	text := Clean(reply)
	if b, ok := markdown.FirstBlock(text, "json"); ok {
		text = b.Code
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 {
		return strings.TrimSpace(text)
	}
	if end < start {
		return strings.TrimSpace(text[start:])
	}
	return text[start : end+1]
}
