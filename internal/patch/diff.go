// Package patch builds unified diffs between an original text and a candidate
// rewrite, and replays the first hunk of a diff back onto the original.
package patch

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	OriginalLabel  = "input"
	CandidateLabel = "candidate"

	defaultContext = 3
)

// LineOp tags a hunk line.
type LineOp byte

const (
	OpContext LineOp = ' '
	OpDelete  LineOp = '-'
	OpInsert  LineOp = '+'
)

// HunkLine is one tagged line of a hunk, without its prefix.
type HunkLine struct {
	Op   LineOp
	Text string
}

// Hunk is the first hunk of a unified diff. OldStart is 1-based and zero when
// the header did not carry a usable range.
type Hunk struct {
	Header   string
	OldStart int
	Lines    []HunkLine
}

var hunkRangeRe = regexp.MustCompile(`^@@ -(\d+)(?:,\d+)? \+\d+(?:,\d+)? @@`)

// BuildDiff returns a unified diff of original against candidate with three
// lines of context, or "" when they are equal.
func BuildDiff(original, candidate []string) string {
	return unified(original, candidate, defaultContext)
}

// BuildPatch returns a diff whose context spans the whole text, so any change
// is expressed as a single hunk that ApplyDiff can replay in full.
func BuildPatch(original, candidate []string) string {
	ctx := len(original)
	if len(candidate) > ctx {
		ctx = len(candidate)
	}
	return unified(original, candidate, ctx)
}

func unified(original, candidate []string, context int) string {
	diff := difflib.UnifiedDiff{
		A:        withNewlines(original),
		B:        withNewlines(candidate),
		FromFile: OriginalLabel,
		ToFile:   CandidateLabel,
		Context:  context,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(text, "\n")
}

func withNewlines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\n"
	}
	return out
}

// SplitLines splits text on newlines; a trailing newline does not produce an
// empty final line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

// HunkCount returns the number of "@@" headers in diffText.
func HunkCount(diffText string) int {
	n := 0
	for _, line := range strings.Split(diffText, "\n") {
		if strings.HasPrefix(line, "@@") {
			n++
		}
	}
	return n
}

// ParseFirstHunk extracts the first hunk of diffText. Any later hunks are
// ignored. ok is false when no "@@" header is present.
func ParseFirstHunk(diffText string) (h Hunk, ok bool) {
	lines := strings.Split(strings.ReplaceAll(diffText, "\r\n", "\n"), "\n")

	first := -1
	next := len(lines)
	for i, line := range lines {
		if !strings.HasPrefix(line, "@@") {
			continue
		}
		if first < 0 {
			first = i
			continue
		}
		next = i
		break
	}
	if first < 0 {
		return Hunk{}, false
	}

	h.Header = lines[first]
	if m := hunkRangeRe.FindStringSubmatch(h.Header); m != nil {
		h.OldStart, _ = strconv.Atoi(m[1])
	}

	body := lines[first+1 : next]
	if next < len(lines) {
		body = dropFileHeaders(body)
	}

	for _, line := range body {
		if line == "" {
			continue
		}
		switch LineOp(line[0]) {
		case OpContext, OpDelete, OpInsert:
			h.Lines = append(h.Lines, HunkLine{Op: LineOp(line[0]), Text: line[1:]})
		}
	}
	return h, true
}

// dropFileHeaders removes ---/+++ file header lines that introduce a
// following hunk of another file.
func dropFileHeaders(body []string) []string {
	end := len(body)
	for end > 0 {
		l := body[end-1]
		if strings.HasPrefix(l, "--- ") || strings.HasPrefix(l, "+++ ") || strings.HasPrefix(l, "diff ") {
			end--
			continue
		}
		break
	}
	return body[:end]
}

// Apply replays h onto original. Context lines consume and re-emit the next
// original line, deletions consume it, insertions emit their payload.
// Remaining original lines are appended. Replay starts at OldStart only when
// the hunk's context and deleted lines match the original there; otherwise it
// starts at the first line.
func (h Hunk) Apply(original []string) []string {
	out := make([]string, 0, len(original)+len(h.Lines))
	idx := 0
	if start := h.OldStart - 1; start > 0 && start <= len(original) && h.matchesAt(original, start) {
		idx = start
		out = append(out, original[:idx]...)
	}

	for _, l := range h.Lines {
		switch l.Op {
		case OpContext:
			if idx < len(original) {
				out = append(out, original[idx])
				idx++
			}
		case OpDelete:
			if idx < len(original) {
				idx++
			}
		case OpInsert:
			out = append(out, l.Text)
		}
	}

	if idx < len(original) {
		out = append(out, original[idx:]...)
	}
	return out
}

// matchesAt reports whether the lines h consumes equal original from start.
func (h Hunk) matchesAt(original []string, start int) bool {
	idx := start
	for _, l := range h.Lines {
		if l.Op == OpInsert {
			continue
		}
		if idx >= len(original) || original[idx] != l.Text {
			return false
		}
		idx++
	}
	return true
}

// ApplyDiff replays the first hunk of diffText onto original. Without any
// hunk header it returns a copy of original.
func ApplyDiff(original []string, diffText string) []string {
	h, ok := ParseFirstHunk(diffText)
	if !ok {
		return append([]string(nil), original...)
	}
	return h.Apply(original)
}

// FirstHunkOnly trims diffText down to its file headers and first hunk.
func FirstHunkOnly(diffText string) string {
	lines := strings.Split(diffText, "\n")
	seen := false
	for i, line := range lines {
		if !strings.HasPrefix(line, "@@") {
			continue
		}
		if seen {
			return strings.Join(dropFileHeaders(lines[:i]), "\n")
		}
		seen = true
	}
	return diffText
}
