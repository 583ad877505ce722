package prompt

import (
	"strings"
	"unicode"
)

// Normalized is a code fragment with its leading and trailing blank or
// comment lines and its common indent taken off.
type Normalized struct {
	Code    string
	Indent  string
	Prefix  []string
	Postfix []string
}

func isFrameLine(line string) bool {
	s := strings.TrimSpace(line)
	return s == "" || strings.HasPrefix(s, "//") || strings.HasPrefix(s, "/*") || strings.HasSuffix(s, "*/")
}

// Normalize splits code into its frame lines and dedented body. The indent is
// taken from the first non-blank body line; lines indented less than that
// are left-trimmed.
func Normalize(code string) Normalized {
	lines := strings.Split(code, "\n")

	start := 0
	for start < len(lines) && isFrameLine(lines[start]) {
		start++
	}
	end := len(lines)
	for end > start && isFrameLine(lines[end-1]) {
		end--
	}

	n := Normalized{
		Prefix:  append([]string(nil), lines[:start]...),
		Postfix: append([]string(nil), lines[end:]...),
	}
	body := lines[start:end]

	for _, line := range body {
		if strings.TrimSpace(line) != "" {
			n.Indent = line[:len(line)-len(strings.TrimLeft(line, " \t"))]
			break
		}
	}

	out := make([]string, len(body))
	for i, line := range body {
		switch {
		case strings.TrimSpace(line) == "":
			out[i] = ""
		case strings.HasPrefix(line, n.Indent):
			out[i] = line[len(n.Indent):]
		default:
			out[i] = strings.TrimLeft(line, " \t")
		}
	}
	n.Code = strings.TrimSpace(strings.Join(out, "\n"))
	return n
}

// Restore re-indents code and puts the frame lines back around it.
func (n Normalized) Restore(code string) string {
	var lines []string
	lines = append(lines, n.Prefix...)
	if code != "" {
		for _, line := range strings.Split(code, "\n") {
			if strings.TrimSpace(line) == "" {
				lines = append(lines, "")
				continue
			}
			lines = append(lines, n.Indent+line)
		}
	}
	lines = append(lines, n.Postfix...)
	return strings.Join(lines, "\n")
}

// Envelope is the leading and trailing whitespace around a fragment.
type Envelope struct {
	Lead  string
	Trail string
}

// EnvelopeOf captures the whitespace around s.
func EnvelopeOf(s string) Envelope {
	trimmedLeft := strings.TrimLeftFunc(s, unicode.IsSpace)
	if trimmedLeft == "" {
		return Envelope{Lead: s}
	}
	trimmed := strings.TrimRightFunc(trimmedLeft, unicode.IsSpace)
	return Envelope{
		Lead:  s[:len(s)-len(trimmedLeft)],
		Trail: trimmedLeft[len(trimmed):],
	}
}

// Wrap surrounds the trimmed code with the envelope.
func (e Envelope) Wrap(code string) string {
	return e.Lead + strings.TrimSpace(code) + e.Trail
}

// TailLines returns the last n non-blank lines of text. n ≤ 0 returns "".
func TailLines(text string, n int) string {
	if n <= 0 {
		return ""
	}
	var kept []string
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		kept = append(kept, lines[i])
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return strings.Join(kept, "\n")
}
