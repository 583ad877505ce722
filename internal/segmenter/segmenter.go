// Package segmenter splits a Java compilation unit into contiguous source
// units (header, declarations, trailing bytes) that concatenate back to the
// exact input.
//
// Declarations are found with tree-sitter. Overlapping declarations are
// resolved shortest-first, so a method nested in a class becomes its own unit
// and the class keeps only the fragments no smaller construct claimed.
package segmenter

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/valpere/vorewrite/internal/syntax"
)

// Kind classifies a SourceUnit.
type Kind string

const (
	KindHeader          Kind = "header"
	KindTypeDeclaration Kind = "type-declaration"
	KindMethod          Kind = "method"
	KindConstructor     Kind = "constructor"
	KindField           Kind = "field"
	KindInitializer     Kind = "initializer"
	KindTrailing        Kind = "trailing"
	KindOther           Kind = "other"
)

// Span is a half-open [Start, End) range.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns End-Start.
func (s Span) Len() int { return s.End - s.Start }

// SourceUnit is one contiguous slice of the original source.
// Lines is a zero-based half-open line range.
type SourceUnit struct {
	Index   int    `json:"index"`
	Kind    Kind   `json:"kind"`
	Bytes   Span   `json:"bytes"`
	Lines   Span   `json:"lines"`
	Content string `json:"content"`
}

// ParseError reports a syntax error that prevents segmentation.
type ParseError struct {
	Span Span
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d (bytes %d-%d): %s", e.Line, e.Span.Start, e.Span.End, e.Msg)
}

var declarationKinds = map[string]Kind{
	"class_declaration":                  KindTypeDeclaration,
	"interface_declaration":              KindTypeDeclaration,
	"enum_declaration":                   KindTypeDeclaration,
	"record_declaration":                 KindTypeDeclaration,
	"annotation_type_declaration":        KindTypeDeclaration,
	"method_declaration":                 KindMethod,
	"constructor_declaration":            KindConstructor,
	"compact_constructor_declaration":    KindConstructor,
	"field_declaration":                  KindField,
	"constant_declaration":               KindField,
	"static_initializer":                 KindInitializer,

	"annotation_type_element_declaration": KindOther,
}

type piece struct {
	kind Kind
	span Span
}

// Split segments src. It fails with *ParseError when the syntax tree contains
// error or missing nodes; no partial result is returned in that case.
func Split(ctx context.Context, src string) ([]SourceUnit, error) {
	tree, err := syntax.Parse(ctx, []byte(src))
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	if node, bad := tree.FirstError(); bad {
		return nil, newParseError(node)
	}

	hEnd := headerEnd(src)
	pieces := resolveOverlaps(collectDeclarations(tree.Root(), hEnd))
	pieces = absorbGaps(pieces, hEnd)
	pieces = normalizeBoundaries(src, pieces)
	pieces = snapToLineEnds(src, pieces)

	return assemble(src, hEnd, pieces), nil
}

// Join concatenates unit contents in order.
func Join(units []SourceUnit) string {
	var sb strings.Builder
	for _, u := range units {
		sb.WriteString(u.Content)
	}
	return sb.String()
}

// Verify checks that units tile src exactly: contiguous, in order, and with
// contents matching the byte ranges.
func Verify(src string, units []SourceUnit) error {
	pos := 0
	for i, u := range units {
		if u.Index != i {
			return fmt.Errorf("unit %d has index %d", i, u.Index)
		}
		if u.Bytes.Start != pos {
			return fmt.Errorf("unit %d starts at %d, expected %d", i, u.Bytes.Start, pos)
		}
		if u.Bytes.End < u.Bytes.Start || u.Bytes.End > len(src) {
			return fmt.Errorf("unit %d has invalid range %d-%d", i, u.Bytes.Start, u.Bytes.End)
		}
		if src[u.Bytes.Start:u.Bytes.End] != u.Content {
			return fmt.Errorf("unit %d content does not match its byte range", i)
		}
		pos = u.Bytes.End
	}
	if pos != len(src) {
		return fmt.Errorf("units cover %d of %d bytes", pos, len(src))
	}
	return nil
}

func newParseError(n *sitter.Node) *ParseError {
	msg := "unexpected syntax"
	if n.IsMissing() {
		msg = fmt.Sprintf("missing %s", n.Type())
	}
	return &ParseError{
		Span: Span{Start: int(n.StartByte()), End: int(n.EndByte())},
		Line: int(n.StartPoint().Row) + 1,
		Msg:  msg,
	}
}

// headerEnd returns the byte offset after the leading run of blank, package
// and import lines.
func headerEnd(src string) int {
	pos := 0
	for pos < len(src) {
		end := len(src)
		if i := strings.IndexByte(src[pos:], '\n'); i >= 0 {
			end = pos + i + 1
		}
		line := strings.TrimSpace(src[pos:end])
		if line != "" && !strings.HasPrefix(line, "package") && !strings.HasPrefix(line, "import") {
			break
		}
		pos = end
	}
	return pos
}

func declarationKind(n *sitter.Node) (Kind, bool) {
	if k, ok := declarationKinds[n.Type()]; ok {
		return k, true
	}
	// Instance initializers are bare blocks inside a class body.
	if n.Type() == "block" {
		if p := n.Parent(); p != nil && (p.Type() == "class_body" || p.Type() == "enum_body_declarations") {
			return KindInitializer, true
		}
	}
	return "", false
}

func collectDeclarations(root *sitter.Node, minStart int) []piece {
	var out []piece
	syntax.Walk(root, func(n *sitter.Node) bool {
		kind, ok := declarationKind(n)
		if !ok {
			return true
		}
		s := Span{Start: int(n.StartByte()), End: int(n.EndByte())}
		if s.Start < minStart {
			s.Start = minStart
		}
		if s.End > s.Start {
			out = append(out, piece{kind: kind, span: s})
		}
		return true
	})
	return out
}

// resolveOverlaps assigns every byte to the smallest declaration containing
// it. Larger declarations keep only their unclaimed fragments.
func resolveOverlaps(decls []piece) []piece {
	sort.SliceStable(decls, func(i, j int) bool {
		if decls[i].span.Len() != decls[j].span.Len() {
			return decls[i].span.Len() < decls[j].span.Len()
		}
		return decls[i].span.Start < decls[j].span.Start
	})

	var occupied []Span
	var out []piece
	for _, d := range decls {
		for _, frag := range subtract(d.span, occupied) {
			out = append(out, piece{kind: d.kind, span: frag})
		}
		occupied = append(occupied, d.span)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].span.Start < out[j].span.Start })
	return out
}

func subtract(s Span, occupied []Span) []Span {
	frags := []Span{s}
	for _, o := range occupied {
		var next []Span
		for _, f := range frags {
			if o.End <= f.Start || o.Start >= f.End {
				next = append(next, f)
				continue
			}
			if o.Start > f.Start {
				next = append(next, Span{Start: f.Start, End: o.Start})
			}
			if o.End < f.End {
				next = append(next, Span{Start: o.End, End: f.End})
			}
		}
		frags = next
	}
	return frags
}

// absorbGaps extends each piece backwards to the end of its predecessor so
// that inter-declaration whitespace and comments travel with the following
// declaration.
func absorbGaps(pieces []piece, headerEnd int) []piece {
	prev := headerEnd
	for i := range pieces {
		pieces[i].span.Start = prev
		prev = pieces[i].span.End
	}
	return pieces
}

// normalizeBoundaries moves trailing blank and comment lines of each piece to
// the next one and folds pieces with no code into their successor.
func normalizeBoundaries(src string, pieces []piece) []piece {
	var out []piece
	for i := range pieces {
		p := pieces[i]
		content := src[p.span.Start:p.span.End]

		if i == len(pieces)-1 {
			if !isBlank(content) {
				out = append(out, p)
			}
			continue
		}

		cut := trailingStart(content)
		if isBlank(content[:cut]) {
			pieces[i+1].span.Start = p.span.Start
			continue
		}
		pieces[i+1].span.Start = p.span.Start + cut
		p.span.End = p.span.Start + cut
		out = append(out, p)
	}
	return out
}

// snapToLineEnds moves a piece's end past the rest of its line when only
// whitespace remains on it, so units end with their line terminator. The
// following piece always keeps at least one byte.
func snapToLineEnds(src string, pieces []piece) []piece {
	for i := range pieces {
		limit := len(src)
		if i+1 < len(pieces) {
			limit = pieces[i+1].span.End - 1
		}
		j := pieces[i].span.End
		for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\r') {
			j++
		}
		if j >= len(src) || src[j] != '\n' || j+1 > limit {
			continue
		}
		pieces[i].span.End = j + 1
		if i+1 < len(pieces) {
			pieces[i+1].span.Start = j + 1
		}
	}
	return pieces
}

// trailingStart returns the offset in content where its run of trailing
// blank or comment-only lines begins.
func trailingStart(content string) int {
	cut := len(content)
	for cut > 0 {
		lineStart := strings.LastIndexByte(content[:cut], '\n')
		// A newline at cut-1 terminates the line that ends at cut.
		if lineStart == cut-1 {
			lineStart = strings.LastIndexByte(content[:cut-1], '\n')
		}
		lineStart++
		if !isTrailingLine(content[lineStart:cut]) {
			break
		}
		cut = lineStart
	}
	return cut
}

func isTrailingLine(line string) bool {
	t := strings.TrimSpace(line)
	return t == "" ||
		strings.HasPrefix(t, "//") ||
		strings.HasPrefix(t, "/*") ||
		strings.HasPrefix(t, "*") ||
		strings.HasSuffix(t, "*/")
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func assemble(src string, headerEnd int, pieces []piece) []SourceUnit {
	units := []SourceUnit{newUnit(src, 0, KindHeader, Span{Start: 0, End: headerEnd})}
	last := headerEnd
	for _, p := range pieces {
		units = append(units, newUnit(src, len(units), p.kind, p.span))
		last = p.span.End
	}
	if last < len(src) {
		units = append(units, newUnit(src, len(units), KindTrailing, Span{Start: last, End: len(src)}))
	}
	return units
}

func newUnit(src string, index int, kind Kind, s Span) SourceUnit {
	return SourceUnit{
		Index:   index,
		Kind:    kind,
		Bytes:   s,
		Lines:   Span{Start: lineIndex(src, s.Start), End: lineIndex(src, s.End)},
		Content: src[s.Start:s.End],
	}
}

// lineIndex counts the lines of src that start before offset. A line belongs
// to the unit holding its first byte, so the ranges of adjacent units meet
// without overlapping.
func lineIndex(src string, offset int) int {
	if offset == 0 {
		return 0
	}
	return strings.Count(src[:offset-1], "\n") + 1
}
