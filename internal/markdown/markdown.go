// Package markdown finds fenced code blocks in model replies.
package markdown

import (
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// Block is one fenced code block.
type Block struct {
	Lang string
	Code string
}

// FencedBlocks returns closed fenced code blocks in document order. Lang is
// the first word of the info string, lower-cased.
func FencedBlocks(text string) []Block {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse([]byte(text))

	var blocks []Block
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		cb, ok := node.(*ast.CodeBlock)
		if !ok || !cb.IsFenced {
			return ast.GoToNext
		}
		lang := ""
		if fields := strings.Fields(string(cb.Info)); len(fields) > 0 {
			lang = strings.ToLower(fields[0])
		}
		blocks = append(blocks, Block{Lang: lang, Code: string(cb.Literal)})
		return ast.GoToNext
	})
	return blocks
}

// FirstBlock returns the first non-blank block whose language is one of
// langs. An empty langs matches any block.
func FirstBlock(text string, langs ...string) (Block, bool) {
	for _, b := range FencedBlocks(text) {
		if strings.TrimSpace(b.Code) == "" {
			continue
		}
		if len(langs) == 0 {
			return b, true
		}
		for _, l := range langs {
			if b.Lang == l {
				return b, true
			}
		}
	}
	return Block{}, false
}
