// Package syntax wraps the tree-sitter Java grammar shared by the segmenter
// and the evaluator.
package syntax

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
)

// Tree is a parsed Java source together with the bytes it was parsed from.
type Tree struct {
	tree *sitter.Tree
	src  []byte
}

// Parse builds a concrete syntax tree for src. A parser is created per call
// since tree-sitter parsers are not safe for concurrent use.
func Parse(ctx context.Context, src []byte) (*Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(java.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}
	if tree == nil {
		return nil, fmt.Errorf("parser returned no tree")
	}
	return &Tree{tree: tree, src: src}, nil
}

// Root returns the root node of the tree.
func (t *Tree) Root() *sitter.Node {
	return t.tree.RootNode()
}

// Source returns the bytes the tree was built from.
func (t *Tree) Source() []byte {
	return t.src
}

// Close releases the underlying tree-sitter tree.
func (t *Tree) Close() {
	t.tree.Close()
}

// FirstError returns the first ERROR or MISSING node in document order.
// ok is false when the tree parsed cleanly.
func (t *Tree) FirstError() (node *sitter.Node, ok bool) {
	root := t.Root()
	if !root.HasError() {
		return nil, false
	}
	Walk(root, func(n *sitter.Node) bool {
		if node != nil {
			return false
		}
		if n.Type() == "ERROR" || n.IsMissing() {
			node = n
			return false
		}
		return n.HasError()
	})
	if node == nil {
		node = root
	}
	return node, true
}

// Walk visits n and its descendants depth-first. Children are only visited
// when fn returns true.
func Walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		Walk(n.Child(i), fn)
	}
}

// Structure returns the S-expression of src's syntax tree. Error-recovered
// trees are rendered as-is.
func Structure(ctx context.Context, src string) (string, error) {
	tree, err := Parse(ctx, []byte(src))
	if err != nil {
		return "", err
	}
	defer tree.Close()
	return tree.Root().String(), nil
}
