// Package retrieval supplies optional prompt context for a fragment of code.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/valpere/vorewrite/internal/prompt"
	"github.com/valpere/vorewrite/internal/store"
)

// Provider returns extra prompt text for query. ok is false when it has
// nothing to add.
type Provider interface {
	GetContext(ctx context.Context, query string) (text string, ok bool, err error)
}

// Static always returns the same text, wrapped in a tag when one is given.
type Static struct {
	Tag  string
	Text string
}

func (s Static) GetContext(ctx context.Context, query string) (string, bool, error) {
	if strings.TrimSpace(s.Text) == "" {
		return "", false, nil
	}
	if s.Tag == "" {
		return s.Text, true, nil
	}
	return prompt.Tagged(s.Tag, s.Text), true, nil
}

// Chain concatenates the context of every provider. A failing provider is
// logged and skipped.
type Chain []Provider

func (c Chain) GetContext(ctx context.Context, query string) (string, bool, error) {
	var parts []string
	for _, p := range c {
		text, ok, err := p.GetContext(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return "", false, ctx.Err()
			}
			log.Warn().Err(err).Msg("Context provider failed")
			continue
		}
		if ok {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", false, nil
	}
	return strings.Join(parts, "\n\n"), true, nil
}

// ExampleSource is the part of the store Examples reads from.
type ExampleSource interface {
	SimilarExamples(ctx context.Context, task, query string, k int, minScore float64) ([]store.Example, error)
}

// Examples offers the reference examples most similar to the query as
// in-context examples. Results are cached per query.
type Examples struct {
	src      ExampleSource
	task     string
	k        int
	minScore float64
	cache    *lru.Cache[string, string]
}

// NewExamples returns a provider of up to k examples per query. cacheSize ≤ 0
// uses 256 entries.
func NewExamples(src ExampleSource, task string, k int, minScore float64, cacheSize int) (*Examples, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create example cache: %w", err)
	}
	return &Examples{src: src, task: task, k: k, minScore: minScore, cache: cache}, nil
}

func (e *Examples) GetContext(ctx context.Context, query string) (string, bool, error) {
	if text, ok := e.cache.Get(query); ok {
		return text, text != "", nil
	}

	examples, err := e.src.SimilarExamples(ctx, e.task, query, e.k, e.minScore)
	if err != nil {
		return "", false, fmt.Errorf("failed to load reference examples: %w", err)
	}

	text := formatExamples(examples)
	e.cache.Add(query, text)
	return text, text != "", nil
}

func formatExamples(examples []store.Example) string {
	if len(examples) == 0 {
		return ""
	}
	var b strings.Builder
	for i, ex := range examples {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Example %d:\nInput:  %s\nOutput: %s", i+1, ex.Input, ex.Output)
	}
	return prompt.Tagged("examples", b.String())
}
