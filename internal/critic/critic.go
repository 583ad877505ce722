// Package critic produces the natural-language critique that precedes a
// correction in reflexion mode.
package critic

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/valpere/vorewrite/internal/llm"
	"github.com/valpere/vorewrite/internal/postprocess"
	"github.com/valpere/vorewrite/internal/prompt"
	"github.com/valpere/vorewrite/internal/task"
)

// Request is what a critique is about. Diff may be empty.
type Request struct {
	Contexts  string
	Code      string
	Candidate string
	Diff      string
}

type Critic interface {
	Critique(ctx context.Context, conv *prompt.Conversation, req Request) (string, error)
}

// LLMCritic asks a language model to judge a candidate against the task's
// checklist.
type LLMCritic struct {
	svc         llm.Service
	builder     *prompt.Builder
	temperature float64
}

func NewLLMCritic(svc llm.Service, rules task.Rules, temperature float64) *LLMCritic {
	return &LLMCritic{
		svc:         svc,
		builder:     prompt.NewBuilder(rules),
		temperature: temperature,
	}
}

// Critique returns the model's feedback with any code fences removed.
func (c *LLMCritic) Critique(ctx context.Context, conv *prompt.Conversation, req Request) (string, error) {
	p := c.builder.Feedback(req.Contexts, req.Candidate, req.Diff)

	resp, err := c.svc.Generate(ctx, conv.Ask(p), llm.Options{Temperature: c.temperature})
	if err != nil {
		return "", fmt.Errorf("critique request failed: %w", err)
	}
	conv.Record(resp.Text)

	feedback := postprocess.ExtractFeedback(resp.Text)
	log.Debug().
		Str("service", c.svc.Name()).
		Int("feedback_len", len(feedback)).
		Dur("latency", resp.Latency).
		Msg("Critique received")
	return feedback, nil
}
