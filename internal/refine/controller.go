// Package refine runs the bounded generate, evaluate and refine loop that
// turns a language model's rewrites into a converged candidate.
//
// One Convert call owns one conversation: an initial rewrite, then up to
// MaxIterations-1 corrections, each optionally preceded by a critique. The
// loop stops on an exact match with the ground truth or when the iteration
// budget is spent, and returns the best attempt seen.
package refine

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/valpere/vorewrite/internal/critic"
	"github.com/valpere/vorewrite/internal/evaluator"
	"github.com/valpere/vorewrite/internal/llm"
	"github.com/valpere/vorewrite/internal/patch"
	"github.com/valpere/vorewrite/internal/postprocess"
	"github.com/valpere/vorewrite/internal/prompt"
	"github.com/valpere/vorewrite/internal/retrieval"
	"github.com/valpere/vorewrite/internal/task"
	"github.com/valpere/vorewrite/internal/validator"
)

// Memory remembers converged conversions.
type Memory interface {
	Lookup(ctx context.Context, task, source string) (string, bool, error)
	Remember(ctx context.Context, task, source, converted string, score int) error
}

// Controller converts code with one task's rules. It keeps no state between
// calls and may be shared by goroutines when its collaborators allow it.
type Controller struct {
	svc   llm.Service
	rules task.Rules
	cfg   Config

	builder     *prompt.Builder
	critic      critic.Critic
	evaluator   *evaluator.Evaluator
	enhancer    *patch.Enhancer
	retriever   retrieval.Provider
	memory      Memory
	baseContext string
	logger      zerolog.Logger
}

type Option func(*Controller)

func WithCritic(c critic.Critic) Option {
	return func(ctl *Controller) { ctl.critic = c }
}

func WithEvaluator(e *evaluator.Evaluator) Option {
	return func(ctl *Controller) { ctl.evaluator = e }
}

func WithRetriever(p retrieval.Provider) Option {
	return func(ctl *Controller) { ctl.retriever = p }
}

func WithMemory(m Memory) Option {
	return func(ctl *Controller) { ctl.memory = m }
}

// WithBaseContext sets text placed at the top of every prompt, such as the
// reference value object class.
func WithBaseContext(text string) Option {
	return func(ctl *Controller) { ctl.baseContext = text }
}

func WithLogger(l zerolog.Logger) Option {
	return func(ctl *Controller) { ctl.logger = l }
}

// New builds a controller for kind. The task rules are resolved once here.
func New(svc llm.Service, kind task.Kind, cfg Config, opts ...Option) (*Controller, error) {
	if svc == nil {
		return nil, fmt.Errorf("%w: no language model service", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rules := kind.Rules()
	c := &Controller{
		svc:     svc,
		rules:   rules,
		cfg:     cfg,
		builder: prompt.NewBuilder(rules),
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.critic == nil {
		c.critic = critic.NewLLMCritic(svc, rules, cfg.Temperature)
	}
	if c.evaluator == nil {
		c.evaluator = evaluator.New(rules)
	}
	if cfg.EnhancePatch {
		c.enhancer = patch.NewEnhancer(svc, rules, cfg.Temperature)
	}
	return c, nil
}

// Rules returns the task rules the controller was built with.
func (c *Controller) Rules() task.Rules { return c.rules }

// Config returns the controller's configuration.
func (c *Controller) Config() Config { return c.cfg }

// Convert runs the refinement loop on code. An empty truth means no ground
// truth is known and code itself is compared against. extra is appended to
// the prompt context. Errors are returned only when the language model
// service fails or ctx ends; non-convergence is not an error.
func (c *Controller) Convert(ctx context.Context, code, truth, extra string) (*Result, error) {
	if truth == "" {
		truth = code
	}
	res := &Result{Original: code, GroundTruth: truth}

	if strings.TrimSpace(code) == "" {
		return c.passThrough(res, code), nil
	}
	if c.cfg.SkipPredicate != nil && c.cfg.SkipPredicate(code) {
		c.logger.Debug().Msg("Nothing to convert, passing through")
		return c.passThrough(res, code), nil
	}

	if c.memory != nil {
		if hit, ok := c.recall(ctx, code); ok {
			res.Converted = hit
			res.FromMemory = true
			res.Evaluation = c.evaluator.Evaluate(hit, truth)
			res.IsCorrect = res.Evaluation.ExactMatch
			res.Patch = patch.BuildDiff(patch.SplitLines(code), patch.SplitLines(hit))
			return res, nil
		}
	}

	contexts, err := c.contexts(ctx, code, extra)
	if err != nil {
		return nil, err
	}

	run := &loop{
		Controller: c,
		code:       code,
		truth:      truth,
		contexts:   contexts,
		conv:       prompt.NewConversation(c.rules.SystemPrompt),
	}
	best, iterations, err := run.execute(ctx)
	if c.cfg.KeepTranscript {
		res.Transcript = run.conv.Transcript()
	}
	if err != nil {
		return nil, err
	}

	res.Final = best
	res.Converted = best.Candidate
	res.Evaluation = best.Evaluation
	res.IsCorrect = best.Evaluation.ExactMatch
	res.Iterations = iterations
	res.Patch = patch.BuildDiff(patch.SplitLines(code), patch.SplitLines(best.Candidate))

	if res.IsCorrect && c.memory != nil {
		if err := c.memory.Remember(ctx, c.rules.Kind.String(), code, strings.TrimSpace(best.Candidate), best.Evaluation.Score); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to remember conversion")
		}
	}
	return res, nil
}

func (c *Controller) passThrough(res *Result, code string) *Result {
	res.Converted = code
	res.Skipped = true
	res.IsCorrect = true
	res.Evaluation = c.evaluator.Evaluate(code, res.GroundTruth)
	return res
}

func (c *Controller) recall(ctx context.Context, code string) (string, bool) {
	hit, ok, err := c.memory.Lookup(ctx, c.rules.Kind.String(), code)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Conversion memory lookup failed")
		return "", false
	}
	if !ok {
		return "", false
	}
	c.logger.Debug().Msg("Conversion memory hit")
	return prompt.EnvelopeOf(code).Wrap(hit), true
}

func (c *Controller) contexts(ctx context.Context, code, extra string) (string, error) {
	parts := []string{c.baseContext}
	if c.retriever != nil {
		text, ok, err := c.retriever.GetContext(ctx, code)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			c.logger.Warn().Err(err).Msg("Context retrieval failed")
		} else if ok {
			parts = append(parts, text)
		}
	}
	parts = append(parts, extra)

	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, strings.TrimSpace(p))
		}
	}
	return strings.Join(kept, "\n\n"), nil
}

// loop is the state of one Convert call.
type loop struct {
	*Controller
	code     string
	truth    string
	contexts string
	conv     *prompt.Conversation

	input    string
	norm     prompt.Normalized
	envelope prompt.Envelope
	primer   string
	budget   validator.LineBudget
	// whole is the budget over the unnormalised code, for replayed patches.
	whole validator.LineBudget

	intent *task.Intent
}

func (l *loop) execute(ctx context.Context) (*Attempt, int, error) {
	if l.cfg.Normalize {
		l.norm = prompt.Normalize(l.code)
		l.input = l.norm.Code
	} else {
		l.envelope = prompt.EnvelopeOf(l.code)
		l.input = strings.TrimSpace(l.code)
	}
	if l.cfg.PrefixOutput {
		l.primer = prompt.JavaFence
	}
	if l.cfg.LineBudgetOffset != nil {
		l.budget = validator.NewLineBudget(l.input, *l.cfg.LineBudgetOffset)
		l.whole = validator.NewLineBudget(l.code, *l.cfg.LineBudgetOffset)
	}

	var best *Attempt
	prev := ""
	iteration := 0
	for iteration < l.cfg.MaxIterations {
		iteration++

		attempt, err := l.round(ctx, iteration, prev)
		if err != nil {
			return nil, iteration, err
		}

		l.logger.Debug().
			Int("iteration", iteration).
			Int("score", attempt.Evaluation.Score).
			Bool("exact_match", attempt.Evaluation.ExactMatch).
			Bool("truncated", attempt.Truncated).
			Msg("Attempt evaluated")

		if better(attempt, best) {
			best = attempt
		}
		if attempt.Evaluation.ExactMatch {
			break
		}
		prev = attempt.Candidate
	}
	return best, iteration, nil
}

// better orders attempts by exact match, then score, then recency.
func better(a, b *Attempt) bool {
	if b == nil {
		return true
	}
	if a.Evaluation.ExactMatch != b.Evaluation.ExactMatch {
		return a.Evaluation.ExactMatch
	}
	return a.Evaluation.Score >= b.Evaluation.Score
}

func (l *loop) round(ctx context.Context, iteration int, prev string) (*Attempt, error) {
	attempt := &Attempt{Iteration: iteration}

	var p string
	if iteration == 1 {
		p = l.builder.Initial(l.contexts, l.input, l.primer)
	} else {
		diff := ""
		if l.cfg.UseDiffContext {
			diff = patch.BuildDiff(patch.SplitLines(l.code), patch.SplitLines(prev))
		}
		feedback := ""
		if l.cfg.UseFeedback {
			var err error
			feedback, err = l.critic.Critique(ctx, l.conv, critic.Request{
				Contexts:  l.contexts,
				Code:      l.code,
				Candidate: prev,
				Diff:      diff,
			})
			if err != nil {
				return nil, err
			}
		}
		attempt.Feedback = feedback
		attempt.Diff = diff
		p = l.builder.Correction(l.contexts, prev, l.input, feedback, diff, l.primer)
	}

	resp, err := l.svc.Generate(ctx, l.conv.Ask(p), llm.Options{
		Temperature: l.cfg.Temperature,
		MaxLines:    l.budget.Max,
	})
	if err != nil {
		return nil, fmt.Errorf("generation failed at iteration %d: %w", iteration, err)
	}
	l.conv.Record(resp.Text)

	candidate := postprocess.ExtractCode(resp.Text, l.primer != "")
	candidate, cut := l.budget.Truncate(candidate)
	attempt.Truncated = resp.Truncated || cut
	attempt.TruncatedAtLine = resp.TruncatedAtLine
	if cut && attempt.TruncatedAtLine == 0 {
		attempt.TruncatedAtLine = l.budget.Max
	}

	candidate = l.restore(candidate)

	if l.cfg.ApplyAsPatch {
		candidate, attempt.Diff = l.replay(ctx, candidate)
		if out, cut := l.whole.Truncate(candidate); cut {
			if strings.HasSuffix(candidate, "\n") {
				out += "\n"
			}
			candidate = out
			attempt.Truncated = true
			if attempt.TruncatedAtLine == 0 {
				attempt.TruncatedAtLine = l.whole.Max
			}
		}
	}

	attempt.Candidate = candidate
	attempt.Evaluation = l.evaluator.Evaluate(candidate, l.truth)
	return attempt, nil
}

func (l *loop) restore(candidate string) string {
	if l.cfg.Normalize {
		return l.norm.Restore(candidate)
	}
	return l.envelope.Wrap(candidate)
}

// replay expresses candidate as a single-hunk diff of the original, optionally
// has the model improve it, and applies it to the original. An enhanced diff
// whose result exceeds the line budget is dropped for the plain one.
func (l *loop) replay(ctx context.Context, candidate string) (string, string) {
	original := patch.SplitLines(l.code)
	lines := patch.SplitLines(candidate)

	diffText := patch.BuildPatch(original, lines)
	if l.enhancer != nil && diffText != "" {
		if l.intent == nil {
			intent := l.enhancer.InferIntent(ctx, original, lines)
			l.intent = &intent
		}
		enhanced := l.enhancer.EnhanceDiff(ctx, original, lines, *l.intent)
		if out := l.apply(original, enhanced, candidate); l.whole.Allows(out) {
			return out, enhanced
		}
		l.logger.Debug().Int("max_lines", l.whole.Max).Msg("Enhanced diff exceeds line budget, using plain diff")
	}
	return l.apply(original, diffText, candidate), diffText
}

func (l *loop) apply(original []string, diffText, candidate string) string {
	out := strings.Join(patch.ApplyDiff(original, diffText), "\n")
	if strings.HasSuffix(candidate, "\n") || (diffText == "" && strings.HasSuffix(l.code, "\n")) {
		out += "\n"
	}
	return out
}
