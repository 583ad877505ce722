package patch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"

	"github.com/valpere/vorewrite/internal/llm"
	"github.com/valpere/vorewrite/internal/postprocess"
	"github.com/valpere/vorewrite/internal/task"
)

// Enhancer asks a language model to improve a base diff in light of the
// task's domain knowledge and the intent of the change.
type Enhancer struct {
	svc         llm.Service
	rules       task.Rules
	temperature float64
}

func NewEnhancer(svc llm.Service, rules task.Rules, temperature float64) *Enhancer {
	return &Enhancer{svc: svc, rules: rules, temperature: temperature}
}

// EnhanceDiff returns an improved single-hunk diff, or the base diff when the
// model fails or its reply holds no fenced diff with a hunk header.
func (e *Enhancer) EnhanceDiff(ctx context.Context, original, candidate []string, intent task.Intent) string {
	base := BuildDiff(original, candidate)
	if base == "" {
		return base
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: e.rules.SystemPrompt},
		{Role: llm.RoleUser, Content: e.enhancePrompt(base, intent)},
	}
	resp, err := e.svc.Generate(ctx, messages, llm.Options{Temperature: e.temperature})
	if err != nil {
		log.Warn().Err(err).Str("service", e.svc.Name()).Msg("Diff enhancement failed, using base diff")
		return base
	}

	diffText, ok := postprocess.ExtractDiff(resp.Text)
	if !ok || HunkCount(diffText) == 0 {
		log.Debug().Str("service", e.svc.Name()).Msg("Enhancement reply has no diff hunk, using base diff")
		return base
	}
	if n := HunkCount(diffText); n > 1 {
		log.Debug().Int("hunks", n).Msg("Discarding extra hunks from enhanced diff")
	}
	return FirstHunkOnly(diffText)
}

func (e *Enhancer) enhancePrompt(base string, intent task.Intent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n%s\n\n", e.rules.Name, e.rules.Description)
	writeDomain(&b, e.rules.Domain)

	b.WriteString("Intent of the change:\n")
	fmt.Fprintf(&b, "- Purpose: %s\n", intent.MainPurpose)
	fmt.Fprintf(&b, "- Scope: %s\n", intent.Scope)
	fmt.Fprintf(&b, "- Risk level: %s\n", intent.RiskLevel)
	writeList(&b, "Specific changes", intent.SpecificChanges)
	writeList(&b, "Preservation rules", intent.PreservationRules)
	writeList(&b, "Enhancement opportunities", intent.EnhancementOpportunities)

	b.WriteString("\nBase diff:\n```diff\n")
	b.WriteString(base)
	b.WriteString("\n```\n\n")
	b.WriteString("Improve this diff so it completes the transformation while honouring the preservation rules.\n")
	b.WriteString("Answer with exactly one unified diff hunk in a ```diff code block, keeping the --- input / +++ candidate headers.")
	return b.String()
}

func writeDomain(b *strings.Builder, d task.DomainKnowledge) {
	if d.Purpose != "" {
		fmt.Fprintf(b, "Purpose: %s\n", d.Purpose)
	}
	writeList(b, "Common transformations", d.CommonTransformations)
	if len(d.Patterns) > 0 {
		b.WriteString("Patterns:\n")
		for _, p := range d.Patterns {
			fmt.Fprintf(b, "  %s: %s\n", p.Name, p.Example)
		}
	}
	writeList(b, "Enhancement rules", d.EnhancementRules)
	writeList(b, "Quality checks", d.QualityChecks)
	b.WriteString("\n")
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "  - %s\n", it)
	}
}

// InferIntent asks the model to describe the intent behind turning original
// into candidate. Unusable replies yield the task's default intent.
func (e *Enhancer) InferIntent(ctx context.Context, original, candidate []string) task.Intent {
	fallback := e.rules.DefaultIntent

	prompt := fmt.Sprintf(`Describe the intent of the following change for the task "%s".
Answer with a single JSON object with the keys main_purpose, transformation_scope (minimal|moderate|extensive),
risk_level (low|medium|high), specific_changes, preservation_rules and enhancement_opportunities (string arrays).

Original:
%s

Candidate:
%s`, e.rules.Name, strings.Join(original, "\n"), strings.Join(candidate, "\n"))

	resp, err := e.svc.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: e.rules.SystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	}, llm.Options{Temperature: e.temperature})
	if err != nil {
		log.Warn().Err(err).Str("service", e.svc.Name()).Msg("Intent inference failed, using default intent")
		return fallback
	}

	intent, err := parseIntent(resp.Text)
	if err != nil {
		log.Debug().Err(err).Msg("Unusable intent reply, using default intent")
		return fallback
	}
	if intent.MainPurpose == "" {
		intent.MainPurpose = fallback.MainPurpose
	}
	if intent.Scope == "" {
		intent.Scope = fallback.Scope
	}
	if intent.RiskLevel == "" {
		intent.RiskLevel = fallback.RiskLevel
	}
	return intent
}

func parseIntent(reply string) (task.Intent, error) {
	raw := postprocess.ExtractJSON(reply)
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return task.Intent{}, fmt.Errorf("failed to repair intent JSON: %w", err)
	}
	var intent task.Intent
	if err := json.Unmarshal([]byte(repaired), &intent); err != nil {
		return task.Intent{}, fmt.Errorf("failed to decode intent: %w", err)
	}
	return intent, nil
}
