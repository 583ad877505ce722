// Package evaluator scores a candidate rewrite against a ground truth.
//
// Six signals are combined into a score in [0,100]: whitespace-insensitive
// equality, equality with comments removed, presence of the target idiom,
// absence of the legacy idiom, equal syntax tree shape, and edit similarity.
// None of them can fail; a parse problem simply counts as a mismatch.
package evaluator

import (
	"context"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agext/levenshtein"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/rs/zerolog/log"

	"github.com/valpere/vorewrite/internal/syntax"
	"github.com/valpere/vorewrite/internal/task"
)

// Result holds every signal of one evaluation.
type Result struct {
	ExactMatch             bool    `json:"exact_match"`
	CommentIgnoredMatch    bool    `json:"comment_ignored_match"`
	TargetPatternPresent   bool    `json:"target_pattern_present"`
	LegacyPatternRemaining bool    `json:"legacy_pattern_remaining"`
	StructureMatch         bool    `json:"structure_match"`
	Similarity             float64 `json:"similarity"`
	Score                  int     `json:"score"`
}

// Weights are the points each signal contributes. Similarity contributes
// its weight scaled by the similarity ratio; LegacyAbsent is awarded when the
// legacy idiom is gone.
type Weights struct {
	Exact          float64 `mapstructure:"exact" json:"exact"`
	CommentIgnored float64 `mapstructure:"comment_ignored" json:"comment_ignored"`
	Target         float64 `mapstructure:"target" json:"target"`
	LegacyAbsent   float64 `mapstructure:"legacy_absent" json:"legacy_absent"`
	Structure      float64 `mapstructure:"structure" json:"structure"`
	Similarity     float64 `mapstructure:"similarity" json:"similarity"`
}

var DefaultWeights = Weights{
	Exact:          40,
	CommentIgnored: 20,
	Target:         10,
	LegacyAbsent:   10,
	Structure:      10,
	Similarity:     10,
}

// Above this many runes on either side similarity is measured on lines
// instead of characters.
const levenshteinLimit = 4000

var (
	lineCommentRe  = regexp.MustCompile(`(?m)//.*$`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// Evaluator is safe for concurrent use.
type Evaluator struct {
	target    *regexp.Regexp
	legacy    *regexp.Regexp
	weights   Weights
	structure func(src string) (string, error)
}

type Option func(*Evaluator)

func WithWeights(w Weights) Option {
	return func(e *Evaluator) { e.weights = w }
}

// WithStructure replaces the function that renders a source's tree shape.
func WithStructure(fn func(src string) (string, error)) Option {
	return func(e *Evaluator) { e.structure = fn }
}

// New returns an evaluator using the patterns of rules.
func New(rules task.Rules, opts ...Option) *Evaluator {
	e := &Evaluator{
		target:  rules.TargetPattern,
		legacy:  rules.LegacyPattern,
		weights: DefaultWeights,
		structure: func(src string) (string, error) {
			return syntax.Structure(context.Background(), src)
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate compares candidate with truth.
func (e *Evaluator) Evaluate(candidate, truth string) Result {
	var r Result

	r.ExactMatch = equalIgnoringSpace(candidate, truth)

	candidateBare := StripComments(candidate)
	truthBare := StripComments(truth)
	r.CommentIgnoredMatch = equalIgnoringSpace(candidateBare, truthBare)

	if e.target != nil {
		r.TargetPatternPresent = e.target.MatchString(candidate)
	}
	if e.legacy != nil {
		r.LegacyPatternRemaining = e.legacy.MatchString(candidate)
	}

	r.StructureMatch = e.sameStructure(candidateBare, truthBare)
	r.Similarity = Similarity(strings.TrimSpace(candidate), strings.TrimSpace(truth))
	r.Score = e.score(r)
	return r
}

func (e *Evaluator) score(r Result) int {
	w := e.weights
	total := 0.0
	if r.ExactMatch {
		total += w.Exact
	}
	if r.CommentIgnoredMatch {
		total += w.CommentIgnored
	}
	if r.TargetPatternPresent {
		total += w.Target
	}
	if !r.LegacyPatternRemaining {
		total += w.LegacyAbsent
	}
	if r.StructureMatch {
		total += w.Structure
	}
	total += w.Similarity * r.Similarity

	score := int(math.Round(total))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func (e *Evaluator) sameStructure(a, b string) (same bool) {
	defer func() {
		if p := recover(); p != nil {
			log.Warn().Interface("panic", p).Msg("Structure comparison panicked")
			same = false
		}
	}()

	sa, err := e.structure(a)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to parse candidate for structure comparison")
		return false
	}
	sb, err := e.structure(b)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to parse ground truth for structure comparison")
		return false
	}
	return sa == sb
}

// StripComments removes // and /* */ comments.
func StripComments(code string) string {
	code = lineCommentRe.ReplaceAllString(code, "")
	return blockCommentRe.ReplaceAllString(code, "")
}

func equalIgnoringSpace(a, b string) bool {
	return removeSpace(a) == removeSpace(b)
}

func removeSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// Similarity returns a normalised edit similarity in [0,1]; 1 means equal.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if utf8.RuneCountInString(a) > levenshteinLimit || utf8.RuneCountInString(b) > levenshteinLimit {
		m := difflib.NewMatcher(strings.Split(a, "\n"), strings.Split(b, "\n"))
		return m.Ratio()
	}
	return levenshtein.Similarity(a, b, nil)
}
