package refine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/valpere/vorewrite/internal/task"
)

// ErrInvalidConfig is wrapped by every Config validation failure.
var ErrInvalidConfig = errors.New("invalid conversion config")

// Mode is the granularity at which the refinement loop runs.
type Mode string

const (
	ModeWholeFile Mode = "whole-file"
	ModePerUnit   Mode = "per-unit"
	ModePerLine   Mode = "per-line"
)

var Modes = []Mode{ModeWholeFile, ModePerUnit, ModePerLine}

// ParseMode accepts the mode names plus the aliases "file"/"page",
// "unit"/"module" and "line".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "whole-file", "file", "page":
		return ModeWholeFile, nil
	case "per-unit", "unit", "module":
		return ModePerUnit, nil
	case "per-line", "line":
		return ModePerLine, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q (expected one of: whole-file, per-unit, per-line)", ErrInvalidConfig, s)
}

// Config holds the parameters of one conversion run. It is not modified
// after the Controller is built.
type Config struct {
	Mode          Mode
	MaxIterations int
	// UseFeedback runs a critique before each correction.
	UseFeedback bool
	// UseDiffContext includes a diff of the original against the previous
	// candidate in critique and correction prompts.
	UseDiffContext bool
	// LineBudgetOffset caps candidates at the input's line count plus the
	// offset. Nil means no cap.
	LineBudgetOffset *int
	// SkipPredicate returns true for code that should be passed through
	// without conversion.
	SkipPredicate func(code string) bool
	Temperature   float64
	// PrefixOutput ends prompts with an opened java fence.
	PrefixOutput bool
	// Normalize strips frame comments and indent before prompting and
	// restores them afterwards.
	Normalize bool
	// ApplyAsPatch replays each candidate onto the original as a
	// single-hunk diff.
	ApplyAsPatch bool
	// EnhancePatch lets the model improve that diff first.
	EnhancePatch bool
	// CarryContextLines passes the tail of the previous converted unit to
	// the next one.
	CarryContextLines int
	KeepTranscript    bool
}

// DefaultConfig is a per-unit reflexion run with three iterations.
func DefaultConfig() Config {
	return Config{
		Mode:          ModePerUnit,
		MaxIterations: 3,
		UseFeedback:   true,
		PrefixOutput:  true,
		Normalize:     true,
	}
}

func (c Config) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("%w: max iterations must be at least 1, got %d", ErrInvalidConfig, c.MaxIterations)
	}
	switch c.Mode {
	case ModeWholeFile, ModePerUnit, ModePerLine:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	if c.CarryContextLines < 0 {
		return fmt.Errorf("%w: carry context lines must not be negative", ErrInvalidConfig)
	}
	if c.EnhancePatch && !c.ApplyAsPatch {
		return fmt.Errorf("%w: patch enhancement requires apply-as-patch", ErrInvalidConfig)
	}
	return nil
}

// SkipUnlessConvertible returns a skip predicate that passes through code
// holding nothing the task rewrites.
func SkipUnlessConvertible(rules task.Rules) func(string) bool {
	return func(code string) bool {
		return !rules.NeedsConversion(code)
	}
}

// Offset returns a pointer to n, for Config.LineBudgetOffset.
func Offset(n int) *int {
	return &n
}
