package refine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/valpere/vorewrite/internal/llm"
	"github.com/valpere/vorewrite/internal/prompt"
	"github.com/valpere/vorewrite/internal/segmenter"
)

// ConvertFile converts a whole source file at the configured granularity and
// reassembles the results in source order. truth may be empty.
//
// In per-unit and per-line mode a unit whose conversion fails keeps its
// original text and carries the error; the remaining units still run. A
// cancelled context or an unreachable service aborts the file. Per-unit mode returns the
// *segmenter.ParseError of a source that cannot be segmented.
func (c *Controller) ConvertFile(ctx context.Context, source, truth string) (*FileResult, error) {
	var (
		results []*Result
		err     error
	)
	switch c.cfg.Mode {
	case ModeWholeFile:
		var r *Result
		r, err = c.Convert(ctx, source, truth, "")
		if err == nil {
			results = []*Result{r}
		}
	case ModePerUnit:
		results, err = c.convertUnits(ctx, source, truth)
	case ModePerLine:
		results, err = c.convertPieces(ctx, splitLines(source), splitLines(truth), nil)
	default:
		err = fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.cfg.Mode)
	}
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, r := range results {
		sb.WriteString(r.Converted)
	}
	fileTruth := truth
	if fileTruth == "" {
		fileTruth = source
	}

	return &FileResult{
		Mode:       c.cfg.Mode,
		Units:      results,
		Converted:  sb.String(),
		Evaluation: c.evaluator.Evaluate(sb.String(), fileTruth),
		Summary:    Summarize(results),
	}, nil
}

func (c *Controller) convertUnits(ctx context.Context, source, truth string) ([]*Result, error) {
	units, err := segmenter.Split(ctx, source)
	if err != nil {
		return nil, err
	}

	pieces := make([]string, len(units))
	kinds := make([]segmenter.Kind, len(units))
	for i, u := range units {
		pieces[i] = u.Content
		kinds[i] = u.Kind
	}

	var truths []string
	if truth != "" {
		truthUnits, err := segmenter.Split(ctx, truth)
		if err != nil {
			var perr *segmenter.ParseError
			if !errors.As(err, &perr) {
				return nil, err
			}
			c.logger.Warn().Err(err).Msg("Ground truth could not be segmented, comparing units against their source")
		}
		for _, u := range truthUnits {
			truths = append(truths, u.Content)
		}
	}
	return c.convertPieces(ctx, pieces, truths, kinds)
}

// convertPieces runs Convert on every piece in order. Missing ground truth
// pieces are padded with "", which compares a piece against its own source.
func (c *Controller) convertPieces(ctx context.Context, pieces, truths []string, kinds []segmenter.Kind) ([]*Result, error) {
	if len(truths) > 0 && len(truths) != len(pieces) {
		c.logger.Warn().
			Int("source_units", len(pieces)).
			Int("truth_units", len(truths)).
			Msg("Ground truth unit count differs from source")
	}

	results := make([]*Result, 0, len(pieces))
	previous := ""
	for i, piece := range pieces {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		truth := ""
		if i < len(truths) {
			truth = truths[i]
		}
		extra := ""
		if c.cfg.CarryContextLines > 0 && previous != "" {
			extra = prompt.Tagged("previous_unit", prompt.TailLines(previous, c.cfg.CarryContextLines))
		}

		r, err := c.Convert(ctx, piece, truth, extra)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if llm.IsUnavailable(err) {
				return nil, fmt.Errorf("unit %d: %w", i, err)
			}
			c.logger.Warn().Err(err).Int("unit", i).Msg("Unit conversion failed, keeping original")
			r = &Result{
				Original:    piece,
				Converted:   piece,
				GroundTruth: truth,
				Error:       err.Error(),
			}
			if r.GroundTruth == "" {
				r.GroundTruth = piece
			}
			r.Evaluation = c.evaluator.Evaluate(piece, r.GroundTruth)
		}
		r.Index = i
		if kinds != nil {
			r.Kind = kinds[i]
		}
		results = append(results, r)

		if strings.TrimSpace(r.Converted) != "" {
			previous = r.Converted
		}
	}
	return results, nil
}

// splitLines keeps each line's terminator so the pieces concatenate back to
// text.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
