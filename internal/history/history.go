// Package history records conversion results as runs in the store.
package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/valpere/vorewrite/internal/refine"
	"github.com/valpere/vorewrite/internal/store"
)

// Recorder is the part of the store a run is written to.
type Recorder interface {
	CreateRun(ctx context.Context, task, mode, service, model, sourceName string) (string, error)
	SaveUnitResult(ctx context.Context, rec store.UnitRecord) error
	FinishRun(ctx context.Context, id string, total, succeeded, failed, skipped int) error
}

// Meta describes how a file was converted.
type Meta struct {
	Task       string
	Service    string
	Model      string
	SourceName string
}

// Record stores fr as one run and returns the run ID. A unit that fails to
// save is logged and skipped; the run still finishes.
func Record(ctx context.Context, rec Recorder, meta Meta, fr *refine.FileResult) (string, error) {
	runID, err := rec.CreateRun(ctx, meta.Task, string(fr.Mode), meta.Service, meta.Model, meta.SourceName)
	if err != nil {
		return "", err
	}

	for _, u := range fr.Units {
		if err := rec.SaveUnitResult(ctx, unitRecord(runID, u)); err != nil {
			log.Warn().Err(err).Str("run", runID).Int("unit", u.Index).Msg("Failed to save unit result")
		}
	}

	s := fr.Summary
	if err := rec.FinishRun(ctx, runID, s.Total, s.Succeeded, s.Failed, s.Skipped); err != nil {
		return runID, fmt.Errorf("failed to finish run: %w", err)
	}
	return runID, nil
}

func unitRecord(runID string, u *refine.Result) store.UnitRecord {
	rec := store.UnitRecord{
		RunID:       runID,
		Index:       u.Index,
		Kind:        string(u.Kind),
		Original:    u.Original,
		Converted:   u.Converted,
		GroundTruth: u.GroundTruth,
		IsCorrect:   u.IsCorrect,
		Skipped:     u.Skipped,
		FromMemory:  u.FromMemory,
		Iterations:  u.Iterations,
		Score:       u.Evaluation.Score,
		Error:       u.Error,
	}
	if len(u.Transcript) > 0 {
		if data, err := json.Marshal(u.Transcript); err == nil {
			rec.Transcript = string(data)
		}
	}
	return rec
}
