package history

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/vorewrite/internal/evaluator"
	"github.com/valpere/vorewrite/internal/llm"
	"github.com/valpere/vorewrite/internal/refine"
	"github.com/valpere/vorewrite/internal/segmenter"
	"github.com/valpere/vorewrite/internal/store"
)

func TestRecord(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer s.Close()

	units := []*refine.Result{
		{
			Index:      0,
			Kind:       segmenter.KindMethod,
			Original:   `map.get("NAME")`,
			Converted:  "vo.getName()",
			IsCorrect:  true,
			Iterations: 1,
			Evaluation: evaluator.Result{ExactMatch: true, Score: 100},
			Transcript: []llm.Message{
				{Role: llm.RoleUser, Content: "convert"},
				{Role: llm.RoleAssistant, Content: "vo.getName()"},
			},
		},
		{Index: 1, Kind: segmenter.KindTrailing, Original: "\n", Converted: "\n", Skipped: true, IsCorrect: true},
	}
	fr := &refine.FileResult{Mode: refine.ModePerUnit, Units: units, Summary: refine.Summarize(units)}

	ctx := context.Background()
	runID, err := Record(ctx, s, Meta{Task: "map-to-vo", Service: "ollama", Model: "qwen", SourceName: "A.java"}, fr)
	require.NoError(t, err)

	run, err := s.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, "per-unit", run.Mode)
	assert.Equal(t, 2, run.Total)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Skipped)

	recs, err := s.UnitResults(ctx, runID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "method", recs[0].Kind)
	assert.Equal(t, 100, recs[0].Score)

	var transcript []llm.Message
	require.NoError(t, json.Unmarshal([]byte(recs[0].Transcript), &transcript))
	assert.Len(t, transcript, 2)
	assert.Empty(t, recs[1].Transcript)
}
