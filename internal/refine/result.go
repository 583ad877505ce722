package refine

import (
	"github.com/valpere/vorewrite/internal/evaluator"
	"github.com/valpere/vorewrite/internal/llm"
	"github.com/valpere/vorewrite/internal/segmenter"
)

// Attempt is the artifact of one iteration.
type Attempt struct {
	Iteration       int              `json:"iteration"`
	Candidate       string           `json:"candidate"`
	Feedback        string           `json:"feedback,omitempty"`
	Diff            string           `json:"diff,omitempty"`
	Truncated       bool             `json:"truncated,omitempty"`
	TruncatedAtLine int              `json:"truncated_at_line,omitempty"`
	Evaluation      evaluator.Result `json:"evaluation"`
}

// Result is the outcome of converting one unit, line or file.
type Result struct {
	Index       int              `json:"index"`
	Kind        segmenter.Kind   `json:"kind,omitempty"`
	Original    string           `json:"original"`
	Converted   string           `json:"converted"`
	GroundTruth string           `json:"ground_truth,omitempty"`
	IsCorrect   bool             `json:"is_correct"`
	Iterations  int              `json:"iterations"`
	Skipped     bool             `json:"skipped,omitempty"`
	FromMemory  bool             `json:"from_memory,omitempty"`
	Evaluation  evaluator.Result `json:"evaluation"`
	Final       *Attempt         `json:"final,omitempty"`
	// Patch is a unified diff of Original against Converted.
	Patch      string        `json:"patch,omitempty"`
	Transcript []llm.Message `json:"transcript,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Summary counts the outcomes of a file's units.
type Summary struct {
	Total        int     `json:"total"`
	Succeeded    int     `json:"succeeded"`
	Failed       int     `json:"failed"`
	Skipped      int     `json:"skipped"`
	Errors       int     `json:"errors"`
	AverageScore float64 `json:"average_score"`
}

// FileResult is the outcome of ConvertFile. Converted is the concatenation of
// every unit's conversion in source order.
type FileResult struct {
	Mode       Mode             `json:"mode"`
	Units      []*Result        `json:"units"`
	Converted  string           `json:"converted"`
	Evaluation evaluator.Result `json:"evaluation"`
	Summary    Summary          `json:"summary"`
}

// Summarize counts results. Skipped units are neither succeeded nor failed;
// units that errored count as failed. AverageScore covers the units that
// were evaluated without error.
func Summarize(results []*Result) Summary {
	var s Summary
	scored := 0
	total := 0
	for _, r := range results {
		s.Total++
		switch {
		case r.Skipped:
			s.Skipped++
			continue
		case r.Error != "":
			s.Errors++
			s.Failed++
			continue
		case r.IsCorrect:
			s.Succeeded++
		default:
			s.Failed++
		}
		scored++
		total += r.Evaluation.Score
	}
	if scored > 0 {
		s.AverageScore = float64(total) / float64(scored)
	}
	return s
}
