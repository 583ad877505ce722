package store

import (
	"context"
	"sort"
	"time"
)

// Example is a before/after conversion pair for a task.
type Example struct {
	ID          string
	Task        string
	Input       string
	Output      string
	Description string
	CreatedAt   time.Time
}

// AddExample inserts or replaces a reference example and returns its ID.
func (s *Store) AddExample(ctx context.Context, task, input, output, description string) (string, error) {
	id := newID("ex")
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO reference_examples (id, task, input_code, output_code, description)
		 VALUES (?, ?, ?, ?, ?)`,
		id, task, normalizeText(input), output, description)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListExamples returns the examples of task, or of every task when task is
// empty.
func (s *Store) ListExamples(ctx context.Context, task string) ([]Example, error) {
	query := `SELECT id, task, input_code, output_code, COALESCE(description, ''), created_at FROM reference_examples`
	var args []interface{}
	if task != "" {
		query += ` WHERE task = ?`
		args = append(args, task)
	}
	query += ` ORDER BY task, created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var examples []Example
	for rows.Next() {
		var e Example
		if err := rows.Scan(&e.ID, &e.Task, &e.Input, &e.Output, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		examples = append(examples, e)
	}
	return examples, rows.Err()
}

// DeleteExample removes a reference example by ID.
func (s *Store) DeleteExample(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reference_examples WHERE id = ?`, id)
	return err
}

// SimilarExamples returns up to k examples of task whose input is most
// similar to query, best first. Examples below minScore are dropped.
func (s *Store) SimilarExamples(ctx context.Context, task, query string, k int, minScore float64) ([]Example, error) {
	if k <= 0 {
		return nil, nil
	}
	all, err := s.ListExamples(ctx, task)
	if err != nil {
		return nil, err
	}

	q := normalizeText(query)
	type scored struct {
		ex    Example
		score float64
	}
	var ranked []scored
	for _, e := range all {
		sc := similarity(q, e.Input)
		if sc < minScore {
			continue
		}
		ranked = append(ranked, scored{ex: e, score: sc})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]Example, len(ranked))
	for i, r := range ranked {
		out[i] = r.ex
	}
	return out, nil
}
