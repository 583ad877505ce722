package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Run is one recorded conversion of a file or request.
type Run struct {
	ID         string
	Task       string
	Mode       string
	Service    string
	Model      string
	SourceName string
	Total      int
	Succeeded  int
	Failed     int
	Skipped    int
	Status     string
	CreatedAt  time.Time
	FinishedAt sql.NullTime
}

// UnitRecord is the stored outcome of one converted unit. Transcript is
// kept zstd-compressed.
type UnitRecord struct {
	ID          string
	RunID       string
	Index       int
	Kind        string
	Original    string
	Converted   string
	GroundTruth string
	IsCorrect   bool
	Skipped     bool
	FromMemory  bool
	Iterations  int
	Score       int
	Error       string
	Transcript  string
}

// CreateRun records the start of a run and returns its ID.
func (s *Store) CreateRun(ctx context.Context, task, mode, service, model, sourceName string) (string, error) {
	id := newID("run")
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversion_runs (id, task, mode, service, model, source_name, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, task, mode, service, model, sourceName, now())
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// FinishRun stores the run's final counts.
func (s *Store) FinishRun(ctx context.Context, id string, total, succeeded, failed, skipped int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversion_runs SET total = ?, succeeded = ?, failed = ?, skipped = ?, status = 'completed', finished_at = ? WHERE id = ?`,
		total, succeeded, failed, skipped, now(), id)
	return err
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var r Run
	err := s.db.QueryRowContext(ctx,
		`SELECT id, task, mode, service, model, source_name, total, succeeded, failed, skipped, status, created_at, finished_at FROM conversion_runs WHERE id = ?`,
		id).Scan(&r.ID, &r.Task, &r.Mode, &r.Service, &r.Model, &r.SourceName, &r.Total, &r.Succeeded, &r.Failed, &r.Skipped, &r.Status, &r.CreatedAt, &r.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRuns returns the most recent runs first. limit ≤ 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, task, mode, service, model, source_name, total, succeeded, failed, skipped, status, created_at, finished_at FROM conversion_runs ORDER BY created_at DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Task, &r.Mode, &r.Service, &r.Model, &r.SourceName, &r.Total, &r.Succeeded, &r.Failed, &r.Skipped, &r.Status, &r.CreatedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SaveUnitResult records one unit of a run.
func (s *Store) SaveUnitResult(ctx context.Context, rec UnitRecord) error {
	if rec.ID == "" {
		rec.ID = newID("unit")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO unit_results (id, run_id, unit_index, kind, original, converted, ground_truth, is_correct, skipped, from_memory, iterations, score, error, transcript) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.Index, rec.Kind, rec.Original, rec.Converted, rec.GroundTruth,
		rec.IsCorrect, rec.Skipped, rec.FromMemory, rec.Iterations, rec.Score, rec.Error, s.compress(rec.Transcript))
	return err
}

// UnitResults returns the units of a run in index order.
func (s *Store) UnitResults(ctx context.Context, runID string) ([]UnitRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, unit_index, kind, original, converted, ground_truth, is_correct, skipped, from_memory, iterations, score, error, transcript FROM unit_results WHERE run_id = ? ORDER BY unit_index`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []UnitRecord
	for rows.Next() {
		var rec UnitRecord
		var blob []byte
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Index, &rec.Kind, &rec.Original, &rec.Converted, &rec.GroundTruth,
			&rec.IsCorrect, &rec.Skipped, &rec.FromMemory, &rec.Iterations, &rec.Score, &rec.Error, &blob); err != nil {
			return nil, err
		}
		transcript, err := s.decompress(blob)
		if err != nil {
			return nil, err
		}
		rec.Transcript = transcript
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
