package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// File states recorded in a batch checkpoint.
const (
	FileDone    = "done"
	FileFailed  = "failed"
	FileSkipped = "skipped"
)

// BatchCheckpoint represents a directory conversion job's checkpoint record.
type BatchCheckpoint struct {
	ID        string
	Task      string
	InputDir  string
	OutputDir string
	Status    string
	CreatedAt time.Time
}

// CreateBatchCheckpoint creates a new checkpoint record and returns its ID.
func (s *Store) CreateBatchCheckpoint(ctx context.Context, task, inputDir, outputDir string) (string, error) {
	id := newID("cp")
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batch_checkpoints (id, task, input_dir, output_dir) VALUES (?, ?, ?, ?)`,
		id, task, inputDir, outputDir)
	return id, err
}

// GetBatchCheckpoint retrieves a checkpoint by ID.
func (s *Store) GetBatchCheckpoint(ctx context.Context, checkpointID string) (*BatchCheckpoint, error) {
	var cp BatchCheckpoint
	err := s.db.QueryRowContext(ctx,
		`SELECT id, task, input_dir, output_dir, status, created_at FROM batch_checkpoints WHERE id = ?`,
		checkpointID).Scan(&cp.ID, &cp.Task, &cp.InputDir, &cp.OutputDir, &cp.Status, &cp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("checkpoint not found: %s", checkpointID)
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// SaveBatchFile records the outcome of one file of a checkpointed batch.
func (s *Store) SaveBatchFile(ctx context.Context, checkpointID, filePath, status, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO batch_checkpoint_files (checkpoint_id, file_path, status, error) VALUES (?, ?, ?, ?)`,
		checkpointID, filePath, status, errMsg)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE batch_checkpoints SET updated_at = ? WHERE id = ?`, now(), checkpointID)
	return err
}

// GetBatchFiles returns the recorded status of every file as path → status.
func (s *Store) GetBatchFiles(ctx context.Context, checkpointID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_path, status FROM batch_checkpoint_files WHERE checkpoint_id = ?`,
		checkpointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := make(map[string]string)
	for rows.Next() {
		var path, status string
		if err := rows.Scan(&path, &status); err != nil {
			return nil, err
		}
		files[path] = status
	}
	return files, rows.Err()
}

// CompleteBatchCheckpoint marks a checkpoint as completed.
func (s *Store) CompleteBatchCheckpoint(ctx context.Context, checkpointID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE batch_checkpoints SET status = 'completed', updated_at = ? WHERE id = ?`,
		now(), checkpointID)
	return err
}
