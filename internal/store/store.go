package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/agext/levenshtein"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	s.enc, err = zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	s.dec, err = zstd.NewReader(nil)
	if err != nil {
		s.enc.Close()
		db.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversion_runs (
		id TEXT PRIMARY KEY,
		task TEXT NOT NULL,
		mode TEXT NOT NULL,
		service TEXT,
		model TEXT,
		source_name TEXT,
		total INTEGER DEFAULT 0,
		succeeded INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		status TEXT DEFAULT 'running',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		finished_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS unit_results (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		unit_index INTEGER NOT NULL,
		kind TEXT,
		original TEXT NOT NULL,
		converted TEXT NOT NULL,
		ground_truth TEXT,
		is_correct BOOLEAN DEFAULT FALSE,
		skipped BOOLEAN DEFAULT FALSE,
		from_memory BOOLEAN DEFAULT FALSE,
		iterations INTEGER DEFAULT 0,
		score INTEGER DEFAULT 0,
		error TEXT,
		transcript BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES conversion_runs(id)
	);

	-- conversion_memory holds converged conversions keyed by task and normalised source
	CREATE TABLE IF NOT EXISTS conversion_memory (
		id TEXT PRIMARY KEY,
		task TEXT NOT NULL,
		source_text TEXT NOT NULL,
		converted_text TEXT NOT NULL,
		score INTEGER DEFAULT 0,
		usage_count INTEGER DEFAULT 1,
		invalidated BOOLEAN DEFAULT FALSE,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(task, source_text)
	);

	-- batch_checkpoints tracks progress of directory conversions for resume support
	CREATE TABLE IF NOT EXISTS batch_checkpoints (
		id TEXT PRIMARY KEY,
		task TEXT NOT NULL,
		input_dir TEXT NOT NULL,
		output_dir TEXT NOT NULL,
		status TEXT DEFAULT 'running',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS batch_checkpoint_files (
		checkpoint_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (checkpoint_id, file_path),
		FOREIGN KEY (checkpoint_id) REFERENCES batch_checkpoints(id)
	);

	-- reference_examples are before/after pairs offered to the model as in-context examples
	CREATE TABLE IF NOT EXISTS reference_examples (
		id TEXT PRIMARY KEY,
		task TEXT NOT NULL,
		input_code TEXT NOT NULL,
		output_code TEXT NOT NULL,
		description TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(task, input_code)
	);

	CREATE INDEX IF NOT EXISTS idx_unit_results_run ON unit_results(run_id);
	CREATE INDEX IF NOT EXISTS idx_memory_lookup ON conversion_memory(task, source_text);
	CREATE INDEX IF NOT EXISTS idx_checkpoint_files ON batch_checkpoint_files(checkpoint_id);
	CREATE INDEX IF NOT EXISTS idx_examples_task ON reference_examples(task);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}

func newID(prefix string) string {
	return prefix + "_" + uuid.New().String()
}

// normalizeText trims whitespace and applies Unicode NFC normalization
// for consistent key comparison.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

// similarity returns a similarity score in [0, 1] (1 = identical).
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	return levenshtein.Similarity(a, b, nil)
}

// lengthBound is the best similarity two texts of these rune lengths could
// reach; it lets callers skip the edit distance.
func lengthBound(la, lb int) float64 {
	maxL := la
	if lb > maxL {
		maxL = lb
	}
	if maxL == 0 {
		return 1.0
	}
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	return 1.0 - float64(diff)/float64(maxL)
}

func (s *Store) compress(text string) []byte {
	if text == "" {
		return nil
	}
	return s.enc.EncodeAll([]byte(text), nil)
}

func (s *Store) decompress(blob []byte) (string, error) {
	if len(blob) == 0 {
		return "", nil
	}
	out, err := s.dec.DecodeAll(blob, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decompress transcript: %w", err)
	}
	return string(out), nil
}

func now() time.Time {
	return time.Now().UTC()
}
