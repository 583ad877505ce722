package store

import (
	"context"
	"database/sql"
	"time"
)

// Lookup returns the remembered conversion of source for task. Invalidated
// entries are not returned.
func (s *Store) Lookup(ctx context.Context, task, source string) (string, bool, error) {
	var converted string
	var invalidated bool

	key := normalizeText(source)
	err := s.db.QueryRowContext(ctx,
		`SELECT converted_text, invalidated FROM conversion_memory WHERE task = ? AND source_text = ?`,
		task, key).Scan(&converted, &invalidated)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if invalidated {
		return "", false, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE conversion_memory SET usage_count = usage_count + 1, last_used = ? WHERE task = ? AND source_text = ?`,
		now(), task, key)

	return converted, true, err
}

// Remember stores a converged conversion, replacing any earlier entry for
// the same source.
func (s *Store) Remember(ctx context.Context, task, source, converted string, score int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO conversion_memory (id, task, source_text, converted_text, score, usage_count, invalidated, last_used, created_at) VALUES (?, ?, ?, ?, ?, 1, FALSE, ?, ?)`,
		newID("mem"), task, normalizeText(source), converted, score, now(), now())
	return err
}

// FuzzyLookup returns the remembered conversion whose source is at least
// threshold similar (0–1) to source. threshold ≤ 0 disables the lookup.
// Sources longer than 2 000 runes are not fuzzy-matched.
func (s *Store) FuzzyLookup(ctx context.Context, task, source string, threshold float64) (string, bool, error) {
	if threshold <= 0 {
		return "", false, nil
	}

	normalized := normalizeText(source)
	const maxFuzzyRunes = 2000
	ln := len([]rune(normalized))
	if ln > maxFuzzyRunes {
		return "", false, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source_text, converted_text FROM conversion_memory WHERE task = ? AND NOT invalidated`,
		task)
	if err != nil {
		return "", false, err
	}
	defer rows.Close()

	var best string
	bestScore := 0.0
	found := false

	for rows.Next() {
		var src, converted string
		if err := rows.Scan(&src, &converted); err != nil {
			return "", false, err
		}
		if lengthBound(ln, len([]rune(src))) < threshold {
			continue
		}
		score := similarity(normalized, src)
		if score >= threshold && score > bestScore {
			bestScore = score
			best = converted
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return "", false, err
	}
	return best, found, nil
}

// MemoryEntry is a row from the conversion_memory table.
type MemoryEntry struct {
	ID            string
	Task          string
	SourceText    string
	ConvertedText string
	Score         int
	UsageCount    int
	Invalidated   bool
	LastUsed      time.Time
}

// MemoryStats summarises conversion memory usage.
type MemoryStats struct {
	TotalEntries   int
	ActiveEntries  int
	InvalidEntries int
	TotalUsage     int
}

func (s *Store) InvalidateMemory(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE conversion_memory SET invalidated = TRUE WHERE id = ?`, id)
	return err
}

// DeleteMemory permanently removes a conversion memory entry by ID.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversion_memory WHERE id = ?`, id)
	return err
}

// ClearMemory removes all conversion memory entries.
func (s *Store) ClearMemory(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversion_memory`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListMemory returns conversion memory entries, most recently used first.
// An empty task lists every task.
func (s *Store) ListMemory(ctx context.Context, task string) ([]MemoryEntry, error) {
	query := `SELECT id, task, source_text, converted_text, score, usage_count, invalidated, last_used FROM conversion_memory`
	var args []interface{}
	if task != "" {
		query += ` WHERE task = ?`
		args = append(args, task)
	}
	query += ` ORDER BY last_used DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []MemoryEntry
	for rows.Next() {
		var e MemoryEntry
		if err := rows.Scan(&e.ID, &e.Task, &e.SourceText, &e.ConvertedText, &e.Score, &e.UsageCount, &e.Invalidated, &e.LastUsed); err != nil {
			return nil, err
		}
		results = append(results, e)
	}

	return results, rows.Err()
}

// MemoryStats returns summary statistics for the conversion memory.
func (s *Store) MemoryStats(ctx context.Context) (*MemoryStats, error) {
	stats := &MemoryStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN NOT invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(usage_count), 0)
		FROM conversion_memory`).Scan(
		&stats.TotalEntries,
		&stats.ActiveEntries,
		&stats.InvalidEntries,
		&stats.TotalUsage,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
