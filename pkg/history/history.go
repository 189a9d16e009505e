// Package history keeps a SQLite ledger of comparison runs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"heatdiff/pkg/visualtest"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	recorded_at       INTEGER NOT NULL,
	baseline          TEXT NOT NULL,
	candidate         TEXT NOT NULL,
	equal             INTEGER NOT NULL,
	differing_pixels  INTEGER NOT NULL,
	total_pixels      INTEGER NOT NULL,
	deviation_percent REAL NOT NULL,
	spot_count        INTEGER NOT NULL,
	heatmap_path      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_recorded_at ON runs(recorded_at);
`

// Entry is one recorded comparison.
type Entry struct {
	ID               int64
	RecordedAt       time.Time
	Baseline         string
	Candidate        string
	Equal            bool
	DifferingPixels  int
	TotalPixels      int
	DeviationPercent float64
	SpotCount        int
	HeatmapPath      string
}

// FromResult builds an entry for a finished comparison.
func FromResult(baseline, candidate string, res *visualtest.Result) Entry {
	return Entry{
		RecordedAt:       time.Now(),
		Baseline:         baseline,
		Candidate:        candidate,
		Equal:            res.Equal,
		DifferingPixels:  res.DifferingPixels,
		TotalPixels:      res.TotalPixels,
		DeviationPercent: res.DeviationPercent,
		SpotCount:        res.SpotCount,
		HeatmapPath:      res.HeatmapPath,
	}
}

// Store is an open ledger.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the ledger at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends e and returns its id.
func (s *Store) Record(ctx context.Context, e Entry) (int64, error) {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (recorded_at, baseline, candidate, equal, differing_pixels,
			total_pixels, deviation_percent, spot_count, heatmap_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RecordedAt.UnixNano(), e.Baseline, e.Candidate, e.Equal, e.DifferingPixels,
		e.TotalPixels, e.DeviationPercent, e.SpotCount, e.HeatmapPath)
	if err != nil {
		return 0, fmt.Errorf("failed to record run: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit entries, newest first. A limit below 1 returns all entries.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 1 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recorded_at, baseline, candidate, equal, differing_pixels,
			total_pixels, deviation_percent, spot_count, heatmap_path
		FROM runs ORDER BY recorded_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.ID, &ts, &e.Baseline, &e.Candidate, &e.Equal, &e.DifferingPixels,
			&e.TotalPixels, &e.DeviationPercent, &e.SpotCount, &e.HeatmapPath); err != nil {
			return nil, err
		}
		e.RecordedAt = time.Unix(0, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// FailureRate returns the share of runs for baseline that were not equal, and the run count.
func (s *Store) FailureRate(ctx context.Context, baseline string) (float64, int, error) {
	var total, failed int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN equal = 0 THEN 1 ELSE 0 END), 0)
		FROM runs WHERE baseline = ?`, baseline).Scan(&total, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query history: %w", err)
	}
	if total == 0 {
		return 0, 0, nil
	}
	return float64(failed) / float64(total), total, nil
}
