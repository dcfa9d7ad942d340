package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nocturnal/bookreel/internal/models"
)

// Store persists run history backed by SQLite, one database per book.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id           TEXT PRIMARY KEY,
    book_title   TEXT NOT NULL,
    status       TEXT NOT NULL,
    started_at   TEXT NOT NULL,
    finished_at  TEXT,
    succeeded    INTEGER NOT NULL DEFAULT 0,
    total        INTEGER NOT NULL DEFAULT 0,
    overlay_path TEXT,
    music_path   TEXT,
    final_path   TEXT
);

CREATE TABLE IF NOT EXISTS run_parts (
    run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    part      INTEGER NOT NULL,
    status    TEXT NOT NULL,
    detail    TEXT,
    PRIMARY KEY (run_id, part)
);
`

// Open initializes or connects to the run database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Begin records the start of a run.
func (s *Store) Begin(ctx context.Context, runID uuid.UUID, bookTitle string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, book_title, status, started_at) VALUES (?, ?, ?, ?)`,
		runID.String(), bookTitle, string(models.RunStatusRunning),
		startedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Finish records the outcome of a run together with its per-part results.
func (s *Store) Finish(ctx context.Context, report *models.Report, status models.RunStatus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, succeeded = ?, total = ?, overlay_path = ?, music_path = ?, final_path = ? WHERE id = ?`,
		string(status),
		report.FinishedAt.UTC().Format(time.RFC3339Nano),
		report.Succeeded, report.Total,
		report.OverlayPath, report.MusicPath,
		report.FinalPath,
		report.RunID.String(),
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	for _, part := range report.Parts {
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO run_parts (run_id, part, status, detail) VALUES (?, ?, ?, ?)`,
			report.RunID.String(), part.Index, string(part.Status), part.Detail,
		)
		if err != nil {
			return fmt.Errorf("insert part %d: %w", part.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// RunSummary is one row of run history. The overlay and music paths are
// the selection that run composited, so the same inputs can be replayed.
type RunSummary struct {
	ID          string     `json:"id"`
	BookTitle   string     `json:"book_title"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Succeeded   int        `json:"succeeded"`
	Total       int        `json:"total"`
	OverlayPath string     `json:"overlay_path,omitempty"`
	MusicPath   string     `json:"music_path,omitempty"`
	FinalPath   string     `json:"final_path,omitempty"`
}

// ListRuns returns run history, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, book_title, status, started_at, finished_at, succeeded, total,
		        COALESCE(overlay_path, ''), COALESCE(music_path, ''), COALESCE(final_path, '')
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var started string
		var finished sql.NullString
		if err := rows.Scan(&r.ID, &r.BookTitle, &r.Status, &started, &finished, &r.Succeeded, &r.Total, &r.OverlayPath, &r.MusicPath, &r.FinalPath); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, started); err == nil {
			r.StartedAt = t
		}
		if finished.Valid {
			if t, err := time.Parse(time.RFC3339Nano, finished.String); err == nil {
				r.FinishedAt = &t
			}
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// GetRun returns one run with its per-part results.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunSummary, []models.PartResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, book_title, status, started_at, finished_at, succeeded, total,
		        COALESCE(overlay_path, ''), COALESCE(music_path, ''), COALESCE(final_path, '')
		 FROM runs WHERE id = ?`, runID)

	var r RunSummary
	var started string
	var finished sql.NullString
	if err := row.Scan(&r.ID, &r.BookTitle, &r.Status, &started, &finished, &r.Succeeded, &r.Total, &r.OverlayPath, &r.MusicPath, &r.FinalPath); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, fmt.Errorf("run %s not found", runID)
		}
		return nil, nil, fmt.Errorf("query run: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, started); err == nil {
		r.StartedAt = t
	}
	if finished.Valid {
		if t, err := time.Parse(time.RFC3339Nano, finished.String); err == nil {
			r.FinishedAt = &t
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT part, status, detail FROM run_parts WHERE run_id = ? ORDER BY part`, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("query run parts: %w", err)
	}
	defer rows.Close()

	var parts []models.PartResult
	for rows.Next() {
		var p models.PartResult
		var status string
		if err := rows.Scan(&p.Index, &status, &p.Detail); err != nil {
			return nil, nil, fmt.Errorf("scan part: %w", err)
		}
		p.Status = models.PartStatus(status)
		parts = append(parts, p)
	}

	return &r, parts, rows.Err()
}
