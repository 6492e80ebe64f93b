package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/herdhq/herd/internal/work"
)

// sqliteStore is the embedded file-based backend.
type sqliteStore struct {
	db *sql.DB
}

func openSQLite(ctx context.Context, path string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode and a busy timeout keep concurrent readers from tripping
	// over the writer.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring database: %w", err)
		}
	}

	s := &sqliteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqliteStore) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		success INTEGER,
		tasks_total INTEGER NOT NULL,
		tasks_completed INTEGER NOT NULL,
		tasks_failed INTEGER NOT NULL,
		manifest TEXT NOT NULL
	)`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

func (s *sqliteStore) StartRun(ctx context.Context, runID uuid.UUID, manifest *work.Manifest) error {
	blob, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, tasks_total, tasks_completed, tasks_failed, manifest)
		VALUES (?, ?, ?, 0, 0, ?)`,
		runID.String(), time.Now().UTC().Format(time.RFC3339), manifest.TotalTasks, string(blob))
	if err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}
	return nil
}

func (s *sqliteStore) CompleteRun(ctx context.Context, runID uuid.UUID, summary RunSummary) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET completed_at = ?, success = ?, tasks_completed = ?, tasks_failed = ?
		WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), summary.Success,
		summary.TasksCompleted, summary.TasksFailed, runID.String())
	if err != nil {
		return fmt.Errorf("recording run completion: %w", err)
	}
	return nil
}

func (s *sqliteStore) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, completed_at, success, tasks_total, tasks_completed, tasks_failed
		FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *sqliteStore) GetRun(ctx context.Context, runID uuid.UUID) (*RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, completed_at, success, tasks_total, tasks_completed, tasks_failed
		FROM runs WHERE id = ?`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("getting run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanRun(rows)
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// scanRun decodes one runs row. Both backends store timestamps as RFC 3339
// strings so the decoding is shared.
func scanRun(rows *sql.Rows) (*RunRecord, error) {
	var (
		id          string
		startedAt   string
		completedAt sql.NullString
		success     sql.NullBool
		rec         RunRecord
	)

	if err := rows.Scan(&id, &startedAt, &completedAt, &success,
		&rec.TasksTotal, &rec.TasksCompleted, &rec.TasksFailed); err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parsing run id %q: %w", id, err)
	}
	rec.ID = parsed

	rec.StartedAt, err = time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing run timestamp %q: %w", startedAt, err)
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing run timestamp %q: %w", completedAt.String, err)
		}
		rec.CompletedAt = &t
	}
	if success.Valid {
		v := success.Bool
		rec.Success = &v
	}
	return &rec, nil
}
