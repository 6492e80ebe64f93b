package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/herdhq/herd/internal/work"
)

// mysqlStore is the client/server backend. Record semantics are identical to
// the SQLite store; timestamps are stored as RFC 3339 strings in both.
type mysqlStore struct {
	db *sql.DB
}

func openMySQL(ctx context.Context, dsn string) (*mysqlStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to mysql: %w", err)
	}

	s := &mysqlStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *mysqlStore) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		id VARCHAR(36) PRIMARY KEY,
		started_at VARCHAR(40) NOT NULL,
		completed_at VARCHAR(40),
		success TINYINT(1),
		tasks_total INT NOT NULL,
		tasks_completed INT NOT NULL,
		tasks_failed INT NOT NULL,
		manifest MEDIUMTEXT NOT NULL,
		INDEX idx_runs_started (started_at)
	)`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

func (s *mysqlStore) StartRun(ctx context.Context, runID uuid.UUID, manifest *work.Manifest) error {
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

func (s *mysqlStore) CompleteRun(ctx context.Context, runID uuid.UUID, summary RunSummary) error {
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

func (s *mysqlStore) ListRuns(ctx context.Context) ([]RunRecord, error) {
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

func (s *mysqlStore) GetRun(ctx context.Context, runID uuid.UUID) (*RunRecord, error) {
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

func (s *mysqlStore) Close() error {
	return s.db.Close()
}
