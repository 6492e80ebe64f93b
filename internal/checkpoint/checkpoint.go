// Package checkpoint records the audit trail of runs. Two interchangeable
// backends expose identical record semantics: an embedded SQLite file and a
// client/server MySQL database, selected by the database URL scheme.
package checkpoint

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/herdhq/herd/internal/work"
)

// Store is the audit-trail port consumed by the orchestrator.
type Store interface {
	// StartRun records a run and its manifest snapshot before any worker
	// is spawned.
	StartRun(ctx context.Context, runID uuid.UUID, manifest *work.Manifest) error
	// CompleteRun seals the run with its final counters.
	CompleteRun(ctx context.Context, runID uuid.UUID, summary RunSummary) error
	// ListRuns returns records, most recent first.
	ListRuns(ctx context.Context) ([]RunRecord, error)
	// GetRun returns the record for runID, or nil when absent.
	GetRun(ctx context.Context, runID uuid.UUID) (*RunRecord, error)
	Close() error
}

// RunSummary holds the final counters written at completion.
type RunSummary struct {
	Success        bool
	TasksCompleted int
	TasksFailed    int
}

// RunRecord is the persisted form of a run. CompletedAt and Success are nil
// while the run is open.
type RunRecord struct {
	ID             uuid.UUID
	StartedAt      time.Time
	CompletedAt    *time.Time
	Success        *bool
	TasksTotal     int
	TasksCompleted int
	TasksFailed    int
}

// Open connects to the store named by databaseURL and initializes its
// schema. Supported schemes: sqlite://<path> and mysql://<dsn>.
func Open(ctx context.Context, databaseURL string) (Store, error) {
	switch {
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return openSQLite(ctx, strings.TrimPrefix(databaseURL, "sqlite://"))
	case strings.HasPrefix(databaseURL, "mysql://"):
		return openMySQL(ctx, strings.TrimPrefix(databaseURL, "mysql://"))
	default:
		return nil, fmt.Errorf("unsupported database URL: %s", databaseURL)
	}
}
