// Package runs records index builds in PostgreSQL.
package runs

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/postgres"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

const schema = `
CREATE TABLE IF NOT EXISTS index_runs (
    run_id         UUID PRIMARY KEY,
    index_dir      TEXT NOT NULL,
    sources        TEXT[] NOT NULL,
    discovered     INTEGER NOT NULL,
    indexed        BIGINT NOT NULL,
    skipped        INTEGER NOT NULL,
    read_failures  BIGINT NOT NULL,
    postings       BIGINT NOT NULL,
    write_failures BIGINT NOT NULL,
    keys           INTEGER NOT NULL,
    status         TEXT NOT NULL,
    error          TEXT NOT NULL DEFAULT '',
    started_at     TIMESTAMPTZ NOT NULL,
    duration_ms    BIGINT NOT NULL
)`

const startedIndex = `CREATE INDEX IF NOT EXISTS index_runs_started_at ON index_runs (started_at DESC)`

// Run is one row of index_runs.
type Run struct {
	RunID         string
	IndexDir      string
	Sources       []string
	Discovered    int
	Indexed       int64
	Skipped       int
	ReadFailures  int64
	Postings      int64
	WriteFailures int64
	Keys          int
	Status        string
	Error         string
	StartedAt     time.Time
	Duration      time.Duration
}

// FromResult converts a finished build into a Run.
func FromResult(result *indexer.BuildResult, buildErr error) Run {
	r := Run{
		RunID:         result.RunID,
		IndexDir:      result.IndexDir,
		Sources:       result.Sources,
		Discovered:    result.Discovered,
		Indexed:       result.Indexed,
		Skipped:       result.Skipped,
		ReadFailures:  result.ReadFailures,
		Postings:      result.Postings,
		WriteFailures: result.WriteFailures,
		Keys:          result.Keys,
		Status:        StatusSucceeded,
		StartedAt:     result.StartedAt.UTC(),
		Duration:      result.Duration,
	}
	if buildErr != nil {
		r.Status = StatusFailed
		r.Error = buildErr.Error()
	}
	return r
}

// Store persists runs. It is an indexer.BuildObserver.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "run-store"),
	}
}

// EnsureSchema creates index_runs if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("creating index_runs: %w", err)
		}
		if _, err := tx.ExecContext(ctx, startedIndex); err != nil {
			return fmt.Errorf("creating index_runs index: %w", err)
		}
		return nil
	})
}

func (s *Store) Save(ctx context.Context, r Run) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO index_runs (
			run_id, index_dir, sources, discovered, indexed, skipped, read_failures,
			postings, write_failures, keys, status, error, started_at, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		r.RunID, r.IndexDir, pq.Array(r.Sources), r.Discovered, r.Indexed, r.Skipped, r.ReadFailures,
		r.Postings, r.WriteFailures, r.Keys, r.Status, r.Error, r.StartedAt, r.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", r.RunID, err)
	}
	s.logger.Info("index run saved", "run_id", r.RunID, "status", r.Status)
	return nil
}

func (s *Store) BuildFinished(ctx context.Context, result *indexer.BuildResult, buildErr error) error {
	if result == nil {
		return nil
	}
	return s.Save(ctx, FromResult(result, buildErr))
}

// Recent returns the last limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT run_id, index_dir, sources, discovered, indexed, skipped, read_failures,
			postings, write_failures, keys, status, error, started_at, duration_ms
		FROM index_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var durationMs int64
		if err := rows.Scan(
			&r.RunID, &r.IndexDir, pq.Array(&r.Sources), &r.Discovered, &r.Indexed, &r.Skipped,
			&r.ReadFailures, &r.Postings, &r.WriteFailures, &r.Keys, &r.Status, &r.Error,
			&r.StartedAt, &durationMs,
		); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
