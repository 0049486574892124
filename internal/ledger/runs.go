package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"rawbench/internal/services"
)

// Status is the lifecycle state of one job attempt.
type Status string

const (
	StatusRunning     Status = "running"
	StatusDone        Status = "done"
	StatusSkipped     Status = "skipped"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

// Run is one recorded job attempt.
type Run struct {
	ID         int64
	RunID      string
	Dataset    string
	Status     Status
	StartedAt  time.Time
	FinishedAt time.Time
	ErrorKind  string
	Error      string
}

// Duration returns the elapsed time of a finished run.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

const timeLayout = time.RFC3339Nano

// Begin records a running attempt and returns its row id.
func (s *Store) Begin(ctx context.Context, runID, dataset string) (int64, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(runID) == "" || strings.TrimSpace(dataset) == "" {
		return 0, errors.New("run id and dataset required")
	}
	var id int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			"INSERT INTO job_runs (run_id, dataset, status, started_at) VALUES (?, ?, ?, ?)",
			runID, dataset, string(StatusRunning), time.Now().UTC().Format(timeLayout),
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert job run: %w", err)
	}
	return id, nil
}

// Finish closes the attempt with its final status. A non-nil jobErr is stored
// together with its classification.
func (s *Store) Finish(ctx context.Context, id int64, status Status, jobErr error) error {
	ctx = ensureContext(ctx)
	var kind, msg sql.NullString
	if jobErr != nil {
		kind = sql.NullString{String: services.Kind(jobErr), Valid: true}
		msg = sql.NullString{String: jobErr.Error(), Valid: true}
	}
	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"UPDATE job_runs SET status = ?, finished_at = ?, error_kind = ?, error = ? WHERE id = ?",
			string(status), time.Now().UTC().Format(timeLayout), kind, msg, id,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("finish job run: %w", err)
	}
	return nil
}

// Recent returns up to limit attempts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.query(ctx,
		"SELECT id, run_id, dataset, status, started_at, finished_at, error_kind, error FROM job_runs ORDER BY id DESC LIMIT ?",
		limit,
	)
}

// LatestByDataset returns the newest attempt for each dataset.
func (s *Store) LatestByDataset(ctx context.Context) (map[string]Run, error) {
	runs, err := s.query(ctx, `SELECT id, run_id, dataset, status, started_at, finished_at, error_kind, error
		FROM job_runs WHERE id IN (SELECT MAX(id) FROM job_runs GROUP BY dataset)`)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Run, len(runs))
	for _, r := range runs {
		out[r.Dataset] = r
	}
	return out, nil
}

// MarkInterrupted closes attempts left running by a process that died. It
// returns the number of rows updated.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	var n int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			"UPDATE job_runs SET status = ?, finished_at = ? WHERE status = ?",
			string(StatusInterrupted), time.Now().UTC().Format(timeLayout), string(StatusRunning),
		)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("mark interrupted runs: %w", err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Run, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query job runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                  Run
			status, started    string
			finished, kind, ms sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.Dataset, &status, &started, &finished, &kind, &ms); err != nil {
			return nil, fmt.Errorf("scan job run: %w", err)
		}
		r.Status = Status(status)
		r.StartedAt, _ = time.Parse(timeLayout, started)
		if finished.Valid {
			r.FinishedAt, _ = time.Parse(timeLayout, finished.String)
		}
		r.ErrorKind = kind.String
		r.Error = ms.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
