package load

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/teranos/paysync/db"
	"github.com/teranos/paysync/errors"
)

// Run statuses
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// Run is one row of extract_runs. ClientOffset and Page record the last
// position reached so an operator can resume with --begin-at and --page.
type Run struct {
	ID                string         `db:"id"`
	Mode              string         `db:"mode"`
	Status            string         `db:"status"`
	StartedAt         time.Time      `db:"started_at"`
	FinishedAt        sql.NullTime   `db:"finished_at"`
	BeginClientOffset int            `db:"begin_client_offset"`
	BeginPage         int            `db:"begin_page"`
	ClientOffset      int            `db:"client_offset"`
	Page              int            `db:"page"`
	Loaded            int            `db:"loaded"`
	Skipped           int            `db:"skipped"`
	Failed            int            `db:"failed"`
	Error             sql.NullString `db:"error"`
}

// RunStore persists the run log
type RunStore struct {
	store Store
}

// NewRunStore creates a run log writer
func NewRunStore(store Store) *RunStore {
	return &RunStore{store: store}
}

// handle returns the live handle, reconnecting once if the session lost it.
// A failed loader retry can leave the session without a handle.
func (r *RunStore) handle(ctx context.Context) (*sqlx.DB, error) {
	if h := r.store.DB(); h != nil {
		return h, nil
	}
	if err := r.store.Reconnect(ctx); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "run log"), db.ErrSessionClosed)
	}
	if h := r.store.DB(); h != nil {
		return h, nil
	}
	return nil, db.ErrSessionClosed
}

// Start records a new running run
func (r *RunStore) Start(ctx context.Context, mode string, clientOffset, page int, now time.Time) (*Run, error) {
	run := &Run{
		ID:                uuid.NewString(),
		Mode:              mode,
		Status:            RunRunning,
		StartedAt:         now.UTC(),
		BeginClientOffset: clientOffset,
		BeginPage:         page,
		ClientOffset:      clientOffset,
		Page:              page,
	}

	h, err := r.handle(ctx)
	if err != nil {
		return nil, err
	}
	_, err = h.NamedExecContext(ctx, `INSERT INTO extract_runs
		(id, mode, status, started_at, begin_client_offset, begin_page, client_offset, page, loaded, skipped, failed)
		VALUES (:id, :mode, :status, :started_at, :begin_client_offset, :begin_page, :client_offset, :page, :loaded, :skipped, :failed)`, run)
	if err != nil {
		return nil, errors.Wrap(err, "record run start")
	}
	return run, nil
}

// Progress stores the run's position and counters
func (r *RunStore) Progress(ctx context.Context, run *Run) error {
	h, err := r.handle(ctx)
	if err != nil {
		return err
	}
	_, err = h.NamedExecContext(ctx, `UPDATE extract_runs SET
		client_offset = :client_offset, page = :page,
		loaded = :loaded, skipped = :skipped, failed = :failed
		WHERE id = :id`, run)
	if err != nil {
		return errors.Wrapf(err, "record progress of run %s", run.ID)
	}
	return nil
}

// Finish closes the run with status and an optional error
func (r *RunStore) Finish(ctx context.Context, run *Run, status string, runErr error, now time.Time) error {
	run.Status = status
	run.FinishedAt = sql.NullTime{Time: now.UTC(), Valid: true}
	if runErr != nil {
		run.Error = sql.NullString{String: runErr.Error(), Valid: true}
	}

	h, err := r.handle(ctx)
	if err != nil {
		return err
	}
	_, err = h.NamedExecContext(ctx, `UPDATE extract_runs SET
		status = :status, finished_at = :finished_at, error = :error,
		client_offset = :client_offset, page = :page,
		loaded = :loaded, skipped = :skipped, failed = :failed
		WHERE id = :id`, run)
	if err != nil {
		return errors.Wrapf(err, "record end of run %s", run.ID)
	}
	return nil
}

// Recent returns the latest runs, newest first
func (r *RunStore) Recent(ctx context.Context, limit int) ([]Run, error) {
	h, err := r.handle(ctx)
	if err != nil {
		return nil, err
	}
	var runs []Run
	err = h.SelectContext(ctx, &runs,
		r.store.Rebind("SELECT * FROM extract_runs ORDER BY started_at DESC LIMIT ?"), limit)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	return runs, nil
}
