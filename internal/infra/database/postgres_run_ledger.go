// internal/infra/database/postgres_run_ledger.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"forecast_bot/internal/domain/run"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	maxErrorSummaryLen = 1000
	interruptedSummary = "interrupted before completion"
)

// PostgresRunLedger implements run.Ledger on the 'schedule_runs' table.
// Every statement touches a single (schedule_id, run_date) row.
type PostgresRunLedger struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ run.Ledger = (*PostgresRunLedger)(nil)

func NewPostgresRunLedger(db *sqlx.DB) *PostgresRunLedger {
	return &PostgresRunLedger{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func dateKey(date time.Time) string {
	return date.UTC().Format(time.DateOnly)
}

func (l *PostgresRunLedger) IsAlreadySatisfied(ctx context.Context, scheduleID int64, date time.Time) (bool, error) {
	query := `SELECT EXISTS (
	               SELECT 1 FROM schedule_runs
	               WHERE schedule_id = $1 AND run_date = $2 AND status = $3)`
	var satisfied bool
	if err := l.db.GetContext(ctx, &satisfied, query, scheduleID, dateKey(date), run.StatusSuccess); err != nil {
		return false, fmt.Errorf("error checking run satisfaction: %w", err)
	}
	return satisfied, nil
}

func (l *PostgresRunLedger) BeginAttempt(ctx context.Context, scheduleID int64, date time.Time) (*run.Attempt, error) {
	return l.open(ctx, scheduleID, date, []string{string(run.StatusFailed)})
}

func (l *PostgresRunLedger) ForceAttempt(ctx context.Context, scheduleID int64, date time.Time) (*run.Attempt, error) {
	return l.open(ctx, scheduleID, date, []string{string(run.StatusFailed), string(run.StatusSuccess)})
}

// open inserts a pending record, or takes over an existing one whose status
// is in reusable. The conditional upsert is the exclusivity guarantee.
func (l *PostgresRunLedger) open(ctx context.Context, scheduleID int64, date time.Time, reusable []string) (*run.Attempt, error) {
	attempt := &run.Attempt{
		ID:         uuid.New(),
		ScheduleID: scheduleID,
		RunDate:    date.UTC(),
		StartedAt:  l.now(),
	}

	query := `INSERT INTO schedule_runs (schedule_id, run_date, attempt_id, status, started_at)
	               VALUES ($1, $2, $3, $4, $5)
	               ON CONFLICT (schedule_id, run_date) DO UPDATE
	               SET attempt_id      = EXCLUDED.attempt_id,
	                   status          = EXCLUDED.status,
	                   started_at      = EXCLUDED.started_at,
	                   completed_at    = NULL,
	                   error_summary   = NULL,
	                   recipient_count = 0,
	                   failure_count   = 0
	               WHERE schedule_runs.status = ANY($6::varchar[])
	               RETURNING attempt_id`

	var returned uuid.UUID
	err := l.db.QueryRowContext(ctx, query,
		scheduleID, dateKey(date), attempt.ID, run.StatusPending, attempt.StartedAt, pq.Array(reusable),
	).Scan(&returned)
	if err == nil {
		return attempt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("error opening run attempt: %w", err)
	}

	// The row exists and was not reusable; report why.
	existing, getErr := l.Get(ctx, scheduleID, date)
	if getErr != nil {
		return nil, fmt.Errorf("error reading conflicting run record: %w", getErr)
	}
	switch existing.Status {
	case run.StatusPending:
		return nil, run.ErrAlreadyRunning
	case run.StatusSuccess:
		return nil, run.ErrAlreadySatisfied
	default:
		// A failed row is always reusable, so this means a concurrent attempt took it.
		return nil, run.ErrAlreadyRunning
	}
}

func (l *PostgresRunLedger) Commit(ctx context.Context, attempt *run.Attempt, outcome run.Outcome) error {
	if !outcome.Status.Terminal() {
		return fmt.Errorf("%w: outcome status %q is not terminal", run.ErrInvalidTransition, outcome.Status)
	}

	var summary sql.NullString
	if outcome.ErrorSummary != "" {
		summary = sql.NullString{String: truncate(outcome.ErrorSummary, maxErrorSummaryLen), Valid: true}
	}

	query := `UPDATE schedule_runs
	               SET status = $4, completed_at = $5, error_summary = $6,
	                   recipient_count = $7, failure_count = $8
	               WHERE schedule_id = $1 AND run_date = $2 AND attempt_id = $3 AND status = 'pending'`
	res, err := l.db.ExecContext(ctx, query,
		attempt.ScheduleID, dateKey(attempt.RunDate), attempt.ID,
		outcome.Status, l.now(), summary, outcome.RecipientCount, outcome.FailureCount,
	)
	if err != nil {
		return fmt.Errorf("error committing run outcome: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading commit result: %w", err)
	}
	if affected == 1 {
		return nil
	}

	existing, err := l.Get(ctx, attempt.ScheduleID, attempt.RunDate)
	if err != nil {
		if errors.Is(err, run.ErrRecordNotFound) {
			return fmt.Errorf("%w: no record for schedule %d on %s", run.ErrInvalidTransition, attempt.ScheduleID, dateKey(attempt.RunDate))
		}
		return fmt.Errorf("error reading run record after commit: %w", err)
	}
	if existing.AttemptID == attempt.ID && existing.Status == outcome.Status {
		return nil
	}
	return fmt.Errorf("%w: record for schedule %d on %s is %s (attempt %s), cannot commit %s for attempt %s",
		run.ErrInvalidTransition, attempt.ScheduleID, dateKey(attempt.RunDate),
		existing.Status, existing.AttemptID, outcome.Status, attempt.ID)
}

func (l *PostgresRunLedger) SweepPending(ctx context.Context, startedBefore time.Time) (int64, error) {
	query := `UPDATE schedule_runs
	               SET status = 'failed', completed_at = $2, error_summary = $3
	               WHERE status = 'pending' AND started_at < $1`
	res, err := l.db.ExecContext(ctx, query, startedBefore, l.now(), interruptedSummary)
	if err != nil {
		return 0, fmt.Errorf("error sweeping pending runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading sweep result: %w", err)
	}
	return n, nil
}

const runColumns = `schedule_id, run_date, attempt_id, status, started_at, completed_at,
	               error_summary, recipient_count, failure_count`

func (l *PostgresRunLedger) Get(ctx context.Context, scheduleID int64, date time.Time) (*run.Record, error) {
	query := `SELECT ` + runColumns + ` FROM schedule_runs WHERE schedule_id = $1 AND run_date = $2`
	rec := &run.Record{}
	if err := l.db.GetContext(ctx, rec, query, scheduleID, dateKey(date)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, run.ErrRecordNotFound
		}
		return nil, fmt.Errorf("error getting run record: %w", err)
	}
	return rec, nil
}

func (l *PostgresRunLedger) ListForDate(ctx context.Context, date time.Time) ([]*run.Record, error) {
	query := `SELECT ` + runColumns + ` FROM schedule_runs WHERE run_date = $1 ORDER BY schedule_id`
	records := make([]*run.Record, 0)
	if err := l.db.SelectContext(ctx, &records, query, dateKey(date)); err != nil {
		return nil, fmt.Errorf("error listing run records: %w", err)
	}
	return records, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
