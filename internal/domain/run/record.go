// internal/domain/run/record.go
package run

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Run Record.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether no further transition is expected.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Record is the per-schedule-per-day dedup and audit entry.
// Corresponds to the 'schedule_runs' table, unique on (schedule_id, run_date).
type Record struct {
	ScheduleID     int64          `db:"schedule_id"`
	RunDate        time.Time      `db:"run_date"` // UTC calendar date
	AttemptID      uuid.UUID      `db:"attempt_id"`
	Status         Status         `db:"status"`
	StartedAt      time.Time      `db:"started_at"`
	CompletedAt    sql.NullTime   `db:"completed_at"`
	ErrorSummary   sql.NullString `db:"error_summary"`
	RecipientCount int            `db:"recipient_count"`
	FailureCount   int            `db:"failure_count"`
}

// Attempt is the handle returned when an execution attempt is opened.
type Attempt struct {
	ID         uuid.UUID
	ScheduleID int64
	RunDate    time.Time
	StartedAt  time.Time
}

// Outcome is the terminal result written by Commit.
type Outcome struct {
	Status         Status
	ErrorSummary   string // empty means none
	RecipientCount int
	FailureCount   int
}

// Succeeded builds a success outcome.
func Succeeded(recipients, failures int, summary string) Outcome {
	return Outcome{Status: StatusSuccess, RecipientCount: recipients, FailureCount: failures, ErrorSummary: summary}
}

// Failed builds a failed outcome carrying a human-readable summary.
func Failed(summary string) Outcome {
	return Outcome{Status: StatusFailed, ErrorSummary: summary}
}
