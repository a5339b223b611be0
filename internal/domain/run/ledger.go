// internal/domain/run/ledger.go
package run

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAlreadyRunning    = errors.New("run already in progress for this schedule and date")
	ErrAlreadySatisfied  = errors.New("run already succeeded for this schedule and date")
	ErrInvalidTransition = errors.New("invalid run record transition")
	ErrRecordNotFound    = errors.New("run record not found")
)

// Ledger is the persistent source of truth for "did this schedule run today".
type Ledger interface {
	IsAlreadySatisfied(ctx context.Context, scheduleID int64, date time.Time) (bool, error)
	// BeginAttempt opens a pending record. A failed record for the key is
	// reused; pending and success records are rejected.
	BeginAttempt(ctx context.Context, scheduleID int64, date time.Time) (*Attempt, error)
	// ForceAttempt behaves like BeginAttempt but also reuses a success record.
	ForceAttempt(ctx context.Context, scheduleID int64, date time.Time) (*Attempt, error)
	Commit(ctx context.Context, attempt *Attempt, outcome Outcome) error
	// SweepPending fails pending records started before the cutoff.
	SweepPending(ctx context.Context, startedBefore time.Time) (int64, error)

	Get(ctx context.Context, scheduleID int64, date time.Time) (*Record, error)
	ListForDate(ctx context.Context, date time.Time) ([]*Record, error)
}
