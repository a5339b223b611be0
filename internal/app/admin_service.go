package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"forecast_bot/internal/domain/run"
	"forecast_bot/internal/domain/schedule"
)

// Custom application-level errors for admin service
var ErrAdminNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")

// ScheduleStatus pairs a schedule with today's run record, if any.
type ScheduleStatus struct {
	Schedule *schedule.Schedule
	Today    *run.Record
}

type AdminService struct {
	schedules   ScheduleReader
	ledger      RunLedger
	subscribers SubscriberStore
	runner      ScheduleRunner
	adminIDs    []int64
	now         func() time.Time
}

func NewAdminService(sr ScheduleReader, ledger RunLedger, subs SubscriberStore, runner ScheduleRunner, adminIDs []int64) *AdminService {
	return &AdminService{
		schedules:   sr,
		ledger:      ledger,
		subscribers: subs,
		runner:      runner,
		adminIDs:    adminIDs,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *AdminService) IsAdmin(userID int64) bool {
	return slices.Contains(s.adminIDs, userID)
}

// ListSchedules returns every schedule with its run record for today (UTC).
func (s *AdminService) ListSchedules(ctx context.Context, performingAdminID int64) ([]ScheduleStatus, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, ErrAdminNotAuthorized
	}

	schedules, err := s.schedules.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	records, err := s.ledger.ListForDate(ctx, schedule.RunDate(s.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to list today's runs: %w", err)
	}

	byID := make(map[int64]*run.Record, len(records))
	for _, r := range records {
		byID[r.ScheduleID] = r
	}
	statuses := make([]ScheduleStatus, 0, len(schedules))
	for _, sch := range schedules {
		statuses = append(statuses, ScheduleStatus{Schedule: sch, Today: byID[sch.ID]})
	}
	return statuses, nil
}

func (s *AdminService) SubscriberCount(ctx context.Context, performingAdminID int64) (int, error) {
	if !s.IsAdmin(performingAdminID) {
		return 0, ErrAdminNotAuthorized
	}
	n, err := s.subscribers.CountActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscribers: %w", err)
	}
	return n, nil
}

// RunNow executes a schedule immediately. Test mode delivers only to the
// requesting admin and leaves the ledger untouched.
func (s *AdminService) RunNow(ctx context.Context, performingAdminID int64, scheduleID int64, broadcast bool) (*RunReport, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, ErrAdminNotAuthorized
	}
	mode := ModeManualTest
	if broadcast {
		mode = ModeManualBroadcast
	}
	report, err := s.runner.Execute(ctx, RunRequest{
		ScheduleID:  scheduleID,
		Mode:        mode,
		RequestedBy: performingAdminID,
	})
	if err != nil && errors.Is(err, run.ErrAlreadyRunning) {
		return report, fmt.Errorf("schedule %d is already running: %w", scheduleID, err)
	}
	return report, err
}
