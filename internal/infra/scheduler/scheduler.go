package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"forecast_bot/internal/app"
	"forecast_bot/internal/domain/run"
	"forecast_bot/internal/domain/schedule"
	"forecast_bot/internal/infra/metrics"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const everyMinute = "* * * * *"

type ScheduleLister interface {
	ListEnabled(ctx context.Context) ([]*schedule.Schedule, error)
}

type RunLedger interface {
	ListForDate(ctx context.Context, date time.Time) ([]*run.Record, error)
	SweepPending(ctx context.Context, startedBefore time.Time) (int64, error)
}

type Config struct {
	MaxConcurrent int
	// FailedRetryInterval re-fires a schedule whose run for today failed at
	// least this long ago. Zero disables automatic retries.
	FailedRetryInterval time.Duration
}

// TriggerLoop fires due schedules once per UTC minute.
type TriggerLoop struct {
	cronEngine *cron.Cron
	schedules  ScheduleLister
	ledger     RunLedger
	runner     app.ScheduleRunner
	cfg        Config
	logger     *logrus.Entry
	now        func() time.Time

	sem      chan struct{}
	mu       sync.Mutex
	inFlight map[int64]struct{}
	wg       sync.WaitGroup

	cancel context.CancelFunc
}

func NewTriggerLoop(schedules ScheduleLister, ledger RunLedger, runner app.ScheduleRunner, cfg Config, logger *logrus.Entry) *TriggerLoop {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	entry := logger.WithField("component", "trigger_loop")
	return &TriggerLoop{
		cronEngine: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cron.PrintfLogger(entry)),
		),
		schedules: schedules,
		ledger:    ledger,
		runner:    runner,
		cfg:       cfg,
		logger:    entry,
		now:       func() time.Time { return time.Now().UTC() },
		sem:       make(chan struct{}, cfg.MaxConcurrent),
		inFlight:  make(map[int64]struct{}),
	}
}

// Start marks runs orphaned by a previous process as failed and begins ticking.
func (l *TriggerLoop) Start(ctx context.Context) error {
	l.logger.Info("Starting trigger loop...")

	swept, err := l.ledger.SweepPending(ctx, l.now())
	if err != nil {
		return fmt.Errorf("sweep pending runs: %w", err)
	}
	if swept > 0 {
		metrics.SweptRunsTotal.Add(float64(swept))
		l.logger.WithField("count", swept).Warn("marked interrupted runs as failed")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	if _, err := l.cronEngine.AddFunc(everyMinute, func() {
		l.Tick(loopCtx, l.now().Truncate(time.Minute))
	}); err != nil {
		cancel()
		return fmt.Errorf("add minute tick: %w", err)
	}

	l.cronEngine.Start()
	l.logger.Info("Trigger loop started.")
	return nil
}

// Tick launches every schedule due at now and returns how many were launched.
// It never waits for an execution to finish.
func (l *TriggerLoop) Tick(ctx context.Context, now time.Time) int {
	schedules, err := l.schedules.ListEnabled(ctx)
	if err != nil {
		l.logger.WithError(err).Error("failed to list enabled schedules")
		return 0
	}

	due := schedule.Due(now, schedules)
	if l.cfg.FailedRetryInterval > 0 {
		due = append(due, l.retryCandidates(ctx, now, schedules, due)...)
	}

	launched := 0
	for _, sch := range due {
		if l.launch(ctx, sch, now) {
			launched++
		}
	}
	return launched
}

// retryCandidates returns schedules not already due whose run for today
// failed long enough ago and whose time of day has passed.
func (l *TriggerLoop) retryCandidates(ctx context.Context, now time.Time, schedules, due []*schedule.Schedule) []*schedule.Schedule {
	records, err := l.ledger.ListForDate(ctx, schedule.RunDate(now))
	if err != nil {
		l.logger.WithError(err).Error("failed to list today's runs for retry")
		return nil
	}

	failed := make(map[int64]struct{})
	for _, r := range records {
		if r.Status != run.StatusFailed || !r.CompletedAt.Valid {
			continue
		}
		if now.Sub(r.CompletedAt.Time) >= l.cfg.FailedRetryInterval {
			failed[r.ScheduleID] = struct{}{}
		}
	}

	isDue := make(map[int64]struct{}, len(due))
	for _, s := range due {
		isDue[s.ID] = struct{}{}
	}

	candidates := make([]*schedule.Schedule, 0)
	for _, s := range schedules {
		if s == nil || !s.Enabled {
			continue
		}
		if _, ok := isDue[s.ID]; ok {
			continue
		}
		if _, ok := failed[s.ID]; !ok {
			continue
		}
		if s.TimeOfDay.On(now).After(now) {
			continue
		}
		candidates = append(candidates, s)
	}
	return candidates
}

func (l *TriggerLoop) launch(ctx context.Context, sch *schedule.Schedule, firedAt time.Time) bool {
	log := l.logger.WithFields(logrus.Fields{
		"schedule_id": sch.ID,
		"run_date":    schedule.RunDate(firedAt).Format(time.DateOnly),
	})

	l.mu.Lock()
	if _, busy := l.inFlight[sch.ID]; busy {
		l.mu.Unlock()
		log.Info("schedule still in flight, not launching again")
		return false
	}
	l.inFlight[sch.ID] = struct{}{}
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			l.mu.Lock()
			delete(l.inFlight, sch.ID)
			l.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("panic in schedule execution")
			}
		}()

		select {
		case l.sem <- struct{}{}:
		case <-ctx.Done():
			log.Warn("trigger loop stopping, execution not started")
			return
		}
		defer func() { <-l.sem }()

		report, err := l.runner.Execute(ctx, app.RunRequest{
			ScheduleID: sch.ID,
			Mode:       app.ModeScheduled,
			FiredAt:    firedAt,
		})
		switch {
		case errors.Is(err, run.ErrAlreadySatisfied), errors.Is(err, run.ErrAlreadyRunning):
			log.WithError(err).Debug("scheduled run skipped")
		case err != nil:
			log.WithError(err).Error("scheduled run failed")
		default:
			log.WithFields(logrus.Fields{
				"sent":   report.Sent,
				"failed": report.Failed,
			}).Info("scheduled run completed")
		}
	}()
	return true
}

// Stop halts ticking and waits for in-flight executions or ctx expiry.
func (l *TriggerLoop) Stop(ctx context.Context) error {
	l.logger.Info("Stopping trigger loop...")
	if l.cancel != nil {
		l.cancel()
	}
	<-l.cronEngine.Stop().Done()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		l.logger.Info("Trigger loop gracefully stopped.")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("trigger loop stop: %w", ctx.Err())
	}
}
