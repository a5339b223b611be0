package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"forecast_bot/internal/domain/forecast"
	"forecast_bot/internal/domain/run"
	"forecast_bot/internal/domain/schedule"
	"forecast_bot/internal/infra/formatter"
	"forecast_bot/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

var (
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrUnknownMode      = errors.New("unknown run mode")
)

const commitTimeout = 15 * time.Second

type Mode string

const (
	ModeScheduled       Mode = "scheduled"
	ModeManualBroadcast Mode = "manual_broadcast"
	ModeManualTest      Mode = "manual_test"
)

type RunRequest struct {
	ScheduleID  int64
	Mode        Mode
	RequestedBy int64     // admin user id for manual modes
	FiredAt     time.Time // zero means now; determines the run date
}

// RunReport describes what one execution did.
type RunReport struct {
	ScheduleID  int64
	Title       string
	Mode        Mode
	RunDate     time.Time
	Skipped     bool
	Status      run.Status // empty when skipped
	Summary     string
	Topics      int
	TopicErrors []string
	Recipients  int
	Sent        int
	Failed      int
	Duration    time.Duration
}

type ExecutorConfig struct {
	RunTimeout time.Duration
}

// Executor runs one schedule end to end: ledger check, fetch, render,
// broadcast, record.
type Executor struct {
	schedules   ScheduleReader
	ledger      RunLedger
	recipients  RecipientSource
	fetcher     ForecastFetcher
	formatter   Formatter
	broadcaster Broadcaster
	notifier    AdminNotifier
	cfg         ExecutorConfig
	logger      *logrus.Entry
	now         func() time.Time
}

func NewExecutor(
	schedules ScheduleReader,
	ledger RunLedger,
	recipients RecipientSource,
	fetcher ForecastFetcher,
	formatter Formatter,
	broadcaster Broadcaster,
	notifier AdminNotifier,
	cfg ExecutorConfig,
	logger *logrus.Entry,
) *Executor {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Minute
	}
	return &Executor{
		schedules:   schedules,
		ledger:      ledger,
		recipients:  recipients,
		fetcher:     fetcher,
		formatter:   formatter,
		broadcaster: broadcaster,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger.WithField("component", "executor"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used when a request carries no firing time.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// Execute runs the schedule named by req. A skipped scheduled run returns
// the report together with run.ErrAlreadySatisfied or run.ErrAlreadyRunning.
func (e *Executor) Execute(ctx context.Context, req RunRequest) (*RunReport, error) {
	switch req.Mode {
	case ModeScheduled, ModeManualBroadcast, ModeManualTest:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, req.Mode)
	}

	sch, err := e.schedules.GetByID(ctx, req.ScheduleID)
	if err != nil {
		if errors.Is(err, schedule.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrScheduleNotFound, req.ScheduleID)
		}
		return nil, fmt.Errorf("load schedule %d: %w", req.ScheduleID, err)
	}

	firedAt := req.FiredAt
	if firedAt.IsZero() {
		firedAt = e.now()
	}
	report := &RunReport{
		ScheduleID: sch.ID,
		Title:      sch.DisplayTitle(),
		Mode:       req.Mode,
		RunDate:    schedule.RunDate(firedAt),
	}
	log := e.logger.WithFields(logrus.Fields{
		"schedule_id": sch.ID,
		"run_date":    report.RunDate.Format(time.DateOnly),
		"mode":        req.Mode,
	})

	attempt, prior, err := e.openAttempt(ctx, req.Mode, sch.ID, report.RunDate)
	if err != nil {
		if errors.Is(err, run.ErrAlreadySatisfied) || errors.Is(err, run.ErrAlreadyRunning) {
			report.Skipped = true
			log.WithError(err).Info("run skipped")
			metrics.RunsTotal.WithLabelValues(string(req.Mode), "skipped").Inc()
		}
		return report, err
	}

	// The attempt is open; finish it even if the caller goes away.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.RunTimeout)
	defer cancel()

	metrics.RunsInFlight.Inc()
	defer metrics.RunsInFlight.Dec()
	started := time.Now()

	outcome, runErr := e.run(runCtx, sch, req, report, log)
	report.Status = outcome.Status
	report.Summary = outcome.ErrorSummary
	report.Duration = time.Since(started)

	if attempt != nil {
		recorded := outcome
		if prior != nil && outcome.Status == run.StatusFailed {
			// A failed forced run must not reopen a day that was already delivered.
			recorded = run.Succeeded(prior.RecipientCount, prior.FailureCount,
				"manual broadcast failed, earlier delivery kept: "+outcome.ErrorSummary)
			log.Warn("forced run failed, keeping earlier success record")
		}
		commitCtx, cancelCommit := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
		defer cancelCommit()
		if err := e.ledger.Commit(commitCtx, attempt, recorded); err != nil {
			log.WithError(err).Error("failed to commit run outcome")
			if runErr == nil {
				runErr = fmt.Errorf("commit run outcome: %w", err)
			}
		}
	}

	metrics.RunDuration.WithLabelValues(string(req.Mode)).Observe(report.Duration.Seconds())
	metrics.RunsTotal.WithLabelValues(string(req.Mode), string(outcome.Status)).Inc()

	fields := logrus.Fields{
		"status":     outcome.Status,
		"recipients": report.Recipients,
		"sent":       report.Sent,
		"failed":     report.Failed,
		"duration":   report.Duration,
	}
	undelivered := report.Recipients > 0 && report.Sent == 0
	if req.Mode == ModeScheduled && (runErr != nil || undelivered) {
		e.notifyFailure(ctx, sch, report.RunDate, outcome.ErrorSummary)
	}
	if runErr != nil {
		log.WithFields(fields).WithError(runErr).Error("run failed")
		return report, runErr
	}
	if undelivered {
		log.WithFields(fields).Warn("run finished without a single delivery")
		return report, nil
	}
	log.WithFields(fields).Info("run finished")
	return report, nil
}

// notifyFailure uses its own deadline so an expired run still reports.
func (e *Executor) notifyFailure(ctx context.Context, sch *schedule.Schedule, date time.Time, summary string) {
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	e.notifier.NotifyAdmins(notifyCtx, formatter.FailureNotice(sch.ID, sch.DisplayTitle(), date, summary))
}

// openAttempt returns the attempt to commit, nil for manual tests. For a
// forced run over a delivered day it also returns the earlier record.
func (e *Executor) openAttempt(ctx context.Context, mode Mode, scheduleID int64, date time.Time) (*run.Attempt, *run.Record, error) {
	switch mode {
	case ModeScheduled:
		satisfied, err := e.ledger.IsAlreadySatisfied(ctx, scheduleID, date)
		if err != nil {
			return nil, nil, fmt.Errorf("check run ledger: %w", err)
		}
		if satisfied {
			return nil, nil, run.ErrAlreadySatisfied
		}
		attempt, err := e.ledger.BeginAttempt(ctx, scheduleID, date)
		if err != nil {
			return nil, nil, wrapLedgerErr(err)
		}
		return attempt, nil, nil
	case ModeManualBroadcast:
		var prior *run.Record
		rec, err := e.ledger.Get(ctx, scheduleID, date)
		switch {
		case err == nil && rec.Status == run.StatusSuccess:
			prior = rec
		case err != nil && !errors.Is(err, run.ErrRecordNotFound):
			return nil, nil, fmt.Errorf("read run ledger: %w", err)
		}
		attempt, err := e.ledger.ForceAttempt(ctx, scheduleID, date)
		if err != nil {
			return nil, nil, wrapLedgerErr(err)
		}
		return attempt, prior, nil
	default:
		return nil, nil, nil
	}
}

func wrapLedgerErr(err error) error {
	if errors.Is(err, run.ErrAlreadySatisfied) || errors.Is(err, run.ErrAlreadyRunning) {
		return err
	}
	return fmt.Errorf("open run attempt: %w", err)
}

// run performs validation, fetch, render and broadcast. The returned
// outcome is always terminal.
func (e *Executor) run(ctx context.Context, sch *schedule.Schedule, req RunRequest, report *RunReport, log *logrus.Entry) (run.Outcome, error) {
	countries, err := sch.Validate()
	if err != nil {
		return run.Failed(fmt.Sprintf("validation: %v", err)), fmt.Errorf("validate schedule: %w", err)
	}

	payload, err := e.fetcher.Fetch(ctx, forecast.Query{
		Countries:   countries,
		Topics:      sch.Topics,
		Language:    sch.Language,
		TimeHorizon: sch.TimeHorizon,
		Depth:       sch.Depth,
	})
	if err != nil {
		return run.Failed(fmt.Sprintf("fetch: %v", err)), fmt.Errorf("fetch forecast: %w", err)
	}

	parts := make([]string, 0, len(payload.Results))
	for _, result := range payload.Results {
		msg, err := e.formatter.Render(result)
		if err != nil {
			report.TopicErrors = append(report.TopicErrors, err.Error())
			log.WithField("topic", result.Topic).WithError(err).Warn("topic not rendered")
			continue
		}
		parts = append(parts, msg)
	}
	report.Topics = len(parts)
	if len(parts) == 0 {
		summary := "render: no topic could be rendered"
		if len(report.TopicErrors) > 0 {
			summary += ": " + strings.Join(report.TopicErrors, "; ")
		}
		return run.Failed(summary), errors.New(summary)
	}
	parts[0] = formatter.Header(sch.DisplayTitle(), report.RunDate) + "\n\n" + parts[0]

	var recipients []int64
	if req.Mode == ModeManualTest {
		recipients = []int64{req.RequestedBy}
	} else {
		recipients, err = e.recipients.ListActiveChatIDs(ctx)
		if err != nil {
			return run.Failed(fmt.Sprintf("recipients: %v", err)), fmt.Errorf("list recipients: %w", err)
		}
	}
	report.Recipients = len(recipients)
	if len(recipients) == 0 {
		log.Info("no active recipients")
		return run.Succeeded(0, 0, ""), nil
	}

	result := e.broadcaster.Broadcast(ctx, Message{Parts: parts}, recipients)
	report.Sent = result.Sent
	report.Failed = result.Failed

	var notes []string
	if result.Sent == 0 {
		notes = append(notes, fmt.Sprintf("delivery failed for all %d recipients", len(recipients)))
	} else if result.Failed > 0 {
		notes = append(notes, fmt.Sprintf("%d of %d recipients failed", result.Failed, len(recipients)))
	}
	if len(report.TopicErrors) > 0 {
		notes = append(notes, fmt.Sprintf("%d topics skipped", len(report.TopicErrors)))
	}
	return run.Succeeded(len(recipients), result.Failed, strings.Join(notes, "; ")), nil
}
