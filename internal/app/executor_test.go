package app_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"forecast_bot/internal/app"
	"forecast_bot/internal/app/mocks"
	"forecast_bot/internal/domain/forecast"
	"forecast_bot/internal/domain/run"
	"forecast_bot/internal/domain/schedule"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type ExecutorTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	schedules   *mocks.MockScheduleReader
	ledger      *mocks.MockRunLedger
	recipients  *mocks.MockRecipientSource
	fetcher     *mocks.MockForecastFetcher
	formatter   *mocks.MockFormatter
	broadcaster *mocks.MockBroadcaster
	notifier    *mocks.MockAdminNotifier

	executor *app.Executor
	now      time.Time
	today    time.Time
	sched    *schedule.Schedule
}

func (s *ExecutorTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.schedules = mocks.NewMockScheduleReader(s.ctrl)
	s.ledger = mocks.NewMockRunLedger(s.ctrl)
	s.recipients = mocks.NewMockRecipientSource(s.ctrl)
	s.fetcher = mocks.NewMockForecastFetcher(s.ctrl)
	s.formatter = mocks.NewMockFormatter(s.ctrl)
	s.broadcaster = mocks.NewMockBroadcaster(s.ctrl)
	s.notifier = mocks.NewMockAdminNotifier(s.ctrl)

	s.now = time.Date(2026, 3, 14, 8, 0, 12, 0, time.UTC)
	s.today = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	s.sched = &schedule.Schedule{
		ID:          7,
		Enabled:     true,
		TimeOfDay:   schedule.TimeOfDay{Hour: 8, Minute: 0},
		Countries:   []string{"GB", "fr"},
		Topics:      []string{"economy", "top_headlines"},
		Language:    "en",
		TimeHorizon: "24h",
		Depth:       "standard",
		Title:       sql.NullString{String: "Morning Briefing", Valid: true},
	}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	s.executor = app.NewExecutor(
		s.schedules, s.ledger, s.recipients, s.fetcher, s.formatter, s.broadcaster, s.notifier,
		app.ExecutorConfig{RunTimeout: time.Minute},
		logrus.NewEntry(logger),
	).WithClock(func() time.Time { return s.now })
}

func (s *ExecutorTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestExecutorTestSuite(t *testing.T) {
	suite.Run(t, new(ExecutorTestSuite))
}

func (s *ExecutorTestSuite) payload() *forecast.Payload {
	return &forecast.Payload{Results: []forecast.TopicResult{
		{Topic: "economy", Summary: "steady"},
		{Topic: "top_headlines", Summary: "quiet"},
	}}
}

func (s *ExecutorTestSuite) attempt() *run.Attempt {
	return &run.Attempt{ID: uuid.New(), ScheduleID: 7, RunDate: s.today, StartedAt: s.now}
}

func (s *ExecutorTestSuite) expectFetchAndRender() {
	s.fetcher.EXPECT().Fetch(gomock.Any(), forecast.Query{
		Countries:   []string{"uk", "fr"},
		Topics:      []string{"economy", "top_headlines"},
		Language:    "en",
		TimeHorizon: "24h",
		Depth:       "standard",
	}).Return(s.payload(), nil)
	s.formatter.EXPECT().Render(gomock.Any()).DoAndReturn(func(r forecast.TopicResult) (string, error) {
		return "<b>" + r.Topic + "</b>", nil
	}).Times(2)
}

func (s *ExecutorTestSuite) TestScheduled_AlreadySatisfiedSkipsFetch() {
	ctx := context.Background()
	s.schedules.EXPECT().GetByID(ctx, int64(7)).Return(s.sched, nil)
	s.ledger.EXPECT().IsAlreadySatisfied(ctx, int64(7), s.today).Return(true, nil)

	report, err := s.executor.Execute(ctx, app.RunRequest{ScheduleID: 7, Mode: app.ModeScheduled})

	s.ErrorIs(err, run.ErrAlreadySatisfied)
	s.True(report.Skipped)
}

func (s *ExecutorTestSuite) TestScheduled_AlreadyRunningSkips() {
	ctx := context.Background()
	s.schedules.EXPECT().GetByID(ctx, int64(7)).Return(s.sched, nil)
	s.ledger.EXPECT().IsAlreadySatisfied(ctx, int64(7), s.today).Return(false, nil)
	s.ledger.EXPECT().BeginAttempt(ctx, int64(7), s.today).Return(nil, run.ErrAlreadyRunning)

	report, err := s.executor.Execute(ctx, app.RunRequest{ScheduleID: 7, Mode: app.ModeScheduled})

	s.ErrorIs(err, run.ErrAlreadyRunning)
	s.True(report.Skipped)
}

func (s *ExecutorTestSuite) TestScheduled_SuccessWithPartialRecipientFailure() {
	ctx := context.Background()
	attempt := s.attempt()
	recipients := []int64{11, 12, 13}

	s.schedules.EXPECT().GetByID(ctx, int64(7)).Return(s.sched, nil)
	s.ledger.EXPECT().IsAlreadySatisfied(ctx, int64(7), s.today).Return(false, nil)
	s.ledger.EXPECT().BeginAttempt(ctx, int64(7), s.today).Return(attempt, nil)
	s.expectFetchAndRender()
	s.recipients.EXPECT().ListActiveChatIDs(gomock.Any()).Return(recipients, nil)
	s.broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Any(), recipients).DoAndReturn(
		func(_ context.Context, msg app.Message, _ []int64) app.BroadcastResult {
			s.Require().Len(msg.Parts, 2)
			s.True(strings.Contains(msg.Parts[0], "Morning Briefing"))
			s.True(strings.HasSuffix(msg.Parts[0], "<b>economy</b>"))
			return app.BroadcastResult{Sent: 2, Failed: 1, FailedRecipients: []int64{12}}
		})
	s.ledger.EXPECT().Commit(gomock.Any(), attempt, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ *run.Attempt, o run.Outcome) error {
			s.Equal(run.StatusSuccess, o.Status)
			s.Equal(3, o.RecipientCount)
			s.Equal(1, o.FailureCount)
			return nil
		})

	report, err := s.executor.Execute(ctx, app.RunRequest{ScheduleID: 7, Mode: app.ModeScheduled})

	s.NoError(err)
	s.Equal(run.StatusSuccess, report.Status)
	s.Equal(2, report.Sent)
	s.Equal(1, report.Failed)
	s.Equal(2, report.Topics)
}

func (s *ExecutorTestSuite) TestScheduled_PermanentUpstreamFailureRecordsFailed() {
	ctx := context.Background()
	attempt := s.attempt()

	s.schedules.EXPECT().GetByID(ctx, int64(7)).Return(s.sched, nil)
	s.ledger.EXPECT().IsAlreadySatisfied(ctx, int64(7), s.today).Return(false, nil)
	s.ledger.EXPECT().BeginAttempt(ctx, int64(7), s.today).Return(attempt, nil)
	s.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(nil,
		&forecast.UpstreamError{Kind: forecast.Permanent, StatusCode: 404, Attempts: 1, Err: errors.New("unexpected status: 404")})
	s.ledger.EXPECT().Commit(gomock.Any(), attempt, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ *run.Attempt, o run.Outcome) error {
			s.Equal(run.StatusFailed, o.Status)
			s.Contains(o.ErrorSummary, "404")
			return nil
		})
	s.notifier.EXPECT().NotifyAdmins(gomock.Any(), gomock.Any())

	report, err := s.executor.Execute(ctx, app.RunRequest{ScheduleID: 7, Mode: app.ModeScheduled})

	s.True(forecast.IsPermanent(err))
	s.Equal(run.StatusFailed, report.Status)
}

func (s *ExecutorTestSuite) TestScheduled_InvalidScheduleRecordsFailed() {
	ctx := context.Background()
	attempt := s.attempt()
	s.sched.Language = "xx"

	s.schedules.EXPECT().GetByID(ctx, int64(7)).Return(s.sched, nil)
	s.ledger.EXPECT().IsAlreadySatisfied(ctx, int64(7), s.today).Return(false, nil)
	s.ledger.EXPECT().BeginAttempt(ctx, int64(7), s.today).Return(attempt, nil)
	s.ledger.EXPECT().Commit(gomock.Any(), attempt, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ *run.Attempt, o run.Outcome) error {
			s.Equal(run.StatusFailed, o.Status)
			s.Contains(o.ErrorSummary, "invalid language: xx")
			return nil
		})
	s.notifier.EXPECT().NotifyAdmins(gomock.Any(), gomock.Any())

	_, err := s.executor.Execute(ctx, app.RunRequest{ScheduleID: 7, Mode: app.ModeScheduled})

	s.Error(err)
}

func (s *ExecutorTestSuite) TestScheduled_NoTopicRenderedRecordsFailed() {
	ctx := context.Background()
	attempt := s.attempt()

	s.schedules.EXPECT().GetByID(ctx, int64(7)).Return(s.sched, nil)
	s.ledger.EXPECT().IsAlreadySatisfied(ctx, int64(7), s.today).Return(false, nil)
	s.ledger.EXPECT().BeginAttempt(ctx, int64(7), s.today).Return(attempt, nil)
	s.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(s.payload(), nil)
	s.formatter.EXPECT().Render(gomock.Any()).Return("", errors.New("topic failed")).Times(2)
	s.ledger.EXPECT().Commit(gomock.Any(), attempt, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ *run.Attempt, o run.Outcome) error {
			s.Equal(run.StatusFailed, o.Status)
			return nil
		})
	s.notifier.EXPECT().NotifyAdmins(gomock.Any(), gomock.Any())

	report, err := s.executor.Execute(ctx, app.RunRequest{ScheduleID: 7, Mode: app.ModeScheduled})

	s.Error(err)
	s.Len(report.TopicErrors, 2)
}

func (s *ExecutorTestSuite) TestScheduled_NoRecipientsStillSucceeds() {
	ctx := context.Background()
	attempt := s.attempt()

	s.schedules.EXPECT().GetByID(ctx, int64(7)).Return(s.sched, nil)
	s.ledger.EXPECT().IsAlreadySatisfied(ctx, int64(7), s.today).Return(false, nil)
	s.ledger.EXPECT().BeginAttempt(ctx, int64(7), s.today).Return(attempt, nil)
	s.expectFetchAndRender()
	s.recipients.EXPECT().ListActiveChatIDs(gomock.Any()).Return([]int64{}, nil)
	s.ledger.EXPECT().Commit(gomock.Any(), attempt, run.Succeeded(0, 0, "")).Return(nil)

	report, err := s.executor.Execute(ctx, app.RunRequest{ScheduleID: 7, Mode: app.ModeScheduled})

	s.NoError(err)
	s.Equal(0, report.Recipients)
}

func (s *ExecutorTestSuite) TestManualTest_SendsOnlyToAdminWithoutLedger() {
	ctx := context.Background()

	s.schedules.EXPECT().GetByID(ctx, int64(7)).Return(s.sched, nil)
	s.expectFetchAndRender()
	s.broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Any(), []int64{42}).
		Return(app.BroadcastResult{Sent: 1})

	report, err := s.executor.Execute(ctx, app.RunRequest{ScheduleID: 7, Mode: app.ModeManualTest, RequestedBy: 42})

	s.NoError(err)
	s.Equal(1, report.Sent)
}

func (s *ExecutorTestSuite) TestManualBroadcast_ForcesAttempt() {
	ctx := context.Background()
	attempt := s.attempt()

	s.schedules.EXPECT().GetByID(ctx, int64(7)).Return(s.sched, nil)
	s.ledger.EXPECT().Get(ctx, int64(7), s.today).Return(nil, run.ErrRecordNotFound)
	s.ledger.EXPECT().ForceAttempt(ctx, int64(7), s.today).Return(attempt, nil)
	s.expectFetchAndRender()
	s.recipients.EXPECT().ListActiveChatIDs(gomock.Any()).Return([]int64{1, 2}, nil)
	s.broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Any(), []int64{1, 2}).Return(app.BroadcastResult{Sent: 2})
	s.ledger.EXPECT().Commit(gomock.Any(), attempt, run.Succeeded(2, 0, "")).Return(nil)

	_, err := s.executor.Execute(ctx, app.RunRequest{ScheduleID: 7, Mode: app.ModeManualBroadcast, RequestedBy: 42})

	s.NoError(err)
}

func (s *ExecutorTestSuite) TestUnknownSchedule() {
	ctx := context.Background()
	s.schedules.EXPECT().GetByID(ctx, int64(99)).Return(nil, schedule.ErrNotFound)

	_, err := s.executor.Execute(ctx, app.RunRequest{ScheduleID: 99, Mode: app.ModeManualTest, RequestedBy: 1})

	s.ErrorIs(err, app.ErrScheduleNotFound)
}

func (s *ExecutorTestSuite) TestFiredAtDeterminesRunDate() {
	ctx := context.Background()
	firedAt := time.Date(2026, 3, 13, 23, 59, 0, 0, time.UTC)
	yesterday := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)

	s.schedules.EXPECT().GetByID(ctx, int64(7)).Return(s.sched, nil)
	s.ledger.EXPECT().IsAlreadySatisfied(ctx, int64(7), yesterday).Return(true, nil)

	report, err := s.executor.Execute(ctx, app.RunRequest{ScheduleID: 7, Mode: app.ModeScheduled, FiredAt: firedAt})

	s.ErrorIs(err, run.ErrAlreadySatisfied)
	s.Equal(yesterday, report.RunDate)
}

func (s *ExecutorTestSuite) TestCallerCancellationDoesNotAbortOpenAttempt() {
	ctx, cancel := context.WithCancel(context.Background())
	attempt := s.attempt()

	s.schedules.EXPECT().GetByID(ctx, int64(7)).Return(s.sched, nil)
	s.ledger.EXPECT().IsAlreadySatisfied(ctx, int64(7), s.today).Return(false, nil)
	s.ledger.EXPECT().BeginAttempt(ctx, int64(7), s.today).DoAndReturn(
		func(context.Context, int64, time.Time) (*run.Attempt, error) {
			cancel()
			return attempt, nil
		})
	s.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(fctx context.Context, _ forecast.Query) (*forecast.Payload, error) {
			s.NoError(fctx.Err())
			return s.payload(), nil
		})
	s.formatter.EXPECT().Render(gomock.Any()).Return("<b>t</b>", nil).Times(2)
	s.recipients.EXPECT().ListActiveChatIDs(gomock.Any()).Return([]int64{1}, nil)
	s.broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Any(), []int64{1}).Return(app.BroadcastResult{Sent: 1})
	s.ledger.EXPECT().Commit(gomock.Any(), attempt, run.Succeeded(1, 0, "")).Return(nil)

	_, err := s.executor.Execute(ctx, app.RunRequest{ScheduleID: 7, Mode: app.ModeScheduled})

	s.NoError(err)
}

func (s *ExecutorTestSuite) TestScheduled_AllRecipientsFailedStillSatisfiesDay() {
	ctx := context.Background()
	attempt := s.attempt()
	recipients := []int64{11, 12}

	s.schedules.EXPECT().GetByID(ctx, int64(7)).Return(s.sched, nil)
	s.ledger.EXPECT().IsAlreadySatisfied(ctx, int64(7), s.today).Return(false, nil)
	s.ledger.EXPECT().BeginAttempt(ctx, int64(7), s.today).Return(attempt, nil)
	s.expectFetchAndRender()
	s.recipients.EXPECT().ListActiveChatIDs(gomock.Any()).Return(recipients, nil)
	s.broadcaster.EXPECT().Broadcast(gomock.Any(), gomock.Any(), recipients).
		Return(app.BroadcastResult{Sent: 0, Failed: 2, FailedRecipients: recipients})
	s.ledger.EXPECT().Commit(gomock.Any(), attempt,
		run.Succeeded(2, 2, "delivery failed for all 2 recipients")).Return(nil)
	s.notifier.EXPECT().NotifyAdmins(gomock.Any(), gomock.Any()).Do(func(_ context.Context, text string) {
		s.Contains(text, "delivery failed for all 2 recipients")
	})

	report, err := s.executor.Execute(ctx, app.RunRequest{ScheduleID: 7, Mode: app.ModeScheduled})

	s.NoError(err)
	s.Equal(run.StatusSuccess, report.Status)
	s.Equal(0, report.Sent)
	s.Equal(2, report.Failed)
}

func (s *ExecutorTestSuite) TestScheduled_FailureNoticeIsEscaped() {
	ctx := context.Background()
	attempt := s.attempt()
	s.sched.Title = sql.NullString{String: "Rates & <Rents>", Valid: true}

	s.schedules.EXPECT().GetByID(ctx, int64(7)).Return(s.sched, nil)
	s.ledger.EXPECT().IsAlreadySatisfied(ctx, int64(7), s.today).Return(false, nil)
	s.ledger.EXPECT().BeginAttempt(ctx, int64(7), s.today).Return(attempt, nil)
	s.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(nil, &forecast.UpstreamError{
		Kind: forecast.Permanent, StatusCode: 404, Attempts: 1,
		Err: errors.New("unexpected status: 404: <html><body>Not Found</body></html>"),
	})
	s.ledger.EXPECT().Commit(gomock.Any(), attempt, gomock.Any()).Return(nil)
	s.notifier.EXPECT().NotifyAdmins(gomock.Any(), gomock.Any()).Do(func(_ context.Context, text string) {
		s.Contains(text, "Rates &amp; &lt;Rents&gt;")
		s.Contains(text, "&lt;html&gt;")
		s.NotContains(text, "<html>")
	})

	_, err := s.executor.Execute(ctx, app.RunRequest{ScheduleID: 7, Mode: app.ModeScheduled})

	s.Error(err)
}

func (s *ExecutorTestSuite) TestScheduled_TimedOutRunIsStillReported() {
	ctx := context.Background()
	attempt := s.attempt()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	executor := app.NewExecutor(
		s.schedules, s.ledger, s.recipients, s.fetcher, s.formatter, s.broadcaster, s.notifier,
		app.ExecutorConfig{RunTimeout: 20 * time.Millisecond},
		logrus.NewEntry(logger),
	).WithClock(func() time.Time { return s.now })

	s.schedules.EXPECT().GetByID(ctx, int64(7)).Return(s.sched, nil)
	s.ledger.EXPECT().IsAlreadySatisfied(ctx, int64(7), s.today).Return(false, nil)
	s.ledger.EXPECT().BeginAttempt(ctx, int64(7), s.today).Return(attempt, nil)
	s.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(fctx context.Context, _ forecast.Query) (*forecast.Payload, error) {
			<-fctx.Done()
			return nil, &forecast.UpstreamError{Kind: forecast.Transient, Attempts: 1, Err: fctx.Err()}
		})
	s.ledger.EXPECT().Commit(gomock.Any(), attempt, gomock.Any()).DoAndReturn(
		func(cctx context.Context, _ *run.Attempt, o run.Outcome) error {
			s.NoError(cctx.Err())
			s.Equal(run.StatusFailed, o.Status)
			return nil
		})
	s.notifier.EXPECT().NotifyAdmins(gomock.Any(), gomock.Any()).Do(func(nctx context.Context, _ string) {
		s.NoError(nctx.Err())
	})

	_, err := executor.Execute(ctx, app.RunRequest{ScheduleID: 7, Mode: app.ModeScheduled})

	s.True(forecast.IsTransient(err))
}

func (s *ExecutorTestSuite) TestManualBroadcast_FailureKeepsEarlierSuccess() {
	ctx := context.Background()
	attempt := s.attempt()
	earlier := &run.Record{ScheduleID: 7, RunDate: s.today, Status: run.StatusSuccess, RecipientCount: 40, FailureCount: 1}

	s.schedules.EXPECT().GetByID(ctx, int64(7)).Return(s.sched, nil)
	s.ledger.EXPECT().Get(ctx, int64(7), s.today).Return(earlier, nil)
	s.ledger.EXPECT().ForceAttempt(ctx, int64(7), s.today).Return(attempt, nil)
	s.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(nil,
		&forecast.UpstreamError{Kind: forecast.Transient, StatusCode: 503, Attempts: 4, Err: errors.New("unexpected status: 503")})
	s.ledger.EXPECT().Commit(gomock.Any(), attempt, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ *run.Attempt, o run.Outcome) error {
			s.Equal(run.StatusSuccess, o.Status)
			s.Equal(40, o.RecipientCount)
			s.Equal(1, o.FailureCount)
			s.Contains(o.ErrorSummary, "earlier delivery kept")
			return nil
		})

	report, err := s.executor.Execute(ctx, app.RunRequest{ScheduleID: 7, Mode: app.ModeManualBroadcast, RequestedBy: 42})

	s.Error(err)
	s.Equal(run.StatusFailed, report.Status)
}
