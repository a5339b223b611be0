package app

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"forecast_bot/internal/domain/forecast"
	"forecast_bot/internal/domain/run"
	"forecast_bot/internal/domain/schedule"
)

type ScheduleReader interface {
	GetByID(ctx context.Context, id int64) (*schedule.Schedule, error)
	ListAll(ctx context.Context) ([]*schedule.Schedule, error)
}

type RunLedger interface {
	IsAlreadySatisfied(ctx context.Context, scheduleID int64, date time.Time) (bool, error)
	BeginAttempt(ctx context.Context, scheduleID int64, date time.Time) (*run.Attempt, error)
	ForceAttempt(ctx context.Context, scheduleID int64, date time.Time) (*run.Attempt, error)
	Commit(ctx context.Context, attempt *run.Attempt, outcome run.Outcome) error
	Get(ctx context.Context, scheduleID int64, date time.Time) (*run.Record, error)
	ListForDate(ctx context.Context, date time.Time) ([]*run.Record, error)
}

type RecipientSource interface {
	ListActiveChatIDs(ctx context.Context) ([]int64, error)
}

type SubscriberStore interface {
	Subscribe(ctx context.Context, chatID int64, userID int64) (bool, error)
	Unsubscribe(ctx context.Context, chatID int64) error
	IsActive(ctx context.Context, chatID int64) (bool, error)
	ListActiveChatIDs(ctx context.Context) ([]int64, error)
	CountActive(ctx context.Context) (int, error)
}

type ForecastFetcher interface {
	Fetch(ctx context.Context, q forecast.Query) (*forecast.Payload, error)
}

// Formatter renders one topic result as a Telegram HTML message.
type Formatter interface {
	Render(result forecast.TopicResult) (string, error)
}

type MessageSender interface {
	SendHTML(ctx context.Context, recipientChatID int64, text string) error
}

type Broadcaster interface {
	Broadcast(ctx context.Context, msg Message, recipients []int64) BroadcastResult
}

// AdminNotifier delivers operational notices to the configured admins.
// Delivery failures are logged by the implementation, not returned.
type AdminNotifier interface {
	NotifyAdmins(ctx context.Context, text string)
}

type ScheduleRunner interface {
	Execute(ctx context.Context, req RunRequest) (*RunReport, error)
}
