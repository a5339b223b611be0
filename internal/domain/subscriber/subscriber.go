package subscriber

import (
	"context"
	"database/sql"
	"time"
)

// Subscriber is a Telegram chat receiving broadcasts.
type Subscriber struct {
	ID        int64         `db:"id"`
	ChatID    int64         `db:"chat_id"`
	UserID    sql.NullInt64 `db:"user_id"`
	Active    bool          `db:"active"`
	CreatedAt time.Time     `db:"created_at"`
}

// Repository defines the subscriber persistence operations.
type Repository interface {
	// Subscribe inserts or reactivates a chat. Returns false if it was already active.
	Subscribe(ctx context.Context, chatID int64, userID int64) (bool, error)
	Unsubscribe(ctx context.Context, chatID int64) error
	IsActive(ctx context.Context, chatID int64) (bool, error)
	// ListActiveChatIDs returns active chat ids in a stable order.
	ListActiveChatIDs(ctx context.Context) ([]int64, error)
	CountActive(ctx context.Context) (int, error)
}
