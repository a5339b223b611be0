package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client defines an interface for sending messages via a Telegram bot.
// This helps in decoupling the application logic from the specific bot library.
// Implementations translate platform errors into the errors below.
type Client interface {
	SendHTML(ctx context.Context, recipientChatID int64, text string) error
}

// ErrRecipientUnreachable is returned when the chat can no longer receive
// messages (bot blocked, account deactivated, chat not found).
var ErrRecipientUnreachable = errors.New("telegram recipient unreachable")

// RateLimitedError carries the pause the platform asked for.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("telegram rate limited, retry after %s", e.RetryAfter)
}

// AsRateLimited extracts a RateLimitedError from err.
func AsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
