// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainTelegram "forecast_bot/internal/domain/telegram"

	"gopkg.in/telebot.v3"
)

var unreachableErrors = []error{
	telebot.ErrBlockedByUser,
	telebot.ErrUserIsDeactivated,
	telebot.ErrChatNotFound,
	telebot.ErrNotStartedByUser,
	telebot.ErrKickedFromGroup,
	telebot.ErrKickedFromSuperGroup,
	telebot.ErrKickedFromChannel,
}

// TelebotAdapter implements the Client interface using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendHTML sends an HTML message with link previews disabled.
func (tba *TelebotAdapter) SendHTML(ctx context.Context, recipientChatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := tba.bot.Send(telebot.ChatID(recipientChatID), text, &telebot.SendOptions{
		ParseMode:             telebot.ModeHTML,
		DisableWebPagePreview: true,
	})
	return translateError(err)
}

// translateError maps telebot errors onto the domain errors.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var flood telebot.FloodError
	if errors.As(err, &flood) {
		return &domainTelegram.RateLimitedError{RetryAfter: time.Duration(flood.RetryAfter) * time.Second}
	}
	var floodPtr *telebot.FloodError
	if errors.As(err, &floodPtr) && floodPtr != nil {
		return &domainTelegram.RateLimitedError{RetryAfter: time.Duration(floodPtr.RetryAfter) * time.Second}
	}

	for _, target := range unreachableErrors {
		if errors.Is(err, target) {
			return fmt.Errorf("%w: %v", domainTelegram.ErrRecipientUnreachable, err)
		}
	}
	return err
}
