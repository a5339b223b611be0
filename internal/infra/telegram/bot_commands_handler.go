// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"strings"

	"forecast_bot/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const welcomeText = "👋 <b>Welcome to News Forecast Bot!</b>\n\n" +
	"I deliver scheduled news forecasts based on your configuration.\n" +
	"Commands:\n" +
	"/subscribe - Receive daily forecasts\n" +
	"/unsubscribe - Stop receiving forecasts\n" +
	"/status - Check your subscription status"

const adminHelpText = "\n\nAdmin commands:\n" +
	"/schedule_list - Show schedules and today's runs\n" +
	"/subscribers_count - Count active subscribers\n" +
	"/run_now &lt;id&gt; [broadcast|test] - Run a schedule now (test sends only to you)"

var htmlOptions = &telebot.SendOptions{ParseMode: telebot.ModeHTML, DisableWebPagePreview: true}

func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	subscriptions *app.SubscriptionService,
	adminService *app.AdminService,
	baseLogger *logrus.Entry, // For contextual logging
) {
	userLogger := baseLogger.WithField("handler_group", "user")

	help := func(c telebot.Context) error {
		var text strings.Builder
		text.WriteString(welcomeText)
		if adminService.IsAdmin(c.Sender().ID) {
			text.WriteString(adminHelpText)
		}
		return c.Send(text.String(), htmlOptions)
	}

	b.Handle("/start", func(c telebot.Context) error {
		userLogger.WithFields(logrus.Fields{"command": "/start", "sender_id": c.Sender().ID}).Info("Processing /start command")
		return help(c)
	})

	b.Handle("/help", func(c telebot.Context) error {
		userLogger.WithFields(logrus.Fields{"command": "/help", "sender_id": c.Sender().ID}).Info("Processing /help command")
		return help(c)
	})

	b.Handle("/subscribe", func(c telebot.Context) error {
		logCtx := userLogger.WithFields(logrus.Fields{"command": "/subscribe", "chat_id": c.Chat().ID, "sender_id": c.Sender().ID})

		created, err := subscriptions.Subscribe(ctx, c.Chat().ID, c.Sender().ID)
		if err != nil {
			logCtx.WithError(err).Error("Failed to subscribe")
			return c.Send("An error occurred. Please try again later.")
		}
		if !created {
			logCtx.Info("Chat already subscribed")
			return c.Send("ℹ️ You are already subscribed.")
		}
		logCtx.Info("Chat subscribed")
		return c.Send("✅ You are now subscribed!")
	})

	b.Handle("/unsubscribe", func(c telebot.Context) error {
		logCtx := userLogger.WithFields(logrus.Fields{"command": "/unsubscribe", "chat_id": c.Chat().ID})

		if err := subscriptions.Unsubscribe(ctx, c.Chat().ID); err != nil {
			logCtx.WithError(err).Error("Failed to unsubscribe")
			return c.Send("An error occurred. Please try again later.")
		}
		logCtx.Info("Chat unsubscribed")
		return c.Send("❌ Unsubscribed. You will no longer receive forecasts.")
	})

	b.Handle("/status", func(c telebot.Context) error {
		active, err := subscriptions.IsSubscribed(ctx, c.Chat().ID)
		if err != nil {
			userLogger.WithField("chat_id", c.Chat().ID).WithError(err).Error("Failed to read subscription status")
			return c.Send("An error occurred. Please try again later.")
		}
		if active {
			return c.Send("Your subscription status: Active ✅")
		}
		return c.Send("Your subscription status: Inactive ❌")
	})
}
