package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"forecast_bot/internal/app"
	"forecast_bot/internal/domain/run"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const unauthorizedText = "Error: you are not allowed to use this command."

// RegisterAdminHandlers registers handlers for admin commands.
// Manual runs execute in the background and reply with a report when done.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, baseLogger *logrus.Entry) {
	b.Handle("/schedule_list", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/schedule_list",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		statuses, err := adminService.ListSchedules(ctx, c.Sender().ID)
		if err != nil {
			if errors.Is(err, app.ErrAdminNotAuthorized) {
				handlerLogger.Warn("Unauthorized access attempt")
				return c.Send(unauthorizedText)
			}
			handlerLogger.WithError(err).Error("Failed to list schedules")
			return c.Send("An error occurred while listing schedules.")
		}
		return c.Send(formatScheduleList(statuses), htmlOptions)
	})

	b.Handle("/subscribers_count", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/subscribers_count",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		n, err := adminService.SubscriberCount(ctx, c.Sender().ID)
		if err != nil {
			if errors.Is(err, app.ErrAdminNotAuthorized) {
				handlerLogger.Warn("Unauthorized access attempt")
				return c.Send(unauthorizedText)
			}
			handlerLogger.WithError(err).Error("Failed to count subscribers")
			return c.Send("An error occurred while counting subscribers.")
		}
		return c.Send(fmt.Sprintf("Active Subscribers: %d", n))
	})

	b.Handle("/run_now", func(c telebot.Context) error {
		senderID := c.Sender().ID
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/run_now",
			"sender_id": senderID,
		})
		handlerLogger.Info("Command received")

		if !adminService.IsAdmin(senderID) {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(unauthorizedText)
		}

		scheduleID, broadcast, problem := parseRunNowArgs(c.Args())
		if problem != "" {
			return c.Send(problem)
		}
		handlerLogger = handlerLogger.WithFields(logrus.Fields{
			"schedule_id": scheduleID,
			"broadcast":   broadcast,
		})

		target := "you only (test)"
		if broadcast {
			target = "all subscribers"
		}
		if err := c.Send(fmt.Sprintf("🚀 Triggering schedule %d, sending to %s...", scheduleID, target)); err != nil {
			handlerLogger.WithError(err).Warn("Failed to acknowledge command")
		}

		chat := c.Chat()
		go func() {
			report, err := adminService.RunNow(ctx, senderID, scheduleID, broadcast)
			if err != nil {
				handlerLogger.WithError(err).Warn("Manual run did not succeed")
			}
			if _, sendErr := b.Send(chat, formatRunReport(scheduleID, report, err), htmlOptions); sendErr != nil {
				handlerLogger.WithError(sendErr).Error("Failed to send run report")
			}
		}()
		return nil
	})
}

// parseRunNowArgs returns a reply text as problem when the arguments are invalid.
func parseRunNowArgs(args []string) (id int64, broadcast bool, problem string) {
	const usage = "Usage: /run_now <schedule_id> [broadcast|test]"
	if len(args) < 1 || len(args) > 2 {
		return 0, false, usage
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false, "Invalid ID."
	}
	if len(args) == 2 {
		switch strings.ToLower(args[1]) {
		case "broadcast", "all":
			broadcast = true
		case "test":
		default:
			return 0, false, usage
		}
	}
	return id, broadcast, ""
}

func formatScheduleList(statuses []app.ScheduleStatus) string {
	if len(statuses) == 0 {
		return "No schedules defined."
	}

	blocks := make([]string, 0, len(statuses)+1)
	blocks = append(blocks, "<b>Forecast Schedules:</b>")
	for _, st := range statuses {
		s := st.Schedule
		icon := "🟢"
		if !s.Enabled {
			icon = "🔴"
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%s <b>ID %d</b> | %s UTC | %s\n", icon, s.ID, s.TimeOfDay, html.EscapeString(s.DisplayTitle()))
		fmt.Fprintf(&b, "   Countries: %s\n", html.EscapeString(strings.Join(s.Countries, ", ")))
		fmt.Fprintf(&b, "   Topics: %s\n", html.EscapeString(strings.Join(s.Topics, ", ")))
		fmt.Fprintf(&b, "   Lang: %s | %s | %s\n", html.EscapeString(s.Language), html.EscapeString(s.TimeHorizon), html.EscapeString(s.Depth))
		b.WriteString("   Today: " + formatRecord(st.Today))
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

func formatRecord(r *run.Record) string {
	if r == nil {
		return "not run yet"
	}
	switch r.Status {
	case run.StatusPending:
		return fmt.Sprintf("running since %s", r.StartedAt.UTC().Format("15:04"))
	case run.StatusSuccess:
		return fmt.Sprintf("success (%d recipients, %d failed)", r.RecipientCount, r.FailureCount)
	default:
		reason := "unknown error"
		if r.ErrorSummary.Valid {
			reason = r.ErrorSummary.String
		}
		return "failed: " + html.EscapeString(reason)
	}
}

func formatRunReport(scheduleID int64, report *app.RunReport, err error) string {
	switch {
	case errors.Is(err, app.ErrScheduleNotFound):
		return fmt.Sprintf("Error: schedule %d not found.", scheduleID)
	case errors.Is(err, run.ErrAlreadyRunning):
		return fmt.Sprintf("Schedule %d is already running. Try again later.", scheduleID)
	case report == nil && err != nil:
		return "Run failed: " + html.EscapeString(err.Error())
	}

	var b strings.Builder
	if err != nil {
		fmt.Fprintf(&b, "⚠️ Run of schedule %d failed: %s\n", scheduleID, html.EscapeString(report.Summary))
	} else {
		fmt.Fprintf(&b, "✅ Run of schedule %d finished.\n", scheduleID)
	}
	fmt.Fprintf(&b, "Mode: %s | Topics: %d | Sent: %d/%d | Duration: %s",
		report.Mode, report.Topics, report.Sent, report.Recipients, report.Duration.Round(time.Second))
	if len(report.TopicErrors) > 0 {
		fmt.Fprintf(&b, "\nSkipped topics: %d", len(report.TopicErrors))
	}
	return b.String()
}
