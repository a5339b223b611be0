package telegram

import (
	"context"

	domainTelegram "forecast_bot/internal/domain/telegram"

	"github.com/sirupsen/logrus"
)

// AdminNotifier sends operational notices to every configured admin.
type AdminNotifier struct {
	client   domainTelegram.Client
	adminIDs []int64
	logger   *logrus.Entry
}

func NewAdminNotifier(client domainTelegram.Client, adminIDs []int64, logger *logrus.Entry) *AdminNotifier {
	return &AdminNotifier{client: client, adminIDs: adminIDs, logger: logger.WithField("component", "admin_notifier")}
}

func (n *AdminNotifier) NotifyAdmins(ctx context.Context, text string) {
	for _, id := range n.adminIDs {
		if err := n.client.SendHTML(ctx, id, text); err != nil {
			n.logger.WithField("admin_id", id).WithError(err).Warn("Failed to notify admin")
		}
	}
}
