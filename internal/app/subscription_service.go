package app

import (
	"context"
	"fmt"
)

type SubscriptionService struct {
	subscribers SubscriberStore
}

func NewSubscriptionService(subs SubscriberStore) *SubscriptionService {
	return &SubscriptionService{subscribers: subs}
}

// Subscribe reports whether the chat was newly activated.
func (s *SubscriptionService) Subscribe(ctx context.Context, chatID, userID int64) (bool, error) {
	created, err := s.subscribers.Subscribe(ctx, chatID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to subscribe chat %d: %w", chatID, err)
	}
	return created, nil
}

func (s *SubscriptionService) Unsubscribe(ctx context.Context, chatID int64) error {
	if err := s.subscribers.Unsubscribe(ctx, chatID); err != nil {
		return fmt.Errorf("failed to unsubscribe chat %d: %w", chatID, err)
	}
	return nil
}

func (s *SubscriptionService) IsSubscribed(ctx context.Context, chatID int64) (bool, error) {
	active, err := s.subscribers.IsActive(ctx, chatID)
	if err != nil {
		return false, fmt.Errorf("failed to read subscription of chat %d: %w", chatID, err)
	}
	return active, nil
}
