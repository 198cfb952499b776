// Package inbox stores renewal reminders as in-app alerts shown by the web
// client.
package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/subtrack/subtrack/internal/domain"
	"github.com/subtrack/subtrack/internal/notifications"
)

// Store persists alerts.
type Store interface {
	AddAlert(ctx context.Context, alert *domain.Alert) error
}

// Sender implements the inbox channel.
type Sender struct {
	store Store
	now   func() time.Time
}

// NewSender creates an inbox sender.
func NewSender(store Store) *Sender {
	return &Sender{store: store, now: time.Now}
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeInbox
}

// Send stores the notification as an alert.
func (s *Sender) Send(ctx context.Context, notification notifications.Notification) error {
	alert := &domain.Alert{
		ID:             uuid.NewString(),
		SubscriptionID: notification.SubscriptionID,
		Title:          notification.Subject,
		Body:           notification.Body,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.AddAlert(ctx, alert); err != nil {
		return fmt.Errorf("add alert: %w", err)
	}
	return nil
}
