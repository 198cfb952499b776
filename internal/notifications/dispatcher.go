package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/subtrack/subtrack/internal/domain"
)

// Dispatcher routes notifications to the sender registered for a channel.
type Dispatcher struct {
	senders map[domain.ChannelType]Sender
}

// NewDispatcher creates a new notification dispatcher.
func NewDispatcher(senders ...Sender) *Dispatcher {
	senderMap := make(map[domain.ChannelType]Sender)
	for _, s := range senders {
		senderMap[s.Type()] = s
	}
	return &Dispatcher{senders: senderMap}
}

// Has reports whether a sender is registered for channelType.
func (d *Dispatcher) Has(channelType domain.ChannelType) bool {
	_, ok := d.senders[channelType]
	return ok
}

// SendToChannel sends notification with the sender for channelType.
func (d *Dispatcher) SendToChannel(ctx context.Context, channelType domain.ChannelType, notification Notification) error {
	sender, ok := d.senders[channelType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSender, channelType)
	}

	start := time.Now()
	err := sender.Send(ctx, notification)
	recordNotificationDuration(string(channelType), time.Since(start))

	switch {
	case err == nil:
		recordNotificationSent(string(channelType), "success")
		slog.Debug("notification sent",
			"channel_type", channelType,
			"subscription_id", notification.SubscriptionID,
		)
	case errors.Is(err, ErrNotConfigured):
		recordNotificationSent(string(channelType), "skipped")
	default:
		recordNotificationSent(string(channelType), "failed")
	}
	return err
}
