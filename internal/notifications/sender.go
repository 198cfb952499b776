// Package notifications delivers renewal reminders and backups over the
// configured channels.
package notifications

import (
	"context"
	"errors"

	"github.com/subtrack/subtrack/internal/domain"
)

// Notification is a rendered message ready for a channel.
type Notification struct {
	// To is the channel-specific target. Empty means the sender's default.
	To             string
	Subject        string
	Body           string
	SubscriptionID string
}

// Sender delivers notifications over one channel type.
type Sender interface {
	Type() domain.ChannelType
	Send(ctx context.Context, notification Notification) error
}

// IsRetryable reports whether err is worth another attempt in a later
// cycle. Errors without classification are treated as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotConfigured) {
		return false
	}
	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return true
}
