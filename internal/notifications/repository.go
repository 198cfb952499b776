package notifications

import (
	"context"

	"github.com/subtrack/subtrack/internal/domain"
)

// SettingsStore loads and saves the reminder settings.
type SettingsStore interface {
	Get(ctx context.Context) (domain.NotificationSettings, error)
	Save(ctx context.Context, settings domain.NotificationSettings) error
}

// AlertStore gives access to the in-app alert feed.
type AlertStore interface {
	ListAlerts(ctx context.Context, limit int) ([]*domain.Alert, error)
	DeleteAlert(ctx context.Context, id string) error
}

// PushStore keeps browser push registrations.
type PushStore interface {
	SavePushSubscription(ctx context.Context, sub *domain.PushSubscription) error
	DeletePushSubscription(ctx context.Context, endpoint string) error
}

// Checker runs an on-demand reminder evaluation.
type Checker interface {
	CheckNow(ctx context.Context) (int, error)
}

// BackupSender sends a backup of all subscriptions to the chat.
type BackupSender interface {
	Send(ctx context.Context) (int, error)
}
