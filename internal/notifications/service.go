package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/subtrack/subtrack/internal/domain"
	"github.com/subtrack/subtrack/internal/localstore"
)

// DefaultAlertLimit caps the alert feed returned to the client.
const DefaultAlertLimit = 50

// Service implements the owner-facing notification management: settings,
// the alert feed, push registrations, on-demand checks and backups.
type Service struct {
	settings SettingsStore
	alerts   AlertStore
	push     PushStore
	checker  Checker
	backup   BackupSender

	// pushKey is the VAPID public key handed to browsers. Empty disables
	// push registration.
	pushKey string
	now     func() time.Time
}

// ServiceDeps groups the collaborators of Service.
type ServiceDeps struct {
	Settings SettingsStore
	Alerts   AlertStore
	Push     PushStore
	Checker  Checker
	Backup   BackupSender
	PushKey  string
}

// NewService creates a new notification management service.
func NewService(deps ServiceDeps) *Service {
	return &Service{
		settings: deps.Settings,
		alerts:   deps.Alerts,
		push:     deps.Push,
		checker:  deps.Checker,
		backup:   deps.Backup,
		pushKey:  deps.PushKey,
		now:      time.Now,
	}
}

// GetSettings returns the current reminder settings.
func (s *Service) GetSettings(ctx context.Context) (domain.NotificationSettings, error) {
	return s.settings.Get(ctx)
}

// UpdateSettings validates and stores settings.
func (s *Service) UpdateSettings(ctx context.Context, settings domain.NotificationSettings) (domain.NotificationSettings, error) {
	if err := s.settings.Save(ctx, settings); err != nil {
		return domain.NotificationSettings{}, err
	}
	slog.Info("notification settings updated",
		"enabled", settings.Enabled,
		"days_before_renewal", settings.DaysBeforeRenewal,
		"alert_days", settings.AlertDays,
	)
	return s.settings.Get(ctx)
}

// ListAlerts returns the newest in-app alerts.
func (s *Service) ListAlerts(ctx context.Context) ([]*domain.Alert, error) {
	return s.alerts.ListAlerts(ctx, DefaultAlertLimit)
}

// DismissAlert removes an alert from the feed.
func (s *Service) DismissAlert(ctx context.Context, id string) error {
	err := s.alerts.DeleteAlert(ctx, id)
	if errors.Is(err, localstore.ErrNotFound) {
		return ErrAlertNotFound
	}
	return err
}

// PushPublicKey returns the VAPID public key, or ErrPushDisabled.
func (s *Service) PushPublicKey() (string, error) {
	if s.pushKey == "" {
		return "", ErrPushDisabled
	}
	return s.pushKey, nil
}

// RegisterPush stores a browser push registration.
func (s *Service) RegisterPush(ctx context.Context, sub *domain.PushSubscription) error {
	if s.pushKey == "" {
		return ErrPushDisabled
	}
	u, err := url.Parse(sub.Endpoint)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return ErrInvalidPushEndpoint
	}
	sub.CreatedAt = s.now().UTC()
	if err := s.push.SavePushSubscription(ctx, sub); err != nil {
		return fmt.Errorf("register push subscription: %w", err)
	}
	slog.Info("push subscription registered", "device", sub.DeviceName, "host", u.Host)
	return nil
}

// UnregisterPush removes a browser push registration.
func (s *Service) UnregisterPush(ctx context.Context, endpoint string) error {
	return s.push.DeletePushSubscription(ctx, endpoint)
}

// CheckNow evaluates reminders immediately and returns how many were sent.
func (s *Service) CheckNow(ctx context.Context) (int, error) {
	return s.checker.CheckNow(ctx)
}

// SendBackup sends a backup to the chat and returns the number of
// subscriptions in it.
func (s *Service) SendBackup(ctx context.Context) (int, error) {
	if s.backup == nil {
		return 0, ErrNotConfigured
	}
	return s.backup.Send(ctx)
}
