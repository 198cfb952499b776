package reminders

import (
	"context"
	"errors"
	"fmt"

	"github.com/subtrack/subtrack/internal/domain"
	"github.com/subtrack/subtrack/internal/localstore"
)

const settingsKey = "notification_settings"

// KV is the part of the local store settings are kept in.
type KV interface {
	GetJSON(ctx context.Context, key string, v any) error
	SetJSON(ctx context.Context, key string, v any) error
}

// SettingsStore loads and saves NotificationSettings.
type SettingsStore struct {
	kv KV
}

// NewSettingsStore creates a SettingsStore.
func NewSettingsStore(kv KV) *SettingsStore {
	return &SettingsStore{kv: kv}
}

// Get returns the saved settings, or the defaults when none were saved.
func (s *SettingsStore) Get(ctx context.Context) (domain.NotificationSettings, error) {
	var settings domain.NotificationSettings
	err := s.kv.GetJSON(ctx, settingsKey, &settings)
	if errors.Is(err, localstore.ErrNotFound) {
		return domain.DefaultNotificationSettings(), nil
	}
	if err != nil {
		return domain.NotificationSettings{}, fmt.Errorf("load notification settings: %w", err)
	}
	return settings, nil
}

// Save validates and stores settings.
func (s *SettingsStore) Save(ctx context.Context, settings domain.NotificationSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if settings.AlertDays == nil {
		settings.AlertDays = []int{}
	}
	if err := s.kv.SetJSON(ctx, settingsKey, settings); err != nil {
		return fmt.Errorf("save notification settings: %w", err)
	}
	return nil
}
