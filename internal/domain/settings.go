package domain

import (
	"errors"
	"slices"
)

// ChannelType identifies a reminder delivery channel.
type ChannelType string

// Channel types.
const (
	ChannelTypeInbox    ChannelType = "inbox"
	ChannelTypePush     ChannelType = "push"
	ChannelTypeTelegram ChannelType = "telegram"
)

// DefaultAlertDays are the days-before-renewal on which alerts fire.
var DefaultAlertDays = []int{7, 3, 1, 0}

// Settings errors.
var (
	ErrInvalidAlertDays = errors.New("alert days must be between 0 and 365")
	ErrInvalidThreshold = errors.New("days before renewal must be between 0 and 365")
)

// NotificationSettings controls renewal reminders for the installation.
type NotificationSettings struct {
	Enabled           bool  `json:"enabled"`
	DaysBeforeRenewal int   `json:"days_before_renewal"`
	AlertDays         []int `json:"alert_days"`
	PushNotifications bool  `json:"push_notifications"`
	ChatNotifications bool  `json:"chat_notifications"`
}

// DefaultNotificationSettings returns the settings used before the user saves any.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		Enabled:           true,
		DaysBeforeRenewal: 7,
		AlertDays:         slices.Clone(DefaultAlertDays),
		PushNotifications: false,
		ChatNotifications: true,
	}
}

// Validate checks threshold and alert day ranges.
func (s NotificationSettings) Validate() error {
	if s.DaysBeforeRenewal < 0 || s.DaysBeforeRenewal > 365 {
		return ErrInvalidThreshold
	}
	for _, d := range s.AlertDays {
		if d < 0 || d > 365 {
			return ErrInvalidAlertDays
		}
	}
	return nil
}

// ShouldAlert reports whether a subscription renewing in days should alert.
// Only alert days within the threshold count.
func (s NotificationSettings) ShouldAlert(days int) bool {
	if !s.Enabled || days < 0 || days > s.DaysBeforeRenewal {
		return false
	}
	return slices.Contains(s.AlertDays, days)
}
