package notifications

import "errors"

// Delivery errors.
var (
	// ErrNotConfigured means the channel has no credentials or no target.
	// Callers skip the channel silently.
	ErrNotConfigured = errors.New("channel not configured")
	ErrNoSender      = errors.New("no sender for channel type")
)

// Management errors.
var (
	ErrAlertNotFound       = errors.New("alert not found")
	ErrPushDisabled        = errors.New("push notifications are not configured")
	ErrInvalidPushEndpoint = errors.New("push endpoint must be an https url")
)
