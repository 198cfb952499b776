package subscriptions

import "errors"

// Subscription errors.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrNothingToImport      = errors.New("no valid subscriptions found in import")
	ErrInvalidImport        = errors.New("import must be a JSON array of subscriptions or a backup document")
	ErrUnsupportedFormat    = errors.New("unsupported export format")
	ErrInvalidFilter        = errors.New("invalid filter")
)
