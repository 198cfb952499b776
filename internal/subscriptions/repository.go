package subscriptions

import (
	"context"

	"github.com/subtrack/subtrack/internal/domain"
)

// Repository defines the interface for subscription data operations.
// Every operation is scoped to one user.
type Repository interface {
	ListForUser(ctx context.Context, userID string) ([]*domain.Subscription, error)
	GetByID(ctx context.Context, userID, id string) (*domain.Subscription, error)
	Create(ctx context.Context, sub *domain.Subscription) error
	Update(ctx context.Context, sub *domain.Subscription) error
	Delete(ctx context.Context, userID, id string) error
}

// Status narrows a listing by activity.
type Status string

// Listing statuses.
const (
	StatusAll      Status = ""
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	// StatusExpiring selects subscriptions renewing within ExpiringWindowDays.
	StatusExpiring Status = "expiring"
)

// SortField is the column a listing is ordered by.
type SortField string

// Sort fields.
const (
	SortByRenewalDate SortField = "renewal_date"
	SortByName        SortField = "name"
	SortByPrice       SortField = "price"
	SortByCategory    SortField = "category"
)

// ExpiringWindowDays is the horizon of StatusExpiring.
const ExpiringWindowDays = 7

// Filter represents filter criteria for listing subscriptions.
type Filter struct {
	Search   string
	Category domain.Category
	Status   Status
	SortBy   SortField
	Desc     bool
}
