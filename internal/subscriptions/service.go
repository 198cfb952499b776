// Package subscriptions provides storage, business logic and HTTP handlers
// for the tracked subscriptions.
package subscriptions

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/subtrack/subtrack/internal/domain"
)

// Service implements subscription business logic.
type Service struct {
	repo            Repository
	loc             *time.Location
	defaultCurrency string
	now             func() time.Time
}

// NewService creates a new subscription service. Dates are evaluated in loc.
func NewService(repo Repository, loc *time.Location, defaultCurrency string) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:            repo,
		loc:             loc,
		defaultCurrency: defaultCurrency,
		now:             time.Now,
	}
}

func (s *Service) localNow() time.Time {
	return s.now().In(s.loc)
}

// List returns the user's subscriptions matching filter.
func (s *Service) List(ctx context.Context, userID string, filter Filter) ([]*domain.Subscription, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}

	subs, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	now := s.localNow()
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	out := make([]*domain.Subscription, 0, len(subs))
	for _, sub := range subs {
		if search != "" &&
			!strings.Contains(strings.ToLower(sub.Name), search) &&
			!strings.Contains(strings.ToLower(sub.Description), search) {
			continue
		}
		if filter.Category != "" && sub.Category != filter.Category {
			continue
		}
		switch filter.Status {
		case StatusActive:
			if !sub.IsActive {
				continue
			}
		case StatusInactive:
			if sub.IsActive {
				continue
			}
		case StatusExpiring:
			days := sub.DaysUntilRenewal(now)
			if days < 0 || days > ExpiringWindowDays {
				continue
			}
		}
		out = append(out, sub)
	}

	sortSubscriptions(out, filter.SortBy, filter.Desc)
	return out, nil
}

func (f Filter) validate() error {
	if f.Category != "" && !f.Category.IsValid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidFilter, f.Category)
	}
	switch f.Status {
	case StatusAll, StatusActive, StatusInactive, StatusExpiring:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, f.Status)
	}
	switch f.SortBy {
	case "", SortByRenewalDate, SortByName, SortByPrice, SortByCategory:
	default:
		return fmt.Errorf("%w: unknown sort field %q", ErrInvalidFilter, f.SortBy)
	}
	return nil
}

func sortSubscriptions(subs []*domain.Subscription, by SortField, desc bool) {
	less := func(a, b *domain.Subscription) int {
		switch by {
		case SortByName:
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		case SortByPrice:
			return a.Price.Cmp(b.Price)
		case SortByCategory:
			return strings.Compare(string(a.Category), string(b.Category))
		default:
			return a.RenewalDate.Compare(b.RenewalDate)
		}
	}
	sort.SliceStable(subs, func(i, j int) bool {
		c := less(subs[i], subs[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// Get returns one subscription of the user.
func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Subscription, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSubscriptionNotFound
	}
	return s.repo.GetByID(ctx, userID, id)
}

// Create validates and stores a new subscription for the user.
func (s *Service) Create(ctx context.Context, userID string, sub *domain.Subscription) (*domain.Subscription, error) {
	created := *sub
	created.ID = ""
	created.UserID = userID
	s.normalize(&created)

	if err := created.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, &created); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return &created, nil
}

// Update validates and stores changes to an existing subscription.
func (s *Service) Update(ctx context.Context, userID string, sub *domain.Subscription) (*domain.Subscription, error) {
	existing, err := s.Get(ctx, userID, sub.ID)
	if err != nil {
		return nil, err
	}

	updated := *sub
	updated.UserID = userID
	updated.CreatedAt = existing.CreatedAt
	s.normalize(&updated)

	if err := updated.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}
	return &updated, nil
}

// Delete removes a subscription of the user.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrSubscriptionNotFound
	}
	return s.repo.Delete(ctx, userID, id)
}

// Summary computes the user's spending figures.
func (s *Service) Summary(ctx context.Context, userID string) (domain.Summary, error) {
	subs, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("list subscriptions: %w", err)
	}
	return domain.Summarize(subs, s.localNow()), nil
}

func (s *Service) normalize(sub *domain.Subscription) {
	sub.Name = strings.TrimSpace(sub.Name)
	sub.Description = strings.TrimSpace(sub.Description)
	if sub.Currency == "" {
		sub.Currency = s.defaultCurrency
	}
	if sub.BillingPeriod == "" {
		sub.BillingPeriod = domain.BillingMonthly
	}
	if !sub.RenewalDate.IsZero() {
		y, m, d := sub.RenewalDate.Date()
		sub.RenewalDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
}

// ForUser returns a store scoped to one user, used by the chat bot and the
// renewal scheduler.
func (s *Service) ForUser(userID string) *UserStore {
	return &UserStore{service: s, userID: userID}
}

// UserStore exposes the service for a single user.
type UserStore struct {
	service *Service
	userID  string
}

// List returns all subscriptions of the user.
func (u *UserStore) List(ctx context.Context) ([]*domain.Subscription, error) {
	return u.service.repo.ListForUser(ctx, u.userID)
}

// Create stores a new subscription.
func (u *UserStore) Create(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	return u.service.Create(ctx, u.userID, sub)
}

// Update stores changes to a subscription.
func (u *UserStore) Update(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	return u.service.Update(ctx, u.userID, sub)
}
