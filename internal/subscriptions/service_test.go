package subscriptions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subtrack/subtrack/internal/domain"
)

const testUser = "user-1"

type memRepository struct {
	subs    map[string]*domain.Subscription
	listErr error
}

func newMemRepository(subs ...*domain.Subscription) *memRepository {
	r := &memRepository{subs: make(map[string]*domain.Subscription)}
	for _, s := range subs {
		r.subs[s.ID] = s
	}
	return r
}

func (r *memRepository) ListForUser(_ context.Context, userID string) ([]*domain.Subscription, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*domain.Subscription
	for _, s := range r.subs {
		if s.UserID == userID {
			c := *s
			out = append(out, &c)
		}
	}
	sortSubscriptions(out, SortByName, false)
	return out, nil
}

func (r *memRepository) GetByID(_ context.Context, userID, id string) (*domain.Subscription, error) {
	s, ok := r.subs[id]
	if !ok || s.UserID != userID {
		return nil, ErrSubscriptionNotFound
	}
	c := *s
	return &c, nil
}

func (r *memRepository) Create(_ context.Context, sub *domain.Subscription) error {
	sub.ID = uuid.NewString()
	sub.CreatedAt = time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	sub.UpdatedAt = sub.CreatedAt
	c := *sub
	r.subs[sub.ID] = &c
	return nil
}

func (r *memRepository) Update(_ context.Context, sub *domain.Subscription) error {
	if _, ok := r.subs[sub.ID]; !ok {
		return ErrSubscriptionNotFound
	}
	c := *sub
	r.subs[sub.ID] = &c
	return nil
}

func (r *memRepository) Delete(_ context.Context, userID, id string) error {
	s, ok := r.subs[id]
	if !ok || s.UserID != userID {
		return ErrSubscriptionNotFound
	}
	delete(r.subs, id)
	return nil
}

var testNow = time.Date(2025, 12, 12, 10, 0, 0, 0, time.UTC)

func sub(name, price string, category domain.Category, renewal time.Time) *domain.Subscription {
	return &domain.Subscription{
		ID:            uuid.NewString(),
		UserID:        testUser,
		Name:          name,
		Price:         decimal.RequireFromString(price),
		Currency:      "R$",
		RenewalDate:   renewal,
		Category:      category,
		IsActive:      true,
		BillingPeriod: domain.BillingMonthly,
	}
}

func day(d int) time.Time {
	return time.Date(2025, 12, d, 0, 0, 0, 0, time.UTC)
}

func newTestService(repo Repository) *Service {
	s := NewService(repo, time.UTC, "R$")
	s.now = func() time.Time { return testNow }
	return s
}

func names(subs []*domain.Subscription) []string {
	out := make([]string, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.Name)
	}
	return out
}

func TestService_List(t *testing.T) {
	spotify := sub("Spotify", "21.90", domain.CategoryMusic, day(14))
	spotify.Description = "family plan"
	netflix := sub("Netflix", "55.90", domain.CategoryStreaming, day(28))
	notion := sub("Notion", "48.00", domain.CategoryProductivity, day(19))
	gym := sub("Gym", "99.00", domain.CategoryHealth, day(13))
	gym.IsActive = false
	other := sub("Other user", "10.00", domain.CategoryOther, day(13))
	other.UserID = "user-2"

	svc := newTestService(newMemRepository(spotify, netflix, notion, gym, other))

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"default sorts by renewal date", Filter{}, []string{"Gym", "Spotify", "Notion", "Netflix"}},
		{"search matches name case-insensitively", Filter{Search: "NET"}, []string{"Netflix"}},
		{"search matches description", Filter{Search: "family"}, []string{"Spotify"}},
		{"category", Filter{Category: domain.CategoryMusic}, []string{"Spotify"}},
		{"active", Filter{Status: StatusActive}, []string{"Spotify", "Notion", "Netflix"}},
		{"inactive", Filter{Status: StatusInactive}, []string{"Gym"}},
		{"expiring within seven days", Filter{Status: StatusExpiring}, []string{"Gym", "Spotify", "Notion"}},
		{"sort by name", Filter{SortBy: SortByName}, []string{"Gym", "Netflix", "Notion", "Spotify"}},
		{"sort by price descending", Filter{SortBy: SortByPrice, Desc: true}, []string{"Gym", "Netflix", "Notion", "Spotify"}},
		{"sort by category", Filter{SortBy: SortByCategory}, []string{"Gym", "Spotify", "Notion", "Netflix"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.List(context.Background(), testUser, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
		})
	}
}

func TestService_List_InvalidFilter(t *testing.T) {
	svc := newTestService(newMemRepository())

	for _, f := range []Filter{
		{Category: "food"},
		{Status: "paused"},
		{SortBy: "created_at"},
	} {
		_, err := svc.List(context.Background(), testUser, f)
		assert.ErrorIs(t, err, ErrInvalidFilter)
	}
}

func TestService_Create(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(repo)

	in := &domain.Subscription{
		ID:          "client-chosen",
		Name:        "  Netflix  ",
		Price:       decimal.RequireFromString("29.90"),
		RenewalDate: time.Date(2025, 12, 20, 15, 30, 0, 0, time.FixedZone("BRT", -3*60*60)),
		Category:    domain.CategoryStreaming,
		IsActive:    true,
	}

	created, err := svc.Create(context.Background(), testUser, in)
	require.NoError(t, err)

	assert.NotEqual(t, "client-chosen", created.ID)
	assert.Equal(t, testUser, created.UserID)
	assert.Equal(t, "Netflix", created.Name)
	assert.Equal(t, "R$", created.Currency)
	assert.Equal(t, domain.BillingMonthly, created.BillingPeriod)
	assert.Equal(t, time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC), created.RenewalDate)
	assert.Len(t, repo.subs, 1)
}

func TestService_Create_Invalid(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), testUser, &domain.Subscription{
		Name:        "Netflix",
		Price:       decimal.Zero,
		RenewalDate: day(20),
		Category:    domain.CategoryStreaming,
	})
	assert.ErrorIs(t, err, domain.ErrPriceNotPositive)
	assert.Empty(t, repo.subs)
}

func TestService_Update(t *testing.T) {
	existing := sub("Netflix", "29.90", domain.CategoryStreaming, day(20))
	existing.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := newMemRepository(existing)
	svc := newTestService(repo)

	changed := *existing
	changed.Price = decimal.RequireFromString("39.90")
	changed.CreatedAt = time.Time{}

	updated, err := svc.Update(context.Background(), testUser, &changed)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, updated.ID)
	assert.True(t, updated.Price.Equal(decimal.RequireFromString("39.90")))
	assert.Equal(t, existing.CreatedAt, updated.CreatedAt)
}

func TestService_Update_OtherUser(t *testing.T) {
	existing := sub("Netflix", "29.90", domain.CategoryStreaming, day(20))
	svc := newTestService(newMemRepository(existing))

	_, err := svc.Update(context.Background(), "user-2", existing)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestService_GetDelete_NonUUID(t *testing.T) {
	svc := newTestService(newMemRepository())

	_, err := svc.Get(context.Background(), testUser, "not-a-uuid")
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)

	err = svc.Delete(context.Background(), testUser, "not-a-uuid")
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestService_Delete(t *testing.T) {
	existing := sub("Netflix", "29.90", domain.CategoryStreaming, day(20))
	repo := newMemRepository(existing)
	svc := newTestService(repo)

	require.NoError(t, svc.Delete(context.Background(), testUser, existing.ID))
	assert.Empty(t, repo.subs)

	err := svc.Delete(context.Background(), testUser, existing.ID)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestService_Summary(t *testing.T) {
	annual := sub("Office", "120.00", domain.CategorySoftware, day(30))
	annual.BillingPeriod = domain.BillingAnnual
	svc := newTestService(newMemRepository(
		sub("Netflix", "30.00", domain.CategoryStreaming, day(15)),
		annual,
	))

	sum, err := svc.Summary(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.ActiveSubscriptions)
	assert.True(t, sum.MonthlyTotal.Equal(decimal.NewFromInt(30)))
	assert.True(t, sum.AnnualTotal.Equal(decimal.NewFromInt(120)))
	assert.True(t, sum.ProjectedAnnual.Equal(decimal.NewFromInt(480)))
}

func TestService_RepositoryError(t *testing.T) {
	repo := newMemRepository()
	repo.listErr = errors.New("connection refused")
	svc := newTestService(repo)

	_, err := svc.List(context.Background(), testUser, Filter{})
	assert.ErrorContains(t, err, "connection refused")

	_, err = svc.Summary(context.Background(), testUser)
	assert.Error(t, err)
}

func TestUserStore(t *testing.T) {
	repo := newMemRepository(sub("Other", "10.00", domain.CategoryOther, day(20)))
	for _, s := range repo.subs {
		s.UserID = "user-2"
	}
	svc := newTestService(repo)
	store := svc.ForUser(testUser)

	created, err := store.Create(context.Background(), sub("Netflix", "29.90", domain.CategoryStreaming, day(20)))
	require.NoError(t, err)

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	created.Name = "Netflix Premium"
	updated, err := store.Update(context.Background(), created)
	require.NoError(t, err)
	assert.Equal(t, "Netflix Premium", updated.Name)
}
