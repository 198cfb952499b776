// Package postgres provides PostgreSQL implementation of the subscriptions repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/subtrack/subtrack/internal/domain"
	"github.com/subtrack/subtrack/internal/subscriptions"
)

const selectColumns = `
	id, user_id, name, price::text, currency, renewal_date, category,
	description, is_active, billing_period, created_at, updated_at
`

// Repository implements the subscriptions.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListForUser returns every subscription of the user ordered by renewal date.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]*domain.Subscription, error) {
	query := `SELECT ` + selectColumns + `
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY renewal_date, name
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]*domain.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

// GetByID retrieves one subscription of the user.
func (r *Repository) GetByID(ctx context.Context, userID, id string) (*domain.Subscription, error) {
	query := `SELECT ` + selectColumns + `
		FROM subscriptions
		WHERE id = $1 AND user_id = $2
	`
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, subscriptions.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription by id: %w", err)
	}
	return sub, nil
}

// Create inserts a subscription and fills in its id and timestamps.
func (r *Repository) Create(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (user_id, name, price, currency, renewal_date, category,
			description, is_active, billing_period)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		sub.UserID,
		sub.Name,
		sub.Price.StringFixed(2),
		sub.Currency,
		sub.RenewalDate,
		string(sub.Category),
		sub.Description,
		sub.IsActive,
		string(sub.BillingPeriod),
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

// Update overwrites the editable fields of a subscription.
func (r *Repository) Update(ctx context.Context, sub *domain.Subscription) error {
	query := `
		UPDATE subscriptions
		SET name = $3, price = $4::numeric, currency = $5, renewal_date = $6, category = $7,
			description = $8, is_active = $9, billing_period = $10, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		sub.ID,
		sub.UserID,
		sub.Name,
		sub.Price.StringFixed(2),
		sub.Currency,
		sub.RenewalDate,
		string(sub.Category),
		sub.Description,
		sub.IsActive,
		string(sub.BillingPeriod),
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return subscriptions.ErrSubscriptionNotFound
		}
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

// Delete removes a subscription of the user.
func (r *Repository) Delete(ctx context.Context, userID, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if result.RowsAffected() == 0 {
		return subscriptions.ErrSubscriptionNotFound
	}
	return nil
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var (
		sub      domain.Subscription
		price    string
		category string
		period   string
	)
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.Name,
		&price,
		&sub.Currency,
		&sub.RenewalDate,
		&category,
		&sub.Description,
		&sub.IsActive,
		&period,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", price, err)
	}
	sub.Category = domain.Category(category)
	sub.BillingPeriod = domain.BillingPeriod(period)
	return &sub, nil
}
