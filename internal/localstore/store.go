// Package localstore provides the installation-local SQLite store used for
// settings, reminder dedup markers, the in-app alert feed and bot state.
package localstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/subtrack/subtrack/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("key not found")

const timeLayout = time.RFC3339Nano

// Store is a small key-value and bookkeeping store backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply local store schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// GetJSON decodes the JSON value stored under key into v.
func (s *Store) GetJSON(ctx context.Context, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON stores v encoded as JSON under key.
func (s *Store) SetJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(raw))
}

// HasMarker reports whether a reminder was already delivered for the
// subscription, day and channel.
func (s *Store) HasMarker(ctx context.Context, subscriptionID, day string, channel domain.ChannelType) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reminder_markers
		WHERE subscription_id = ? AND day = ? AND channel = ?
	`, subscriptionID, day, string(channel)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check marker: %w", err)
	}
	return n > 0, nil
}

// SetMarker records a delivered reminder.
func (s *Store) SetMarker(ctx context.Context, subscriptionID, day string, channel domain.ChannelType, sentAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminder_markers (subscription_id, day, channel, sent_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (subscription_id, day, channel) DO NOTHING
	`, subscriptionID, day, string(channel), sentAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("set marker: %w", err)
	}
	return nil
}

// PurgeMarkers deletes markers for days strictly before the given ISO date
// and returns how many were removed.
func (s *Store) PurgeMarkers(ctx context.Context, beforeDay string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminder_markers WHERE day < ?`, beforeDay)
	if err != nil {
		return 0, fmt.Errorf("purge markers: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge markers: %w", err)
	}
	return n, nil
}

// AddAlert appends an alert to the in-app feed.
func (s *Store) AddAlert(ctx context.Context, alert *domain.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inbox_alerts (id, subscription_id, title, body, created_at) VALUES (?, ?, ?, ?, ?)
	`, alert.ID, alert.SubscriptionID, alert.Title, alert.Body, alert.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("add alert: %w", err)
	}
	return nil
}

// ListAlerts returns up to limit alerts, newest first.
func (s *Store) ListAlerts(ctx context.Context, limit int) ([]*domain.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subscription_id, title, body, created_at
		FROM inbox_alerts
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	alerts := make([]*domain.Alert, 0)
	for rows.Next() {
		var a domain.Alert
		var createdAt string
		if err := rows.Scan(&a.ID, &a.SubscriptionID, &a.Title, &a.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if a.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse alert time: %w", err)
		}
		alerts = append(alerts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}

// DeleteAlert removes an alert from the feed.
func (s *Store) DeleteAlert(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM inbox_alerts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SavePushSubscription registers or refreshes a browser push subscription.
func (s *Store) SavePushSubscription(ctx context.Context, sub *domain.PushSubscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO push_subscriptions (endpoint, p256dh_key, auth_key, device_name, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (endpoint) DO UPDATE SET
			p256dh_key = excluded.p256dh_key,
			auth_key = excluded.auth_key,
			device_name = excluded.device_name
	`, sub.Endpoint, sub.P256dhKey, sub.AuthKey, sub.DeviceName, sub.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("save push subscription: %w", err)
	}
	return nil
}

// ListPushSubscriptions returns all registered push subscriptions.
func (s *Store) ListPushSubscriptions(ctx context.Context) ([]*domain.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT endpoint, p256dh_key, auth_key, device_name, created_at
		FROM push_subscriptions
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	subs := make([]*domain.PushSubscription, 0)
	for rows.Next() {
		var p domain.PushSubscription
		var createdAt string
		if err := rows.Scan(&p.Endpoint, &p.P256dhKey, &p.AuthKey, &p.DeviceName, &createdAt); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		if p.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse push subscription time: %w", err)
		}
		subs = append(subs, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate push subscriptions: %w", err)
	}
	return subs, nil
}

// DeletePushSubscription removes a registration, e.g. after the push
// service reports it gone.
func (s *Store) DeletePushSubscription(ctx context.Context, endpoint string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint); err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}
