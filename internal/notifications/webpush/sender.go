// Package webpush delivers renewal reminders as browser push notifications.
package webpush

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	webpushgo "github.com/SherClockHolmes/webpush-go"
	"github.com/subtrack/subtrack/internal/domain"
	"github.com/subtrack/subtrack/internal/notifications"
)

const (
	defaultTimeout = 10 * time.Second
	defaultTTL     = 24 * time.Hour
)

// Config holds VAPID settings.
type Config struct {
	Enabled         bool          `koanf:"enabled"`
	VAPIDPublicKey  string        `koanf:"vapid_public_key"`
	VAPIDPrivateKey string        `koanf:"vapid_private_key"`
	Subscriber      string        `koanf:"subscriber"`
	TTL             time.Duration `koanf:"ttl"`
}

// Store lists and prunes browser registrations.
type Store interface {
	ListPushSubscriptions(ctx context.Context) ([]*domain.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error
}

// Sender implements the push channel.
type Sender struct {
	config     Config
	store      Store
	httpClient *http.Client
}

// NewSender creates a push sender.
// Returns error if enabled but VAPID keys are missing.
func NewSender(config Config, store Store) (*Sender, error) {
	if config.Enabled {
		if config.VAPIDPublicKey == "" || config.VAPIDPrivateKey == "" {
			return nil, errors.New("webpush sender: vapid keys are required when enabled")
		}
		if config.Subscriber == "" {
			return nil, errors.New("webpush sender: subscriber is required when enabled")
		}
	}
	if config.TTL <= 0 {
		config.TTL = defaultTTL
	}

	return &Sender{
		config:     config,
		store:      store,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}, nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypePush
}

// PublicKey returns the VAPID key browsers subscribe with.
func (s *Sender) PublicKey() string {
	return s.config.VAPIDPublicKey
}

type message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag,omitempty"`
}

// Send pushes the notification to every registered browser. It succeeds
// when at least one browser accepted it. Registrations the push service
// reports as gone are removed.
func (s *Sender) Send(ctx context.Context, notification notifications.Notification) error {
	if !s.config.Enabled {
		return notifications.ErrNotConfigured
	}

	subs, err := s.store.ListPushSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("list push subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return notifications.ErrNotConfigured
	}

	payload, err := json.Marshal(message{
		Title: notification.Subject,
		Body:  notification.Body,
		Tag:   notification.SubscriptionID,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var (
		delivered int
		lastErr   error
	)
	for _, sub := range subs {
		err := s.push(ctx, sub, payload)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, errGone):
			slog.Info("removing expired push subscription", "endpoint", maskEndpoint(sub.Endpoint))
			if delErr := s.store.DeletePushSubscription(ctx, sub.Endpoint); delErr != nil {
				slog.Error("failed to delete push subscription", "error", delErr)
			}
		default:
			lastErr = err
			slog.Warn("push delivery failed", "endpoint", maskEndpoint(sub.Endpoint), "error", err)
		}
	}

	if delivered > 0 {
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return notifications.ErrNotConfigured
}

var errGone = errors.New("push subscription expired")

func (s *Sender) push(ctx context.Context, sub *domain.PushSubscription, payload []byte) error {
	resp, err := webpushgo.SendNotificationWithContext(ctx, payload, &webpushgo.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpushgo.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpushgo.Options{
		HTTPClient:      s.httpClient,
		Subscriber:      s.config.Subscriber,
		VAPIDPublicKey:  s.config.VAPIDPublicKey,
		VAPIDPrivateKey: s.config.VAPIDPrivateKey,
		TTL:             int(s.config.TTL.Seconds()),
		Urgency:         webpushgo.UrgencyNormal,
	})
	if err != nil {
		return &PushError{Message: err.Error(), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return errGone
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &PushError{
			Code:      resp.StatusCode,
			Message:   string(body),
			Retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}
}

// GenerateKeys creates a VAPID key pair for the configuration.
func GenerateKeys() (privateKey, publicKey string, err error) {
	return webpushgo.GenerateVAPIDKeys()
}

// PushError is a failed delivery to one push service.
type PushError struct {
	Code      int
	Message   string
	Retryable bool
}

func (e *PushError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("webpush error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("webpush error: %s", e.Message)
}

// IsRetryable reports whether a later attempt may succeed.
func (e *PushError) IsRetryable() bool { return e.Retryable }

func maskEndpoint(endpoint string) string {
	if len(endpoint) > 40 {
		return endpoint[:30] + "..."
	}
	return endpoint
}
