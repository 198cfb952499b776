package domain

import "time"

// Alert is an in-app renewal notice shown as a toast by the web client.
type Alert struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscription_id"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// PushSubscription is a browser Web Push registration.
type PushSubscription struct {
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
