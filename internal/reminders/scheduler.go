// Package reminders evaluates upcoming renewals and delivers at most one
// reminder per subscription, day and channel.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/subtrack/subtrack/internal/domain"
	"github.com/subtrack/subtrack/internal/notifications"
)

// Config contains scheduler configuration.
type Config struct {
	PollInterval    time.Duration `koanf:"poll_interval"`
	DailyHour       int           `koanf:"daily_hour"`
	MarkerRetention time.Duration `koanf:"marker_retention"`
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:    4 * time.Hour,
		DailyHour:       9,
		MarkerRetention: 7 * 24 * time.Hour,
	}
}

// SubscriptionSource lists the owner's subscriptions.
type SubscriptionSource interface {
	List(ctx context.Context) ([]*domain.Subscription, error)
}

// MarkerStore persists dedup markers.
type MarkerStore interface {
	HasMarker(ctx context.Context, subscriptionID, day string, channel domain.ChannelType) (bool, error)
	SetMarker(ctx context.Context, subscriptionID, day string, channel domain.ChannelType, sentAt time.Time) error
	PurgeMarkers(ctx context.Context, beforeDay string) (int64, error)
}

// Result summarizes one evaluation.
type Result struct {
	Due         int
	Sent        int
	AlreadySent int
	Skipped     int
	Failed      int
}

// channelOrder is the delivery order within one subscription.
var channelOrder = []domain.ChannelType{
	domain.ChannelTypeInbox,
	domain.ChannelTypePush,
	domain.ChannelTypeTelegram,
}

// Scheduler runs renewal evaluations on a poll interval and once a day.
type Scheduler struct {
	config     Config
	loc        *time.Location
	subs       SubscriptionSource
	markers    MarkerStore
	settings   *SettingsStore
	dispatcher *notifications.Dispatcher
	renderer   *notifications.Renderer
	now        func() time.Time

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler evaluating days in loc.
func NewScheduler(
	config Config,
	loc *time.Location,
	subs SubscriptionSource,
	markers MarkerStore,
	settings *SettingsStore,
	dispatcher *notifications.Dispatcher,
	renderer *notifications.Renderer,
) *Scheduler {
	defaults := DefaultConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.DailyHour < 0 || config.DailyHour > 23 {
		config.DailyHour = defaults.DailyHour
	}
	if config.MarkerRetention <= 0 {
		config.MarkerRetention = defaults.MarkerRetention
	}
	if loc == nil {
		loc = time.UTC
	}

	return &Scheduler{
		config:     config,
		loc:        loc,
		subs:       subs,
		markers:    markers,
		settings:   settings,
		dispatcher: dispatcher,
		renderer:   renderer,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the poll loop and the daily loop.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("starting renewal scheduler",
		"poll_interval", s.config.PollInterval,
		"daily_hour", s.config.DailyHour,
		"timezone", s.loc.String(),
	)

	s.wg.Add(2)
	go s.runPoll(ctx)
	go s.runDaily(ctx)
}

// Stop stops both loops and waits for a running evaluation to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	slog.Info("renewal scheduler stopped")
}

func (s *Scheduler) runPoll(ctx context.Context) {
	defer s.wg.Done()

	s.evaluate(ctx, "startup")

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.evaluate(ctx, "poll")
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context) {
	defer s.wg.Done()

	for {
		now := s.now()
		timer := time.NewTimer(s.nextDaily(now).Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			s.evaluate(ctx, "daily")
			if _, err := s.Purge(ctx); err != nil {
				slog.Error("failed to purge reminder markers", "error", err)
			}
		}
	}
}

// nextDaily returns the first daily trigger strictly after now.
func (s *Scheduler) nextDaily(now time.Time) time.Time {
	local := now.In(s.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.config.DailyHour, 0, 0, 0, s.loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *Scheduler) evaluate(ctx context.Context, trigger string) {
	res, err := s.Evaluate(ctx, trigger)
	if err != nil {
		slog.Error("renewal evaluation failed", "trigger", trigger, "error", err)
		return
	}
	if res.Due > 0 {
		slog.Info("renewal evaluation finished",
			"trigger", trigger,
			"due", res.Due,
			"sent", res.Sent,
			"already_sent", res.AlreadySent,
			"skipped", res.Skipped,
			"failed", res.Failed,
		)
	}
}

// CheckNow runs an on-demand evaluation and returns how many reminders
// were delivered.
func (s *Scheduler) CheckNow(ctx context.Context) (int, error) {
	res, err := s.Evaluate(ctx, "manual")
	if err != nil {
		return 0, err
	}
	return res.Sent, nil
}

// Evaluate checks every active subscription against the alert days and
// delivers due reminders. A marker is recorded only after a successful
// delivery, so failed channels are attempted again on the next run.
func (s *Scheduler) Evaluate(ctx context.Context, trigger string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recordEvaluation(trigger)

	var res Result
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return res, err
	}
	if !settings.Enabled {
		return res, nil
	}

	subs, err := s.subs.List(ctx)
	if err != nil {
		return res, fmt.Errorf("list subscriptions: %w", err)
	}

	now := s.now().In(s.loc)
	day := domain.DateKey(now)
	channels := s.channels(settings)

	for _, sub := range subs {
		if !sub.IsActive {
			continue
		}
		days := sub.DaysUntilRenewal(now)
		if !settings.ShouldAlert(days) {
			continue
		}
		res.Due++

		payload := notifications.NewReminderPayload(sub, days)
		for _, ch := range channels {
			s.deliver(ctx, sub, ch, day, now, payload, &res)
		}
	}

	return res, nil
}

func (s *Scheduler) deliver(
	ctx context.Context,
	sub *domain.Subscription,
	ch domain.ChannelType,
	day string,
	now time.Time,
	payload notifications.ReminderPayload,
	res *Result,
) {
	sent, err := s.markers.HasMarker(ctx, sub.ID, day, ch)
	if err != nil {
		slog.Error("failed to read reminder marker", "subscription_id", sub.ID, "channel_type", ch, "error", err)
		recordDelivery(string(ch), "failed")
		res.Failed++
		return
	}
	if sent {
		res.AlreadySent++
		return
	}

	subject, body, err := s.renderer.Render(ch, payload)
	if err != nil {
		slog.Error("failed to render reminder", "subscription_id", sub.ID, "channel_type", ch, "error", err)
		recordDelivery(string(ch), "failed")
		res.Failed++
		return
	}

	err = s.dispatcher.SendToChannel(ctx, ch, notifications.Notification{
		Subject:        subject,
		Body:           body,
		SubscriptionID: sub.ID,
	})
	switch {
	case errors.Is(err, notifications.ErrNotConfigured):
		recordDelivery(string(ch), "skipped")
		res.Skipped++
		return
	case err != nil:
		slog.Warn("reminder delivery failed",
			"subscription_id", sub.ID,
			"channel_type", ch,
			"retryable", notifications.IsRetryable(err),
			"error", err,
		)
		recordDelivery(string(ch), "failed")
		res.Failed++
		return
	}

	if err := s.markers.SetMarker(ctx, sub.ID, day, ch, now); err != nil {
		slog.Error("failed to record reminder marker", "subscription_id", sub.ID, "channel_type", ch, "error", err)
	}
	recordDelivery(string(ch), "sent")
	res.Sent++
}

// channels returns the channels enabled by settings that have a sender.
func (s *Scheduler) channels(settings domain.NotificationSettings) []domain.ChannelType {
	var out []domain.ChannelType
	for _, ch := range channelOrder {
		switch ch {
		case domain.ChannelTypePush:
			if !settings.PushNotifications {
				continue
			}
		case domain.ChannelTypeTelegram:
			if !settings.ChatNotifications {
				continue
			}
		}
		if s.dispatcher.Has(ch) {
			out = append(out, ch)
		}
	}
	return out
}

// Purge removes markers older than the retention period.
func (s *Scheduler) Purge(ctx context.Context) (int64, error) {
	cutoff := domain.DateKey(s.now().In(s.loc).Add(-s.config.MarkerRetention))
	n, err := s.markers.PurgeMarkers(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge markers: %w", err)
	}
	if n > 0 {
		markersPurged.Add(float64(n))
		slog.Debug("purged reminder markers", "count", n, "before", cutoff)
	}
	return n, nil
}
