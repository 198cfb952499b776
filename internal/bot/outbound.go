package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/subtrack/subtrack/internal/chat"
	"github.com/subtrack/subtrack/internal/notifications"
)

// ErrBackupDisabled is returned when backups cannot be sent.
var ErrBackupDisabled = fmt.Errorf("telegram backup: %w", notifications.ErrNotConfigured)

// MessageSender sends messages and documents to a Telegram chat.
type MessageSender interface {
	Send(ctx context.Context, notification notifications.Notification) error
	SendDocument(ctx context.Context, chatID, filename string, data []byte, caption string) error
	ChatID() string
}

// Outbound delivers dispatcher replies through the Telegram sender.
type Outbound struct {
	sender MessageSender
}

// NewOutbound creates an Outbound.
func NewOutbound(sender MessageSender) *Outbound {
	return &Outbound{sender: sender}
}

// Send delivers the document first, then every text part in order.
func (o *Outbound) Send(ctx context.Context, sessionID string, reply chat.Reply) error {
	if doc := reply.Document; doc != nil {
		if err := o.sender.SendDocument(ctx, sessionID, doc.Filename, doc.Data, doc.Caption); err != nil {
			return fmt.Errorf("send document: %w", err)
		}
	}
	for _, part := range reply.Parts {
		if part == "" {
			continue
		}
		if err := o.sender.Send(ctx, notifications.Notification{To: sessionID, Body: part}); err != nil {
			return err
		}
	}
	return nil
}

// BackupService sends a backup of the owner's subscriptions to the
// configured chat on request.
type BackupService struct {
	store    chat.SubscriptionStore
	renderer chat.BackupRenderer
	out      *Outbound
	loc      *time.Location
	now      func() time.Time
}

// NewBackupService creates a BackupService. A nil out disables backups.
func NewBackupService(store chat.SubscriptionStore, renderer chat.BackupRenderer, out *Outbound, loc *time.Location) *BackupService {
	if loc == nil {
		loc = time.UTC
	}
	return &BackupService{store: store, renderer: renderer, out: out, loc: loc, now: time.Now}
}

// Send builds the backup and delivers it. It returns the number of
// subscriptions in the backup.
func (s *BackupService) Send(ctx context.Context) (int, error) {
	if s.out == nil || s.out.sender.ChatID() == "" {
		return 0, ErrBackupDisabled
	}

	subs, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subscriptions: %w", err)
	}

	reply, err := chat.BuildBackup(subs, s.now().In(s.loc), s.renderer)
	if err != nil {
		return 0, err
	}

	if err := s.out.Send(ctx, s.out.sender.ChatID(), reply); err != nil {
		if errors.Is(err, notifications.ErrNotConfigured) {
			return 0, ErrBackupDisabled
		}
		return 0, err
	}
	return len(subs), nil
}
