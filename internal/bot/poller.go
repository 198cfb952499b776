// Package bot connects the Telegram Bot API to the chat dispatcher.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/subtrack/subtrack/internal/localstore"
)

const (
	offsetKey            = "telegram.update_offset"
	defaultPollTimeout   = 25
	defaultClientTimeout = 30 * time.Second
	defaultErrorBackoff  = 5 * time.Second
	defaultBatchLimit    = 100
)

// Config contains poller configuration.
type Config struct {
	PollTimeout  int           `koanf:"poll_timeout"`
	ErrorBackoff time.Duration `koanf:"error_backoff"`
	APIEndpoint  string        `koanf:"api_endpoint"`
}

// UpdateSource fetches updates with getUpdates.
type UpdateSource interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

// OffsetStore persists the next update offset.
type OffsetStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Handler processes one message of a chat session.
type Handler interface {
	Handle(ctx context.Context, sessionID, text string) error
}

// NewClient creates a Bot API client for token. The client timeout covers
// the long poll.
func NewClient(token, apiEndpoint string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, errors.New("bot: token is required")
	}
	if apiEndpoint == "" {
		apiEndpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, &http.Client{Timeout: defaultClientTimeout})
	if err != nil {
		return nil, fmt.Errorf("bot: connect: %w", err)
	}
	slog.Info("telegram bot authorized", "username", api.Self.UserName)
	return api, nil
}

// Poller long-polls for updates and hands messages from the configured chat
// to the handler, one at a time. The offset is stored after every update,
// so each update id is processed at most once across restarts.
type Poller struct {
	config  Config
	source  UpdateSource
	offsets OffsetStore
	handler Handler
	chatID  int64

	offset int
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPoller creates a poller serving chatID only.
func NewPoller(config Config, source UpdateSource, offsets OffsetStore, handler Handler, chatID string) (*Poller, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bot: invalid chat id %q: %w", chatID, err)
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = defaultPollTimeout
	}
	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = defaultErrorBackoff
	}

	return &Poller{
		config:  config,
		source:  source,
		offsets: offsets,
		handler: handler,
		chatID:  id,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start loads the stored offset and begins polling.
func (p *Poller) Start(ctx context.Context) error {
	if err := p.loadOffset(ctx); err != nil {
		return err
	}

	slog.Info("starting telegram poller", "offset", p.offset, "poll_timeout", p.config.PollTimeout)

	p.wg.Add(1)
	go p.run(ctx)
	return nil
}

// Stop stops polling and waits for the current batch to finish.
func (p *Poller) Stop() {
	close(p.stopCh)
	p.wg.Wait()
	slog.Info("telegram poller stopped")
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}

		if _, err := p.PollOnce(ctx); err != nil {
			slog.Warn("telegram poll failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-time.After(p.config.ErrorBackoff):
			}
		}
	}
}

func (p *Poller) loadOffset(ctx context.Context) error {
	raw, err := p.offsets.Get(ctx, offsetKey)
	if errors.Is(err, localstore.ErrNotFound) {
		p.offset = 0
		return nil
	}
	if err != nil {
		return fmt.Errorf("load update offset: %w", err)
	}
	offset, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("parse update offset %q: %w", raw, err)
	}
	p.offset = offset
	return nil
}

// Offset returns the next update id the poller expects.
func (p *Poller) Offset() int {
	return p.offset
}

// PollOnce fetches one batch of updates and processes it. It returns the
// number of messages handed to the handler.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	start := time.Now()
	updates, err := p.source.GetUpdates(tgbotapi.UpdateConfig{
		Offset:         p.offset,
		Limit:          defaultBatchLimit,
		Timeout:        p.config.PollTimeout,
		AllowedUpdates: []string{"message"},
	})
	pollDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		recordPoll("error")
		return 0, fmt.Errorf("get updates: %w", err)
	}
	recordPoll("ok")

	handled := 0
	for _, update := range updates {
		if update.UpdateID < p.offset {
			recordUpdate("duplicate")
			continue
		}
		if p.process(ctx, update) {
			handled++
		}
		if err := p.commit(ctx, update.UpdateID+1); err != nil {
			return handled, err
		}
	}
	return handled, nil
}

func (p *Poller) process(ctx context.Context, update tgbotapi.Update) bool {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		recordUpdate("ignored")
		return false
	}
	if msg.Chat.ID != p.chatID {
		slog.Warn("ignoring message from unknown chat", "chat_id", msg.Chat.ID, "update_id", update.UpdateID)
		recordUpdate("unauthorized")
		return false
	}

	sessionID := strconv.FormatInt(msg.Chat.ID, 10)
	if err := p.handler.Handle(ctx, sessionID, msg.Text); err != nil {
		slog.Error("failed to handle telegram message", "update_id", update.UpdateID, "error", err)
		recordUpdate("failed")
		return true
	}
	recordUpdate("handled")
	return true
}

func (p *Poller) commit(ctx context.Context, next int) error {
	if err := p.offsets.Set(ctx, offsetKey, strconv.Itoa(next)); err != nil {
		return fmt.Errorf("store update offset: %w", err)
	}
	p.offset = next
	return nil
}
