// Package telegram provides telegram notification sending.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/subtrack/subtrack/internal/domain"
	"github.com/subtrack/subtrack/internal/notifications"
	"golang.org/x/time/rate"
)

const (
	defaultAPIBase   = "https://api.telegram.org/bot%s"
	defaultTimeout   = 10 * time.Second
	defaultRateLimit = 1.0
	// maxMessageLength is the Bot API limit for one message text.
	maxMessageLength = 4096
)

// Config holds telegram sender configuration.
type Config struct {
	Enabled   bool    `koanf:"enabled"`
	BotToken  string  `koanf:"bot_token"`
	ChatID    string  `koanf:"chat_id"`
	RateLimit float64 `koanf:"rate_limit"`
}

// Sender implements telegram notification sender.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	apiBase    string
}

// NewSender creates a new telegram sender.
// Returns error if enabled but required config is missing.
func NewSender(config Config) (*Sender, error) {
	if config.Enabled {
		if config.BotToken == "" {
			return nil, errors.New("telegram sender: bot token is required when enabled")
		}
		if config.ChatID == "" {
			return nil, errors.New("telegram sender: chat id is required when enabled")
		}
	}

	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}

	slog.Info("telegram sender configured",
		"enabled", config.Enabled,
		"rate_limit", config.RateLimit,
	)

	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		apiBase:    defaultAPIBase,
	}, nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeTelegram
}

// Configured reports whether messages can be sent.
func (s *Sender) Configured() bool {
	return s.config.Enabled && s.config.BotToken != "" && s.config.ChatID != ""
}

// ChatID returns the default chat.
func (s *Sender) ChatID() string {
	return s.config.ChatID
}

func (s *Sender) target(to string) string {
	if to != "" {
		return to
	}
	return s.config.ChatID
}

// Send sends a telegram notification as HTML. Texts above the API limit
// are split on line boundaries.
func (s *Sender) Send(ctx context.Context, notification notifications.Notification) error {
	chatID := s.target(notification.To)
	if !s.config.Enabled || s.config.BotToken == "" || chatID == "" {
		return notifications.ErrNotConfigured
	}

	for _, chunk := range splitMessage(notification.Body, maxMessageLength) {
		if err := s.sendMessage(ctx, chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

func (s *Sender) sendMessage(ctx context.Context, chatID, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.methodURL("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return s.do(req, chatID)
}

// SendDocument uploads data as a file to chatID (the default chat when empty).
func (s *Sender) SendDocument(ctx context.Context, chatID, filename string, data []byte, caption string) error {
	chatID = s.target(chatID)
	if !s.config.Enabled || s.config.BotToken == "" || chatID == "" {
		return notifications.ErrNotConfigured
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("chat_id", chatID); err != nil {
		return fmt.Errorf("write chat_id: %w", err)
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return fmt.Errorf("write caption: %w", err)
		}
	}
	part, err := mw.CreateFormFile("document", filename)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.methodURL("sendDocument"), &buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return s.do(req, chatID)
}

func (s *Sender) methodURL(method string) string {
	return fmt.Sprintf(s.apiBase, s.config.BotToken) + "/" + method
}

func (s *Sender) do(req *http.Request, chatID string) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &RetryableError{Message: fmt.Sprintf("send request: %v", sanitize(err.Error(), s.config.BotToken))}
	}
	defer func() { _ = resp.Body.Close() }()

	return s.handleResponse(resp, chatID)
}

func (s *Sender) handleResponse(resp *http.Response, chatID string) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var tgResp telegramResponse
	if err := json.Unmarshal(body, &tgResp); err != nil {
		tgResp.Description = strings.TrimSpace(string(body))
	}

	if resp.StatusCode == http.StatusOK && tgResp.OK {
		slog.Debug("telegram message sent", "chat_id", chatID)
		return nil
	}

	code := tgResp.ErrorCode
	if code == 0 {
		code = resp.StatusCode
	}

	switch code {
	case http.StatusTooManyRequests:
		retryAfter := time.Second
		if tgResp.Parameters != nil && tgResp.Parameters.RetryAfter > 0 {
			retryAfter = time.Duration(tgResp.Parameters.RetryAfter) * time.Second
		}
		return &RateLimitError{RetryAfter: retryAfter, Message: tgResp.Description}

	case http.StatusUnauthorized:
		return &PermanentError{Code: code, Message: "invalid bot token"}

	case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
		return &PermanentError{Code: code, Message: tgResp.Description}

	default:
		if code >= 500 {
			return &RetryableError{Code: code, Message: tgResp.Description}
		}
		return &PermanentError{Code: code, Message: tgResp.Description}
	}
}

// sanitize removes the bot token from transport error texts, which embed
// the request URL.
func sanitize(msg, token string) string {
	if token == "" {
		return msg
	}
	return strings.ReplaceAll(msg, token, "<token>")
}

// splitMessage cuts text into chunks of at most limit bytes, preferring
// line boundaries.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
			for cut > 0 && !isRuneStart(text[cut]) {
				cut--
			}
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
