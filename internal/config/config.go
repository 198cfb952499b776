// Package config loads application configuration from defaults, an optional
// YAML file and SUBTRACK_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/subtrack/subtrack/internal/bot"
	"github.com/subtrack/subtrack/internal/chat"
	"github.com/subtrack/subtrack/internal/extractor"
	"github.com/subtrack/subtrack/internal/identity/jwt"
	"github.com/subtrack/subtrack/internal/notifications/telegram"
	"github.com/subtrack/subtrack/internal/notifications/webpush"
	"github.com/subtrack/subtrack/internal/pkg/money"
	"github.com/subtrack/subtrack/internal/reminders"
)

const (
	// EnvPrefix prefixes every environment override. Nested keys use "__",
	// e.g. SUBTRACK_DATABASE__URL.
	EnvPrefix = "SUBTRACK_"

	// DefaultFile is read when present and no explicit path is given.
	DefaultFile = "config.yaml"

	dotEnvFile = ".env"
)

// Config holds application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Log        LogConfig        `koanf:"log"`
	JWT        jwt.Config       `koanf:"jwt"`
	CORS       CORSConfig       `koanf:"cors"`
	Owner      OwnerConfig      `koanf:"owner"`
	LocalStore LocalStoreConfig `koanf:"local_store"`
	Reminders  reminders.Config `koanf:"reminders"`
	Telegram   TelegramConfig   `koanf:"telegram"`
	WebPush    webpush.Config   `koanf:"webpush"`
	Extractor  extractor.Config `koanf:"extractor"`
	Chat       ChatConfig       `koanf:"chat"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	ConnectBackoff  time.Duration `koanf:"connect_max_backoff"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// OwnerConfig describes the single owner served by the bot and the
// reminder scheduler.
type OwnerConfig struct {
	UserID   string `koanf:"user_id"`
	Timezone string `koanf:"timezone"`
	Currency string `koanf:"currency"`
}

// Location returns the owner's time zone.
func (o OwnerConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return nil, fmt.Errorf("owner timezone %q: %w", o.Timezone, err)
	}
	return loc, nil
}

// Money returns the owner's currency.
func (o OwnerConfig) Money() money.Currency {
	return money.New(o.Currency)
}

// LocalStoreConfig holds the SQLite store location.
type LocalStoreConfig struct {
	Path string `koanf:"path"`
}

// TelegramConfig holds outbound sender and inbound poller settings.
type TelegramConfig struct {
	telegram.Config `koanf:",squash"`
	Poll            bot.Config `koanf:"poll"`
}

// ChatConfig holds conversation settings.
type ChatConfig struct {
	AbandonPolicy     string        `koanf:"abandon_policy"`
	StateTTL          time.Duration `koanf:"state_ttl"`
	RenewalWindowDays int           `koanf:"renewal_window_days"`
}

// Defaults returns the configuration used before any source is applied.
// Secrets have no defaults.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Hour,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			ConnectBackoff:  8 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: jwt.Config{
			Leeway: 30 * time.Second,
		},
		Owner: OwnerConfig{
			Timezone: "America/Sao_Paulo",
			Currency: "BRL",
		},
		LocalStore: LocalStoreConfig{
			Path: "subtrack.db",
		},
		Reminders: reminders.DefaultConfig(),
		Telegram: TelegramConfig{
			Config: telegram.Config{RateLimit: 1},
			Poll: bot.Config{
				PollTimeout:  25,
				ErrorBackoff: 5 * time.Second,
			},
		},
		WebPush: webpush.Config{
			TTL: 24 * time.Hour,
		},
		Extractor: extractor.Config{
			Timeout: extractor.DefaultTimeout,
		},
		Chat: ChatConfig{
			AbandonPolicy:     string(chat.AbandonSilently),
			StateTTL:          24 * time.Hour,
			RenewalWindowDays: 30,
		},
	}
}

// Load reads and validates configuration.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read reads configuration without validating it. An explicit path must
// exist; without one, DefaultFile is used when present. Variables from a
// .env file in the working directory are exported first and never override
// the environment.
func Read(path string) (*Config, error) {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", dotEnvFile, err)
	}

	k := koanf.New(".")

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// envKey maps SUBTRACK_TELEGRAM__POLL__POLL_TIMEOUT to telegram.poll.poll_timeout.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks that required settings are present and consistent.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.JWT.SecretKey == "" {
		errs = append(errs, errors.New("jwt.secret_key is required"))
	}
	if c.Owner.UserID == "" {
		errs = append(errs, errors.New("owner.user_id is required"))
	}
	if _, err := c.Owner.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.LocalStore.Path == "" {
		errs = append(errs, errors.New("local_store.path is required"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is invalid", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is invalid", c.Log.Format))
	}

	if c.Reminders.DailyHour < 0 || c.Reminders.DailyHour > 23 {
		errs = append(errs, fmt.Errorf("reminders.daily_hour %d is out of range", c.Reminders.DailyHour))
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			errs = append(errs, errors.New("telegram.bot_token is required when telegram is enabled"))
		}
		if c.Telegram.ChatID == "" {
			errs = append(errs, errors.New("telegram.chat_id is required when telegram is enabled"))
		}
	}
	if c.WebPush.Enabled {
		if c.WebPush.VAPIDPublicKey == "" || c.WebPush.VAPIDPrivateKey == "" {
			errs = append(errs, errors.New("webpush vapid keys are required when webpush is enabled"))
		}
		if c.WebPush.Subscriber == "" {
			errs = append(errs, errors.New("webpush.subscriber is required when webpush is enabled"))
		}
	}
	if c.Extractor.Enabled {
		if c.Extractor.APIKey == "" {
			errs = append(errs, errors.New("extractor.api_key is required when extractor is enabled"))
		}
		if c.Extractor.Model == "" {
			errs = append(errs, errors.New("extractor.model is required when extractor is enabled"))
		}
	}

	if !chat.AbandonPolicy(c.Chat.AbandonPolicy).IsValid() {
		errs = append(errs, fmt.Errorf("chat.abandon_policy %q is invalid", c.Chat.AbandonPolicy))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
