// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/subtrack/subtrack/internal/bot"
	"github.com/subtrack/subtrack/internal/chat"
	"github.com/subtrack/subtrack/internal/config"
	"github.com/subtrack/subtrack/internal/extractor"
	"github.com/subtrack/subtrack/internal/identity"
	"github.com/subtrack/subtrack/internal/identity/jwt"
	"github.com/subtrack/subtrack/internal/localstore"
	"github.com/subtrack/subtrack/internal/notifications"
	"github.com/subtrack/subtrack/internal/notifications/inbox"
	"github.com/subtrack/subtrack/internal/notifications/telegram"
	"github.com/subtrack/subtrack/internal/notifications/webpush"
	"github.com/subtrack/subtrack/internal/pkg/ctxlog"
	"github.com/subtrack/subtrack/internal/pkg/httputil"
	"github.com/subtrack/subtrack/internal/pkg/metrics"
	"github.com/subtrack/subtrack/internal/pkg/postgres"
	"github.com/subtrack/subtrack/internal/reminders"
	"github.com/subtrack/subtrack/internal/subscriptions"
	subscriptionspostgres "github.com/subtrack/subtrack/internal/subscriptions/postgres"
	"github.com/subtrack/subtrack/internal/version"
)

const dbMetricsInterval = 15 * time.Second

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	local         *localstore.Store
	server        *http.Server
	metricsServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc

	scheduler *reminders.Scheduler
	poller    *bot.Poller
	workers   lifecycle
}

// lifecycle serializes starting and stopping the background workers. Run
// and Shutdown are called from different goroutines.
type lifecycle struct {
	mu      sync.Mutex
	started bool
	stopped bool
}

// start runs fn unless stop has already been called. It reports whether fn
// ran successfully.
func (l *lifecycle) start(fn func() error) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return false, nil
	}
	if err := fn(); err != nil {
		return false, err
	}
	l.started = true
	return true, nil
}

// stop runs fn once if start succeeded before it.
func (l *lifecycle) stop(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	if l.started {
		fn()
	}
}

// components holds the services shared by the HTTP API and the background
// workers.
type components struct {
	subscriptions *subscriptions.Service
	notifications *notifications.Service
	scheduler     *reminders.Scheduler
	poller        *bot.Poller
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	loc, err := cfg.Owner.Location()
	if err != nil {
		return nil, err
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
		MaxBackoff:      cfg.Database.ConnectBackoff,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	local, err := localstore.Open(cfg.LocalStore.Path)
	if err != nil {
		db.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		config: cfg,
		logger: logger,
		db:     db,
		local:  local,
		ctx:    ctx,
		cancel: cancel,
	}

	go metrics.CollectDBPoolMetrics(ctx, db, dbMetricsInterval)
	metrics.RecordBuildInfo(version.Version, version.GitCommit)

	comps, err := app.buildComponents(loc)
	if err != nil {
		app.close()
		return nil, err
	}
	app.scheduler = comps.scheduler
	app.poller = comps.poller

	router, err := app.setupRouter(comps)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

func (a *App) buildComponents(loc *time.Location) (*components, error) {
	cfg := a.config
	currency := cfg.Owner.Money()

	subsService := subscriptions.NewService(subscriptionspostgres.NewRepository(a.db), loc, currency.Symbol())
	owner := subsService.ForUser(cfg.Owner.UserID)

	renderer, err := notifications.NewRenderer(currency, loc)
	if err != nil {
		return nil, fmt.Errorf("create notification renderer: %w", err)
	}

	pushSender, err := webpush.NewSender(cfg.WebPush, a.local)
	if err != nil {
		return nil, fmt.Errorf("create webpush sender: %w", err)
	}
	telegramSender, err := telegram.NewSender(cfg.Telegram.Config)
	if err != nil {
		return nil, fmt.Errorf("create telegram sender: %w", err)
	}
	if !cfg.WebPush.Enabled {
		slog.Warn("webpush sender is disabled: reminders are shown in the app only")
	}
	if !cfg.Telegram.Enabled {
		slog.Warn("telegram is disabled: the chat bot and telegram reminders are off")
	}

	dispatcher := notifications.NewDispatcher(inbox.NewSender(a.local), pushSender, telegramSender)
	settings := reminders.NewSettingsStore(a.local)
	scheduler := reminders.NewScheduler(cfg.Reminders, loc, owner, a.local, settings, dispatcher, renderer)

	comps := &components{
		subscriptions: subsService,
		scheduler:     scheduler,
	}

	var backup notifications.BackupSender
	if cfg.Telegram.Enabled {
		out := bot.NewOutbound(telegramSender)
		backup = bot.NewBackupService(owner, renderer, out, loc)

		opts := []chat.Option{
			chat.WithRenewalChecker(scheduler),
			chat.WithBackupRenderer(renderer),
		}
		if cfg.Extractor.Enabled {
			llm, err := extractor.NewOpenAI(cfg.Extractor)
			if err != nil {
				return nil, err
			}
			opts = append(opts, chat.WithExtractor(extractor.New(llm, cfg.Extractor.Timeout, loc, currency.Symbol())))
		}

		chatDispatcher := chat.NewDispatcher(chat.Config{
			Location:          loc,
			Currency:          currency,
			AbandonPolicy:     chat.AbandonPolicy(cfg.Chat.AbandonPolicy),
			RenewalWindowDays: cfg.Chat.RenewalWindowDays,
		}, owner, chat.NewMemoryStateStore(cfg.Chat.StateTTL), out, opts...)

		client, err := bot.NewClient(cfg.Telegram.BotToken, cfg.Telegram.Poll.APIEndpoint)
		if err != nil {
			return nil, err
		}
		comps.poller, err = bot.NewPoller(cfg.Telegram.Poll, client, a.local, chatDispatcher, cfg.Telegram.ChatID)
		if err != nil {
			return nil, err
		}
	}

	pushKey := ""
	if cfg.WebPush.Enabled {
		pushKey = pushSender.PublicKey()
	}

	comps.notifications = notifications.NewService(notifications.ServiceDeps{
		Settings: settings,
		Alerts:   a.local,
		Push:     a.local,
		Checker:  scheduler,
		Backup:   backup,
		PushKey:  pushKey,
	})

	return comps, nil
}

// Run starts the background workers and the HTTP servers.
func (a *App) Run() error {
	running, err := a.workers.start(a.startWorkers)
	if err != nil {
		return err
	}
	if !running {
		return nil
	}

	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func (a *App) startWorkers() error {
	if a.poller != nil {
		if err := a.poller.Start(a.ctx); err != nil {
			return fmt.Errorf("start telegram poller: %w", err)
		}
	}
	a.scheduler.Start(a.ctx)
	return nil
}

func (a *App) stopWorkers() {
	if a.poller != nil {
		a.poller.Stop()
	}
	a.scheduler.Stop()
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	a.workers.stop(a.stopWorkers)

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	for name, srv := range map[string]*http.Server{"server": a.server, "metrics server": a.metricsServer} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("shutdown %s: %w", name, err))
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	if err := a.close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (a *App) close() error {
	a.cancel()
	a.db.Close()
	if err := a.local.Close(); err != nil {
		return fmt.Errorf("close local store: %w", err)
	}
	return nil
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Scheduler returns the renewal scheduler. Used in tests to trigger an
// evaluation without waiting for the timers.
func (a *App) Scheduler() *reminders.Scheduler {
	return a.scheduler
}

func (a *App) setupRouter(comps *components) (*chi.Mux, error) {
	r := chi.NewRouter()

	r.Use(httputil.MetricsMiddleware)
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})
	r.Get("/docs", docsHandler)

	authenticator, err := jwt.NewAuthenticator(a.config.JWT)
	if err != nil {
		return nil, fmt.Errorf("create authenticator: %w", err)
	}

	identityHandler := identity.NewHandler(a.config.Owner.UserID)
	subscriptionsHandler := subscriptions.NewHandler(comps.subscriptions)
	notificationsHandler := notifications.NewHandler(comps.notifications)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httputil.AuthMiddleware(authenticator))

		identityHandler.RegisterProtectedRoutes(r)
		subscriptionsHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(httputil.RequireOwner(a.config.Owner.UserID))
			notificationsHandler.RegisterRoutes(r)
		})
	})

	return r, nil
}

func docsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Subtrack API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`))
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "store", "postgres", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}
	if err := a.local.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "store", "local", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Local store unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
