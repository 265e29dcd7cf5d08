package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aussiebroadwan/labsession/internal/store"
	"github.com/aussiebroadwan/labsession/internal/store/drivers/memory"
	"github.com/aussiebroadwan/labsession/internal/store/drivers/sqlite"
	"github.com/aussiebroadwan/labsession/pkg/authsdk"
	"github.com/aussiebroadwan/labsession/pkg/session"
	"github.com/aussiebroadwan/labsession/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "v0.1.0"

// Application wires one session: the persisted credential store, the auth
// client, and the controller every command goes through.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db         store.Store
	registry   *prometheus.Registry
	metrics    *session.Metrics
	httpClient *http.Client
	auth       *authsdk.SDKClient
	controller *session.Controller

	notifiers []session.Notifier
	activity  <-chan struct{}

	metricsServer *http.Server
}

// Option customises an Application.
type Option func(*Application)

// WithNotifier adds a notification sink alongside the log.
func WithNotifier(n session.Notifier) Option {
	return func(app *Application) { app.notifiers = append(app.notifiers, n) }
}

// WithActivity feeds user activity to the idle monitor.
func WithActivity(ch <-chan struct{}) Option {
	return func(app *Application) { app.activity = ch }
}

// WithLogger replaces the logger built from Config.
func WithLogger(l *slog.Logger) Option {
	return func(app *Application) { app.logger = l }
}

// New validates cfg and builds the application. Call Close when done.
func New(cfg Config, opts ...Option) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{cfg: cfg}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		app.logger = slogx.New(slogx.Config{
			Service: "labsession",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		})
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	app.initMetrics()
	app.initSession()
	return app, nil
}

// initDatabase opens the session store and applies migrations.
func (app *Application) initDatabase() error {
	if app.cfg.DatabaseFile == "" {
		app.db = memory.NewStore()
		app.logger.Debug("session persistence disabled")
		return nil
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to open session database: %w", err)
	}
	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	app.db = db
	return nil
}

func (app *Application) initMetrics() {
	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(collectors.NewGoCollector())
	app.metrics = session.NewMetrics(app.registry)
}

func (app *Application) initSession() {
	app.httpClient = &http.Client{
		Transport: slogx.NewTransport(http.DefaultTransport, app.logger),
		Timeout:   app.cfg.RequestTimeout,
	}
	app.auth = authsdk.NewSDKClient(app.cfg.BaseURL, app.cfg.ClientID,
		authsdk.WithTransport(app.httpClient.Transport),
		authsdk.WithTimeout(app.cfg.RequestTimeout),
	)

	notifier := session.MultiNotifier{session.LogNotifier{Logger: app.logger}}
	notifier = append(notifier, app.notifiers...)

	opts := []session.Option{
		session.WithLogger(app.logger),
		session.WithMetrics(app.metrics),
		session.WithNotifier(notifier),
	}
	if app.activity != nil {
		opts = append(opts, session.WithActivity(app.activity))
	}

	app.controller = session.NewController(
		session.NewCredentialStore(app.db, app.logger),
		app.auth,
		app.httpClient,
		session.Config{
			IdleTime:               app.cfg.IdleTime,
			WarningTime:            app.cfg.WarningTime,
			RefreshTimeout:         app.cfg.RefreshTimeout,
			RefreshSkew:            app.cfg.RefreshSkew,
			LoginAttemptsPerMinute: app.cfg.LoginAttemptsPerMinute,
		},
		opts...,
	)
}

func (app *Application) Controller() *session.Controller { return app.controller }
func (app *Application) Auth() *authsdk.SDKClient        { return app.auth }
func (app *Application) Logger() *slog.Logger            { return app.logger }
func (app *Application) Registry() *prometheus.Registry  { return app.registry }
func (app *Application) Config() Config                  { return app.cfg }

// Start restores a persisted session, if any, and starts the metrics
// listener when one is configured.
func (app *Application) Start(ctx context.Context) bool {
	restored := app.controller.Restore(ctx)

	if app.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}))
		app.metricsServer = &http.Server{
			Addr:              app.cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 3 * time.Second,
		}
		go func() {
			if err := app.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.logger.Error("metrics server failed", "error", err)
			}
		}()
	}
	return restored
}

// Close stops idle monitoring and releases the store. The session itself
// stays persisted.
func (app *Application) Close() error {
	if app.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
		defer cancel()
		if err := app.metricsServer.Shutdown(ctx); err != nil {
			app.logger.Error("metrics server shutdown failed", "error", err)
		}
	}

	app.controller.Detach()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}
