package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aliuyar1234/inviteguard/internal/audit"
	"github.com/aliuyar1234/inviteguard/internal/config"
	"github.com/aliuyar1234/inviteguard/internal/db"
	"github.com/aliuyar1234/inviteguard/internal/invitations"
	"github.com/aliuyar1234/inviteguard/internal/mailer"
	"github.com/aliuyar1234/inviteguard/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// App holds the application state
type App struct {
	Config      *config.Config
	Store       Backend
	Invitations *invitations.Service
	Auditor     *audit.Writer
	Metrics     *metrics.Recorder
	Router      http.Handler

	server *http.Server
}

// New creates and initializes a new application instance
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	setupLogger(cfg.LogLevel, cfg.IsDev())

	log.Info().Msg("Initializing InviteGuard application")
	log.Info().Interface("config", cfg.RedactedValues()).Msg("Configuration loaded")

	if cfg.IsDev() {
		log.Info().Msg("Development mode: running migrations automatically")
	} else {
		log.Info().Msg("Production mode: migrations must be run manually")
	}

	st, err := OpenStore(ctx, cfg.DBDSN, StoreOptions{
		Pool:    db.PoolOptions{MaxConns: cfg.DBMaxConns},
		Migrate: cfg.IsDev(),
	})
	if err != nil {
		return nil, err
	}
	log.Info().Msg("Database connection established")

	application := Build(cfg, st, NewNotifier(cfg))

	log.Info().Msg("Application initialized successfully")
	return application, nil
}

// Build wires the service graph on top of an open store.
func Build(cfg *config.Config, st Backend, notifier invitations.Notifier) *App {
	recorder := metrics.New()
	auditor := audit.NewWriter(st)
	svc := invitations.NewService(st, notifier, invitations.Options{
		ExpiryHours:  cfg.InviteExpiryHours,
		TokenCost:    cfg.TokenBcryptCost,
		PasswordCost: cfg.PasswordBcryptCost,
		Metrics:      recorder,
	})

	router := NewRouter(RouterDeps{
		Config:      cfg,
		Invitations: svc,
		Auditor:     auditor,
		Metrics:     recorder,
		Store:       st,
	})

	return &App{
		Config:      cfg,
		Store:       st,
		Invitations: svc,
		Auditor:     auditor,
		Metrics:     recorder,
		Router:      router,
	}
}

// NewNotifier returns the relay client, or the log notifier in dev when no
// relay is configured.
func NewNotifier(cfg *config.Config) invitations.Notifier {
	if cfg.MailRelayURL == "" {
		log.Warn().Msg("No mail relay configured: invitation links are written to the log")
		return mailer.LogNotifier{BaseURL: cfg.BaseURL}
	}
	return mailer.NewRelayClient(mailer.RelayConfig{
		URL:       cfg.MailRelayURL,
		Token:     cfg.MailRelayToken,
		From:      cfg.MailFrom,
		BaseURL:   cfg.BaseURL,
		TimeoutMS: cfg.MailTimeoutMS,
	})
}

// Start starts the HTTP server
func (a *App) Start() error {
	addr := a.Config.HTTPAddr
	log.Info().Str("addr", addr).Msg("Starting HTTP server")

	a.server = &http.Server{
		Addr:              addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return a.server.ListenAndServe()
}

// Shutdown stops accepting requests, waits for in-flight ones and closes
// the store.
func (a *App) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down application")

	var shutdownErr error
	if a.server != nil {
		shutdownErr = a.server.Shutdown(ctx)
	}

	log.Info().Msg("Closing database connection")
	if err := a.Store.Close(); err != nil && shutdownErr == nil {
		shutdownErr = fmt.Errorf("failed to close store: %w", err)
	}
	return shutdownErr
}

// setupLogger configures the global logger
func setupLogger(level string, pretty bool) {
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Debug().Str("level", level).Msg("Logger configured")
}
