// Package app wires the credential store, refresh coordinator,
// authenticated client and API from a loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/connectly/connectly-client/internal/api"
	"github.com/connectly/connectly-client/internal/auth"
	"github.com/connectly/connectly-client/internal/config"
	"github.com/connectly/connectly-client/internal/credentials"
	"github.com/connectly/connectly-client/internal/httpclient"
	"github.com/connectly/connectly-client/internal/logger"
	"github.com/connectly/connectly-client/internal/metrics"
	"github.com/connectly/connectly-client/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App holds the wired components. Close releases backend connections.
type App struct {
	Config      *config.Config
	Logger      *zerolog.Logger
	Session     *session.Controller
	Coordinator *auth.Coordinator
	Client      *httpclient.Client
	API         *api.Client
	Metrics     *metrics.Metrics

	closers []func() error
}

type options struct {
	registerer prometheus.Registerer
	httpClient *http.Client
	runner     credentials.CommandRunner
	store      credentials.Store
}

type Option func(*options)

// WithRegisterer registers the client metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithHTTPClient replaces the default client for both business calls and
// the refresh exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithKeychainRunner replaces the security CLI runner of the keychain backend.
func WithKeychainRunner(run credentials.CommandRunner) Option {
	return func(o *options) { o.runner = run }
}

// WithStore bypasses store.backend and uses s.
func WithStore(s credentials.Store) Option {
	return func(o *options) { o.store = s }
}

func New(ctx context.Context, cfg *config.Config, log *zerolog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = logger.Nop()
	}

	a := &App{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.New(o.registerer),
	}

	store := o.store
	if store == nil {
		s, closer, err := NewStore(cfg, o.runner, log)
		if err != nil {
			return nil, err
		}
		store = s
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}

	if _, err := credentials.SeedFromEnv(ctx, store, log); err != nil {
		a.Close()
		return nil, err
	}

	a.Session = session.NewController(store, log)

	hc := o.httpClient
	if hc == nil {
		hc = httpclient.NewHTTPClient(cfg.Timeout)
	}

	refreshURL, err := cfg.RefreshURL()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Coordinator = auth.NewCoordinator(
		a.Session,
		auth.NewExchanger(refreshURL, hc),
		auth.WithTimeout(cfg.RefreshTimeout()),
		auth.WithLogger(log),
		auth.WithMetrics(a.Metrics),
	)

	a.Client, err = httpclient.New(cfg.BaseURL, a.Session, a.Coordinator,
		httpclient.WithHTTPClient(hc),
		httpclient.WithLogger(log),
		httpclient.WithMetrics(a.Metrics),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.API = api.New(a.Client, a.Session, log)
	return a, nil
}

// NewStore builds the backend named by cfg.Store.Backend. The returned
// closer is nil when the backend holds no connection.
func NewStore(cfg *config.Config, run credentials.CommandRunner, log *zerolog.Logger) (credentials.Store, func() error, error) {
	if log == nil {
		log = logger.Nop()
	}
	switch cfg.Store.Backend {
	case config.BackendFile:
		path := cfg.Store.Path
		if path == "" {
			path = credentials.DefaultPath()
		}
		log.Info().Str("path", path).Msg("📄 Using file credential store")
		return credentials.NewFileStore(path, log), nil, nil
	case config.BackendMemory:
		log.Info().Msg("🧠 Using in-memory credential store")
		return credentials.NewMemoryStore(), nil, nil
	case config.BackendKeychain:
		log.Info().Msg("🔑 Using keychain credential store")
		return credentials.NewKeychainStore(credentials.DefaultKeychainService, credentials.DefaultKeychainAccount, run, log), nil, nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		log.Info().
			Str("addr", cfg.Store.Redis.Addr).
			Str("prefix", cfg.Store.Redis.Prefix).
			Msg("🗄️  Using redis credential store")
		return credentials.NewRedisStore(rdb, cfg.Store.Redis.Prefix, log), rdb.Close, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown store.backend %q", config.ErrInvalid, cfg.Store.Backend)
}

// ReportSession logs what the stored session looks like at startup.
func (a *App) ReportSession(ctx context.Context) {
	s := a.Session.State(ctx)
	if !s.Authenticated {
		a.Logger.Info().Bool("can_refresh", s.CanRefresh).Msg("👤 No access token stored, calls are anonymous")
		return
	}

	if s.ExpiresAt.IsZero() {
		a.Logger.Info().Msg("✅ Access token loaded, expiry unknown")
		return
	}

	minutesUntilExpiry := int64(time.Until(s.ExpiresAt) / time.Minute)
	switch {
	case minutesUntilExpiry <= 0:
		a.Logger.Warn().
			Str("subject_id", s.SubjectID).
			Int64("minutes_expired", -minutesUntilExpiry).
			Msg("⚠️  Token is already expired, will attempt refresh on first request")
	case minutesUntilExpiry <= 60:
		a.Logger.Warn().
			Str("subject_id", s.SubjectID).
			Int64("minutes_until_expiry", minutesUntilExpiry).
			Msg("⚠️  Token expires soon, will refresh on the first rejected request")
	default:
		a.Logger.Info().
			Str("subject_id", s.SubjectID).
			Int64("minutes_until_expiry", minutesUntilExpiry).
			Msg("✅ Token is valid and not expiring soon")
	}
}

func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
