package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	teamauth "github.com/teamup-ku/go-teamauth"
	"github.com/teamup-ku/go-teamauth/activitymap"
	"github.com/teamup-ku/go-teamauth/config"
	"github.com/teamup-ku/go-teamauth/metrics"
	"github.com/teamup-ku/go-teamauth/projects"
	"github.com/teamup-ku/go-teamauth/provider/supabase"
	"github.com/teamup-ku/go-teamauth/store"
	"github.com/teamup-ku/go-teamauth/store/bunstore"
	"github.com/teamup-ku/go-teamauth/store/filestore"
	"github.com/teamup-ku/go-teamauth/store/redisstore"
	"golang.org/x/time/rate"
)

// app is the per-command wiring built from the resolved configuration.
type app struct {
	cfg      *config.Config
	loggers  teamauth.LoggerProvider
	logger   teamauth.Logger
	kv       store.KV
	session  *teamauth.SessionContext
	registry *prometheus.Registry
	metrics  *metrics.Collector
	sink     teamauth.ActivitySink
	closers  []func() error
}

func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(config.LoadOptions{Path: path, Flags: cmd.Flags()})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		loggers:  newLoggers(cfg),
		registry: prometheus.NewRegistry(),
	}
	a.logger = a.loggers.GetLogger("cli")
	a.metrics = metrics.NewCollector(a.registry)
	a.sink = a.metrics

	if cfg.AuditLog != "" {
		f, err := os.OpenFile(cfg.AuditLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("audit log: %w", err)
		}
		a.closers = append(a.closers, f.Close)
		a.sink = teamauth.MultiActivitySink{a.metrics, activitymap.NewSink(f)}
	}

	kv, closer, err := openStore(cmd.Context(), cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	a.kv = kv
	a.session = teamauth.NewSessionContext(store.Tokens(kv))
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func newLoggers(cfg *config.Config) teamauth.LoggerProvider {
	if !cfg.Verbose {
		return teamauth.LoggerProviderFunc(func(string) teamauth.Logger {
			return teamauth.NopLogger{}
		})
	}
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("teamauth"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)
	return teamauth.LoggerProviderFunc(func(name string) teamauth.Logger {
		return lgr.GetLogger(name)
	})
}

func openStore(ctx context.Context, cfg *config.Config) (store.KV, func() error, error) {
	switch cfg.Store.Kind {
	case config.StoreMemory:
		return store.NewMemory(), nil, nil
	case config.StoreRedis:
		s, client, err := redisstore.Dial(ctx, cfg.Store.RedisAddr, cfg.Store.RedisPassword, cfg.Store.RedisDB,
			redisstore.WithTTL(cfg.Store.TTL))
		if err != nil {
			return nil, nil, err
		}
		return s, client.Close, nil
	case config.StoreBun:
		s, db, err := bunstore.OpenSQLite(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, db.Close, nil
	default:
		path := cfg.Store.Path
		if path == "" {
			var err error
			if path, err = filestore.DefaultPath(); err != nil {
				return nil, nil, err
			}
		}
		return filestore.New(path), nil, nil
	}
}

func (a *app) httpClient() *http.Client {
	return &http.Client{Timeout: a.cfg.Timeout}
}

func (a *app) backend(baseURL string, opts ...teamauth.ClientOption) *teamauth.BackendClient {
	opts = append([]teamauth.ClientOption{
		teamauth.WithHTTPClient(a.httpClient()),
		teamauth.WithClientLogger(a.logger),
	}, opts...)
	if a.cfg.RateLimit > 0 {
		burst := int(a.cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, teamauth.WithRateLimiter(rate.NewLimiter(rate.Limit(a.cfg.RateLimit), burst)))
	}
	return teamauth.NewBackendClient(baseURL, opts...)
}

// identity builds the provider client. Its session lives next to the
// application token so a later command can resume it.
func (a *app) identity() (*supabase.Client, error) {
	if err := a.cfg.RequireSupabase(); err != nil {
		return nil, err
	}
	return supabase.New(supabase.Config{
		URL:        a.cfg.Supabase.URL,
		AnonKey:    a.cfg.Supabase.AnonKey,
		HTTPClient: a.httpClient(),
		Sessions:   supabase.NewKVSessionStore(a.kv),
		Policy:     a.emailPolicy(),
		Logger:     a.logger,
	}), nil
}

func (a *app) emailPolicy() *teamauth.EmailPolicy {
	return teamauth.NewEmailPolicy(a.cfg.EmailDomains...)
}

// forget drops the stored application token and provider session without
// talking to the provider.
func (a *app) forget(ctx context.Context) error {
	if err := store.Tokens(a.kv).Clear(ctx); err != nil {
		return err
	}
	return supabase.NewKVSessionStore(a.kv).Clear(ctx)
}

func (a *app) orchestrator(opts ...teamauth.OrchestratorOption) (*teamauth.Orchestrator, error) {
	identity, err := a.identity()
	if err != nil {
		return nil, err
	}

	schema := a.cfg.SchemaVersion()
	backend := a.backend(a.cfg.BackendURL)
	exchanger := teamauth.NewExchangeClient(backend,
		teamauth.WithExchangeSchema(schema),
		teamauth.WithExchangeLogger(a.logger),
	)
	onboarding := teamauth.NewOnboardingClient(backend,
		teamauth.WithOnboardingSchema(schema),
		teamauth.WithPhoneRegion(a.cfg.PhoneRegion),
		teamauth.WithOnboardingLogger(a.logger),
	)

	opts = append([]teamauth.OrchestratorOption{
		teamauth.WithSessionContext(a.session),
		teamauth.WithEmailPolicy(a.emailPolicy()),
		teamauth.WithAppURL(a.cfg.AppURL),
		teamauth.WithActivitySink(a.sink),
		teamauth.WithLoggerProvider(a.loggers),
	}, opts...)
	return teamauth.NewOrchestrator(identity, exchanger, onboarding, opts...), nil
}

func (a *app) projects() *projects.Client {
	return projects.New(a.backend(a.cfg.ProjectsURL,
		teamauth.WithTokenSource(a.session),
		teamauth.WithRequireToken(),
	))
}

// withApp builds the app for a command and closes it afterwards.
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}
