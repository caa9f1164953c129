package pagewire

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/pagewire/internal/config"
	"github.com/vango-dev/pagewire/internal/errors"
	"github.com/vango-dev/pagewire/pkg/channel"
	"github.com/vango-dev/pagewire/pkg/ident"
	"github.com/vango-dev/pagewire/pkg/metrics"
	"github.com/vango-dev/pagewire/pkg/middleware"
	"github.com/vango-dev/pagewire/pkg/operator"
	"github.com/vango-dev/pagewire/pkg/router"
	"github.com/vango-dev/pagewire/pkg/runtime"
	"github.com/vango-dev/pagewire/pkg/session"
	"github.com/vango-dev/pagewire/pkg/snapshot"
)

// Version is the SDK version announced to the relay.
const Version = "0.4.0"

// App wires a relay channel, session store, page router and runtime
// from one configuration.
//
// Register pages on Router() before calling Run.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	router   *router.Router
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	snapshots      snapshot.Store
	closeSnapshots func() error

	sessions *session.Store
	channel  *channel.Client
	runtime  *runtime.Runtime
	operator *operator.Server

	// options
	middleware     []router.Middleware
	dialer         channel.Dialer
	tracerProvider trace.TracerProvider
	noDefaultMW    bool

	runOnce sync.Once
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithRouter uses r instead of a fresh router.
func WithRouter(r *router.Router) Option {
	return func(a *App) { a.router = r }
}

// WithMiddleware appends middleware that wraps every page run, inside the
// built-in logging, metrics and tracing middleware.
func WithMiddleware(mw ...router.Middleware) Option {
	return func(a *App) { a.middleware = append(a.middleware, mw...) }
}

// WithRunKindMiddleware appends middleware that wraps only runs of the
// given kind, for example router.RunRerun to skip first renders.
func WithRunKindMiddleware(kind router.RunKind, mw ...router.Middleware) Option {
	return func(a *App) {
		a.middleware = append(a.middleware, router.Only(func(info router.RunInfo) bool {
			return info.Kind == kind
		}, router.Chain(mw...)))
	}
}

// WithoutDefaultMiddleware drops the built-in logging, metrics and
// tracing middleware.
func WithoutDefaultMiddleware() Option {
	return func(a *App) { a.noDefaultMW = true }
}

// WithSnapshotStore overrides the configured snapshot backend. The App
// does not close a store passed this way.
func WithSnapshotStore(s snapshot.Store) Option {
	return func(a *App) { a.snapshots = s }
}

// WithDialer overrides the configured WebSocket transport.
func WithDialer(d channel.Dialer) Option {
	return func(a *App) { a.dialer = d }
}

// WithPrometheusRegistry registers collectors on reg instead of a
// private registry.
func WithPrometheusRegistry(reg *prometheus.Registry) Option {
	return func(a *App) { a.registry = reg }
}

// WithTracerProvider sets the provider for page-run spans. Default: the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *App) { a.tracerProvider = tp }
}

// New validates cfg and builds every component. Nothing connects until
// Run. A nil cfg uses config.Default(), which fails validation without a
// relay URL and API key.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.router == nil {
		a.router = router.New()
	}
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	a.metrics = metrics.New(metrics.WithRegistry(a.registry))

	if a.snapshots == nil {
		store, closer, err := openSnapshots(context.Background(), cfg.Snapshot, a.logger)
		if err != nil {
			return nil, err
		}
		a.snapshots, a.closeSnapshots = store, closer
	}

	sessCfg := session.DefaultConfig()
	sessCfg.MaxDisconnected = cfg.Session.MaxDisconnected
	sessCfg.Retention = cfg.Session.Retention.Duration
	sessCfg.Snapshots = a.snapshots
	sessCfg.Observer = a.metrics
	a.sessions = session.NewStore(sessCfg, a.logger)

	chCfg := cfg.ChannelConfig()
	if chCfg.InstanceID == "" {
		chCfg.InstanceID = ident.NewInstanceID()
	}
	if a.dialer == nil {
		a.dialer = dialerFor(cfg.Relay.Transport)
	}
	ch, err := channel.New(chCfg,
		channel.WithDialer(a.dialer),
		channel.WithLogger(a.logger),
		channel.WithObserver(a.metrics))
	if err != nil {
		a.closeStores()
		return nil, errors.New(errors.CodeInvalidEndpoint).Wrap(err)
	}
	a.channel = ch

	var mw []router.Middleware
	if !a.noDefaultMW {
		var otelOpts []middleware.OTelOption
		if a.tracerProvider != nil {
			otelOpts = append(otelOpts, middleware.WithTracerProvider(a.tracerProvider))
		}
		mw = append(mw, router.Chain(
			middleware.OpenTelemetry(otelOpts...),
			middleware.Prometheus(a.metrics),
			middleware.Logging(a.logger)))
	}
	mw = append(mw, a.middleware...)

	a.runtime = runtime.New(ch, a.sessions, a.router.Registry(), runtime.Config{
		APIKey:     cfg.Relay.APIKey,
		SDKVersion: Version,
		Middleware: mw,
	}, a.logger)

	if cfg.Operator.Listen != "" {
		a.operator = operator.New(operator.Config{
			Addr:     cfg.Operator.Listen,
			Version:  Version,
			Gatherer: a.registry,
			Sessions: a.sessions,
			Registry: a.router.Registry(),
			Channel:  ch,
			Logger:   a.logger,
		})
	}
	return a, nil
}

func dialerFor(transport string) channel.Dialer {
	if transport == config.TransportNhooyr {
		return channel.NhooyrDialer{}
	}
	return channel.GorillaDialer{}
}

// Router returns the page router.
func (a *App) Router() *router.Router { return a.router }

// Config returns the configuration the App was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Sessions returns the session store.
func (a *App) Sessions() *session.Store { return a.sessions }

// Channel returns the relay channel.
func (a *App) Channel() *channel.Client { return a.channel }

// Runtime returns the page runtime.
func (a *App) Runtime() *runtime.Runtime { return a.runtime }

// Gatherer returns the Prometheus registry the App's collectors are on.
func (a *App) Gatherer() prometheus.Gatherer { return a.registry }

// Operator returns the operator API, or nil when operator.listen is empty.
func (a *App) Operator() *operator.Server { return a.operator }

// Run connects to the relay, registers the page catalogue and serves
// sessions until ctx is done or the channel gives up reconnecting. Then
// it waits for running pages, flushes the outbound queue, persists
// sessions and closes the snapshot store. An App runs once.
func (a *App) Run(ctx context.Context) error {
	if a.router.Registry().Len() == 0 {
		return errors.New(errors.CodeNoPages).
			WithSuggestion("Register pages on app.Router() before Run")
	}
	var err error = errors.New(errors.CodeInvalidConfig).WithDetail("App.Run called twice.")
	a.runOnce.Do(func() { err = a.run(ctx) })
	return err
}

func (a *App) run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	start := func(fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	start(a.runtime.Run)
	if a.operator != nil {
		start(a.operator.ListenAndServe)
	}

	a.logger.Info("connecting to relay",
		"url", a.cfg.Relay.URL,
		"pages", a.router.Registry().Len(),
		"transport", a.cfg.Relay.Transport)

	var runErr error
	if err := a.channel.Connect(ctx); err != nil && ctx.Err() == nil {
		runErr = errors.New(errors.CodeReconnectGaveUp).Wrap(err)
	} else if err == nil {
		select {
		case <-ctx.Done():
		case <-a.channel.Done():
			runErr = errors.New(errors.CodeReconnectGaveUp).Wrap(a.channel.Err())
		case runErr = <-errCh:
		}
	}

	cancel()
	wg.Wait()
	if runErr == nil {
		select {
		case runErr = <-errCh:
		default:
		}
	}

	return stderrors.Join(runErr, a.shutdown())
}

func (a *App) shutdown() error {
	timeout := a.cfg.Relay.ShutdownTimeout.Duration + 5*time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := a.channel.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.sessions.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.closeStores(); err != nil {
		errs = append(errs, err)
	}
	a.logger.Info("pagewire stopped")
	return stderrors.Join(errs...)
}

func (a *App) closeStores() error {
	if a.closeSnapshots == nil {
		return nil
	}
	err := a.closeSnapshots()
	a.closeSnapshots = nil
	if err != nil {
		return errors.New(errors.CodeSnapshotIOFailure).Wrap(err)
	}
	return nil
}
