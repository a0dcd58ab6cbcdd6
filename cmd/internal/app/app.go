// Package app wires the arcsync client runtime: config, logging, durable
// stores, and the session, gateway, cache and chat layers on top of them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"arcsync/cmd/internal/chat"
	"arcsync/cmd/internal/gateway"
	"arcsync/cmd/internal/querycache"
	"arcsync/cmd/internal/realtime"
	"arcsync/cmd/internal/session"
	"arcsync/cmd/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App owns every long-lived client component. Close releases them.
type App struct {
	cfg Config
	log *slog.Logger

	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	stores   *stores

	Session   *session.Manager
	Gateway   *gateway.Gateway
	Cache     *querycache.Cache
	Chat      *chat.Client
	Lifecycle *session.Lifecycle
}

// Option customizes New.
type Option func(*options)

type options struct {
	httpClient *http.Client
	onEnded    session.LogoutFunc
}

// WithHTTPClient sets the client used for API and refresh calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithSessionEnded is called after the session ends and local state is wiped.
func WithSessionEnded(fn session.LogoutFunc) Option {
	return func(o *options) { o.onEnded = fn }
}

// New opens the configured stores and wires the client layers.
func New(ctx context.Context, cfg Config, log *slog.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.New(reg)

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		log:       log,
		registry:  reg,
		metrics:   metrics,
		stores:    st,
		Lifecycle: session.NewLifecycle(),
	}

	refreshClient := o.httpClient
	if refreshClient == nil {
		refreshClient = &http.Client{Timeout: cfg.Session.RefreshTimeout}
	}
	a.Session, err = session.NewManager(cfg.Session, st.creds,
		session.NewHTTPRefresher(cfg.API.BaseURL, refreshClient),
		session.WithLogger(log.With("component", "session")),
		session.WithMetrics(metrics),
	)
	if err != nil {
		st.close()
		return nil, err
	}

	gwOpts := []gateway.Option{
		gateway.WithLogger(log.With("component", "gateway")),
		gateway.WithMetrics(metrics),
	}
	if o.httpClient != nil {
		gwOpts = append(gwOpts, gateway.WithHTTPClient(o.httpClient))
	}
	a.Gateway, err = gateway.New(cfg.API, a.Session, gwOpts...)
	if err != nil {
		a.Session.Close()
		st.close()
		return nil, err
	}

	a.Cache = querycache.New(querycache.GatewayFetcher{G: a.Gateway}, st.snaps,
		querycache.WithLogger(log.With("component", "querycache")),
		querycache.WithMetrics(metrics),
		querycache.WithStaleTime(cfg.StaleTime),
	)

	a.Chat = chat.New(a.Gateway, a.Session, a.Cache,
		chat.WithLogger(log.With("component", "chat")),
		chat.WithMetrics(metrics),
		chat.WithSessionEnded(o.onEnded),
	)
	return a, nil
}

// Config returns the configuration the app was built with.
func (a *App) Config() Config { return a.cfg }

// Metrics returns the metrics sink shared by all components.
func (a *App) Metrics() *telemetry.Metrics { return a.metrics }

// Watcher builds a realtime watcher authorized by the session.
func (a *App) Watcher(ctx context.Context, opts ...realtime.Option) (*realtime.Watcher, error) {
	opts = append([]realtime.Option{
		realtime.WithLogger(a.log.With("component", "realtime")),
		realtime.WithMetrics(a.metrics),
	}, opts...)
	return realtime.New(realtime.DefaultConfig(a.cfg.API.BaseURL), a.Session.TokenSource(ctx), a.Cache, opts...)
}

// Close stops background work and releases stores.
func (a *App) Close() {
	a.Session.Close()
	a.stores.close()
}

// ServeOps serves the ops handler on cfg.MetricsAddr until ctx ends.
// It returns nil immediately when no address is configured.
func (a *App) ServeOps(ctx context.Context) error {
	if a.cfg.MetricsAddr == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           WithRequestLogging(a.OpsHandler(), a.log.With("component", "ops")),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("ops.start", "addr", a.cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("app: ops server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("app: ops shutdown: %w", err)
	}
	a.log.Info("ops.stopped")
	return nil
}
