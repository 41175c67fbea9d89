package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/stacklok/toolhive-wallet-sync/internal/api"
	"github.com/stacklok/toolhive-wallet-sync/internal/bridge"
	"github.com/stacklok/toolhive-wallet-sync/internal/config"
	"github.com/stacklok/toolhive-wallet-sync/internal/identity"
	"github.com/stacklok/toolhive-wallet-sync/internal/ledger"
	"github.com/stacklok/toolhive-wallet-sync/internal/ledger/httpledger"
	"github.com/stacklok/toolhive-wallet-sync/internal/message"
	"github.com/stacklok/toolhive-wallet-sync/internal/service"
	"github.com/stacklok/toolhive-wallet-sync/internal/service/inmemory"
	"github.com/stacklok/toolhive-wallet-sync/internal/status"
	"github.com/stacklok/toolhive-wallet-sync/internal/telemetry"
	"github.com/stacklok/toolhive-wallet-sync/internal/wallet"
	"github.com/stacklok/toolhive-wallet-sync/internal/worker"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
	defaultSyncJitter     = 2 * time.Second
)

// WalletSyncAppOptions is a function that configures the wallet sync app builder
type WalletSyncAppOptions func(*walletSyncAppConfig) error

// walletSyncAppConfig collects the builder inputs.
// Components left nil are built from the configuration.
type walletSyncAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	ledgerClient    ledger.Client
	identityStorage identity.Storage
	statusSvc       status.Service

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	syncJitter time.Duration

	telemetry *telemetry.Telemetry
}

func baseConfig(opts ...WalletSyncAppOptions) (*walletSyncAppConfig, error) {
	cfg := &walletSyncAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
		syncJitter:     defaultSyncJitter,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return cfg, nil
}

// NewWalletSyncApp builds every component of the server. Nothing runs
// until Start is called.
func NewWalletSyncApp(
	ctx context.Context,
	opts ...WalletSyncAppOptions,
) (*WalletSyncApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	components, err := buildSyncComponents(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	httpServer, err := buildHTTPServer(ctx, cfg, components.WalletService)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	return &WalletSyncApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) WalletSyncAppOptions {
	return func(cfg *walletSyncAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) WalletSyncAppOptions {
	return func(cfg *walletSyncAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) WalletSyncAppOptions {
	return func(cfg *walletSyncAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithLedgerClient allows injecting a ledger client instead of the HTTP gateway one
func WithLedgerClient(c ledger.Client) WalletSyncAppOptions {
	return func(cfg *walletSyncAppConfig) error {
		cfg.ledgerClient = c
		return nil
	}
}

// WithIdentityStorage allows injecting where credentials are read from
func WithIdentityStorage(s identity.Storage) WalletSyncAppOptions {
	return func(cfg *walletSyncAppConfig) error {
		cfg.identityStorage = s
		return nil
	}
}

// WithStatusService allows injecting a custom status service (for testing)
func WithStatusService(svc status.Service) WalletSyncAppOptions {
	return func(cfg *walletSyncAppConfig) error {
		cfg.statusSvc = svc
		return nil
	}
}

// WithSyncJitter sets the random spread added to every polling interval
func WithSyncJitter(jitter time.Duration) WalletSyncAppOptions {
	return func(cfg *walletSyncAppConfig) error {
		if jitter < 0 {
			return fmt.Errorf("sync jitter cannot be negative")
		}
		cfg.syncJitter = jitter
		return nil
	}
}

// WithTelemetry sets the OpenTelemetry providers used for traces and metrics
func WithTelemetry(t *telemetry.Telemetry) WalletSyncAppOptions {
	return func(cfg *walletSyncAppConfig) error {
		cfg.telemetry = t
		return nil
	}
}

// wallets returns the configured wallets in service form
func wallets(cfg *config.Config) []service.Wallet {
	result := make([]service.Wallet, 0, len(cfg.Wallets))
	for i := range cfg.Wallets {
		w := &cfg.Wallets[i]
		result = append(result, service.Wallet{
			Target:   w.Target(),
			Params:   w.Params(),
			Interval: w.Interval(),
		})
	}
	return result
}

// NewIdentityStorage opens the credential store selected by cfg
func NewIdentityStorage(cfg *config.Config) identity.Storage {
	ident := cfg.GetIdentity()
	if ident.Source == config.IdentitySourceKeyring {
		slog.Info("Reading identity from the OS keyring", "service", ident.Service, "user", ident.User)
		return identity.NewKeyringLoader(ident.Service, ident.User)
	}
	loader := identity.NewFileLoader(ident.Path)
	slog.Info("Reading identity from file", "path", loader.Path())
	return loader
}

// buildLedgerClient creates the ledger gateway client
func buildLedgerClient(cfg *config.Config) (ledger.Client, error) {
	var opts []httpledger.Option
	if cfg.Ledger.RequestsPerSecond > 0 {
		opts = append(opts, httpledger.WithRateLimit(cfg.Ledger.RequestsPerSecond))
	}
	if cfg.Ledger.MaxRetries > 0 {
		opts = append(opts, httpledger.WithMaxRetries(cfg.Ledger.MaxRetries))
	}
	if timeout := cfg.Ledger.GetTimeout(); timeout > 0 {
		opts = append(opts, httpledger.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	return httpledger.New(cfg.Ledger.Endpoint, opts...)
}

// buildSyncComponents builds the stores, status service, bridge and wallet service
func buildSyncComponents(
	ctx context.Context,
	b *walletSyncAppConfig,
) (*AppComponents, error) {
	slog.Info("Initializing sync components")

	if b.identityStorage == nil {
		b.identityStorage = NewIdentityStorage(b.config)
	}
	if b.ledgerClient == nil {
		client, err := buildLedgerClient(b.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create ledger client: %w", err)
		}
		b.ledgerClient = client
	}

	tracerProvider, meterProvider := b.providers()

	tracked := wallets(b.config)
	if b.statusSvc == nil {
		var persistence status.StatusPersistence
		if b.config.StatusDir != "" {
			persistence = status.NewFileStatusPersistence(b.config.StatusDir)
		}
		b.statusSvc = status.NewService(persistence)
	}
	registrations := make([]status.Registration, 0, len(tracked))
	for _, w := range tracked {
		registrations = append(registrations, status.Registration{Target: w.Target, Interval: w.Interval})
	}
	if err := b.statusSvc.Initialize(ctx, registrations); err != nil {
		return nil, fmt.Errorf("failed to initialize status service: %w", err)
	}

	syncMetrics, err := telemetry.NewSyncMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}
	bridgeMetrics, err := telemetry.NewBridgeMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create bridge metrics: %w", err)
	}
	if syncMetrics != nil {
		slog.Info("Sync metrics enabled")
	}

	workerOpts := []worker.Option{
		worker.WithStatusService(b.statusSvc),
		worker.WithSyncMetrics(syncMetrics),
		worker.WithTracer(tracerProvider.Tracer(worker.TracerName)),
		worker.WithJitter(b.syncJitter),
	}
	factory := func(target message.Target, outbox chan<- message.Result) (*worker.Worker, error) {
		syncer, err := worker.NewSyncer(target.Family, b.ledgerClient)
		if err != nil {
			return nil, err
		}
		return worker.New(target, syncer, b.identityStorage, outbox, workerOpts...), nil
	}

	stores := wallet.NewStores()
	br := bridge.New(factory, wallet.NewReconciler(stores),
		bridge.WithStatusService(b.statusSvc),
		bridge.WithBridgeMetrics(bridgeMetrics),
	)

	svc, err := inmemory.New(br, stores, b.statusSvc, tracked,
		inmemory.WithTracer(tracerProvider.Tracer(inmemory.ServiceTracerName)),
		inmemory.WithCredentials(b.identityStorage),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet service: %w", err)
	}

	slog.Info("Sync components initialized successfully", "wallets", len(tracked))
	return &AppComponents{
		Bridge:        br,
		Stores:        stores,
		StatusService: b.statusSvc,
		WalletService: svc,
	}, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *walletSyncAppConfig,
	svc service.WalletService,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	// Use default middlewares if not provided
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	var serverOpts []api.ServerOption
	if b.telemetry != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.telemetry.MeterProvider())
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		// Telemetry wraps the whole chain so every request is observed
		b.middlewares = append([]func(http.Handler) http.Handler{
			telemetry.TracingMiddleware(b.telemetry.TracerProvider()),
			metricsMiddleware,
		}, b.middlewares...)

		if h := b.telemetry.MetricsHandler(); h != nil {
			serverOpts = append(serverOpts, api.WithMetricsHandler(h))
			slog.Info("Prometheus metrics endpoint enabled", "path", "/metrics")
		}
	}
	serverOpts = append(serverOpts, api.WithMiddlewares(b.middlewares...))

	router := api.NewServer(svc, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}

// providers returns the configured providers, no-op tracing and no metrics
// without telemetry
func (b *walletSyncAppConfig) providers() (trace.TracerProvider, metric.MeterProvider) {
	if b.telemetry == nil {
		return noop.NewTracerProvider(), nil
	}
	return b.telemetry.TracerProvider(), b.telemetry.MeterProvider()
}
