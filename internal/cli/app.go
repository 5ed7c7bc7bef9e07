package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/OldStager01/elastic-orchestrator/api"
	"github.com/OldStager01/elastic-orchestrator/api/handlers"
	"github.com/OldStager01/elastic-orchestrator/internal/collector"
	"github.com/OldStager01/elastic-orchestrator/internal/events"
	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/OldStager01/elastic-orchestrator/internal/metrics"
	"github.com/OldStager01/elastic-orchestrator/internal/opstring"
	"github.com/OldStager01/elastic-orchestrator/internal/orchestrator"
	"github.com/OldStager01/elastic-orchestrator/internal/provision"
	"github.com/OldStager01/elastic-orchestrator/internal/resilience"
	"github.com/OldStager01/elastic-orchestrator/pkg/config"
	"github.com/OldStager01/elastic-orchestrator/pkg/database"
	"github.com/OldStager01/elastic-orchestrator/pkg/database/queries"
	"github.com/OldStager01/elastic-orchestrator/pkg/models"
)

// App owns every long-lived component of a running orchestrator.
type App struct {
	config        *config.Config
	db            *database.DB
	redis         *redis.Client
	bus           *events.EventBus
	eventLogger   *events.EventLogger
	fetcher       collector.Fetcher
	orch          *orchestrator.Orchestrator
	server        *api.Server
	metricsServer *http.Server
}

// NewApp builds the component graph. Nothing listens until Run.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{config: cfg}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.config
	checks := map[string]handlers.HealthCheck{}

	var store events.Store
	var history handlers.EventHistory
	if cfg.Database.Enabled {
		db, err := database.Open(ctx, cfg.Database.ToDBConfig())
		if err != nil {
			return fmt.Errorf("failed to open event store: %w", err)
		}
		a.db = db
		logger.Info("Event store connection established")

		repo := queries.NewEventRepository(db.DB)
		store, history = repo, repo
		checks["database"] = db.HealthCheck
	}

	var ledger provision.Ledger = provision.NewMemoryLedger()
	if cfg.Provision.Ledger == "redis" {
		client, err := provision.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.redis = client
		ledger = provision.NewRedisLedger(client, cfg.Redis.KeyPrefix)
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		logger.WithField("addr", cfg.Redis.Addr).Info("Using redis provision ledger")
	}

	a.bus = events.NewEventBus(cfg.Events.BufferSize)

	source, fetcher := newSource(cfg.Collector, sourceStateChanged(events.NewPublisher(a.bus)))
	a.fetcher = fetcher
	if fetcher != nil {
		checks["metric_source"] = fetcher.HealthCheck
	}
	a.eventLogger = events.NewEventLogger(store, a.bus.SubscribeAll(), events.LoggerConfig{
		History:      cfg.Events.History,
		WriteTimeout: cfg.Events.WriteTimeout,
	})
	a.eventLogger.Start()

	launcher := provision.NewSimulatedLauncher(provision.SimulatedLauncherConfig{
		StartupTime: cfg.Provision.Launcher.StartupTime,
		FailureRate: cfg.Provision.Launcher.FailureRate,
		Host:        cfg.Provision.Launcher.Host,
	})

	a.orch = orchestrator.New(orchestrator.Config{
		SampleInterval: cfg.Collector.Interval,
		Watch:          cfg.Watch.ToWatchConfig(),
		Policy:         cfg.Policy.ToPolicyConfig(),
		Source:         source,
	}, provision.Config{
		ProvisionDelay: cfg.Provision.Delay,
		MaxRetries:     cfg.Provision.MaxRetries,
		RetryDelay:     cfg.Provision.RetryDelay,
		Launcher:       launcher,
		Ledger:         ledger,
	}, a.bus)

	m := metrics.Get()
	m.SetGaugeSource(a.orch)
	go m.Consume(a.bus.SubscribeAll())

	a.server = api.NewServer(cfg.API, &cfg.WebSocket, api.Dependencies{
		Orchestrator: a.orch,
		Defaults:     cfg.Policy.Defaults(),
		Events:       a.bus.SubscribeAll(),
		Recent:       a.eventLogger,
		History:      history,
		HealthChecks: checks,
		Ready:        a.orch.Accepting,
		Metrics:      m,
	})

	return nil
}

// newSource builds the metric source samplers read. The fetcher is nil
// when the source has no backend to check or close.
func newSource(cfg config.CollectorConfig, onStateChange func(name string, from, to resilience.State)) (collector.MetricSource, collector.Fetcher) {
	switch cfg.Type {
	case "http":
		resilient := collector.NewResilientSource(collector.ResilientSourceConfig{
			Source: collector.NewHTTPSource(collector.HTTPSourceConfig{
				Endpoint: cfg.Endpoint,
				Timeout:  cfg.Timeout,
			}),
			MaxFailures:   cfg.CircuitBreaker.MaxFailures,
			Timeout:       cfg.CircuitBreaker.Timeout,
			RetryAttempts: cfg.RetryAttempts,
			RetryDelay:    cfg.RetryDelay,
			OnStateChange: onStateChange,
		})
		return resilient, resilient
	case "mock":
		mock := collector.NewMockSource()
		for name, value := range cfg.MockValues {
			mock.SetValue(name, value)
		}
		return mock, mock
	default:
		return collector.NoopSource{}, nil
	}
}

// sourceStateChanged records circuit breaker transitions of the metric
// source and raises an alert when samplers lose or regain their source.
func sourceStateChanged(pub *events.Publisher) func(name string, from, to resilience.State) {
	return func(name string, from, to resilience.State) {
		metrics.Get().SetCircuitBreakerState(name, int(to))

		data := map[string]string{"source": name, "from": from.String(), "to": to.String()}
		switch {
		case to == resilience.StateOpen:
			pub.Alert("", models.SeverityCritical, "Metric source unavailable, circuit open", data)
		case to == resilience.StateClosed && from != resilience.StateClosed:
			pub.Alert("", models.SeverityInfo, "Metric source recovered", data)
		}
	}
}

// Deploy loads and deploys descriptor files.
func (a *App) Deploy(ctx context.Context, files []string) error {
	for _, path := range files {
		ops, err := opstring.LoadWithDefaults(path, a.config.Policy.Defaults())
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		if err := a.orch.Deploy(ctx, ops); err != nil {
			return fmt.Errorf("deploy %s: %w", path, err)
		}
		logger.WithField("opstring", ops.Name).Infof("Deployed %s", path)
	}
	return nil
}

func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orch
}

func (a *App) Server() *api.Server {
	return a.server
}

// Run starts the servers, deploys the configured descriptors and blocks
// until ctx is done or a server fails.
func (a *App) Run(ctx context.Context) error {
	if err := a.Deploy(ctx, a.config.Deploy.Files); err != nil {
		if shutdownErr := a.Shutdown(); shutdownErr != nil {
			logger.Errorf("Shutdown after failed deploy: %v", shutdownErr)
		}
		return err
	}

	if a.config.Prometheus.Enabled {
		a.metricsServer = metrics.StartServer(a.config.Prometheus.Port)
		logger.Infof("Metrics listening on port %d", a.config.Prometheus.Port)
	}

	errChan := make(chan error, 1)
	server := a.server
	go func() {
		logger.Infof("API server listening on port %d", a.config.API.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var runErr error
	select {
	case err := <-errChan:
		runErr = fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("Shutdown requested")
	}

	if err := a.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown stops the servers, then the orchestrator, then flushes events.
func (a *App) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.App.ShutdownTimeout)
	defer cancel()

	var firstErr error
	var wg sync.WaitGroup
	if a.metricsServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Errorf("Metrics server shutdown: %v", err)
			}
		}()
	}
	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			firstErr = fmt.Errorf("shutdown error: %w", err)
		}
		a.server = nil
	}
	wg.Wait()

	a.Close()
	logger.Info("Orchestrator stopped gracefully")
	return firstErr
}

// Close releases everything NewApp acquired. It is safe on a partially
// built App.
func (a *App) Close() {
	if a.server != nil {
		// never started or not shut down: stops the websocket hub and bridge
		if err := a.server.Shutdown(context.Background()); err != nil {
			logger.Errorf("API server shutdown: %v", err)
		}
		a.server = nil
	}
	if a.orch != nil {
		a.orch.Stop()
	}
	if a.bus != nil {
		a.bus.Close()
	}
	if a.eventLogger != nil {
		a.eventLogger.Stop()
	}
	if a.fetcher != nil {
		a.fetcher.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
