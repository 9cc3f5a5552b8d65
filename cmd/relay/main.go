// Command relay runs the ghost relay HTTP service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/ghostrelay/internal/adapters/http/api"
	"github.com/okian/ghostrelay/internal/adapters/http/site"
	"github.com/okian/ghostrelay/internal/adapters/http/swagger"
	"github.com/okian/ghostrelay/internal/adapters/keystore"
	"github.com/okian/ghostrelay/internal/adapters/ledger"
	"github.com/okian/ghostrelay/internal/adapters/mq/amqp"
	service "github.com/okian/ghostrelay/internal/app"
	"github.com/okian/ghostrelay/internal/config"
	"github.com/okian/ghostrelay/pkg/logger"
	"github.com/okian/ghostrelay/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	connectTimeout            = 10 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := logger.Init(); err != nil {
		// logger isn't available yet
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if path, err := config.LoadDotEnv(config.DotEnvPaths()...); err != nil {
		log.Warn(ctx, "ignoring unreadable .env file", logger.Error(err))
	} else if path != "" {
		log.Info(ctx, "loaded environment file", logger.String("path", path))
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Error(ctx, "failed to load config", logger.Error(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "relay exited with error", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1) //nolint:gocritic // exitAfterDefer: Sync already called
	}
}

// run serves the relay until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, cleanup, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// buildService wires the configured backends into a relay service. The
// returned cleanup releases broker and database connections; on error
// everything opened so far is already released.
func buildService(ctx context.Context, cfg *config.Config, log logger.Logger) (*service.Service, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	reward, err := cfg.RewardWei()
	if err != nil {
		return nil, nil, err
	}
	deposit, err := cfg.InitialDepositWei()
	if err != nil {
		return nil, nil, err
	}

	minLatency, maxLatency := cfg.LedgerLatency()
	chain := ledger.NewInMemoryLedger(
		ledger.WithLatencyRange(minLatency, maxLatency),
		ledger.WithIntegrationInterval(cfg.IntegrationInterval),
		ledger.WithRewardPerReading(reward),
	)
	oracle := ledger.NewInMemoryOracle(
		ledger.WithCarbonIntensity(cfg.OracleCarbonIntensity),
		ledger.WithCleanThreshold(cfg.OracleCleanThreshold),
		ledger.WithOracleLatencyRange(minLatency, maxLatency),
	)

	opts := []service.Option{
		service.WithLogger(log.Named("relay")),
		service.WithLedger(chain),
		service.WithOracle(oracle),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.EventQueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithShardCount(cfg.ShardCount),
		service.WithBackendTimeout(cfg.BackendTimeout()),
		service.WithLockTimeout(cfg.LockTimeout()),
		service.WithAutoMint(cfg.AutoMint, deposit),
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if cfg.DatabaseURL != "" {
		keys, err := keystore.NewPostgres(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect key registry: %w", err)
		}
		closers = append(closers, keys.Close)
		opts = append(opts, service.WithKeyRegistry(keys))
		log.Info(ctx, "using PostgreSQL key registry", logger.String("url", keystore.MaskPassword(cfg.DatabaseURL)))
	} else {
		log.Info(ctx, "using in-memory key registry")
	}

	if cfg.RabbitMQURL != "" {
		pub, err := amqp.Dial(connectCtx, cfg.RabbitMQURL,
			amqp.WithExchange(cfg.RabbitMQExchange),
			amqp.WithRoutingKey(cfg.RabbitMQRoutingKey),
		)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect notifier: %w", err)
		}
		closers = append(closers, func() {
			if err := pub.Close(); err != nil {
				log.Warn(ctx, "closing AMQP publisher", logger.Error(err))
			}
		})
		opts = append(opts, service.WithPublisher(pub))
		log.Info(ctx, "publishing committed readings to RabbitMQ",
			logger.String("url", amqp.MaskPassword(cfg.RabbitMQURL)),
			logger.String("exchange", cfg.RabbitMQExchange),
		)
	}

	return service.New(opts...), cleanup, nil
}

// newHandler registers every route on a fresh mux.
func newHandler(ctx context.Context, svc *service.Service) http.Handler {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	site.Register(ctx, mux)
	api.NewServer(svc, svc).Register(ctx, mux)
	return api.Handler(mux)
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes the service gauges; GetStats records them.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = svc.GetStats()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
