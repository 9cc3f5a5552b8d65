// Package service wires the reading pipeline to its collaborators and exposes
// the operations served by the HTTP API.
package service

import (
	"context"
	"fmt"
	"math/big"
	"runtime"
	"sync"
	"time"

	"github.com/okian/ghostrelay/internal/adapters/keystore"
	"github.com/okian/ghostrelay/internal/adapters/ledger"
	eventqueue "github.com/okian/ghostrelay/internal/adapters/mq/queue"
	workerpool "github.com/okian/ghostrelay/internal/adapters/mq/worker"
	"github.com/okian/ghostrelay/internal/adapters/repository"
	"github.com/okian/ghostrelay/internal/domain/dedupe"
	"github.com/okian/ghostrelay/pkg/logger"
	"github.com/okian/ghostrelay/pkg/metrics"
)

const (
	defaultBackendTimeout = 5 * time.Second
	defaultLockTimeout    = 10 * time.Second
	defaultStopTimeout    = 15 * time.Second
)

// Minter is implemented by ledgers that can create ghosts on demand. The
// in-memory simulator does; a real contract would not.
type Minter interface {
	Mint(owner, deviceAddress, hardwareID string) (uint64, error)
	Deposit(deviceAddress string, wei *big.Int) error
}

// Service implements the API dependencies for the relay.
type Service struct {
	mu sync.RWMutex

	// Collaborators
	ledger    ledger.Ledger
	oracle    ledger.Oracle
	keys      keystore.Registry
	publisher workerpool.Publisher

	// Core components, built by Start
	cache      *repository.ShardedCache
	deduper    dedupe.Deduper
	eventQueue *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool

	// Configuration
	workerCount    int
	queueSize      int
	dedupeSize     int
	shardCount     int
	backendTimeout time.Duration
	lockTimeout    time.Duration
	autoMint       bool
	initialDeposit *big.Int

	// State
	started   bool
	runCancel context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLedger sets the ledger backend. Defaults to an in-memory simulation.
func WithLedger(l ledger.Ledger) Option {
	return func(s *Service) {
		if l != nil {
			s.ledger = l
		}
	}
}

// WithOracle sets the grid oracle. Defaults to an in-memory simulation.
func WithOracle(o ledger.Oracle) Option {
	return func(s *Service) {
		if o != nil {
			s.oracle = o
		}
	}
}

// WithKeyRegistry sets the device key registry. Defaults to an in-memory registry.
func WithKeyRegistry(r keystore.Registry) Option {
	return func(s *Service) {
		if r != nil {
			s.keys = r
		}
	}
}

// WithPublisher sets the sink for committed readings. Defaults to the log.
func WithPublisher(p workerpool.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithWorkerCount sets the number of notification workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the notification queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many accepted readings the replay guard remembers.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithShardCount sets the number of credit cache shards.
func WithShardCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.shardCount = count
		}
	}
}

// WithBackendTimeout bounds every ledger and oracle call.
func WithBackendTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.backendTimeout = d
		}
	}
}

// WithLockTimeout bounds how long a reading waits for its device's lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithAutoMint makes RegisterDevice mint a ghost, and fund it with deposit
// wei, for devices that have none. Only effective with a Minter ledger.
func WithAutoMint(enabled bool, deposit *big.Int) Option {
	return func(s *Service) {
		s.autoMint = enabled
		if deposit != nil && deposit.Sign() > 0 {
			s.initialDeposit = new(big.Int).Set(deposit)
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:    runtime.NumCPU(),
		queueSize:      10000,
		dedupeSize:     50000,
		shardCount:     16,
		backendTimeout: defaultBackendTimeout,
		lockTimeout:    defaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the cache, replay guard and notifier and starts the workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("relay")
	}

	s.logger.Info(ctx, "starting relay service...")

	if s.ledger == nil {
		s.ledger = ledger.NewInMemoryLedger()
		s.logger.Info(ctx, "using in-memory ledger simulation")
	}
	if s.oracle == nil {
		s.oracle = ledger.NewInMemoryOracle()
		s.logger.Info(ctx, "using in-memory grid oracle")
	}
	if s.keys == nil {
		s.keys = keystore.NewMemory()
	}
	if s.publisher == nil {
		s.publisher = workerpool.NewLogPublisher(s.logger.Named("notifier"))
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.runCancel = cancel

	s.cache = repository.NewShardedCache(runCtx, &ledgerHydrator{svc: s},
		repository.WithShardCount(s.shardCount),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithBufferSize(s.queueSize),
	)
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s.publisher,
		workerpool.WithPublishTimeout(s.backendTimeout),
	)
	s.workerPool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "relay service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("shards", s.shardCount),
		logger.Int64("backendTimeoutMs", s.backendTimeout.Milliseconds()),
	)
	return nil
}

// Stop drains the notifier and releases the cache.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultStopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping relay service...")

	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "notifier did not drain", logger.Error(err))
	}
	if err := s.cache.Close(); err != nil {
		s.logger.Warn(ctx, "closing credit cache", logger.Error(err))
	}
	s.runCancel()

	s.started = false
	s.logger.Info(ctx, "relay service stopped")
}

// components returns the running pipeline parts, or ErrNotStarted.
func (s *Service) components() (*repository.ShardedCache, dedupe.Deduper, *eventqueue.InMemoryQueue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, nil, ErrNotStarted
	}
	return s.cache, s.deduper, s.eventQueue, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":          s.started,
		"workerCount":      s.workerCount,
		"queueSize":        s.queueSize,
		"dedupeSize":       s.dedupeSize,
		"shardCount":       s.shardCount,
		"backendTimeoutMs": s.backendTimeout.Milliseconds(),
		"autoMint":         s.autoMint,
	}

	if s.started {
		queueLen := s.eventQueue.Len(ctx)
		cached := s.cache.Count(ctx)
		guarded := s.deduper.Size()

		stats["queueLength"] = queueLen
		stats["cachedDevices"] = cached
		stats["replayGuardSize"] = guarded

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateCacheEntries(cached)
		metrics.UpdateReplayGuardSize(int(guarded))
	}

	return stats
}

// backendCall runs fn under the backend timeout and records its latency.
func (s *Service) backendCall(ctx context.Context, call ledger.Call, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.backendTimeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	metrics.RecordBackendLatency(string(call), float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		metrics.RecordBackendError(string(call))
		return fmt.Errorf("%s: %w", call, err)
	}
	return nil
}
