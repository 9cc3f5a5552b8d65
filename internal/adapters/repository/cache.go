package repository

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/okian/ghostrelay/internal/domain/model"
	"github.com/okian/ghostrelay/pkg/metrics"
)

const (
	defaultShardCount            = 16
	defaultMetricsUpdateInterval = 5 * time.Second
)

// deviceLock is a channel-based mutex so acquisition can honour ctx.
// refs counts holders and waiters; the lock is dropped from its shard at zero.
type deviceLock struct {
	ch   chan struct{}
	refs int
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]model.CreditState
	locks   map[string]*deviceLock
}

// ShardedCache implements CreditCache with a fixed set of map shards.
type ShardedCache struct {
	hydrator              Hydrator
	shards                []*shard
	shardCount            int
	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

var _ CreditCache = (*ShardedCache)(nil)

// NewShardedCache constructs a cache that hydrates misses through h. A
// background goroutine publishes entry gauges until ctx ends or Close is called.
func NewShardedCache(ctx context.Context, h Hydrator, opts ...Option) *ShardedCache {
	c := &ShardedCache{
		hydrator:              h,
		shardCount:            defaultShardCount,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.shards = make([]*shard, c.shardCount)
	for i := range c.shards {
		c.shards[i] = &shard{
			entries: make(map[string]model.CreditState),
			locks:   make(map[string]*deviceLock),
		}
	}

	metrics.UpdateCacheShardCount(c.shardCount)
	c.startMetricsUpdater(ctx)

	return c
}

// Close stops the metrics updater.
func (c *ShardedCache) Close() error {
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.wg.Wait()
	return nil
}

func (c *ShardedCache) shardIndex(deviceAddress string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deviceAddress))
	return int(h.Sum32() % uint32(c.shardCount))
}

func (c *ShardedCache) shardFor(deviceAddress string) *shard {
	return c.shards[c.shardIndex(deviceAddress)]
}

// Get returns the cached credits, hydrating from the ledger on a miss.
// A device without a ghost token yields ErrNotFound and is not cached.
func (c *ShardedCache) Get(ctx context.Context, deviceAddress string) (model.CreditState, error) {
	sh := c.shardFor(deviceAddress)

	sh.mu.RLock()
	st, ok := sh.entries[deviceAddress]
	sh.mu.RUnlock()
	if ok {
		metrics.RecordCacheHit()
		return st, nil
	}
	metrics.RecordCacheMiss()

	start := time.Now()
	st, err := c.hydrator.Hydrate(ctx, deviceAddress)
	metrics.RecordCacheHydrationLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.CreditState{}, err
		}
		return model.CreditState{}, fmt.Errorf("%w: %w", ErrHydrationFailed, err)
	}
	if st.TokenID == 0 {
		return model.CreditState{}, ErrNotFound
	}

	sh.mu.Lock()
	// Another caller may have seeded the entry while we were hydrating; the
	// existing entry may already carry local increments, so it wins.
	if existing, ok := sh.entries[deviceAddress]; ok {
		st = existing
	} else {
		sh.entries[deviceAddress] = st
	}
	sh.mu.Unlock()

	return st, nil
}

// Apply adds one good or bad credit to a cached device.
func (c *ShardedCache) Apply(ctx context.Context, deviceAddress string, delta model.Delta) (model.CreditState, error) {
	sh := c.shardFor(deviceAddress)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st, ok := sh.entries[deviceAddress]
	if !ok {
		return model.CreditState{}, ErrNotCached
	}
	switch delta {
	case model.DeltaGood:
		st.Good++
	case model.DeltaBad:
		st.Bad++
	default:
		return model.CreditState{}, ErrInvalidDelta
	}
	sh.entries[deviceAddress] = st
	return st, nil
}

// Revert undoes a prior Apply of delta. Counters never go below zero.
func (c *ShardedCache) Revert(ctx context.Context, deviceAddress string, delta model.Delta) error {
	sh := c.shardFor(deviceAddress)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st, ok := sh.entries[deviceAddress]
	if !ok {
		return ErrNotCached
	}
	switch delta {
	case model.DeltaGood:
		if st.Good > 0 {
			st.Good--
		}
	case model.DeltaBad:
		if st.Bad > 0 {
			st.Bad--
		}
	default:
		return ErrInvalidDelta
	}
	sh.entries[deviceAddress] = st
	metrics.RecordCacheRollback()
	return nil
}

// SetHealth stores the last committed health for a device.
func (c *ShardedCache) SetHealth(ctx context.Context, deviceAddress string, health int) error {
	sh := c.shardFor(deviceAddress)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st, ok := sh.entries[deviceAddress]
	if !ok {
		return ErrNotCached
	}
	st.Health = health
	sh.entries[deviceAddress] = st
	return nil
}

// Invalidate drops a device from the cache.
func (c *ShardedCache) Invalidate(ctx context.Context, deviceAddress string) {
	sh := c.shardFor(deviceAddress)
	sh.mu.Lock()
	_, ok := sh.entries[deviceAddress]
	delete(sh.entries, deviceAddress)
	sh.mu.Unlock()
	if ok {
		metrics.RecordCacheInvalidation()
	}
}

// Peek returns the cached state without touching the ledger.
func (c *ShardedCache) Peek(ctx context.Context, deviceAddress string) (model.CreditState, bool) {
	sh := c.shardFor(deviceAddress)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	st, ok := sh.entries[deviceAddress]
	return st, ok
}

// Count returns the number of cached devices.
func (c *ShardedCache) Count(ctx context.Context) int {
	n := 0
	for _, sh := range c.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

// Lock acquires the exclusion scope for one device, waiting until ctx ends.
func (c *ShardedCache) Lock(ctx context.Context, deviceAddress string) (func(), error) {
	sh := c.shardFor(deviceAddress)

	sh.mu.Lock()
	l, ok := sh.locks[deviceAddress]
	if !ok {
		l = &deviceLock{ch: make(chan struct{}, 1)}
		sh.locks[deviceAddress] = l
	}
	l.refs++
	sh.mu.Unlock()

	start := time.Now()
	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		c.releaseRef(sh, deviceAddress, l)
		return nil, fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
	}
	metrics.RecordDeviceLockWait(float64(time.Since(start).Microseconds()) / 1000)

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			c.releaseRef(sh, deviceAddress, l)
		})
	}, nil
}

func (c *ShardedCache) releaseRef(sh *shard, deviceAddress string, l *deviceLock) {
	sh.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(sh.locks, deviceAddress)
	}
	sh.mu.Unlock()
}

func (c *ShardedCache) startMetricsUpdater(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopChan:
				return
			case <-ticker.C:
				c.updateMetrics()
			}
		}
	}()
}

func (c *ShardedCache) updateMetrics() {
	total := 0
	for i, sh := range c.shards {
		sh.mu.RLock()
		n := len(sh.entries)
		sh.mu.RUnlock()
		total += n
		metrics.UpdateCacheEntriesPerShard("shard_"+strconv.Itoa(i), n)
	}
	metrics.UpdateCacheEntries(total)
}
