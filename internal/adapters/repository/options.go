package repository

import "time"

// Option applies a configuration option to the ShardedCache.
type Option func(*ShardedCache)

// WithShardCount sets the number of shards. Values below 1 are ignored.
func WithShardCount(n int) Option {
	return func(c *ShardedCache) {
		if n > 0 {
			c.shardCount = n
		}
	}
}

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(c *ShardedCache) {
		if interval > 0 {
			c.metricsUpdateInterval = interval
		}
	}
}
