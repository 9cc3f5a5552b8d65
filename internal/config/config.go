// Package config defines relay configuration and its loader.
//
// Values are layered: defaults from New, then an optional YAML file named by
// GHOSTRELAY_CONFIG, then GHOSTRELAY_* environment variables. A .env file, if
// present, is applied to the environment first and never overrides variables
// that are already set.
package config

import (
	"context"
	"fmt"
	"math/big"
	"runtime"
	"strings"
	"time"

	"github.com/okian/ghostrelay/pkg/units"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":3001".
	Addr string `koanf:"addr"`

	// ShardCount sets the number of credit cache shards.
	ShardCount int `koanf:"shard_count"`

	// DedupeSize bounds the replay guard.
	DedupeSize int `koanf:"dedupe_size"`

	// BackendTimeoutMS bounds each ledger or oracle call.
	BackendTimeoutMS int `koanf:"backend_timeout_ms"`

	// LockTimeoutMS bounds how long a reading waits for its device lock.
	LockTimeoutMS int `koanf:"lock_timeout_ms"`

	// EventQueueSize bounds the notification queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of notification workers.
	WorkerCount int `koanf:"worker_count"`

	// DatabaseURL selects the PostgreSQL key registry when set.
	DatabaseURL string `koanf:"database_url"`

	// RabbitMQURL enables AMQP notifications when set.
	RabbitMQURL        string `koanf:"rabbitmq_url"`
	RabbitMQExchange   string `koanf:"rabbitmq_exchange"`
	RabbitMQRoutingKey string `koanf:"rabbitmq_routing_key"`

	// LedgerLatencyMinMS and LedgerLatencyMaxMS simulate chain RPC latency.
	LedgerLatencyMinMS int `koanf:"ledger_latency_min_ms"`
	LedgerLatencyMaxMS int `koanf:"ledger_latency_max_ms"`

	// OracleCarbonIntensity seeds the simulated oracle, in gCO2/kWh.
	OracleCarbonIntensity uint64 `koanf:"oracle_carbon_intensity"`

	// OracleCleanThreshold is the intensity at or above which the grid is DIRTY.
	OracleCleanThreshold uint64 `koanf:"oracle_clean_threshold"`

	// IntegrationInterval triggers the integration check every N readings.
	IntegrationInterval uint64 `koanf:"integration_interval"`

	// RewardEther is the per-reading reward and penalty, in ether.
	RewardEther string `koanf:"reward_ether"`

	// AutoMint mints and funds a ghost when a device registers. Only ledgers
	// that can mint honour it.
	AutoMint bool `koanf:"auto_mint"`

	// InitialDepositEther funds auto-minted ghosts.
	InitialDepositEther string `koanf:"initial_deposit_ether"`
}

// New creates a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:              "info",
		Addr:                  ":3001",
		ShardCount:            16,
		DedupeSize:            50_000,
		BackendTimeoutMS:      5_000,
		LockTimeoutMS:         10_000,
		EventQueueSize:        10_000,
		WorkerCount:           runtime.NumCPU(),
		RabbitMQExchange:      "ghostrelay.readings",
		RabbitMQRoutingKey:    "ghost.reading.committed",
		OracleCarbonIntensity: 250,
		OracleCleanThreshold:  300,
		IntegrationInterval:   10,
		RewardEther:           "0.001",
		AutoMint:              true,
		InitialDepositEther:   "0.1",
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.ShardCount <= 0:
		return fmt.Errorf("%w: shard_count must be positive, got %d", ErrInvalidConfig, c.ShardCount)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive, got %d", ErrInvalidConfig, c.DedupeSize)
	case c.BackendTimeoutMS <= 0:
		return fmt.Errorf("%w: backend_timeout_ms must be positive, got %d", ErrInvalidConfig, c.BackendTimeoutMS)
	case c.LockTimeoutMS <= 0:
		return fmt.Errorf("%w: lock_timeout_ms must be positive, got %d", ErrInvalidConfig, c.LockTimeoutMS)
	case c.EventQueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive, got %d", ErrInvalidConfig, c.EventQueueSize)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive, got %d", ErrInvalidConfig, c.WorkerCount)
	case c.LedgerLatencyMinMS < 0 || c.LedgerLatencyMaxMS < c.LedgerLatencyMinMS:
		return fmt.Errorf("%w: ledger latency range [%d, %d] is invalid",
			ErrInvalidConfig, c.LedgerLatencyMinMS, c.LedgerLatencyMaxMS)
	case c.IntegrationInterval == 0:
		return fmt.Errorf("%w: integration_interval must be positive", ErrInvalidConfig)
	}
	if _, err := c.RewardWei(); err != nil {
		return err
	}
	if _, err := c.InitialDepositWei(); err != nil {
		return err
	}
	return nil
}

// BackendTimeout returns BackendTimeoutMS as a duration.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutMS) * time.Millisecond
}

// LockTimeout returns LockTimeoutMS as a duration.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMS) * time.Millisecond
}

// LedgerLatency returns the simulated ledger latency bounds.
func (c *Config) LedgerLatency() (minLatency, maxLatency time.Duration) {
	return time.Duration(c.LedgerLatencyMinMS) * time.Millisecond,
		time.Duration(c.LedgerLatencyMaxMS) * time.Millisecond
}

// RewardWei parses RewardEther.
func (c *Config) RewardWei() (*big.Int, error) {
	return parsePositiveEther("reward_ether", c.RewardEther)
}

// InitialDepositWei parses InitialDepositEther.
func (c *Config) InitialDepositWei() (*big.Int, error) {
	return parsePositiveEther("initial_deposit_ether", c.InitialDepositEther)
}

func parsePositiveEther(field, v string) (*big.Int, error) {
	wei, err := units.ParseEther(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, field, err)
	}
	if wei.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s must be positive, got %q", ErrInvalidConfig, field, v)
	}
	return wei, nil
}
