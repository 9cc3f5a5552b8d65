package ledger

import (
	"math/big"
	"time"
)

// Option applies a configuration option to the InMemoryLedger.
type Option func(*InMemoryLedger)

// WithLatencyRange sets the simulated per-call latency. A zero max disables it.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(l *InMemoryLedger) {
		if minLatency >= 0 && maxLatency >= minLatency {
			l.latency.set(minLatency, maxLatency)
		}
	}
}

// WithIntegrationInterval sets how many committed readings of a device pass
// between integration recalculations.
func WithIntegrationInterval(n uint64) Option {
	return func(l *InMemoryLedger) {
		if n > 0 {
			l.integrationInterval = n
		}
	}
}

// WithRewardPerReading sets the wei credited for a clean reading and debited
// for a dirty one.
func WithRewardPerReading(wei *big.Int) Option {
	return func(l *InMemoryLedger) {
		if wei != nil && wei.Sign() > 0 {
			l.rewardPerReading = new(big.Int).Set(wei)
		}
	}
}

// OracleOption applies a configuration option to the InMemoryOracle.
type OracleOption func(*InMemoryOracle)

// WithCarbonIntensity sets the initial carbon intensity in gCO2/kWh.
func WithCarbonIntensity(g uint64) OracleOption {
	return func(o *InMemoryOracle) {
		o.intensity = g
	}
}

// WithCleanThreshold sets the intensity below which the grid is CLEAN.
func WithCleanThreshold(g uint64) OracleOption {
	return func(o *InMemoryOracle) {
		if g > 0 {
			o.cleanThreshold = g
		}
	}
}

// WithOracleLatencyRange sets the simulated oracle latency.
func WithOracleLatencyRange(minLatency, maxLatency time.Duration) OracleOption {
	return func(o *InMemoryOracle) {
		if minLatency >= 0 && maxLatency >= minLatency {
			o.latency.set(minLatency, maxLatency)
		}
	}
}
