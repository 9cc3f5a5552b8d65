package ledger

import (
	"context"
	"sync"

	"github.com/okian/ghostrelay/internal/domain/model"
)

const (
	defaultOracleSeed      = 7
	defaultCarbonIntensity = 250
	defaultCleanThreshold  = 300
)

// InMemoryOracle simulates the carbon intensity oracle. The grid is CLEAN
// while intensity is below the clean threshold.
type InMemoryOracle struct {
	mu             sync.RWMutex
	intensity      uint64
	cleanThreshold uint64

	latency  *latencySim
	failures failures
}

var _ Oracle = (*InMemoryOracle)(nil)

// NewInMemoryOracle creates an oracle seeded at 250 gCO2/kWh.
func NewInMemoryOracle(opts ...OracleOption) *InMemoryOracle {
	o := &InMemoryOracle{
		intensity:      defaultCarbonIntensity,
		cleanThreshold: defaultCleanThreshold,
		latency:        newLatencySim(defaultOracleSeed, 0, 0),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetCarbonIntensity updates the reported intensity.
func (o *InMemoryOracle) SetCarbonIntensity(g uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.intensity = g
}

// InjectFailure makes GridStatus fail with err until cleared with nil.
func (o *InMemoryOracle) InjectFailure(err error) {
	o.failures.set(CallGridStatus, err)
}

func (o *InMemoryOracle) GridStatus(ctx context.Context) (model.GridStatus, error) {
	if err := o.latency.wait(ctx); err != nil {
		return model.GridStatus{}, err
	}
	if err := o.failures.get(CallGridStatus); err != nil {
		return model.GridStatus{}, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	state := model.GridDirty
	if o.intensity < o.cleanThreshold {
		state = model.GridClean
	}
	return model.GridStatus{State: state, CarbonIntensity: o.intensity}, nil
}
