// Package health derives a ghost's power tier, health score and appearance.
// Every function here is pure.
package health

import (
	"math/big"
)

// Alpha tiers, scaled by 1000.
const (
	Alpha200  = 200
	Alpha400  = 400
	Alpha600  = 600
	Alpha800  = 800
	Alpha1000 = 1000
)

// Tier lower bounds in watts.
const (
	tier400Watts  = 5_000_000
	tier600Watts  = 12_500_000
	tier800Watts  = 20_000_000
	tier1000Watts = 60_000_000

	// MaxRatedWatts is the top of the rated band; draws above it still classify
	// as the top tier.
	MaxRatedWatts = 100_000_000
)

const (
	// NeutralHealth is reported for a ghost without any credits.
	NeutralHealth = 50
	maxHealth     = 100
	alphaScale    = 1000
	percent       = 100
)

// Classify maps a power draw in watts to its milli-scaled alpha tier.
// Lower bounds are inclusive. Draws above MaxRatedWatts clamp to Alpha1000 and
// negative draws fall into the lowest tier.
func Classify(powerWatts int64) int {
	switch {
	case powerWatts >= tier1000Watts:
		return Alpha1000
	case powerWatts >= tier800Watts:
		return Alpha800
	case powerWatts >= tier600Watts:
		return Alpha600
	case powerWatts >= tier400Watts:
		return Alpha400
	default:
		return Alpha200
	}
}

// ComputeHealth returns floor(alpha*good*100 / ((good+bad)*1000)) clamped to
// [0,100], or NeutralHealth when there are no credits yet.
func ComputeHealth(good, bad uint64, alphaMilli int) int {
	if good == 0 && bad == 0 {
		return NeutralHealth
	}
	if alphaMilli <= 0 || good == 0 {
		return 0
	}

	// Counters are unbounded, so do the arithmetic in big integers.
	num := new(big.Int).SetUint64(good)
	num.Mul(num, big.NewInt(int64(alphaMilli)))
	num.Mul(num, big.NewInt(percent))

	den := new(big.Int).SetUint64(good)
	den.Add(den, new(big.Int).SetUint64(bad))
	den.Mul(den, big.NewInt(alphaScale))

	h := num.Quo(num, den)
	if !h.IsInt64() || h.Int64() > maxHealth {
		return maxHealth
	}
	return int(h.Int64())
}

// Snapshot is the derived state of a ghost after a reading.
type Snapshot struct {
	Health     int
	Appearance Appearance
}

// Evaluate classifies the power draw and computes the resulting snapshot.
func Evaluate(good, bad uint64, powerWatts int64) (alphaMilli int, s Snapshot) {
	alphaMilli = Classify(powerWatts)
	h := ComputeHealth(good, bad, alphaMilli)
	return alphaMilli, Snapshot{Health: h, Appearance: AppearanceFor(h)}
}
