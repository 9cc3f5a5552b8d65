package simulator

import "math/rand/v2"

// readingsPerScenario is how many readings a rotating simulator sends before
// moving to the next data-center size.
const readingsPerScenario = 10

// Scenario is a data-center size band, in watts.
type Scenario struct {
	Name     string
	MinWatts int64
	MaxWatts int64
}

// Scenarios span the five alpha tiers.
var Scenarios = []Scenario{
	{Name: "small", MinWatts: 1_000_000, MaxWatts: 5_000_000},
	{Name: "medium", MinWatts: 5_000_000, MaxWatts: 12_500_000},
	{Name: "large", MinWatts: 12_500_000, MaxWatts: 20_000_000},
	{Name: "huge", MinWatts: 20_000_000, MaxWatts: 60_000_000},
	{Name: "mega", MinWatts: 60_000_000, MaxWatts: 100_000_000},
}

// ScenarioFor returns the scenario for the n-th reading. A non-negative
// fixed index pins the scenario.
func ScenarioFor(n, fixed int) Scenario {
	if fixed >= 0 && fixed < len(Scenarios) {
		return Scenarios[fixed]
	}
	return Scenarios[(n/readingsPerScenario)%len(Scenarios)]
}

// Sample draws a power reading in [MinWatts, MaxWatts).
func (s Scenario) Sample(rng *rand.Rand) int64 {
	return s.MinWatts + rng.Int64N(s.MaxWatts-s.MinWatts)
}
