package health

// Appearance is the mood a ghost shows for a health band.
type Appearance uint8

const (
	Dead Appearance = iota
	Bad
	Neutral
	Healthy
	VeryHealthy
)

var appearanceNames = [...]string{
	Dead:        "Dead",
	Bad:         "Bad",
	Neutral:     "Neutral",
	Healthy:     "Healthy",
	VeryHealthy: "VeryHealthy",
}

// String returns the name the ledger stores.
func (a Appearance) String() string {
	if int(a) < len(appearanceNames) {
		return appearanceNames[a]
	}
	return "Unknown"
}

// ParseAppearance maps a ledger appearance name back to the enum.
func ParseAppearance(s string) (Appearance, bool) {
	for i, name := range appearanceNames {
		if name == s {
			return Appearance(i), true
		}
	}
	return Dead, false
}

// AppearanceFor maps a health score to its band.
func AppearanceFor(health int) Appearance {
	switch {
	case health >= 80:
		return VeryHealthy
	case health >= 60:
		return Healthy
	case health >= 40:
		return Neutral
	case health >= 20:
		return Bad
	default:
		return Dead
	}
}
