// Package model contains domain models passed between layers.
package model

import (
	"math/big"
	"strings"
	"time"
)

// ProtocolVersion identifies the reading submission format.
type ProtocolVersion int

const (
	// ProtocolV1 is the legacy pre-hashed form: the device signs hex(sha256(payload))
	// and sends that hash alongside a base64 signature.
	ProtocolV1 ProtocolVersion = 1
	// ProtocolV2 is the canonical form: the device signs sha256(payload) and sends a
	// hex signature.
	ProtocolV2 ProtocolVersion = 2
)

// Valid reports whether v is a known protocol version.
func (v ProtocolVersion) Valid() bool {
	return v == ProtocolV1 || v == ProtocolV2
}

// DeviceReading is a signed telemetry sample as received from a device.
// It is never mutated after decoding.
type DeviceReading struct {
	Protocol        ProtocolVersion
	DeviceID        string // free-form label, informational only
	DeviceAddress   string // ledger identity of the device
	Timestamp       string // ISO8601, signed verbatim
	PowerUsageWatts int64
	Signature       string // hex (v2) or base64 (v1) as submitted
	PublicKey       string // PEM
	Hash            string // v1 only: declared hex sha256 of the payload
}

// CreditState is the cached mirror of a device's ledger counters.
type CreditState struct {
	TokenID uint64
	Good    uint64
	Bad     uint64
	Health  int // last committed health, reported as oldHealth
}

// Delta is a single credit increment.
type Delta uint8

const (
	DeltaGood Delta = iota + 1
	DeltaBad
)

// DeltaFor returns the increment earned under the given grid state.
func DeltaFor(state GridState) Delta {
	if state == GridClean {
		return DeltaGood
	}
	return DeltaBad
}

// String returns "good" or "bad".
func (d Delta) String() string {
	switch d {
	case DeltaGood:
		return "good"
	case DeltaBad:
		return "bad"
	default:
		return "unknown"
	}
}

// GridState is the oracle's classification of the grid.
type GridState string

const (
	GridClean GridState = "CLEAN"
	GridDirty GridState = "DIRTY"
)

// ParseGridState normalises an oracle status string.
func ParseGridState(s string) (GridState, bool) {
	switch GridState(strings.ToUpper(strings.TrimSpace(s))) {
	case GridClean:
		return GridClean, true
	case GridDirty:
		return GridDirty, true
	default:
		return "", false
	}
}

// GridStatus is the oracle answer for the current grid conditions. Never cached.
type GridStatus struct {
	State           GridState
	CarbonIntensity uint64 // gCO2/kWh
}

// Ghost is the ledger's per-device record.
type Ghost struct {
	TokenID        uint64
	Health         int
	Appearance     string
	LastUpdate     time.Time
	DeviceOwner    string
	HardwareID     string
	Soulbound      bool
	GoodCredits    uint64
	BadCredits     uint64
	CurrentAlpha   int   // milli-scaled
	CurrentPowerMW int64 // whole megawatts
}

// GhostUpdate carries the derived values written back to the ledger.
type GhostUpdate struct {
	TokenID    uint64
	Appearance string
	Health     int
	Good       uint64
	Bad        uint64
	AlphaMilli int
	PowerMW    int64
}

// LifetimeStats aggregates the economic history of a device, in wei.
type LifetimeStats struct {
	TotalRewards   *big.Int
	TotalPenalties *big.Int
	NetChange      *big.Int
}

// Receipt identifies a ledger transaction.
type Receipt struct {
	TransactionHash string
}

// CommittedReading describes a reading after a successful ledger commit.
// It is the payload of outbound notifications.
type CommittedReading struct {
	EventID              string    `json:"eventId"`
	DeviceAddress        string    `json:"deviceAddress"`
	DeviceID             string    `json:"deviceId,omitempty"`
	TokenID              uint64    `json:"tokenId"`
	Timestamp            string    `json:"timestamp"`
	PowerUsageWatts      int64     `json:"powerUsage"`
	GridStatus           GridState `json:"gridStatus"`
	CarbonIntensity      uint64    `json:"carbonIntensity"`
	GoodCredits          uint64    `json:"goodCredits"`
	BadCredits           uint64    `json:"badCredits"`
	AlphaMilli           int       `json:"alphaMilli"`
	OldHealth            int       `json:"oldHealth"`
	Health               int       `json:"health"`
	Appearance           string    `json:"appearance"`
	TransactionHash      string    `json:"transactionHash"`
	GameLogicHash        string    `json:"gameLogicHash"`
	IntegrationTriggered bool      `json:"integrationTriggered"`
	CommittedAt          time.Time `json:"committedAt"`
}
