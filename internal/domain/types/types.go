// Package types contains the JSON shapes shared by the HTTP API and its clients.
package types

// ReadingRequest is the body of POST /reading.
type ReadingRequest struct {
	ProtocolVersion int    `json:"protocolVersion,omitempty"`
	DeviceID        string `json:"deviceId,omitempty"`
	DeviceAddress   string `json:"deviceAddress"`
	Timestamp       string `json:"timestamp"`
	PowerUsage      *int64 `json:"powerUsage"`
	Signature       string `json:"signature"`
	PublicKey       string `json:"publicKey"`
	Hash            string `json:"hash,omitempty"`
}

// ReadingResponse is returned for a committed reading.
type ReadingResponse struct {
	Success              bool     `json:"success"`
	TransactionHash      string   `json:"transactionHash"`
	GameLogicHash        string   `json:"gameLogicHash"`
	Health               int      `json:"health"`
	OldHealth            int      `json:"oldHealth"`
	Appearance           string   `json:"appearance"`
	GoodCredits          uint64   `json:"goodCredits"`
	BadCredits           uint64   `json:"badCredits"`
	Alpha                float64  `json:"alpha"`
	PowerMW              float64  `json:"powerMW"`
	GridStatus           string   `json:"gridStatus"`
	CarbonIntensity      uint64   `json:"carbonIntensity"`
	Deposit              string   `json:"deposit"`
	IntegrationTriggered bool     `json:"integrationTriggered"`
	Warnings             []string `json:"warnings,omitempty"`
}

// CachedCredits is the relay's local view of a device, possibly ahead of the ledger.
type CachedCredits struct {
	GoodCredits uint64 `json:"goodCredits"`
	BadCredits  uint64 `json:"badCredits"`
	Health      int    `json:"health"`
}

// GhostResponse is returned by GET /ghost/{deviceAddress}.
type GhostResponse struct {
	TokenID           uint64         `json:"tokenId"`
	Health            int            `json:"health"`
	Appearance        string         `json:"appearance"`
	GoodCredits       uint64         `json:"goodCredits"`
	BadCredits        uint64         `json:"badCredits"`
	Alpha             float64        `json:"alpha"`
	PowerMW           int64          `json:"powerMW"`
	Deposit           string         `json:"deposit"`
	LifetimeRewards   string         `json:"lifetimeRewards"`
	LifetimePenalties string         `json:"lifetimePenalties"`
	NetChange         string         `json:"netChange"`
	LastUpdate        int64          `json:"lastUpdate"`
	Cached            *CachedCredits `json:"cached,omitempty"`
}

// GridStatusResponse is returned by GET /grid-status.
type GridStatusResponse struct {
	Status          string `json:"status"`
	CarbonIntensity uint64 `json:"carbonIntensity"`
}

// RegisterDeviceRequest is the body of POST /register-device.
type RegisterDeviceRequest struct {
	DeviceAddress string `json:"deviceAddress"`
	PublicKey     string `json:"publicKey"`
}

// RegisterDeviceResponse acknowledges a key registration.
type RegisterDeviceResponse struct {
	Success       bool   `json:"success"`
	DeviceAddress string `json:"deviceAddress"`
	KeyType       string `json:"keyType"`
	Fingerprint   string `json:"fingerprint"`
	Created       bool   `json:"created"`
	TokenID       uint64 `json:"tokenId,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
