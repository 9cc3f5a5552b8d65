// Package simulator emulates a data-center power meter that signs readings
// with a device key and submits them to the relay.
package simulator

import (
	"errors"
	"fmt"
	"time"

	"github.com/okian/ghostrelay/internal/domain/model"
)

// Defaults for Config.
const (
	DefaultRelayURL = "http://localhost:3001"
	DefaultKeyDir   = "devices"
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 10 * time.Second
)

// ErrInvalidConfig reports an unusable simulator configuration.
var ErrInvalidConfig = errors.New("invalid simulator config")

// Config holds configuration for one simulated device.
type Config struct {
	RelayURL      string                // Base URL of the relay
	DeviceID      string                // Key folder name under KeyDir
	DeviceAddress string                // Ledger address the ghost is bound to
	KeyDir        string                // Root folder for device keys
	Interval      time.Duration         // Time between readings
	Count         int                   // Readings to send; 0 runs until cancelled
	Protocol      model.ProtocolVersion // Submission format
	Scenario      int                   // Fixed scenario index; negative rotates
	Timeout       time.Duration         // HTTP request timeout
}

// Validate fills defaults and reports missing fields.
func (c *Config) Validate() error {
	if c.DeviceAddress == "" {
		return fmt.Errorf("%w: device address is required", ErrInvalidConfig)
	}
	if c.DeviceID == "" {
		c.DeviceID = "device-1"
	}
	if c.RelayURL == "" {
		c.RelayURL = DefaultRelayURL
	}
	if c.KeyDir == "" {
		c.KeyDir = DefaultKeyDir
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Protocol == 0 {
		c.Protocol = model.ProtocolV2
	}
	if !c.Protocol.Valid() {
		return fmt.Errorf("%w: unsupported protocol %d", ErrInvalidConfig, c.Protocol)
	}
	if c.Count < 0 {
		return fmt.Errorf("%w: count must not be negative", ErrInvalidConfig)
	}
	if c.Scenario >= len(Scenarios) {
		return fmt.Errorf("%w: scenario %d out of range [0, %d)", ErrInvalidConfig, c.Scenario, len(Scenarios))
	}
	return nil
}

// Stats holds run statistics.
type Stats struct {
	Sent       int
	Accepted   int
	Rejected   int
	Failed     int
	Integrated int
	LastHealth int
	StartTime  time.Time
	Duration   time.Duration
}
