// Package ledger defines the relay's view of the ghost ledger and the grid
// oracle, plus in-memory simulations of both.
package ledger

import (
	"context"
	"math/big"

	"github.com/okian/ghostrelay/internal/domain/model"
)

// Call names a collaborator operation. Used for metrics labels and failure injection.
type Call string

const (
	CallDeviceToToken    Call = "device_to_token"
	CallGetGhost         Call = "get_ghost"
	CallUpdateGhost      Call = "update_ghost"
	CallProcessReading   Call = "process_reading"
	CallGetDeposit       Call = "get_deposit"
	CallGetLifetimeStats Call = "get_lifetime_stats"
	CallShouldIntegrate  Call = "should_calculate_integration"
	CallGridStatus       Call = "grid_status"
)

// Ledger is the system of record for ghosts, credits and deposits.
// Writes are not idempotent and are never retried by the relay.
type Ledger interface {
	// DeviceToToken resolves a device to its ghost token; 0 means none.
	DeviceToToken(ctx context.Context, deviceAddress string) (uint64, error)
	GetGhost(ctx context.Context, tokenID uint64) (model.Ghost, error)
	UpdateGhost(ctx context.Context, u model.GhostUpdate) (model.Receipt, error)
	// ProcessReading applies the economic consequence of a health change.
	ProcessReading(ctx context.Context, deviceAddress string, tokenID uint64, grid model.GridState, newHealth, oldHealth int) (model.Receipt, error)
	GetDeposit(ctx context.Context, deviceAddress string) (*big.Int, error)
	GetLifetimeStats(ctx context.Context, deviceAddress string) (model.LifetimeStats, error)
	// ShouldCalculateIntegration reports whether a periodic integration
	// recalculation is due for the device. Read-only.
	ShouldCalculateIntegration(ctx context.Context, deviceAddress string) (bool, error)
}

// Oracle reports current grid conditions.
type Oracle interface {
	GridStatus(ctx context.Context) (model.GridStatus, error)
}
