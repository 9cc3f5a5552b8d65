// Package repository holds the relay's per-device credit cache.
//
// The cache mirrors the ledger's good/bad counters so a reading only needs one
// ledger read on a device's first appearance. It is a write-through,
// crash-unsafe accelerator: the ledger stays the system of record and any
// entry may be dropped and rebuilt from it.
package repository

import (
	"context"

	"github.com/okian/ghostrelay/internal/domain/model"
)

// Hydrator loads a device's current ledger state on a cache miss.
// It returns ErrNotFound when the device has no ghost token.
type Hydrator interface {
	Hydrate(ctx context.Context, deviceAddress string) (model.CreditState, error)
}

// HydratorFunc adapts a function to Hydrator.
type HydratorFunc func(ctx context.Context, deviceAddress string) (model.CreditState, error)

// Hydrate calls f.
func (f HydratorFunc) Hydrate(ctx context.Context, deviceAddress string) (model.CreditState, error) {
	return f(ctx, deviceAddress)
}

// CreditCache is the per-device credit mirror used by the reading pipeline.
// Mutating calls are expected to happen under the scope returned by Lock.
type CreditCache interface {
	// Get returns the cached state, hydrating from the ledger on a miss.
	Get(ctx context.Context, deviceAddress string) (model.CreditState, error)
	// Apply adds exactly one increment and returns the new state.
	Apply(ctx context.Context, deviceAddress string, delta model.Delta) (model.CreditState, error)
	// Revert undoes an increment made by Apply.
	Revert(ctx context.Context, deviceAddress string, delta model.Delta) error
	// SetHealth records the last committed health of a device.
	SetHealth(ctx context.Context, deviceAddress string, health int) error
	// Invalidate drops an entry so the next Get rehydrates it.
	Invalidate(ctx context.Context, deviceAddress string)
	// Peek returns the cached state without hydrating.
	Peek(ctx context.Context, deviceAddress string) (model.CreditState, bool)
	// Count returns the number of cached devices.
	Count(ctx context.Context) int
	// Lock acquires the per-device exclusion scope. The returned function
	// releases it and is safe to call more than once.
	Lock(ctx context.Context, deviceAddress string) (func(), error)
}
