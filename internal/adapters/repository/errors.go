package repository

import "errors"

// Sentinel kinds for credit cache errors.
var (
	ErrNotFound        = errors.New("no ghost registered for device")
	ErrNotCached       = errors.New("device not cached")
	ErrHydrationFailed = errors.New("credit hydration failed")
	ErrInvalidDelta    = errors.New("invalid credit delta")
	ErrLockTimeout     = errors.New("device lock not acquired")
)
