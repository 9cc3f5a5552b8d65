// Package keystore binds device addresses to the public keys they sign with.
// Once a device is registered, readings signed by any other key are refused.
package keystore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/ghostrelay/internal/domain/signature"
)

// Sentinel kinds for keystore errors.
var (
	ErrNotFound      = errors.New("device key not registered")
	ErrInvalidKey    = errors.New("invalid device public key")
	ErrInvalidDevice = errors.New("invalid device address")
)

// Binding is a registered device key.
type Binding struct {
	DeviceAddress string
	PublicKeyPEM  string
	KeyType       string
	Fingerprint   string
	RegisteredAt  time.Time
	UpdatedAt     time.Time
}

// Registry stores device key bindings.
type Registry interface {
	// Register upserts the key for a device. created is false when the device
	// already had a binding, which is replaced.
	Register(ctx context.Context, deviceAddress, publicKeyPEM string) (b Binding, created bool, err error)
	// Lookup returns ErrNotFound for devices without a binding.
	Lookup(ctx context.Context, deviceAddress string) (Binding, error)
}

// NormalizeAddress is the key under which bindings are stored.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// newBinding validates the inputs and derives the key metadata.
func newBinding(deviceAddress, publicKeyPEM string, now time.Time) (Binding, error) {
	addr := NormalizeAddress(deviceAddress)
	if addr == "" {
		return Binding{}, ErrInvalidDevice
	}
	pub, err := signature.ParsePublicKey(publicKeyPEM)
	if err != nil {
		return Binding{}, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	fp, err := signature.Fingerprint(pub)
	if err != nil {
		return Binding{}, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return Binding{
		DeviceAddress: addr,
		PublicKeyPEM:  publicKeyPEM,
		KeyType:       signature.KeyType(pub),
		Fingerprint:   fp,
		RegisteredAt:  now,
		UpdatedAt:     now,
	}, nil
}
