package keystore

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Registry.
type Memory struct {
	mu       sync.RWMutex
	bindings map[string]Binding
}

var _ Registry = (*Memory)(nil)

// NewMemory returns an empty registry.
func NewMemory() *Memory {
	return &Memory{bindings: make(map[string]Binding)}
}

func (m *Memory) Register(ctx context.Context, deviceAddress, publicKeyPEM string) (Binding, bool, error) {
	b, err := newBinding(deviceAddress, publicKeyPEM, time.Now().UTC())
	if err != nil {
		return Binding{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	prev, exists := m.bindings[b.DeviceAddress]
	if exists {
		b.RegisteredAt = prev.RegisteredAt
	}
	m.bindings[b.DeviceAddress] = b
	return b, !exists, nil
}

func (m *Memory) Lookup(ctx context.Context, deviceAddress string) (Binding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bindings[NormalizeAddress(deviceAddress)]
	if !ok {
		return Binding{}, ErrNotFound
	}
	return b, nil
}

// Len returns the number of registered devices.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bindings)
}
