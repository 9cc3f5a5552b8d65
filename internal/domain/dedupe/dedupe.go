// Package dedupe remembers accepted readings so a captured reading cannot be
// replayed against the ledger.
package dedupe

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 50000

// Deduper records seen reading keys to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets a key so the same reading can be resubmitted. Used when
	// a recorded reading is later rejected.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// Key identifies a signed reading of one device. It is derived from the device
// address and the signed payload, so re-encoding the signature does not produce
// a fresh key.
func Key(deviceAddress string, payload []byte) string {
	sum := sha256.Sum256(payload)
	return strings.ToLower(strings.TrimSpace(deviceAddress)) + ":" + hex.EncodeToString(sum[:])
}

// inMemoryDeduper keeps keys in insertion order. In bounded mode the oldest key
// is evicted when the limit is reached; maxSize <= 0 keeps every key.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front = newest
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(ctx context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[key]; exists {
		return true
	}

	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.evictOldest()
	}

	d.seen[key] = d.order.PushFront(key)
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(ctx context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, exists := d.seen[key]; exists {
		d.order.Remove(e)
		delete(d.seen, key)
		d.size.Add(-1)
	}
}

// evictOldest drops the least recently recorded key. Caller holds d.mu.
func (d *inMemoryDeduper) evictOldest() {
	e := d.order.Back()
	if e == nil {
		return
	}
	d.order.Remove(e)
	delete(d.seen, e.Value.(string))
	d.size.Add(-1)
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
