package ledger

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// latencySim delays calls by a random duration in [min, max).
type latencySim struct {
	mu         sync.Mutex
	rng        *rand.Rand
	minLatency time.Duration
	maxLatency time.Duration
}

func newLatencySim(seed int64, minLatency, maxLatency time.Duration) *latencySim {
	return &latencySim{
		rng:        rand.New(rand.NewSource(seed)), //nolint:gosec // simulated latency only
		minLatency: minLatency,
		maxLatency: maxLatency,
	}
}

func (l *latencySim) set(minLatency, maxLatency time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLatency = minLatency
	l.maxLatency = maxLatency
}

func (l *latencySim) next() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.maxLatency <= 0 {
		return 0
	}
	if l.maxLatency <= l.minLatency {
		return l.minLatency
	}
	return l.minLatency + time.Duration(l.rng.Int63n(int64(l.maxLatency-l.minLatency)))
}

// wait sleeps for the simulated latency, honouring ctx.
func (l *latencySim) wait(ctx context.Context) error {
	d := l.next()
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

// failures holds errors injected per call.
type failures struct {
	mu    sync.RWMutex
	byKey map[Call]error
}

func (f *failures) set(call Call, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byKey == nil {
		f.byKey = make(map[Call]error)
	}
	if err == nil {
		delete(f.byKey, call)
		return
	}
	f.byKey[call] = err
}

func (f *failures) clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byKey = nil
}

func (f *failures) get(call Call) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if err, ok := f.byKey[call]; ok {
		return fmt.Errorf("%w: %s: %w", ErrInjectedFailure, call, err)
	}
	return nil
}
