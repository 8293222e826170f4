// Package circuit provides a small circuit breaker for outbound calls to
// third-party services.
package circuit

import (
	"sync"
	"time"
)

// Breaker opens after a run of consecutive failures and stays open for a
// cooldown period. Callers that fail closed treat an open circuit the same as
// a failed call, without paying for the round trip.
type Breaker struct {
	mu sync.RWMutex

	threshold int           // failures to trigger open
	cooldown  time.Duration // how long to stay open
	clock     func() time.Time

	failures  int       // consecutive failures
	openUntil time.Time // when to transition from open to half-open
	isOpen    bool
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(b *Breaker) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// New creates a circuit breaker.
// threshold: consecutive failures to open the circuit.
// cooldown: how long to stay open before allowing a probe.
func New(threshold int, cooldown time.Duration, opts ...Option) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	b := &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow returns true if the circuit is closed (healthy) or half-open
// (allowing a probe after cooldown).
func (b *Breaker) Allow() bool {
	b.mu.RLock()
	if !b.isOpen {
		b.mu.RUnlock()
		return true
	}
	expired := b.clock().After(b.openUntil)
	b.mu.RUnlock()

	if !expired {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	// Re-check after acquiring the write lock.
	if b.isOpen && b.clock().After(b.openUntil) {
		b.isOpen = false
		b.failures = 0
	}
	return !b.isOpen
}

// RecordSuccess records a successful call, closing the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.isOpen = false
}

// RecordFailure records a failed call, opening the circuit once the
// consecutive-failure threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.isOpen = true
		b.openUntil = b.clock().Add(b.cooldown)
	}
}

// IsOpen reports whether the circuit is currently open.
func (b *Breaker) IsOpen() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.isOpen
}
