package providers

import (
	"sync"
	"time"
)

// breakerState is one of the three circuit breaker states: CLOSED (normal
// traffic), OPEN (rejecting calls after too many failures), or HALF_OPEN
// (a single trial call is allowed through to probe recovery).
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// circuitBreaker guards one provider chain entry. It trips to OPEN after
// FailThreshold consecutive failures, stays OPEN for Cooldown, then allows
// one HALF_OPEN probe; success closes it again, failure reopens it for
// another full cooldown.
type circuitBreaker struct {
	mu            sync.Mutex
	state         breakerState
	failThreshold int
	cooldown      time.Duration
	failures      int
	openedAt      time.Time
}

func newCircuitBreaker(failThreshold int, cooldown time.Duration) *circuitBreaker {
	if failThreshold <= 0 {
		failThreshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &circuitBreaker{failThreshold: failThreshold, cooldown: cooldown}
}

// Allow reports whether a call may proceed, transitioning OPEN -> HALF_OPEN
// once the cooldown has elapsed.
func (b *circuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerClosed:
		return true
	case breakerHalfOpen:
		return true
	case breakerOpen:
		if time.Since(b.openedAt) >= b.cooldown {
			b.state = breakerHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *circuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.failures = 0
}

// RecordFailure increments the failure count and trips the breaker open
// once it reaches the threshold, or immediately reopens it if the failing
// call was itself the HALF_OPEN probe.
func (b *circuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		b.openedAt = time.Now()
		return
	}
	b.failures++
	if b.failures >= b.failThreshold {
		b.state = breakerOpen
		b.openedAt = time.Now()
	}
}

// State reports the current breaker state for metrics/diagnostics.
func (b *circuitBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerOpen:
		return "OPEN"
	case breakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}
