package proxy

import (
	"sync"
	"time"

	"basketflow/config"
	"basketflow/models"
)

// circuitBreaker is a per-source {CLOSED, OPEN, HALF_OPEN} state machine.
// It trips open after a run of consecutive failures, short-circuits every
// call during the recovery cooldown, then admits a bounded number of
// half-open probes. Shared by all in-flight fetches against one source,
// so every transition happens under the mutex.
type circuitBreaker struct {
	failureThreshold int
	recoveryTimeout  time.Duration
	halfOpenMax      int

	mu            sync.Mutex
	state         models.CircuitState
	failures      int
	openedAt      time.Time
	halfOpenProbe int
}

func newCircuitBreaker(cfg config.CircuitBreakerConfig) *circuitBreaker {
	threshold := cfg.FailureThreshold
	if threshold < 1 {
		threshold = 5
	}
	timeout := cfg.RecoveryTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	half := cfg.HalfOpenMaxRequests
	if half < 1 {
		half = 1
	}
	return &circuitBreaker{
		failureThreshold: threshold,
		recoveryTimeout:  timeout,
		halfOpenMax:      half,
		state:            models.CircuitClosed,
	}
}

// Allow reports whether a call may proceed right now. In the OPEN state
// it flips to HALF_OPEN once the cooldown has elapsed and then rations
// probe slots.
func (cb *circuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case models.CircuitClosed:
		return true
	case models.CircuitOpen:
		if time.Since(cb.openedAt) < cb.recoveryTimeout {
			return false
		}
		cb.state = models.CircuitHalfOpen
		cb.halfOpenProbe = 1
		return true
	case models.CircuitHalfOpen:
		if cb.halfOpenProbe >= cb.halfOpenMax {
			return false
		}
		cb.halfOpenProbe++
		return true
	default:
		return true
	}
}

// RecordSuccess closes the breaker and clears the failure run.
func (cb *circuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.halfOpenProbe = 0
	cb.state = models.CircuitClosed
}

// RecordFailure counts one failure; a half-open probe failure or hitting
// the threshold re-opens the breaker.
func (cb *circuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == models.CircuitHalfOpen || cb.failures >= cb.failureThreshold {
		cb.state = models.CircuitOpen
		cb.openedAt = time.Now()
		cb.halfOpenProbe = 0
	}
}

// State returns the current state, applying the OPEN->HALF_OPEN cooldown
// transition lazily so snapshots stay accurate.
func (cb *circuitBreaker) State() models.CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == models.CircuitOpen && time.Since(cb.openedAt) >= cb.recoveryTimeout {
		return models.CircuitHalfOpen
	}
	return cb.state
}
