package pricing

import (
	"log/slog"
	"sync"
	"time"
)

// BreakerState is the health state of one price source.
type BreakerState int

const (
	StateClosed   BreakerState = iota // calls pass through
	StateOpen                         // calls short-circuit to failure
	StateHalfOpen                     // one trial call allowed
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker isolates a failing price source. After failureThreshold
// consecutive failures the breaker opens and short-circuits calls for the
// cooldown window; it then allows exactly one trial call, whose outcome
// either closes or reopens the breaker.
//
// A clean not-found from a source is never recorded as a failure; only
// transport and decode errors count.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	cooldown         time.Duration

	state         BreakerState
	failures      int
	openUntil     time.Time
	probeInFlight bool

	mu     sync.Mutex
	logger *slog.Logger
}

// NewCircuitBreaker creates a closed breaker for the named source.
func NewCircuitBreaker(name string, failureThreshold int, cooldown time.Duration, logger *slog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		state:            StateClosed,
		logger:           logger,
	}
}

// Allow reports whether a call to the source may proceed right now. In the
// half-open state only one probe is admitted at a time.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Now().Before(cb.openUntil) {
			return false
		}
		cb.state = StateHalfOpen
		cb.probeInFlight = true
		cb.logger.Info("circuit breaker half-open, probing source",
			slog.String("source", cb.name),
		)
		return true

	case StateHalfOpen:
		if cb.probeInFlight {
			return false
		}
		cb.probeInFlight = true
		return true

	default:
		return false
	}
}

// RecordSuccess closes the breaker and resets the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateClosed {
		cb.logger.Info("circuit breaker closed (source recovered)",
			slog.String("source", cb.name),
		)
	}
	cb.state = StateClosed
	cb.failures = 0
	cb.probeInFlight = false
}

// RecordFailure counts a failed call; at the threshold the breaker opens for
// the cooldown window. A failed half-open probe reopens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.state = StateOpen
		cb.openUntil = time.Now().Add(cb.cooldown)
		cb.probeInFlight = false
		cb.logger.Warn("circuit breaker reopened (probe failed)",
			slog.String("source", cb.name),
		)

	case StateClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.state = StateOpen
			cb.openUntil = time.Now().Add(cb.cooldown)
			cb.logger.Warn("circuit breaker opened",
				slog.String("source", cb.name),
				slog.Int("consecutive_failures", cb.failures),
				slog.Duration("cooldown", cb.cooldown),
			)
		}
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
