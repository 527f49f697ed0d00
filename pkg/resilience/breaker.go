// Package resilience provides fault-tolerance primitives for the transport.
package resilience

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation
	CircuitOpen                         // Rejecting requests
	CircuitHalfOpen                     // Testing if the endpoint recovered
)

// String returns a readable state name.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is how many failures inside the monitoring period
	// open the circuit.
	FailureThreshold int

	// SuccessThreshold is how many half-open trial successes close it.
	SuccessThreshold int

	// Timeout is how long an open circuit rejects before allowing a trial.
	Timeout time.Duration

	// MonitoringPeriod is the rolling window after which stale failures
	// are discounted.
	MonitoringPeriod time.Duration
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		MonitoringPeriod: 2 * time.Minute,
	}
}

// CircuitBreaker stops calling a failing ingestion endpoint until it is
// likely to have recovered. One breaker is constructed at process start and
// shared by every transport in the process; all transitions serialize behind
// its mutex so concurrent callers observe a consistent sequence.
type CircuitBreaker struct {
	mu  sync.Mutex
	cfg BreakerConfig
	now func() time.Time

	state           CircuitState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	lastStateChange time.Time

	// OnTrip is called (synchronously) when the circuit opens.
	OnTrip func(failures int)
	// OnReset is called (synchronously) when the circuit closes.
	OnReset func()
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MonitoringPeriod <= 0 {
		cfg.MonitoringPeriod = def.MonitoringPeriod
	}

	return &CircuitBreaker{
		cfg:   cfg,
		now:   time.Now,
		state: CircuitClosed,
	}
}

// AllowRequest reports whether a send may proceed. An open circuit past its
// timeout transitions to half-open and permits one trial; half-open always
// permits trials.
func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailureTime) >= cb.cfg.Timeout {
			cb.transition(CircuitHalfOpen)
			return true
		}
		return false
	case CircuitHalfOpen:
		return true
	}
	return true
}

// RecordSuccess reports a successful send. In half-open, enough successes
// close the circuit; in closed, success forgives prior failures.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.cfg.SuccessThreshold {
			cb.transition(CircuitClosed)
			if cb.OnReset != nil {
				cb.OnReset()
			}
		}
	case CircuitClosed:
		cb.failureCount = 0
	}
}

// RecordFailure reports a failed send. A single half-open failure reopens
// the circuit; in closed, failures older than the monitoring period are
// discounted before counting towards the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	if cb.state == CircuitHalfOpen {
		cb.lastFailureTime = now
		cb.transition(CircuitOpen)
		if cb.OnTrip != nil {
			cb.OnTrip(cb.failureCount)
		}
		return
	}

	if !cb.lastFailureTime.IsZero() && now.Sub(cb.lastFailureTime) > cb.cfg.MonitoringPeriod {
		cb.failureCount = 0
	}
	cb.failureCount++
	cb.lastFailureTime = now

	if cb.state == CircuitClosed && cb.failureCount >= cb.cfg.FailureThreshold {
		failures := cb.failureCount
		cb.transition(CircuitOpen)
		if cb.OnTrip != nil {
			cb.OnTrip(failures)
		}
	}
}

// Reset forces the breaker closed and zeroes all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(CircuitClosed)
	cb.lastFailureTime = time.Time{}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot is a point-in-time view of the breaker for stats output.
type Snapshot struct {
	State           CircuitState
	FailureCount    int
	SuccessCount    int
	LastFailureTime time.Time
	LastStateChange time.Time
}

// Snapshot returns the breaker's internal counters.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Snapshot{
		State:           cb.state,
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		LastFailureTime: cb.lastFailureTime,
		LastStateChange: cb.lastStateChange,
	}
}

// transition moves to a new state and resets both counters. Callers hold
// the mutex.
func (cb *CircuitBreaker) transition(next CircuitState) {
	cb.state = next
	cb.failureCount = 0
	cb.successCount = 0
	cb.lastStateChange = cb.now()
}

// SetClock overrides the breaker's time source. Tests only.
func (cb *CircuitBreaker) SetClock(now func() time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.now = now
}
