package tarik

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// String returns the human-readable state name.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that trips the
	// breaker from Closed to Open.
	FailureThreshold int
	// OpenDuration is how long the breaker stays Open before admitting a
	// single half-open trial.
	OpenDuration time.Duration
}

// CircuitBreaker tracks per-endpoint health and fails fast while the remote
// is degraded. Transitions are serialized per endpoint key: while HalfOpen,
// exactly one trial call is admitted and concurrent callers are rejected
// until the trial resolves.
type CircuitBreaker struct {
	mu     sync.RWMutex
	states map[string]*breakerState
	config CircuitBreakerConfig
}

// breakerState is the per-endpoint circuit. Its mutex serializes transitions.
type breakerState struct {
	mu            sync.Mutex
	phase         CircuitState
	failures      int
	openedAt      time.Time
	trialInFlight bool
}

// NewCircuitBreaker creates a circuit breaker. Zero config values fall back
// to defaults (5 failures, 60s open).
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.OpenDuration == 0 {
		config.OpenDuration = 60 * time.Second
	}

	return &CircuitBreaker{
		states: make(map[string]*breakerState),
		config: config,
	}
}

// state returns the endpoint's circuit, creating it lazily.
func (cb *CircuitBreaker) state(endpoint string) *breakerState {
	cb.mu.RLock()
	s, ok := cb.states[endpoint]
	cb.mu.RUnlock()
	if ok {
		return s
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if s, ok = cb.states[endpoint]; ok {
		return s
	}
	s = &breakerState{phase: StateClosed}
	cb.states[endpoint] = s
	return s
}

// Allow reports whether a call to the endpoint should proceed. In Open it
// admits nothing until OpenDuration has elapsed, then transitions to
// HalfOpen and admits exactly one trial caller.
func (cb *CircuitBreaker) Allow(endpoint string) bool {
	s := cb.state(endpoint)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(s.openedAt) >= cb.config.OpenDuration {
			s.phase = StateHalfOpen
			s.trialInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if !s.trialInFlight {
			s.trialInFlight = true
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess records a successful call. A half-open trial success closes
// the circuit and resets counters; a success in Closed resets the
// consecutive-failure count.
func (cb *CircuitBreaker) RecordSuccess(endpoint string) {
	s := cb.state(endpoint)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case StateClosed:
		s.failures = 0
	case StateHalfOpen:
		s.phase = StateClosed
		s.failures = 0
		s.trialInFlight = false
	case StateOpen:
		// Stale result from before the trip; ignore.
	}
}

// RecordFailure records a failed call. In Closed it trips the circuit at the
// failure threshold; a half-open trial failure reopens the circuit with a
// refreshed openedAt.
func (cb *CircuitBreaker) RecordFailure(endpoint string) {
	s := cb.state(endpoint)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case StateClosed:
		s.failures++
		if s.failures >= cb.config.FailureThreshold {
			s.phase = StateOpen
			s.openedAt = time.Now()
		}
	case StateHalfOpen:
		s.phase = StateOpen
		s.openedAt = time.Now()
		s.trialInFlight = false
	case StateOpen:
		// Already open; nothing to record.
	}
}

// releaseTrial gives back a half-open trial slot without recording an
// outcome. Used when the admitted call was cancelled before reaching the
// remote, so the trial is not leaked.
func (cb *CircuitBreaker) releaseTrial(endpoint string) {
	s := cb.state(endpoint)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == StateHalfOpen && s.trialInFlight {
		s.trialInFlight = false
	}
}

// State returns the endpoint's current circuit state.
func (cb *CircuitBreaker) State(endpoint string) CircuitState {
	s := cb.state(endpoint)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}
