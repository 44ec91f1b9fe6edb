package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/alorle/iptv-hub/logging"
)

// State represents the current state of the circuit breaker
type State int

const (
	// StateClosed means the circuit is operating normally
	StateClosed State = iota
	// StateOpen means the circuit is blocking all requests
	StateOpen
	// StateHalfOpen means the circuit is testing if it can close
	StateHalfOpen
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config contains the configuration for a circuit breaker
type Config struct {
	FailureThreshold int           // consecutive failures before opening
	Timeout          time.Duration // time spent OPEN before probing in HALF-OPEN
	HalfOpenRequests int           // probes allowed (and required to succeed) in HALF-OPEN
	Name             string        // target the breaker protects, used in logs and metrics

	Logger        *zerolog.Logger
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker defines the interface for circuit breaker functionality
type CircuitBreaker interface {
	// Execute runs fn if the circuit allows it
	Execute(fn func() error) error
	// State returns the current state of the circuit breaker
	State() State
	// Reset resets the circuit breaker to CLOSED state
	Reset()
}

var (
	// ErrCircuitOpen is returned when the circuit breaker is in OPEN state
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrHalfOpenLimitReached is returned when too many requests are made in HALF-OPEN state
	ErrHalfOpenLimitReached = errors.New("circuit breaker half-open request limit reached")
)

type breaker struct {
	config Config
	now    func() time.Time

	mu                sync.Mutex
	state             State
	failures          int
	halfOpenInFlight  int
	halfOpenSuccesses int
	openedAt          time.Time
}

// New creates a new circuit breaker with the given configuration
func New(cfg Config) CircuitBreaker {
	return newBreaker(cfg, time.Now)
}

func newBreaker(cfg Config, now func() time.Time) *breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenRequests <= 0 {
		cfg.HalfOpenRequests = 1
	}
	return &breaker{config: cfg, now: now, state: StateClosed}
}

// Execute runs fn if the circuit allows it and records its outcome.
func (b *breaker) Execute(fn func() error) error {
	probing, err := b.admit()
	if err != nil {
		return err
	}

	err = fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case probing && err != nil:
		b.transitionTo(StateOpen)
	case probing:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.config.HalfOpenRequests {
			b.transitionTo(StateClosed)
		}
	case err != nil:
		b.failures++
		if b.state == StateClosed && b.failures >= b.config.FailureThreshold {
			b.transitionTo(StateOpen)
		}
	default:
		b.failures = 0
	}
	return err
}

// admit decides whether a call may run and whether it is a HALF-OPEN probe.
func (b *breaker) admit() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.config.Timeout {
		b.transitionTo(StateHalfOpen)
	}

	switch b.state {
	case StateOpen:
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if b.halfOpenInFlight >= b.config.HalfOpenRequests {
			return false, ErrHalfOpenLimitReached
		}
		b.halfOpenInFlight++
		return true, nil
	default:
		return false, nil
	}
}

// State returns the current state of the circuit breaker
func (b *breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset resets the circuit breaker to CLOSED state
func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(StateClosed)
}

// transitionTo changes the circuit breaker state.
// Must be called with lock held.
func (b *breaker) transitionTo(newState State) {
	if b.state == newState {
		return
	}

	oldState := b.state
	b.state = newState

	switch newState {
	case StateClosed:
		b.failures = 0
		b.openedAt = time.Time{}
	case StateOpen:
		b.openedAt = b.now()
	}
	b.halfOpenInFlight = 0
	b.halfOpenSuccesses = 0

	if b.config.Logger != nil {
		logging.LogCircuitBreakerChange(*b.config.Logger, oldState.String(), newState.String(), b.config.Name)
	}
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.config.Name, oldState, newState)
	}
}
