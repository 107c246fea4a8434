// Package circuitbreaker protects the upstream quote and opportunity services
// from being hammered while they are failing, and fails fast for callers in
// the meantime.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the current state of the circuit breaker
type State int

// Circuit breaker states
const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Tripped, calls are rejected
	StateHalfOpen              // Probing whether the upstream recovered
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrOpen is returned while the circuit rejects calls.
var ErrOpen = errors.New("circuit breaker open: upstream protection engaged")

// Thresholds defines the limits that will trigger the circuit breaker
type Thresholds struct {
	// Consecutive failures in the closed state before tripping
	MaxConsecutiveFailures int `json:"max_consecutive_failures"`
}

// CircuitBreaker implements the circuit breaker pattern for one upstream.
type CircuitBreaker struct {
	name       string
	thresholds Thresholds

	state    State
	lastTrip time.Time
	failures int

	// Duration before a half-open trial call is allowed
	resetDelay time.Duration

	mu sync.RWMutex

	// Count of consecutive successful calls in HalfOpen state
	successCount int

	// Number of successful calls required to close circuit
	successThreshold int

	lastReason string

	// Event callback for monitoring/alerting
	onTripCallback func(name, reason string)

	now func() time.Time
}

// New creates a new CircuitBreaker with the provided thresholds
func New(name string, t Thresholds) *CircuitBreaker {
	if t.MaxConsecutiveFailures <= 0 {
		t.MaxConsecutiveFailures = 5
	}
	return &CircuitBreaker{
		name:             name,
		thresholds:       t,
		state:            StateClosed,
		resetDelay:       time.Minute,
		successThreshold: 1,
		now:              time.Now,
	}
}

// WithResetDelay sets a custom reset delay and returns the circuit breaker
func (cb *CircuitBreaker) WithResetDelay(delay time.Duration) *CircuitBreaker {
	cb.resetDelay = delay
	return cb
}

// WithSuccessThreshold sets the number of successful half-open calls needed to close the circuit
func (cb *CircuitBreaker) WithSuccessThreshold(threshold int) *CircuitBreaker {
	cb.successThreshold = threshold
	return cb
}

// WithTripCallback sets a callback function that is called when the circuit trips
func (cb *CircuitBreaker) WithTripCallback(callback func(name, reason string)) *CircuitBreaker {
	cb.onTripCallback = callback
	return cb
}

// Name identifies the protected upstream.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Allow reports whether a call may proceed. An open circuit moves to
// half-open once the reset delay has elapsed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastTrip) < cb.resetDelay {
			return ErrOpen
		}
		cb.state = StateHalfOpen
		cb.successCount = 0
		logrus.WithField("upstream", cb.name).Info("Circuit breaker half-open: probing upstream")
	}
	return nil
}

// RecordSuccess notes a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = StateClosed
			cb.successCount = 0
			logrus.WithField("upstream", cb.name).Info("Circuit breaker closed: upstream has recovered")
		}
	}
}

// RecordFailure notes a failed call. A failed half-open call re-opens the circuit
// immediately.
func (cb *CircuitBreaker) RecordFailure(reason string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastReason = reason
	switch cb.state {
	case StateHalfOpen:
		cb.trip("half-open call failed: " + reason)
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.thresholds.MaxConsecutiveFailures {
			cb.trip(fmt.Sprintf("%d consecutive failures, last: %s", cb.failures, reason))
		}
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Snapshot is a point-in-time view for status endpoints.
type Snapshot struct {
	Name       string    `json:"name"`
	State      string    `json:"state"`
	Failures   int       `json:"failures"`
	LastTrip   time.Time `json:"lastTrip,omitempty"`
	LastReason string    `json:"lastReason,omitempty"`
}

// Snapshot returns the breaker's current counters.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return Snapshot{
		Name:       cb.name,
		State:      cb.state.String(),
		Failures:   cb.failures,
		LastTrip:   cb.lastTrip,
		LastReason: cb.lastReason,
	}
}

// Reset forcibly resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.successCount = 0
	cb.failures = 0
	logrus.WithField("upstream", cb.name).Info("Circuit breaker manually reset to closed state")
}

// trip sets the circuit breaker to open state with the current time
func (cb *CircuitBreaker) trip(reason string) {
	cb.state = StateOpen
	cb.lastTrip = cb.now()
	cb.failures = 0
	logrus.WithField("upstream", cb.name).Warnf("Circuit breaker tripped: %s", reason)

	if cb.onTripCallback != nil {
		go cb.onTripCallback(cb.name, reason)
	}
}
