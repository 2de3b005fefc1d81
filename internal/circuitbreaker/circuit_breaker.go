// Package circuitbreaker stops calling a ledger data source that keeps
// failing and probes it again after a cool-down.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/trivia-pay/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed lets every call through
	StateClosed State = "closed"
	// StateOpen rejects calls until the cool-down elapses
	StateOpen State = "open"
	// StateHalfOpen lets a limited number of probe calls through
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when the breaker rejects a call
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrTooManyProbes is returned when a half-open breaker already has its probes in flight
var ErrTooManyProbes = errors.New("too many probe calls in half-open state")

// Config configures a circuit breaker
type Config struct {
	Name string
	// MinCalls is the number of calls observed before the failure rate is trusted
	MinCalls int
	// FailureRate opens the breaker once reached (0.0-1.0)
	FailureRate float64
	// ConsecutiveFailures opens the breaker regardless of the rate
	ConsecutiveFailures int
	// CoolDown is how long the breaker stays open before probing
	CoolDown time.Duration
	// Probes is the number of successful half-open calls needed to close
	Probes int
}

// DefaultConfig returns the configuration used for ledger lookups
func DefaultConfig(name string) *Config {
	return &Config{
		Name:                name,
		MinCalls:            6,
		FailureRate:         0.5,
		ConsecutiveFailures: 5,
		CoolDown:            30 * time.Second,
		Probes:              2,
	}
}

// CircuitBreaker guards calls to one data source
type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu          sync.Mutex
	state       State
	calls       int
	failures    int
	consecutive int
	probes      int
	probeOK     int
	openedAt    time.Time
	lastFailure time.Time
	logger      *logging.Logger
}

// NewCircuitBreaker creates a closed breaker
func NewCircuitBreaker(cfg *Config) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultConfig("default")
	}
	return &CircuitBreaker{
		cfg:    *cfg,
		now:    time.Now,
		state:  StateClosed,
		logger: logging.WithComponent("circuitbreaker").WithField("breaker", cfg.Name),
	}
}

// Execute runs fn unless the breaker is open. Context cancellation is not
// counted as a failure of the data source.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	if err != nil && ctx.Err() != nil {
		cb.release()
		return err
	}
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.CoolDown {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probes = 1
		return nil
	case StateHalfOpen:
		if cb.probes >= cb.cfg.Probes {
			return ErrTooManyProbes
		}
		cb.probes++
	}
	return nil
}

// release undoes the admission of a call whose outcome says nothing about the source
func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen && cb.probes > 0 {
		cb.probes--
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.consecutive = 0
		if cb.state == StateHalfOpen {
			cb.probeOK++
			if cb.probeOK >= cb.cfg.Probes {
				cb.transition(StateClosed)
			}
			return
		}
		cb.calls++
		return
	}

	cb.lastFailure = cb.now()
	cb.consecutive++

	if cb.state == StateHalfOpen {
		cb.transition(StateOpen)
		return
	}

	cb.calls++
	cb.failures++
	if cb.tripped() {
		cb.logger.WithFields(map[string]interface{}{
			"failures":    cb.failures,
			"calls":       cb.calls,
			"consecutive": cb.consecutive,
		}).WithError(err).Warn("Circuit breaker opened")
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) tripped() bool {
	if cb.cfg.ConsecutiveFailures > 0 && cb.consecutive >= cb.cfg.ConsecutiveFailures {
		return true
	}
	if cb.calls < cb.cfg.MinCalls {
		return false
	}
	return cb.failureRate() >= cb.cfg.FailureRate
}

func (cb *CircuitBreaker) failureRate() float64 {
	if cb.calls == 0 {
		return 0
	}
	return float64(cb.failures) / float64(cb.calls)
}

// transition must be called with the lock held
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	cb.probes = 0
	cb.probeOK = 0
	switch to {
	case StateOpen:
		cb.openedAt = cb.now()
	case StateClosed:
		cb.calls, cb.failures, cb.consecutive = 0, 0, 0
	}
	if from != to {
		cb.logger.WithFields(map[string]interface{}{"from": from, "to": to}).Info("Circuit breaker state changed")
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats is a point-in-time view of a breaker
type Stats struct {
	Name        string    `json:"name"`
	State       State     `json:"state"`
	Calls       int       `json:"calls"`
	Failures    int       `json:"failures"`
	Consecutive int       `json:"consecutiveFailures"`
	FailureRate float64   `json:"failureRate"`
	LastFailure time.Time `json:"lastFailure"`
}

// Stats returns the breaker's counters
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		Name:        cb.cfg.Name,
		State:       cb.state,
		Calls:       cb.calls,
		Failures:    cb.failures,
		Consecutive: cb.consecutive,
		FailureRate: cb.failureRate(),
		LastFailure: cb.lastFailure,
	}
}

// Reset closes the breaker and clears its counters
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed)
}

// Registry hands out one breaker per data source
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	defaults func(name string) *Config
}

// NewRegistry creates a registry; defaults may be nil to use DefaultConfig
func NewRegistry(defaults func(name string) *Config) *Registry {
	if defaults == nil {
		defaults = DefaultConfig
	}
	return &Registry{breakers: make(map[string]*CircuitBreaker), defaults: defaults}
}

// Get returns the breaker for name, creating it on first use
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb := NewCircuitBreaker(r.defaults(name))
	r.breakers[name] = cb
	return cb
}

// Lookup returns an existing breaker
func (r *Registry) Lookup(name string) (*CircuitBreaker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[name]
	if !ok {
		return nil, fmt.Errorf("circuit breaker %q not found", name)
	}
	return cb, nil
}

// Stats returns the stats of every breaker sorted by name
func (r *Registry) Stats() []Stats {
	r.mu.Lock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	r.mu.Unlock()

	sort.Strings(names)
	out := make([]Stats, 0, len(names))
	for _, name := range names {
		cb, err := r.Lookup(name)
		if err == nil {
			out = append(out, cb.Stats())
		}
	}
	return out
}

// ResetAll closes every breaker
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cb := range r.breakers {
		cb.Reset()
	}
}
