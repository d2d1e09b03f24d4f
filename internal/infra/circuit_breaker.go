package infra

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ── Circuit Breaker ───────────────────────────────────────────────────────────
// Guards outbound calls (SMTP) so a downed relay does not tie up the worker
// pool. Closed → Open after consecutive failures, Half-Open after OpenTimeout.

// CBState represents the current circuit breaker state.
type CBState int

const (
	CBClosed   CBState = iota // normal, requests flow
	CBHalfOpen                // probing, limited requests allowed
	CBOpen                    // tripped, fast-fail all requests
)

// String returns a human-readable state name (for health endpoints / logs).
func (s CBState) String() string {
	switch s {
	case CBClosed:
		return "closed"
	case CBOpen:
		return "open"
	case CBHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when Execute is called while the CB is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds tunable parameters.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold uint32        // consecutive failures to trip open (default: 5)
	HalfOpenRequests uint32        // probes allowed while half-open (default: 2)
	OpenTimeout      time.Duration // how long to stay open before probing (default: 60s)
	// OnStateChange is called after every transition.
	OnStateChange func(name string, to CBState)
}

// DefaultCBConfig returns defaults for the SMTP circuit breaker.
func DefaultCBConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             "smtp",
		FailureThreshold: 5,
		HalfOpenRequests: 2,
		OpenTimeout:      60 * time.Second,
	}
}

// CircuitBreaker adapts sony/gobreaker to a func() error call shape.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = func(name string, _ gobreaker.State, to gobreaker.State) {
			cfg.OnStateChange(name, fromGobreaker(to))
		}
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

func (c *CircuitBreaker) Name() string { return c.cb.Name() }

func (c *CircuitBreaker) State() CBState { return fromGobreaker(c.cb.State()) }

// Execute runs fn unless the breaker is open; an open or saturated half-open
// breaker yields ErrCircuitOpen without calling fn.
func (c *CircuitBreaker) Execute(fn func() error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

func fromGobreaker(s gobreaker.State) CBState {
	switch s {
	case gobreaker.StateOpen:
		return CBOpen
	case gobreaker.StateHalfOpen:
		return CBHalfOpen
	default:
		return CBClosed
	}
}
