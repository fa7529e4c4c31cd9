package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
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
		return "unknown"
	}
}

var ErrOpen = errors.New("circuit breaker is open")

type Config struct {
	Name        string
	MaxFailures int
	Timeout     time.Duration
	// MaxRequests bounds concurrent trial calls while half-open.
	MaxRequests int
	// OnStateChange runs synchronously under the breaker lock and must not
	// call back into the breaker.
	OnStateChange func(name string, from, to State)
	// Ignore reports errors that say nothing about the dependency's health,
	// such as a request it rejected as invalid. They are returned to the
	// caller but never counted.
	Ignore func(err error) bool
}

// Counts is a snapshot of the breaker's bookkeeping.
type Counts struct {
	Requests            int64
	Successes           int64
	Failures            int64
	Rejections          int64
	ConsecutiveFailures int
	StateChanges        int64
}

type CircuitBreaker struct {
	name          string
	maxFailures   int
	timeout       time.Duration
	maxRequests   int
	onStateChange func(name string, from, to State)
	ignore        func(err error) bool
	now           func() time.Time

	mu           sync.Mutex
	state        State
	openedAt     time.Time
	halfOpenRuns int
	counts       Counts

	logger *logrus.Logger
}

func New(cfg Config, logger *logrus.Logger) *CircuitBreaker {
	if cfg.Name == "" {
		cfg.Name = "unnamed"
	}
	if cfg.MaxFailures <= 0 {
		logger.WithFields(logrus.Fields{
			"circuit_breaker": cfg.Name,
			"invalid_value":   cfg.MaxFailures,
		}).Warn("Invalid MaxFailures value, using default")
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		logger.WithFields(logrus.Fields{
			"circuit_breaker": cfg.Name,
			"invalid_value":   cfg.Timeout,
		}).Warn("Invalid Timeout value, using default")
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 1
	}

	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		timeout:       cfg.Timeout,
		maxRequests:   cfg.MaxRequests,
		onStateChange: cfg.OnStateChange,
		ignore:        cfg.Ignore,
		now:           time.Now,
		state:         StateClosed,
		logger:        logger,
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs fn unless the breaker is open. Context cancellation by the
// caller and errors matched by Config.Ignore are not counted.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	halfOpen, err := cb.before()
	if err != nil {
		return err
	}

	err = fn(ctx)

	cb.after(halfOpen, err, cb.neutral(ctx, err))
	return err
}

func (cb *CircuitBreaker) neutral(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return true
	}
	return cb.ignore != nil && cb.ignore(err)
}

func (cb *CircuitBreaker) before() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.timeout {
			cb.counts.Rejections++
			cb.logger.WithFields(logrus.Fields{
				"circuit_breaker": cb.name,
				"state":           cb.state.String(),
			}).Debug("Circuit breaker is open, rejecting request")
			return false, ErrOpen
		}
		cb.setState(StateHalfOpen)
	}

	if cb.state == StateHalfOpen {
		if cb.halfOpenRuns >= cb.maxRequests {
			cb.counts.Rejections++
			return false, ErrOpen
		}
		cb.halfOpenRuns++
	}

	cb.counts.Requests++
	return cb.state == StateHalfOpen, nil
}

func (cb *CircuitBreaker) after(halfOpen bool, err error, neutral bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if halfOpen && cb.halfOpenRuns > 0 {
		cb.halfOpenRuns--
	}

	switch {
	case neutral:
		return
	case err != nil:
		cb.counts.Failures++
		cb.counts.ConsecutiveFailures++
		if cb.state == StateHalfOpen || cb.counts.ConsecutiveFailures >= cb.maxFailures {
			cb.openedAt = cb.now()
			cb.setState(StateOpen)
		}
	default:
		cb.counts.Successes++
		cb.counts.ConsecutiveFailures = 0
		if cb.state == StateHalfOpen {
			cb.setState(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) setState(next State) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	cb.counts.StateChanges++
	if next != StateHalfOpen {
		cb.halfOpenRuns = 0
	}

	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"from_state":      prev.String(),
		"to_state":        next.String(),
	}).Info("Circuit breaker state changed")

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, prev, next)
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(StateClosed)
	cb.counts.ConsecutiveFailures = 0
	cb.openedAt = time.Time{}
}

func (cb *CircuitBreaker) String() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return fmt.Sprintf("CircuitBreaker(name=%s, state=%s, failures=%d/%d)",
		cb.name, cb.state.String(), cb.counts.ConsecutiveFailures, cb.maxFailures)
}
