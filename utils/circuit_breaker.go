package utils

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards calls to external payment providers so a flapping
// provider does not tie up purchase requests.
type CircuitBreaker struct {
	name         string
	maxRequests  uint32
	interval     time.Duration
	timeout      time.Duration
	failureRatio float64

	mutex  sync.Mutex
	state  BreakerState
	counts breakerCounts
	expiry time.Time
}

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

type breakerCounts struct {
	Requests       uint32
	TotalSuccesses uint32
	TotalFailures  uint32
}

func NewCircuitBreaker(name string) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		maxRequests:  50,
		interval:     60 * time.Second,
		timeout:      30 * time.Second,
		failureRatio: 0.5,
		state:        BreakerClosed,
	}
}

// Execute runs req unless the breaker is open. Context errors count as
// failures like any other error.
func (cb *CircuitBreaker) Execute(ctx context.Context, req func(ctx context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := req(ctx)
	cb.afterRequest(err == nil)
	return err
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.currentState(time.Now())
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	state := cb.currentState(now)

	if state == BreakerOpen {
		return ErrCircuitOpen
	}
	if state == BreakerHalfOpen && cb.counts.Requests >= cb.maxRequests {
		return ErrCircuitOpen
	}

	cb.counts.Requests++
	return nil
}

func (cb *CircuitBreaker) afterRequest(success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	state := cb.currentState(time.Now())

	if success {
		cb.counts.TotalSuccesses++
		if state == BreakerHalfOpen {
			cb.state = BreakerClosed
			cb.resetCounts(time.Now())
		}
		return
	}

	cb.counts.TotalFailures++
	if cb.readyToTrip() {
		cb.state = BreakerOpen
		cb.expiry = time.Now().Add(cb.timeout)
	}
}

func (cb *CircuitBreaker) readyToTrip() bool {
	return cb.counts.Requests >= cb.maxRequests &&
		float64(cb.counts.TotalFailures)/float64(cb.counts.Requests) >= cb.failureRatio
}

func (cb *CircuitBreaker) currentState(now time.Time) BreakerState {
	switch cb.state {
	case BreakerClosed:
		if !cb.expiry.IsZero() && cb.expiry.Before(now) {
			cb.resetCounts(now)
		}
	case BreakerOpen:
		if cb.expiry.Before(now) {
			cb.state = BreakerHalfOpen
			cb.resetCounts(now)
		}
	}
	return cb.state
}

func (cb *CircuitBreaker) resetCounts(now time.Time) {
	cb.counts = breakerCounts{}
	if cb.state == BreakerClosed {
		cb.expiry = now.Add(cb.interval)
	} else {
		cb.expiry = time.Time{}
	}
}
