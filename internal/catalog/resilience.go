package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// BreakerState represents the state of the loader circuit breaker.
type BreakerState int

const (
	// BreakerClosed allows snapshot loads to pass through.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects loads immediately.
	BreakerOpen

	// BreakerHalfOpen allows a limited number of probe loads.
	BreakerHalfOpen
)

// String returns the string representation of the breaker state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds configuration for the loader circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive load failures before opening.
	MaxFailures int

	// ResetTimeout is how long to wait before probing again (half-open).
	ResetTimeout time.Duration

	// HalfOpenMaxCalls is the number of probe loads allowed while half-open.
	HalfOpenMaxCalls int
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		MaxFailures:      5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// Breaker implements the circuit breaker pattern for catalog load failures.
// A flapping upstream (database or catalog API) trips the breaker so request
// paths fail fast instead of piling up on a dead loader.
type Breaker struct {
	mu              sync.Mutex
	state           BreakerState
	failureCount    int
	successCount    int // counts probes while half-open
	lastFailureTime time.Time
	lastStateChange time.Time
	config          *BreakerConfig
	logger          zerolog.Logger
	name            string
}

// NewBreaker creates a new circuit breaker.
func NewBreaker(name string, config *BreakerConfig, logger zerolog.Logger) *Breaker {
	if config == nil {
		config = DefaultBreakerConfig()
	}
	return &Breaker{
		state:           BreakerClosed,
		config:          config,
		logger:          logger,
		name:            name,
		lastStateChange: time.Now(),
	}
}

// Allow returns true if a load should be attempted.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()

	switch b.state {
	case BreakerClosed:
		return true

	case BreakerOpen:
		if now.Sub(b.lastFailureTime) >= b.config.ResetTimeout {
			b.transitionTo(BreakerHalfOpen, now)
			b.logger.Info().
				Str("breaker", b.name).
				Msg("Circuit breaker transitioning to half-open")
			return true
		}
		return false

	case BreakerHalfOpen:
		return b.successCount < b.config.HalfOpenMaxCalls

	default:
		return false
	}
}

// RecordSuccess records a successful load.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failureCount = 0

	case BreakerHalfOpen:
		b.successCount++
		if b.successCount >= b.config.HalfOpenMaxCalls {
			b.transitionTo(BreakerClosed, time.Now())
			b.logger.Info().
				Str("breaker", b.name).
				Int("success_count", b.successCount).
				Msg("Circuit breaker closing after recovery")
			b.successCount = 0
			b.failureCount = 0
		}
	}
}

// RecordFailure records a failed load.
func (b *Breaker) RecordFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.failureCount++
	b.lastFailureTime = now

	b.logger.Error().
		Err(err).
		Str("breaker", b.name).
		Int("failure_count", b.failureCount).
		Msg("Circuit breaker recording failure")

	switch b.state {
	case BreakerClosed:
		if b.failureCount >= b.config.MaxFailures {
			b.transitionTo(BreakerOpen, now)
			b.logger.Warn().
				Str("breaker", b.name).
				Dur("reset_timeout", b.config.ResetTimeout).
				Msg("Circuit breaker opening after max failures")
		}

	case BreakerHalfOpen:
		// Any failure while half-open re-opens immediately.
		b.transitionTo(BreakerOpen, now)
		b.successCount = 0
		b.logger.Warn().
			Str("breaker", b.name).
			Msg("Circuit breaker re-opening after half-open failure")
	}
}

func (b *Breaker) transitionTo(state BreakerState, now time.Time) {
	b.state = state
	b.lastStateChange = now
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transitionTo(BreakerClosed, time.Now())
	b.failureCount = 0
	b.successCount = 0
}

// WarmupGate blocks snapshot consumers until the initial warmup completes,
// so the service never answers from an empty cache right after boot.
type WarmupGate struct {
	mu       sync.RWMutex
	ready    bool
	warmedCh chan struct{}
	logger   zerolog.Logger
}

// NewWarmupGate creates a new warmup gate.
func NewWarmupGate(logger zerolog.Logger) *WarmupGate {
	return &WarmupGate{
		warmedCh: make(chan struct{}),
		logger:   logger,
	}
}

// Wait blocks until warmup completes or ctx is cancelled. Returns false if
// the context was cancelled first.
func (g *WarmupGate) Wait(ctx context.Context) bool {
	g.mu.RLock()
	ready := g.ready
	g.mu.RUnlock()

	if ready {
		return true
	}

	select {
	case <-g.warmedCh:
		return true
	case <-ctx.Done():
		g.logger.Warn().Msg("Warmup gate: context cancelled while waiting")
		return false
	}
}

// Ready marks warmup as complete.
func (g *WarmupGate) Ready() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.ready {
		g.ready = true
		close(g.warmedCh)
		g.logger.Info().Msg("Warmup gate: warmup complete, allowing requests")
	}
}

// IsReady reports whether warmup has completed without blocking.
func (g *WarmupGate) IsReady() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ready
}
