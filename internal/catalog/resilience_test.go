package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(config *BreakerConfig) *Breaker {
	return NewBreaker("test", config, zerolog.Nop())
}

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	b := newTestBreaker(&BreakerConfig{MaxFailures: 3, ResetTimeout: time.Hour, HalfOpenMaxCalls: 1})
	loadErr := errors.New("load failed")

	assert.True(t, b.Allow())

	b.RecordFailure(loadErr)
	b.RecordFailure(loadErr)
	assert.Equal(t, BreakerClosed, b.State())

	b.RecordFailure(loadErr)
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := newTestBreaker(&BreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour, HalfOpenMaxCalls: 1})
	loadErr := errors.New("load failed")

	b.RecordFailure(loadErr)
	b.RecordSuccess()
	b.RecordFailure(loadErr)

	// Failures are consecutive, not cumulative.
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerHalfOpenProbes(t *testing.T) {
	b := newTestBreaker(&BreakerConfig{MaxFailures: 1, ResetTimeout: time.Millisecond, HalfOpenMaxCalls: 2})
	loadErr := errors.New("load failed")

	b.RecordFailure(loadErr)
	require.Equal(t, BreakerOpen, b.State())

	// After the reset timeout the next Allow transitions to half-open.
	time.Sleep(5 * time.Millisecond)
	assert.True(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.State())

	// Enough successful probes close the breaker.
	b.RecordSuccess()
	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := newTestBreaker(&BreakerConfig{MaxFailures: 1, ResetTimeout: time.Millisecond, HalfOpenMaxCalls: 3})
	loadErr := errors.New("load failed")

	b.RecordFailure(loadErr)
	time.Sleep(5 * time.Millisecond)
	require.True(t, b.Allow())
	require.Equal(t, BreakerHalfOpen, b.State())

	b.RecordFailure(loadErr)
	assert.Equal(t, BreakerOpen, b.State())
}

func TestBreakerReset(t *testing.T) {
	b := newTestBreaker(&BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour, HalfOpenMaxCalls: 1})

	b.RecordFailure(errors.New("load failed"))
	require.Equal(t, BreakerOpen, b.State())

	b.Reset()
	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Allow())
}

func TestWarmupGate(t *testing.T) {
	g := NewWarmupGate(zerolog.Nop())
	assert.False(t, g.IsReady())

	// Wait with a cancelled context returns false before warmup.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, g.Wait(ctx))

	done := make(chan bool)
	go func() {
		done <- g.Wait(context.Background())
	}()

	g.Ready()
	assert.True(t, <-done)
	assert.True(t, g.IsReady())
	assert.True(t, g.Wait(ctx)) // ready short-circuits the cancelled context

	// Ready is idempotent.
	g.Ready()
	assert.True(t, g.IsReady())
}
