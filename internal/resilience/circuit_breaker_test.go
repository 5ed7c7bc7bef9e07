package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/OldStager01/elastic-orchestrator/internal/resilience"
)

var errFail = errors.New("fail")

func failN(cb *resilience.CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		cb.Execute(func() error { return errFail })
	}
}

func TestCircuitBreaker_StateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		config        resilience.CircuitBreakerConfig
		setup         func(cb *resilience.CircuitBreaker)
		expectedState resilience.State
	}{
		{
			name:          "successful execution stays closed",
			config:        resilience.CircuitBreakerConfig{MaxFailures: 3, Timeout: 5 * time.Second},
			setup:         func(cb *resilience.CircuitBreaker) { cb.Execute(func() error { return nil }) },
			expectedState: resilience.StateClosed,
		},
		{
			name:          "open after max failures",
			config:        resilience.CircuitBreakerConfig{MaxFailures: 3, Timeout: 5 * time.Second},
			setup:         func(cb *resilience.CircuitBreaker) { failN(cb, 3) },
			expectedState: resilience.StateOpen,
		},
		{
			name:   "half-open after timeout",
			config: resilience.CircuitBreakerConfig{MaxFailures: 3, Timeout: 50 * time.Millisecond},
			setup: func(cb *resilience.CircuitBreaker) {
				failN(cb, 3)
				time.Sleep(100 * time.Millisecond)
				cb.Execute(func() error { return nil })
			},
			expectedState: resilience.StateHalfOpen,
		},
		{
			name:   "closed again after half-open successes",
			config: resilience.CircuitBreakerConfig{MaxFailures: 3, Timeout: 50 * time.Millisecond, HalfOpenMax: 2},
			setup: func(cb *resilience.CircuitBreaker) {
				failN(cb, 3)
				time.Sleep(100 * time.Millisecond)
				for i := 0; i < 2; i++ {
					cb.Execute(func() error { return nil })
				}
			},
			expectedState: resilience.StateClosed,
		},
		{
			name:   "reset returns to closed",
			config: resilience.CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Hour},
			setup: func(cb *resilience.CircuitBreaker) {
				failN(cb, 3)
				cb.Reset()
			},
			expectedState: resilience.StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := resilience.NewCircuitBreaker(tt.config)

			tt.setup(cb)

			assert.Equal(t, tt.expectedState, cb.State())
		})
	}
}

func TestCircuitBreaker_OpenRejects(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Hour})
	assert.True(t, cb.Allow())

	failN(cb, 2)

	assert.False(t, cb.Allow())
	err := cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestCircuitBreaker_CancelledContextNotCounted(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.ExecuteContext(ctx, func(ctx context.Context) error { return ctx.Err() })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, resilience.StateClosed, cb.State())
}
