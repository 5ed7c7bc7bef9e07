package collector

import (
	"context"
	"errors"
	"time"

	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/OldStager01/elastic-orchestrator/internal/resilience"
)

// ResilientSource retries reads and stops calling a failing backend until
// its circuit breaker lets trial calls through again.
type ResilientSource struct {
	source         Fetcher
	circuitBreaker *resilience.CircuitBreaker
	retryAttempts  int
	retryDelay     time.Duration
}

type ResilientSourceConfig struct {
	Source        Fetcher
	MaxFailures   int
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	OnStateChange func(name string, from, to resilience.State)
}

func NewResilientSource(cfg ResilientSourceConfig) *ResilientSource {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 1 * time.Second
	}

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:          "metric-source",
		MaxFailures:   cfg.MaxFailures,
		Timeout:       cfg.Timeout,
		OnStateChange: cfg.OnStateChange,
	})

	return &ResilientSource{
		source:         cfg.Source,
		circuitBreaker: cb,
		retryAttempts:  cfg.RetryAttempts,
		retryDelay:     cfg.RetryDelay,
	}
}

func (s *ResilientSource) Fetch(ctx context.Context, name string) (float64, error) {
	var value float64
	var missing error

	err := s.circuitBreaker.ExecuteContext(ctx, func(ctx context.Context) error {
		var lastErr error
		for attempt := 1; attempt <= s.retryAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			v, err := s.source.Fetch(ctx, name)
			if err == nil {
				value = v
				return nil
			}
			// the backend answered; do not count it against the circuit
			if errors.Is(err, ErrMetricNotFound) {
				missing = err
				return nil
			}

			lastErr = err
			logger.WithField("metric", name).Warnf(
				"Read attempt %d/%d failed: %v",
				attempt, s.retryAttempts, err,
			)

			if attempt < s.retryAttempts {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(s.retryDelay):
				}
			}
		}
		return lastErr
	})
	if err != nil {
		return 0, err
	}
	if missing != nil {
		return 0, missing
	}
	return value, nil
}

func (s *ResilientSource) IsAvailable() bool {
	if !s.circuitBreaker.Allow() {
		return false
	}
	if a, ok := s.source.(interface{ IsAvailable() bool }); ok {
		return a.IsAvailable()
	}
	return true
}

func (s *ResilientSource) ReadMetric(ctx context.Context, name string) (float64, bool) {
	v, err := s.Fetch(ctx, name)
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			logger.WithField("metric", name).Debugf("Metric read failed: %v", err)
		}
		return 0, false
	}
	return v, true
}

func (s *ResilientSource) HealthCheck(ctx context.Context) error {
	return s.source.HealthCheck(ctx)
}

func (s *ResilientSource) Close() error {
	return s.source.Close()
}

func (s *ResilientSource) CircuitState() resilience.State {
	return s.circuitBreaker.State()
}

func (s *ResilientSource) ResetCircuit() {
	s.circuitBreaker.Reset()
}
