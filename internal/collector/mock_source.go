package collector

import (
	"context"
	"sync"
)

// MockSource serves values set by tests or by the in-process demo.
type MockSource struct {
	mu           sync.RWMutex
	values       map[string]float64
	shouldFail   bool
	failureError error
	reads        int
}

func NewMockSource() *MockSource {
	return &MockSource{values: make(map[string]float64)}
}

func (s *MockSource) SetValue(name string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

func (s *MockSource) SetShouldFail(shouldFail bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shouldFail = shouldFail
	s.failureError = err
}

func (s *MockSource) Reads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads
}

func (s *MockSource) Fetch(_ context.Context, name string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++

	if s.shouldFail {
		if s.failureError != nil {
			return 0, s.failureError
		}
		return 0, ErrReadFailed
	}
	v, ok := s.values[name]
	if !ok {
		return 0, ErrMetricNotFound
	}
	return v, nil
}

func (s *MockSource) IsAvailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.shouldFail
}

func (s *MockSource) ReadMetric(ctx context.Context, name string) (float64, bool) {
	v, err := s.Fetch(ctx, name)
	return v, err == nil
}

func (s *MockSource) HealthCheck(context.Context) error {
	if !s.IsAvailable() {
		return ErrReadFailed
	}
	return nil
}

func (s *MockSource) Close() error {
	return nil
}
