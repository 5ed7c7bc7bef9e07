package collector

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrReadFailed      = errors.New("metric read failed")
	ErrTimeout         = errors.New("metric read timeout")
	ErrMetricNotFound  = errors.New("metric not found")
	ErrInvalidResponse = errors.New("invalid response from metric source")
)

// MetricSource is what a sampler reads from. ReadMetric reports ok=false
// when no value could be obtained; the reason is logged by the source.
type MetricSource interface {
	IsAvailable() bool
	ReadMetric(ctx context.Context, name string) (float64, bool)
}

// Fetcher is a metric source that reports why a read failed.
type Fetcher interface {
	Fetch(ctx context.Context, name string) (float64, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// MetricName builds the name a service's SLA metric is published under.
func MetricName(opstring, service, metric string) string {
	return strings.Join([]string{opstring, service, metric}, "/")
}

// NoopSource is used when no metric backend is configured. It is never
// available and never yields a value.
type NoopSource struct{}

func (NoopSource) IsAvailable() bool { return false }

func (NoopSource) ReadMetric(context.Context, string) (float64, bool) { return 0, false }
