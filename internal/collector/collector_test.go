package collector_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/elastic-orchestrator/internal/collector"
	"github.com/OldStager01/elastic-orchestrator/internal/resilience"
)

func metricServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/metrics/shop/api/load", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"name":"shop/api/load","value":42.5}`)
	})
	mux.HandleFunc("/metrics/shop/api/garbled", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{not json`)
	})
	mux.HandleFunc("/metrics/shop/api/empty", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"shop/api/empty"}`)
	})
	mux.HandleFunc("/metrics/shop/api/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestMetricName(t *testing.T) {
	assert.Equal(t, "shop/api/load", collector.MetricName("shop", "api", "load"))
}

func TestHTTPSource_Fetch(t *testing.T) {
	srv := metricServer(t)
	src := collector.NewHTTPSource(collector.HTTPSourceConfig{Endpoint: srv.URL + "/"})

	tests := []struct {
		name        string
		metric      string
		expected    float64
		expectedErr error
	}{
		{name: "value returned", metric: "shop/api/load", expected: 42.5},
		{name: "unknown metric", metric: "shop/api/missing", expectedErr: collector.ErrMetricNotFound},
		{name: "invalid body", metric: "shop/api/garbled", expectedErr: collector.ErrInvalidResponse},
		{name: "missing value", metric: "shop/api/empty", expectedErr: collector.ErrInvalidResponse},
		{name: "server error", metric: "shop/api/broken", expectedErr: collector.ErrReadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := src.Fetch(context.Background(), tt.metric)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestHTTPSource_ReadMetricAndHealthCheck(t *testing.T) {
	srv := metricServer(t)
	src := collector.NewHTTPSource(collector.HTTPSourceConfig{Endpoint: srv.URL})
	defer src.Close()

	assert.True(t, src.IsAvailable())
	require.NoError(t, src.HealthCheck(context.Background()))

	v, ok := src.ReadMetric(context.Background(), "shop/api/load")
	assert.True(t, ok)
	assert.Equal(t, 42.5, v)

	_, ok = src.ReadMetric(context.Background(), "shop/api/broken")
	assert.False(t, ok)
}

func TestHTTPSource_Unreachable(t *testing.T) {
	srv := metricServer(t)
	url := srv.URL
	srv.Close()

	src := collector.NewHTTPSource(collector.HTTPSourceConfig{Endpoint: url, Timeout: time.Second})
	_, err := src.Fetch(context.Background(), "shop/api/load")
	assert.ErrorIs(t, err, collector.ErrReadFailed)
	assert.Error(t, src.HealthCheck(context.Background()))
}

func TestNoopSource(t *testing.T) {
	var src collector.MetricSource = collector.NoopSource{}
	assert.False(t, src.IsAvailable())
	_, ok := src.ReadMetric(context.Background(), "anything")
	assert.False(t, ok)
}

func TestMockSource(t *testing.T) {
	src := collector.NewMockSource()
	src.SetValue("shop/api/load", 12)

	v, ok := src.ReadMetric(context.Background(), "shop/api/load")
	assert.True(t, ok)
	assert.Equal(t, 12.0, v)

	_, ok = src.ReadMetric(context.Background(), "shop/api/other")
	assert.False(t, ok)

	boom := errors.New("boom")
	src.SetShouldFail(true, boom)
	assert.False(t, src.IsAvailable())
	_, err := src.Fetch(context.Background(), "shop/api/load")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, src.Reads())
}

func TestResilientSource_RetriesThenSucceeds(t *testing.T) {
	flaky := &flakySource{failures: 2, value: 7}
	src := collector.NewResilientSource(collector.ResilientSourceConfig{
		Source:        flaky,
		MaxFailures:   3,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	})

	v, ok := src.ReadMetric(context.Background(), "shop/api/load")
	assert.True(t, ok)
	assert.Equal(t, 7.0, v)
	assert.Equal(t, 3, flaky.calls)
	assert.Equal(t, resilience.StateClosed, src.CircuitState())
}

func TestResilientSource_OpensCircuit(t *testing.T) {
	mock := collector.NewMockSource()
	mock.SetShouldFail(true, nil)

	src := collector.NewResilientSource(collector.ResilientSourceConfig{
		Source:        mock,
		MaxFailures:   2,
		Timeout:       time.Hour,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
	})

	for i := 0; i < 2; i++ {
		_, err := src.Fetch(context.Background(), "shop/api/load")
		assert.ErrorIs(t, err, collector.ErrReadFailed)
	}
	assert.Equal(t, resilience.StateOpen, src.CircuitState())
	assert.False(t, src.IsAvailable())

	_, err := src.Fetch(context.Background(), "shop/api/load")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, mock.Reads())

	src.ResetCircuit()
	mock.SetShouldFail(false, nil)
	mock.SetValue("shop/api/load", 3)
	assert.True(t, src.IsAvailable())
	v, ok := src.ReadMetric(context.Background(), "shop/api/load")
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)
}

func TestResilientSource_MissingMetricDoesNotTrip(t *testing.T) {
	mock := collector.NewMockSource()
	src := collector.NewResilientSource(collector.ResilientSourceConfig{
		Source:        mock,
		MaxFailures:   1,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	})

	_, err := src.Fetch(context.Background(), "shop/api/none")
	assert.ErrorIs(t, err, collector.ErrMetricNotFound)
	assert.Equal(t, 1, mock.Reads())
	assert.Equal(t, resilience.StateClosed, src.CircuitState())
}

type flakySource struct {
	failures int
	value    float64
	calls    int
}

func (f *flakySource) Fetch(context.Context, string) (float64, error) {
	f.calls++
	if f.calls <= f.failures {
		return 0, collector.ErrReadFailed
	}
	return f.value, nil
}

func (f *flakySource) HealthCheck(context.Context) error { return nil }

func (f *flakySource) Close() error { return nil }
