package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/OldStager01/elastic-orchestrator/internal/logger"
)

type HTTPSource struct {
	client   *http.Client
	endpoint string
}

type HTTPSourceConfig struct {
	Endpoint string
	Timeout  time.Duration
}

func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &HTTPSource{
		client: &http.Client{
			Timeout: timeout,
		},
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
	}
}

type metricResponse struct {
	Name      string   `json:"name"`
	Value     *float64 `json:"value"`
	Timestamp string   `json:"timestamp"`
}

// Fetch reads GET {endpoint}/metrics/{name}.
func (s *HTTPSource) Fetch(ctx context.Context, name string) (float64, error) {
	url := fmt.Sprintf("%s/metrics/%s", s.endpoint, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create request: %v", ErrReadFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, ErrTimeout
		}
		return 0, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, ErrMetricNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: unexpected status code %d", ErrReadFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read response body: %v", ErrReadFailed, err)
	}

	var mr metricResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if mr.Value == nil {
		return 0, fmt.Errorf("%w: missing value", ErrInvalidResponse)
	}
	return *mr.Value, nil
}

func (s *HTTPSource) IsAvailable() bool {
	return s.endpoint != ""
}

func (s *HTTPSource) ReadMetric(ctx context.Context, name string) (float64, bool) {
	v, err := s.Fetch(ctx, name)
	if err != nil {
		logger.WithField("metric", name).Debugf("Metric read failed: %v", err)
		return 0, false
	}
	return v, true
}

func (s *HTTPSource) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", s.endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
