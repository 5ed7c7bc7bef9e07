package config

import (
	"errors"
	"fmt"

	"github.com/OldStager01/elastic-orchestrator/internal/threshold"
)

func (c *Config) Validate() error {
	var errs []error

	if c.App.Name == "" {
		errs = append(errs, errors.New("app.name is required"))
	}

	validModes := map[string]bool{"development": true, "production": true, "test": true}
	if !validModes[c.App.Mode] {
		errs = append(errs, fmt.Errorf("app.mode must be one of: development, production, test"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.App.LogLevel] {
		errs = append(errs, fmt.Errorf("app.log_level must be one of: debug, info, warn, error"))
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, errors.New("database.host is required"))
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, errors.New("database.port must be between 1 and 65535"))
		}
		if c.Database.Name == "" {
			errs = append(errs, errors.New("database.name is required"))
		}
		if c.Database.MaxConnections <= 0 {
			errs = append(errs, errors.New("database.max_connections must be positive"))
		}
	}

	validCollectors := map[string]bool{"http": true, "mock": true, "none": true}
	if !validCollectors[c.Collector.Type] {
		errs = append(errs, errors.New("collector.type must be one of: http, mock, none"))
	}
	if c.Collector.Type == "http" && c.Collector.Endpoint == "" {
		errs = append(errs, errors.New("collector.endpoint is required for the http collector"))
	}
	if c.Collector.Interval <= 0 {
		errs = append(errs, errors.New("collector.interval must be positive"))
	}
	if c.Collector.Timeout <= 0 {
		errs = append(errs, errors.New("collector.timeout must be positive"))
	}
	if c.Collector.Timeout >= c.Collector.Interval {
		errs = append(errs, errors.New("collector.timeout must be less than collector.interval"))
	}

	if c.Watch.Size <= 0 {
		errs = append(errs, errors.New("watch.size must be positive"))
	}
	if _, err := threshold.ParseAggregation(c.Watch.Aggregation); err != nil {
		errs = append(errs, fmt.Errorf("watch.aggregation: %w", err))
	}

	if c.Policy.DefaultMinServices < 0 {
		errs = append(errs, errors.New("policy.default_min_services must not be negative"))
	}
	if c.Policy.DefaultMaxServices >= 0 && c.Policy.DefaultMaxServices < c.Policy.DefaultMinServices {
		errs = append(errs, errors.New("policy.default_max_services must be >= default_min_services or -1"))
	}
	if c.Policy.RequestTimeout < 0 {
		errs = append(errs, errors.New("policy.request_timeout must not be negative"))
	}
	if c.Policy.RescheduleDelay <= 0 {
		errs = append(errs, errors.New("policy.reschedule_delay must be positive"))
	}

	if c.Provision.MaxRetries < 0 {
		errs = append(errs, errors.New("provision.max_retries must not be negative"))
	}
	if c.Provision.Ledger != "memory" && c.Provision.Ledger != "redis" {
		errs = append(errs, errors.New("provision.ledger must be one of: memory, redis"))
	}
	if c.Provision.Ledger == "redis" && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required for the redis ledger"))
	}
	if c.Provision.Launcher.FailureRate < 0 || c.Provision.Launcher.FailureRate > 1 {
		errs = append(errs, errors.New("provision.launcher.failure_rate must be between 0 and 1"))
	}

	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, errors.New("api.port must be between 1 and 65535"))
	}
	if c.App.Mode == "production" && c.API.JWTSecret == DefaultJWTSecret {
		errs = append(errs, errors.New("api.jwt_secret must be changed in production"))
	}

	if c.Prometheus.Enabled && (c.Prometheus.Port <= 0 || c.Prometheus.Port > 65535) {
		errs = append(errs, errors.New("prometheus.port must be between 1 and 65535"))
	}
	if c.Prometheus.Enabled && c.Prometheus.Port == c.API.Port {
		errs = append(errs, errors.New("prometheus.port must differ from api.port"))
	}

	if c.Events.BufferSize <= 0 {
		errs = append(errs, errors.New("events.buffer_size must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %w", errors.Join(errs...))
	}

	return nil
}
