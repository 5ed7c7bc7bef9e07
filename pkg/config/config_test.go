package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OldStager01/elastic-orchestrator/internal/threshold"
	"github.com/OldStager01/elastic-orchestrator/pkg/config"
	"github.com/OldStager01/elastic-orchestrator/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "app:\n  name: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Mode)
	assert.Equal(t, 5*time.Second, cfg.Collector.Interval)
	assert.Equal(t, 10*time.Second, cfg.Policy.RequestTimeout)
	assert.Equal(t, time.Second, cfg.Policy.RescheduleDelay)
	assert.Equal(t, models.UndefinedServices, cfg.Policy.DefaultMaxServices)
	assert.Equal(t, "memory", cfg.Provision.Ledger)
	assert.Equal(t, 30, cfg.Watch.Size)
	assert.False(t, cfg.Database.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfig(t, `
collector:
  type: mock
  interval: 1s
  timeout: 500ms
watch:
  size: 10
  aggregation: mean
policy:
  default_min_services: 2
  default_max_services: 8
  request_timeout: 3s
deploy:
  files:
    - a.yaml
    - b.yaml
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "mock", cfg.Collector.Type)
	assert.Equal(t, []string{"a.yaml", "b.yaml"}, cfg.Deploy.Files)

	wc := cfg.Watch.ToWatchConfig()
	assert.Equal(t, 10, wc.Size)
	assert.Equal(t, threshold.AggregateMean, wc.Aggregation)

	pc := cfg.Policy.ToPolicyConfig()
	assert.Equal(t, 3*time.Second, pc.RequestTimeout)

	d := cfg.Policy.Defaults()
	assert.Equal(t, 2, d.MinServices)
	assert.Equal(t, 8, d.MaxServices)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ORCHESTRATOR_API_PORT", "9999")
	cfg, err := config.Load(writeConfig(t, "app:\n  name: test\n"))
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.API.Port)
}

func TestLoad_BadFile(t *testing.T) {
	_, err := config.Load(writeConfig(t, "app: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"bad mode", func(c *config.Config) { c.App.Mode = "staging" }, "app.mode"},
		{"bad collector", func(c *config.Config) { c.Collector.Type = "snmp" }, "collector.type"},
		{"timeout over interval", func(c *config.Config) { c.Collector.Timeout = time.Minute }, "collector.timeout"},
		{"bad aggregation", func(c *config.Config) { c.Watch.Aggregation = "p99" }, "watch.aggregation"},
		{"max below min", func(c *config.Config) { c.Policy.DefaultMaxServices = 0 }, "default_max_services"},
		{"redis ledger without addr", func(c *config.Config) {
			c.Provision.Ledger = "redis"
			c.Redis.Addr = ""
		}, "redis.addr"},
		{"failure rate", func(c *config.Config) { c.Provision.Launcher.FailureRate = 2 }, "failure_rate"},
		{"prod secret", func(c *config.Config) { c.App.Mode = "production" }, "jwt_secret"},
		{"db enabled without name", func(c *config.Config) {
			c.Database.Enabled = true
			c.Database.Name = ""
		}, "database.name"},
		{"port clash", func(c *config.Config) { c.Prometheus.Port = c.API.Port }, "prometheus.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load(writeConfig(t, "app:\n  name: test\n"))
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := config.DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())
	assert.Equal(t, d.DSN(), d.ToDBConfig().DSN())
}
