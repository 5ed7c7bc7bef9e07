package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/elastic-orchestrator/internal/auth"
	"github.com/OldStager01/elastic-orchestrator/internal/collector"
	"github.com/OldStager01/elastic-orchestrator/internal/events"
	"github.com/OldStager01/elastic-orchestrator/internal/resilience"
	"github.com/OldStager01/elastic-orchestrator/pkg/config"
	"github.com/OldStager01/elastic-orchestrator/pkg/models"
)

const shopDescriptor = "../opstring/testdata/shop.yaml"

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidate(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: broken\nservices:\n  - name: api\n    bogus: 1\n"), 0o644))

	tests := []struct {
		name    string
		files   []string
		wantErr bool
		want    string
	}{
		{"valid descriptor", []string{shopDescriptor}, false, "ok   " + shopDescriptor + " (shop, 3 services, 1 dynamic)"},
		{"unknown field", []string{bad}, true, "FAIL"},
		{"missing file", []string{filepath.Join(t.TempDir(), "missing.yaml")}, true, "FAIL"},
		{"one bad in many", []string{shopDescriptor, bad}, true, "ok   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "", append([]string{"validate"}, tt.files...)...)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestValidate_RequiresArgs(t *testing.T) {
	_, err := execute(t, "", "validate")
	assert.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{"argument", "", []string{"hash-password", "S3cret!pass"}},
		{"stdin", "S3cret!pass\n", []string{"hash-password"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.stdin, tt.args...)
			require.NoError(t, err)
			assert.True(t, auth.CheckPassword("S3cret!pass", strings.TrimSpace(out)))
		})
	}
}

func TestHashPassword_Weak(t *testing.T) {
	_, err := execute(t, "", "hash-password", "weak")
	assert.Error(t, err)

	out, err := execute(t, "", "hash-password", "--allow-weak", "weak")
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword("weak", strings.TrimSpace(out)))
	allowWeak = false
}

func TestHashPassword_Empty(t *testing.T) {
	_, err := execute(t, "\n", "hash-password")
	assert.Error(t, err)
}

func noStateChange(string, resilience.State, resilience.State) {}

func TestNewSource(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		source, fetcher := newSource(config.CollectorConfig{Type: "none"}, noStateChange)
		assert.Nil(t, fetcher)
		assert.False(t, source.IsAvailable())
	})

	t.Run("mock", func(t *testing.T) {
		source, fetcher := newSource(config.CollectorConfig{
			Type:       "mock",
			MockValues: map[string]float64{"shop/api/load": 42},
		}, noStateChange)
		require.NotNil(t, fetcher)
		v, ok := source.ReadMetric(context.Background(), collector.MetricName("shop", "api", "load"))
		assert.True(t, ok)
		assert.Equal(t, 42.0, v)
	})

	t.Run("http", func(t *testing.T) {
		source, fetcher := newSource(config.CollectorConfig{Type: "http", Endpoint: "http://127.0.0.1:1"}, noStateChange)
		defer fetcher.Close()
		_, ok := source.(*collector.ResilientSource)
		assert.True(t, ok)
	})
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Collector.Type = "none"
	cfg.Database.Enabled = false
	cfg.Provision.Ledger = "memory"
	cfg.Prometheus.Enabled = false
	return cfg
}

func TestSourceStateChanged_RaisesAlerts(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()
	alerts := bus.Subscribe(models.EventTypeAlert)

	onChange := sourceStateChanged(events.NewPublisher(bus))

	onChange("metrics", resilience.StateClosed, resilience.StateOpen)
	event := <-alerts
	assert.Equal(t, models.SeverityCritical, event.Severity)
	assert.Equal(t, map[string]string{"source": "metrics", "from": "closed", "to": "open"}, event.Data)

	onChange("metrics", resilience.StateOpen, resilience.StateHalfOpen)
	onChange("metrics", resilience.StateHalfOpen, resilience.StateClosed)
	event = <-alerts
	assert.Equal(t, models.SeverityInfo, event.Severity, "half-open raises nothing, recovery does")

	select {
	case extra := <-alerts:
		t.Fatalf("unexpected alert: %s", extra.Message)
	default:
	}
}

func TestApp_RunStopsEverythingWhenDeployFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Deploy.Files = []string{filepath.Join(t.TempDir(), "missing.yaml")}

	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	hub := app.Server().WebSocketHub()

	err = app.Run(context.Background())
	require.Error(t, err)

	select {
	case <-hub.Done():
	default:
		t.Fatal("websocket hub still running after failed deploy")
	}
	assert.False(t, app.Orchestrator().Accepting())
}

func TestApp_DeployDescriptors(t *testing.T) {
	cfg := testConfig(t)

	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	require.NoError(t, app.Deploy(context.Background(), []string{shopDescriptor}))

	ops, err := app.Orchestrator().OperationalString("shop")
	require.NoError(t, err)
	assert.Len(t, ops.AllElements(), 3)

	err = app.Deploy(context.Background(), []string{shopDescriptor})
	assert.Error(t, err, "redeploying the same opstring is rejected")
}
