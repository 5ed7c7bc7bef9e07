package threshold_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/elastic-orchestrator/internal/threshold"
	"github.com/OldStager01/elastic-orchestrator/pkg/models"
)

func TestParseAggregation(t *testing.T) {
	tests := []struct {
		input    string
		expected threshold.Aggregation
		wantErr  bool
	}{
		{input: "", expected: threshold.AggregateLast},
		{input: "Mean", expected: threshold.AggregateMean},
		{input: " median ", expected: threshold.AggregateMedian},
		{input: "p99", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			agg, err := threshold.ParseAggregation(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, agg)
		})
	}
}

func TestWatch_BoundedHistory(t *testing.T) {
	w := threshold.NewWatch("cpu", models.NewThresholdValues(0, 100), threshold.WatchConfig{Size: 3})

	for _, v := range []float64{1, 2, 3, 4, 5} {
		w.AddCalculable(models.NewCalculable("cpu", v))
	}

	history := w.Calculables()
	require.Len(t, history, 3)
	assert.Equal(t, 3.0, history[0].Value)
	assert.Equal(t, 5.0, history[2].Value)

	stats := w.Statistics()
	assert.Equal(t, 3, stats.Count())
	assert.Equal(t, 4.0, stats.Mean())

	last, ok := w.Last()
	require.True(t, ok)
	assert.Equal(t, 5.0, last.Value)

	w.Clear()
	_, ok = w.Last()
	assert.False(t, ok)
}

func TestWatch_Aggregation(t *testing.T) {
	tests := []struct {
		name        string
		aggregation threshold.Aggregation
		values      []float64
		breaches    int
	}{
		{
			name:        "last breaches on a single spike",
			aggregation: threshold.AggregateLast,
			values:      []float64{50, 50, 95},
			breaches:    1,
		},
		{
			name:        "mean smooths a single spike",
			aggregation: threshold.AggregateMean,
			values:      []float64{50, 50, 95},
			breaches:    0,
		},
		{
			name:        "max keeps breaching while the spike is in the window",
			aggregation: threshold.AggregateMax,
			values:      []float64{95, 50, 50},
			breaches:    3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := threshold.NewWatch("cpu", models.NewThresholdValues(10, 80),
				threshold.WatchConfig{Size: 5, Aggregation: tt.aggregation})
			rec := &recorder{}
			w.AddListener(rec)

			for _, v := range tt.values {
				w.AddCalculable(models.NewCalculable("cpu", v))
			}

			breaches := 0
			for _, typ := range rec.types() {
				if typ == models.ThresholdBreached {
					breaches++
				}
			}
			assert.Equal(t, tt.breaches, breaches)
		})
	}
}

func TestWatch_ForwardsAggregatedValue(t *testing.T) {
	w := threshold.NewWatch("cpu", models.NewThresholdValues(10, 80),
		threshold.WatchConfig{Size: 2, Aggregation: threshold.AggregateMean})
	rec := &recorder{}
	w.AddListener(rec)

	w.AddCalculable(models.NewCalculable("cpu", 90))
	w.AddCalculable(models.NewCalculable("cpu", 100))

	require.Len(t, rec.got, 2)
	assert.Equal(t, 95.0, rec.got[1].calc.Value)
	assert.Equal(t, "cpu", rec.got[1].calc.ID)
}
