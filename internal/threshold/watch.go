package threshold

import (
	"fmt"
	"strings"
	"sync"

	"github.com/OldStager01/elastic-orchestrator/internal/statistics"
	"github.com/OldStager01/elastic-orchestrator/pkg/models"
)

type Aggregation string

const (
	AggregateLast   Aggregation = "last"
	AggregateMean   Aggregation = "mean"
	AggregateMedian Aggregation = "median"
	AggregateMax    Aggregation = "max"
	AggregateMin    Aggregation = "min"
)

func ParseAggregation(s string) (Aggregation, error) {
	switch a := Aggregation(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return AggregateLast, nil
	case AggregateLast, AggregateMean, AggregateMedian, AggregateMax, AggregateMin:
		return a, nil
	default:
		return "", fmt.Errorf("unknown aggregation %q", s)
	}
}

type WatchConfig struct {
	Size        int
	Aggregation Aggregation
}

// Watch keeps a bounded window of samples for one metric and feeds the
// aggregated window value to its threshold manager.
type Watch struct {
	id      string
	config  WatchConfig
	manager *Manager
	history []models.Calculable
	mu      sync.Mutex
}

func NewWatch(id string, tv models.ThresholdValues, cfg WatchConfig) *Watch {
	if cfg.Size <= 0 {
		cfg.Size = 30
	}
	if cfg.Aggregation == "" {
		cfg.Aggregation = AggregateLast
	}
	return &Watch{
		id:      id,
		config:  cfg,
		manager: NewManager(id, tv),
	}
}

func (w *Watch) ID() string {
	return w.id
}

func (w *Watch) Manager() *Manager {
	return w.manager
}

func (w *Watch) AddListener(l Listener) func() {
	return w.manager.AddListener(l)
}

// AddCalculable records a sample and evaluates the window against the
// thresholds.
func (w *Watch) AddCalculable(calc models.Calculable) {
	w.mu.Lock()
	w.history = append(w.history, calc)
	if len(w.history) > w.config.Size {
		w.history = w.history[len(w.history)-w.config.Size:]
	}
	value := w.aggregate()
	w.mu.Unlock()

	evaluated := calc
	evaluated.Value = value
	w.manager.Check(evaluated)
}

func (w *Watch) Calculables() []models.Calculable {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.Calculable, len(w.history))
	copy(out, w.history)
	return out
}

func (w *Watch) Last() (models.Calculable, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.history) == 0 {
		return models.Calculable{}, false
	}
	return w.history[len(w.history)-1], true
}

func (w *Watch) Statistics() *statistics.Statistics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return statistics.New(w.values()...)
}

func (w *Watch) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.history = w.history[:0]
}

func (w *Watch) values() []float64 {
	values := make([]float64, len(w.history))
	for i, c := range w.history {
		values[i] = c.Value
	}
	return values
}

func (w *Watch) aggregate() float64 {
	if w.config.Aggregation == AggregateLast {
		return w.history[len(w.history)-1].Value
	}
	stats := statistics.New(w.values()...)
	switch w.config.Aggregation {
	case AggregateMean:
		return stats.Mean()
	case AggregateMedian:
		return stats.Median()
	case AggregateMax:
		return stats.Max()
	case AggregateMin:
		return stats.Min()
	}
	return w.history[len(w.history)-1].Value
}
