package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/OldStager01/elastic-orchestrator/pkg/models"
)

// ServiceGauge is the scrape-time view of one service element.
type ServiceGauge struct {
	Service   string
	Planned   int
	Instances int
	Pending   int
	Handlers  int
}

// GaugeSource is asked for current service gauges on every scrape.
type GaugeSource interface {
	ServiceGauges() []ServiceGauge
}

type Metrics struct {
	mu sync.RWMutex

	// Counters
	thresholdTotal map[string]map[string]int64 // service -> BREACHED/CLEARED -> count
	policyTotal    map[string]map[string]int64 // service -> action -> count
	instanceTotal  map[string]map[string]int64 // service -> added/removed -> count
	errorsTotal    map[string]int64

	// Gauges
	circuitBreakerState map[string]int // 0=closed, 1=open, 2=half-open
	gauges              GaugeSource
}

var (
	instance *Metrics
	once     sync.Once
)

func Get() *Metrics {
	once.Do(func() {
		instance = New()
	})
	return instance
}

func New() *Metrics {
	return &Metrics{
		thresholdTotal:      make(map[string]map[string]int64),
		policyTotal:         make(map[string]map[string]int64),
		instanceTotal:       make(map[string]map[string]int64),
		errorsTotal:         make(map[string]int64),
		circuitBreakerState: make(map[string]int),
	}
}

func (m *Metrics) SetGaugeSource(src GaugeSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges = src
}

func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.circuitBreakerState[name] = state
}

func inc(counters map[string]map[string]int64, service, label string) {
	if counters[service] == nil {
		counters[service] = make(map[string]int64)
	}
	counters[service][label]++
}

// Observe updates the counters an event contributes to.
func (m *Metrics) Observe(event *models.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch event.Type {
	case models.EventTypeThresholdBreached:
		inc(m.thresholdTotal, event.Service, string(models.ThresholdBreached))
	case models.EventTypeThresholdCleared:
		inc(m.thresholdTotal, event.Service, string(models.ThresholdCleared))
	case models.EventTypePolicyAction:
		if pe, ok := event.Data.(models.SLAPolicyEvent); ok {
			inc(m.policyTotal, event.Service, string(pe.Action))
		}
	case models.EventTypeInstanceAdded:
		inc(m.instanceTotal, event.Service, "added")
	case models.EventTypeInstanceRemoved:
		inc(m.instanceTotal, event.Service, "removed")
	case models.EventTypeError:
		m.errorsTotal[event.Service]++
	}
}

// Consume observes events until ch is closed.
func (m *Metrics) Consume(ch <-chan *models.Event) {
	for event := range ch {
		m.Observe(event)
	}
}

func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		m.WriteTo(w)
	})
}

// WriteTo renders all series in the Prometheus text format.
func (m *Metrics) WriteTo(w io.Writer) {
	m.mu.RLock()
	writeNested(w, "orchestrator_threshold_notifications_total", "type", m.thresholdTotal)
	writeNested(w, "orchestrator_policy_actions_total", "action", m.policyTotal)
	writeNested(w, "orchestrator_instance_events_total", "event", m.instanceTotal)
	for _, service := range sortedKeys(m.errorsTotal) {
		writeMetric(w, "orchestrator_errors_total", map[string]string{"service": service}, float64(m.errorsTotal[service]))
	}
	for _, name := range sortedKeys(m.circuitBreakerState) {
		writeMetric(w, "orchestrator_circuit_breaker_state", map[string]string{"name": name}, float64(m.circuitBreakerState[name]))
	}
	src := m.gauges
	m.mu.RUnlock()

	if src == nil {
		return
	}
	gauges := src.ServiceGauges()
	sort.Slice(gauges, func(i, j int) bool { return gauges[i].Service < gauges[j].Service })
	for _, g := range gauges {
		labels := map[string]string{"service": g.Service}
		writeMetric(w, "orchestrator_service_planned", labels, float64(g.Planned))
		writeMetric(w, "orchestrator_service_instances", labels, float64(g.Instances))
		writeMetric(w, "orchestrator_service_pending", labels, float64(g.Pending))
		writeMetric(w, "orchestrator_policy_handlers", labels, float64(g.Handlers))
	}
}

func writeNested(w io.Writer, name, label string, counters map[string]map[string]int64) {
	for _, service := range sortedKeys(counters) {
		for _, value := range sortedKeys(counters[service]) {
			writeMetric(w, name, map[string]string{"service": service, label: value}, float64(counters[service][value]))
		}
	}
}

func writeMetric(w io.Writer, name string, labels map[string]string, value float64) {
	var b strings.Builder
	b.WriteString(name)
	if len(labels) > 0 {
		b.WriteString("{")
		for i, k := range sortedKeys(labels) {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "%s=%q", k, labels[k])
		}
		b.WriteString("}")
	}
	b.WriteString(" ")
	b.WriteString(strconv.FormatFloat(value, 'f', -1, 64))
	b.WriteString("\n")
	io.WriteString(w, b.String())
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func StartServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Get().Handler())

	srv := &http.Server{Addr: ":" + strconv.Itoa(port), Handler: mux}
	logger.Infof("Prometheus metrics server listening on %s", srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Prometheus server error: %v", err)
		}
	}()
	return srv
}
