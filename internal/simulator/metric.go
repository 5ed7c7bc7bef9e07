package simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

type MetricConfig struct {
	Base     float64
	Variance float64
	Min      float64
	Max      float64
}

// MetricSim produces values for one metric name: a base shaped by a
// pattern, an optional spike and uniform noise, clamped to [Min, Max].
type MetricSim struct {
	name     string
	base     float64
	variance float64
	min      float64
	max      float64
	pattern  Pattern
	spike    *Spike
	rng      *rand.Rand
	reads    int64
	now      func() time.Time
	mu       sync.Mutex
}

type Spike struct {
	Target    float64
	StartTime time.Time
	Duration  time.Duration
	RampUp    time.Duration
	Original  float64
}

type MetricStatus struct {
	Name     string  `json:"name"`
	Base     float64 `json:"base"`
	Variance float64 `json:"variance"`
	Pattern  string  `json:"pattern"`
	Spiking  bool    `json:"spiking"`
	Reads    int64   `json:"reads"`
}

func NewMetricSim(name string, cfg MetricConfig, seed int64) *MetricSim {
	if cfg.Max <= cfg.Min {
		cfg.Min, cfg.Max = 0, 100
	}
	return &MetricSim{
		name:     name,
		base:     cfg.Base,
		variance: cfg.Variance,
		min:      cfg.Min,
		max:      cfg.Max,
		pattern:  PatternSteady,
		rng:      rand.New(rand.NewSource(seed)),
		now:      time.Now,
	}
}

func (m *MetricSim) Read() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads++
	value := m.current(m.now())
	if m.variance > 0 {
		value += (m.rng.Float64()*2 - 1) * m.variance
	}
	value = math.Max(m.min, math.Min(m.max, value))
	return math.Round(value*100) / 100
}

func (m *MetricSim) current(now time.Time) float64 {
	value := m.pattern.Apply(m.base, now)

	if m.spike != nil {
		elapsed := now.Sub(m.spike.StartTime)
		switch {
		case elapsed > m.spike.Duration:
			m.spike = nil
		case elapsed < m.spike.RampUp:
			progress := float64(elapsed) / float64(m.spike.RampUp)
			value = m.spike.Original + (m.spike.Target-m.spike.Original)*progress
		default:
			value = m.spike.Target
		}
	}
	return value
}

func (m *MetricSim) SetBase(base float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.base = base
}

func (m *MetricSim) SetVariance(variance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.variance = variance
}

func (m *MetricSim) SetPattern(pattern Pattern) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pattern = pattern
}

func (m *MetricSim) InjectSpike(target float64, duration, rampUp time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spike = &Spike{
		Target:    target,
		StartTime: m.now(),
		Duration:  duration,
		RampUp:    rampUp,
		Original:  m.base,
	}
}

func (m *MetricSim) Status() MetricStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricStatus{
		Name:     m.name,
		Base:     m.base,
		Variance: m.variance,
		Pattern:  m.pattern.Name(),
		Spiking:  m.spike != nil,
		Reads:    m.reads,
	}
}
