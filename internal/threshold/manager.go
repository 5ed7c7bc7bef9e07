package threshold

import (
	"sync"

	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/OldStager01/elastic-orchestrator/pkg/models"
)

// Listener receives breach and clear notifications.
type Listener interface {
	Notify(calc models.Calculable, tv models.ThresholdValues, t models.ThresholdType)
}

type ListenerFunc func(calc models.Calculable, tv models.ThresholdValues, t models.ThresholdType)

func (f ListenerFunc) Notify(calc models.Calculable, tv models.ThresholdValues, t models.ThresholdType) {
	f(calc, tv, t)
}

type Direction int

const (
	DirectionNone Direction = iota
	DirectionHigh
	DirectionLow
)

func (d Direction) String() string {
	switch d {
	case DirectionHigh:
		return "high"
	case DirectionLow:
		return "low"
	default:
		return "none"
	}
}

// Manager compares samples against the current bounds. Every sample outside
// the bounds produces BREACHED; the first sample back inside produces CLEARED.
type Manager struct {
	id        string
	values    models.ThresholdValues
	direction Direction
	listeners []registration
	nextID    int
	mu        sync.Mutex
}

type registration struct {
	id       int
	listener Listener
}

func NewManager(id string, tv models.ThresholdValues) *Manager {
	tv.Reset()
	return &Manager{
		id:     id,
		values: tv,
	}
}

func (m *Manager) ID() string {
	return m.id
}

// AddListener registers l and returns a function that removes it.
func (m *Manager) AddListener(l Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, registration{id: id, listener: l})
	return func() { m.removeListener(id) }
}

func (m *Manager) removeListener(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.listeners {
		if r.id == id {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return
		}
	}
}

func (m *Manager) ThresholdValues() models.ThresholdValues {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values
}

// SetThresholdValues replaces the configured bounds. Counters are kept.
func (m *Manager) SetThresholdValues(tv models.ThresholdValues) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values.SetThresholds(tv.LowThreshold, tv.HighThreshold)
	m.values.Step = tv.Step
	m.direction = DirectionNone
}

func (m *Manager) Breached() Direction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.direction
}

// Check evaluates a sample and notifies listeners when it breaches or
// clears. Listeners see the bounds the sample was compared against.
func (m *Manager) Check(calc models.Calculable) (models.ThresholdType, bool) {
	m.mu.Lock()

	var (
		notifyType models.ThresholdType
		snapshot   models.ThresholdValues
		notify     bool
	)

	switch {
	case m.values.AboveHigh(calc.Value):
		m.values.BreachedCount++
		snapshot = m.values
		m.direction = DirectionHigh
		if m.values.Step > 0 {
			m.values.CurrentHighThreshold += m.values.Step
		}
		notifyType, notify = models.ThresholdBreached, true
	case m.values.BelowLow(calc.Value):
		m.values.BreachedCount++
		snapshot = m.values
		m.direction = DirectionLow
		if m.values.Step > 0 {
			m.values.CurrentLowThreshold -= m.values.Step
		}
		notifyType, notify = models.ThresholdBreached, true
	case m.direction != DirectionNone:
		m.values.ClearedCount++
		m.values.Reset()
		snapshot = m.values
		m.direction = DirectionNone
		notifyType, notify = models.ThresholdCleared, true
	}

	listeners := make([]Listener, len(m.listeners))
	for i, r := range m.listeners {
		listeners[i] = r.listener
	}
	m.mu.Unlock()

	if !notify {
		return "", false
	}

	logger.WithFields(map[string]interface{}{
		"watch": m.id,
		"value": calc.Value,
		"type":  notifyType,
	}).Debugf("Threshold %s: %s", notifyType, snapshot)

	for _, l := range listeners {
		l.Notify(calc, snapshot, notifyType)
	}
	return notifyType, true
}
