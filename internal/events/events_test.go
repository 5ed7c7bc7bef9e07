package events_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/elastic-orchestrator/internal/events"
	"github.com/OldStager01/elastic-orchestrator/pkg/models"
)

func receive(t *testing.T, ch <-chan *models.Event) *models.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func TestEventBus_SubscribeByType(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()

	policy := bus.Subscribe(models.EventTypePolicyAction)
	all := bus.SubscribeAll()

	bus.Publish(models.NewEvent(models.EventTypeInstanceAdded, "shop/api", "added"))
	bus.Publish(models.NewEvent(models.EventTypePolicyAction, "shop/api", "action"))

	assert.Equal(t, models.EventTypeInstanceAdded, receive(t, all).Type)
	assert.Equal(t, models.EventTypePolicyAction, receive(t, all).Type)
	assert.Equal(t, models.EventTypePolicyAction, receive(t, policy).Type)
	assert.Len(t, policy, 0)
}

func TestEventBus_FullChannelDrops(t *testing.T) {
	bus := events.NewEventBus(1)
	defer bus.Close()

	ch := bus.Subscribe(models.EventTypeAlert)
	bus.Publish(models.NewEvent(models.EventTypeAlert, "", "first"))
	bus.Publish(models.NewEvent(models.EventTypeAlert, "", "second"))

	assert.Equal(t, "first", receive(t, ch).Message)
	assert.Len(t, ch, 0)
}

func TestEventBus_UnsubscribeAndClose(t *testing.T) {
	bus := events.NewEventBus(10)

	ch := bus.SubscribeAll()
	bus.Unsubscribe(ch)
	_, ok := <-ch
	assert.False(t, ok)

	kept := bus.Subscribe(models.EventTypeError)
	bus.Close()
	bus.Close()
	_, ok = <-kept
	assert.False(t, ok)

	bus.Publish(models.NewEvent(models.EventTypeError, "", "after close"))

	late := bus.SubscribeAll()
	_, ok = <-late
	assert.False(t, ok)
}

func TestPublisher(t *testing.T) {
	elem := models.ServiceElement{Name: "api", OperationalStringName: "shop", Planned: 2}
	instance := models.NewServiceBeanInstance(elem, 3, "10.0.0.3")

	tests := []struct {
		name     string
		publish  func(p *events.Publisher)
		expected models.EventType
		severity models.EventSeverity
		service  string
	}{
		{
			name: "breach",
			publish: func(p *events.Publisher) {
				p.ThresholdNotified(models.ThresholdEvent{
					SLAID: "load", OpString: "shop", Element: "api",
					Type: models.ThresholdBreached, Calculable: models.NewCalculable("load", 91),
				})
			},
			expected: models.EventTypeThresholdBreached,
			severity: models.SeverityWarning,
			service:  "shop/api",
		},
		{
			name: "cleared",
			publish: func(p *events.Publisher) {
				p.ThresholdNotified(models.ThresholdEvent{
					SLAID: "load", OpString: "shop", Element: "api", Type: models.ThresholdCleared,
				})
			},
			expected: models.EventTypeThresholdCleared,
			severity: models.SeverityInfo,
			service:  "shop/api",
		},
		{
			name: "increment failure",
			publish: func(p *events.Publisher) {
				p.PolicyAction(models.SLAPolicyEvent{
					Action: models.ActionIncrementFailure, OpString: "shop", Element: "api",
				})
			},
			expected: models.EventTypePolicyAction,
			severity: models.SeverityWarning,
			service:  "shop/api",
		},
		{
			name:     "instance added",
			publish:  func(p *events.Publisher) { p.InstanceAdded(instance) },
			expected: models.EventTypeInstanceAdded,
			severity: models.SeverityInfo,
			service:  "shop/api",
		},
		{
			name:     "instance removed",
			publish:  func(p *events.Publisher) { p.InstanceRemoved(instance) },
			expected: models.EventTypeInstanceRemoved,
			severity: models.SeverityInfo,
			service:  "shop/api",
		},
		{
			name: "element changed",
			publish: func(p *events.Publisher) {
				next := elem
				next.Planned = 3
				p.ElementChanged(elem, next)
			},
			expected: models.EventTypeElementChanged,
			severity: models.SeverityInfo,
			service:  "shop/api",
		},
		{
			name:     "error",
			publish:  func(p *events.Publisher) { p.Error("shop/api", "boom", errors.New("boom")) },
			expected: models.EventTypeError,
			severity: models.SeverityCritical,
			service:  "shop/api",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := events.NewEventBus(10)
			defer bus.Close()
			ch := bus.SubscribeAll()

			tt.publish(events.NewPublisher(bus).WithTraceID("trace-1"))

			e := receive(t, ch)
			assert.Equal(t, tt.expected, e.Type)
			assert.Equal(t, tt.severity, e.Severity)
			assert.Equal(t, tt.service, e.Service)
			assert.Equal(t, "trace-1", e.TraceID)
			assert.NotEmpty(t, e.ID)
		})
	}
}

type memoryStore struct {
	mu     sync.Mutex
	events []*models.Event
	policy []*models.SLAPolicyEvent
	err    error
}

func (s *memoryStore) InsertEvent(_ context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *memoryStore) InsertPolicyEvent(_ context.Context, event *models.SLAPolicyEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = append(s.policy, event)
	return s.err
}

func (s *memoryStore) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events), len(s.policy)
}

func TestEventLogger_PersistsAndKeepsHistory(t *testing.T) {
	bus := events.NewEventBus(10)
	store := &memoryStore{}
	l := events.NewEventLogger(store, bus.SubscribeAll(), events.LoggerConfig{History: 2})
	l.Start()

	pub := events.NewPublisher(bus)
	pub.PolicyAction(models.SLAPolicyEvent{Action: models.ActionIncrementPending, OpString: "shop", Element: "api"})
	pub.OpStringRemoved("old")
	pub.Alert("shop/db", models.SeverityWarning, "slow", nil)

	require.Eventually(t, func() bool {
		n, _ := store.counts()
		return n == 3
	}, time.Second, 5*time.Millisecond)
	l.Stop()
	bus.Close()

	_, policy := store.counts()
	assert.Equal(t, 1, policy)

	recent := l.Recent(0, "")
	require.Len(t, recent, 2)
	assert.Equal(t, models.EventTypeAlert, recent[0].Type)
	assert.Equal(t, models.EventTypeOpStringRemoved, recent[1].Type)

	assert.Len(t, l.Recent(10, "shop/db"), 1)
	assert.Empty(t, l.Recent(10, "shop/api"))
}

func TestEventLogger_StoreErrorsAreLogged(t *testing.T) {
	bus := events.NewEventBus(10)
	store := &memoryStore{err: errors.New("db down")}
	l := events.NewEventLogger(store, bus.SubscribeAll(), events.LoggerConfig{})
	l.Start()

	events.NewPublisher(bus).OpStringDeployed(&models.OperationalString{Name: "shop"})

	require.Eventually(t, func() bool { return len(l.Recent(0, "")) == 1 }, time.Second, 5*time.Millisecond)
	bus.Close()
	l.Stop()
}

func TestEventLogger_WithoutStore(t *testing.T) {
	bus := events.NewEventBus(10)
	l := events.NewEventLogger(nil, bus.SubscribeAll(), events.LoggerConfig{})
	l.Start()

	events.NewPublisher(bus).HandlerDetached("shop/api", "h1", "instance removed")

	require.Eventually(t, func() bool { return len(l.Recent(5, "shop/api")) == 1 }, time.Second, 5*time.Millisecond)
	l.Stop()
	bus.Close()
}
