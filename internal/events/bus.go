package events

import (
	"sync"

	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/OldStager01/elastic-orchestrator/pkg/models"
)

// EventBus fans events out to buffered subscriber channels. A full channel
// drops the event for that subscriber only.
type EventBus struct {
	subscribers map[models.EventType][]chan *models.Event
	allChans    []chan *models.Event
	mu          sync.RWMutex
	bufferSize  int
	closed      bool
}

func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventBus{
		subscribers: make(map[models.EventType][]chan *models.Event),
		allChans:    make([]chan *models.Event, 0),
		bufferSize:  bufferSize,
	}
}

func (b *EventBus) Subscribe(eventType models.EventType) <-chan *models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *models.Event, b.bufferSize)
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	return ch
}

func (b *EventBus) SubscribeAll() <-chan *models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *models.Event, b.bufferSize)
	if b.closed {
		close(ch)
		return ch
	}

	for _, eventType := range AllEventTypes() {
		b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	}

	b.allChans = append(b.allChans, ch)
	return ch
}

// Unsubscribe detaches and closes a channel returned by Subscribe or
// SubscribeAll.
func (b *EventBus) Unsubscribe(sub <-chan *models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	var found chan *models.Event
	for eventType, subscribers := range b.subscribers {
		kept := subscribers[:0]
		for _, ch := range subscribers {
			if (<-chan *models.Event)(ch) == sub {
				found = ch
				continue
			}
			kept = append(kept, ch)
		}
		b.subscribers[eventType] = kept
	}
	for i, ch := range b.allChans {
		if (<-chan *models.Event)(ch) == sub {
			b.allChans = append(b.allChans[:i], b.allChans[i+1:]...)
			break
		}
	}
	if found != nil {
		close(found)
	}
}

func (b *EventBus) Publish(event *models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
			logger.Warnf("Event channel full, dropping event: %s", event.Type)
		}
	}
}

func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	closedChans := make(map[chan *models.Event]bool)
	for _, ch := range b.allChans {
		close(ch)
		closedChans[ch] = true
	}

	for _, subscribers := range b.subscribers {
		for _, ch := range subscribers {
			if !closedChans[ch] {
				close(ch)
				closedChans[ch] = true
			}
		}
	}

	b.subscribers = make(map[models.EventType][]chan *models.Event)
	b.allChans = nil
}

func AllEventTypes() []models.EventType {
	return []models.EventType{
		models.EventTypeThresholdBreached,
		models.EventTypeThresholdCleared,
		models.EventTypePolicyAction,
		models.EventTypeInstanceAdded,
		models.EventTypeInstanceRemoved,
		models.EventTypeElementChanged,
		models.EventTypeOpStringDeployed,
		models.EventTypeOpStringRemoved,
		models.EventTypeHandlerDetached,
		models.EventTypeAlert,
		models.EventTypeError,
	}
}
