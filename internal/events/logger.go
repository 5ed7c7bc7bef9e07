package events

import (
	"context"
	"sync"
	"time"

	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/OldStager01/elastic-orchestrator/pkg/models"
)

// Store persists events. queries.EventRepository implements it against
// Postgres.
type Store interface {
	InsertEvent(ctx context.Context, event *models.Event) error
	InsertPolicyEvent(ctx context.Context, event *models.SLAPolicyEvent) error
}

type LoggerConfig struct {
	// History is how many recent events are kept in memory.
	History      int
	WriteTimeout time.Duration
}

// EventLogger drains a subscription: every event is logged, kept in a
// bounded in-memory history and, when a store is set, persisted.
type EventLogger struct {
	store     Store
	config    LoggerConfig
	eventChan <-chan *models.Event
	recent    []*models.Event
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	mu        sync.RWMutex
}

func NewEventLogger(store Store, eventChan <-chan *models.Event, cfg LoggerConfig) *EventLogger {
	if cfg.History <= 0 {
		cfg.History = 500
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EventLogger{
		store:     store,
		config:    cfg,
		eventChan: eventChan,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (l *EventLogger) Start() {
	go l.run()
}

// Stop ends the drain loop and waits for it.
func (l *EventLogger) Stop() {
	l.cancel()
	<-l.done
}

func (l *EventLogger) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case event, ok := <-l.eventChan:
			if !ok {
				return
			}
			l.processEvent(event)
		}
	}
}

// Recent returns up to limit events, newest first, optionally restricted to
// one service key.
func (l *EventLogger) Recent(limit int, service string) []*models.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.recent) {
		limit = len(l.recent)
	}
	out := make([]*models.Event, 0, limit)
	for i := len(l.recent) - 1; i >= 0 && len(out) < limit; i-- {
		if service != "" && l.recent[i].Service != service {
			continue
		}
		out = append(out, l.recent[i])
	}
	return out
}

func (l *EventLogger) processEvent(event *models.Event) {
	entry := logger.WithFields(map[string]interface{}{
		"event_type": event.Type,
		"service":    event.Service,
		"severity":   event.Severity,
		"trace_id":   event.TraceID,
	})

	switch event.Severity {
	case models.SeverityCritical:
		entry.Error(event.Message)
	case models.SeverityWarning:
		entry.Warn(event.Message)
	default:
		entry.Info(event.Message)
	}

	l.mu.Lock()
	l.recent = append(l.recent, event)
	if len(l.recent) > l.config.History {
		l.recent = l.recent[len(l.recent)-l.config.History:]
	}
	l.mu.Unlock()

	if l.store == nil {
		return
	}
	l.persist(event)
}

func (l *EventLogger) persist(event *models.Event) {
	ctx, cancel := context.WithTimeout(l.ctx, l.config.WriteTimeout)
	defer cancel()

	if err := l.store.InsertEvent(ctx, event); err != nil {
		logger.Errorf("Failed to persist event %s: %v", event.ID, err)
	}

	if event.Type != models.EventTypePolicyAction {
		return
	}
	pe, ok := event.Data.(models.SLAPolicyEvent)
	if !ok {
		return
	}
	if err := l.store.InsertPolicyEvent(ctx, &pe); err != nil {
		logger.Errorf("Failed to persist policy event: %v", err)
	}
}
