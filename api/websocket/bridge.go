package websocket

import (
	"context"
	"sync"

	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/OldStager01/elastic-orchestrator/pkg/models"
)

// EventBridge forwards bus events to WebSocket clients.
type EventBridge struct {
	hub        *Hub
	eventsChan <-chan *models.Event
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewEventBridge(hub *Hub, eventsChan <-chan *models.Event) *EventBridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventBridge{
		hub:        hub,
		eventsChan: eventsChan,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (b *EventBridge) Start() {
	b.wg.Add(1)
	go b.run()
	logger.Info("WebSocket event bridge started")
}

func (b *EventBridge) Stop() {
	b.cancel()
	b.wg.Wait()
	logger.Info("WebSocket event bridge stopped")
}

func (b *EventBridge) run() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case event, ok := <-b.eventsChan:
			if !ok {
				logger.Info("Event channel closed, stopping bridge")
				return
			}
			b.forwardEvent(event)
		}
	}
}

func (b *EventBridge) forwardEvent(event *models.Event) {
	msg := MessageFromEvent(event)
	if msg == nil {
		return
	}
	b.hub.BroadcastToService(event.Service, msg.JSON())
}
