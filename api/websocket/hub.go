package websocket

import (
	"sync"

	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/OldStager01/elastic-orchestrator/pkg/config"
)

const defaultBroadcastBuffer = 256

type outbound struct {
	service string
	data    []byte
}

// Hub fans messages out to connected clients. A client with no service
// subscription receives everything.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	settings   *WebSocketSettings
}

func NewHub(cfg *config.WebSocketConfig) *Hub {
	settings := NewWebSocketSettings(cfg)

	broadcastBuffer := defaultBroadcastBuffer
	if cfg != nil && cfg.BroadcastBuffer > 0 {
		broadcastBuffer = cfg.BroadcastBuffer
	}

	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		settings:   settings,
	}
}

func (h *Hub) Settings() *WebSocketSettings {
	return h.settings
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Infof("WebSocket client connected (total: %d)", h.ClientCount())

		case client := <-h.unregister:
			h.remove(client)
			logger.Infof("WebSocket client disconnected (total: %d)", h.ClientCount())

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg outbound) {
	var slow []*Client
	h.mu.RLock()
	for client := range h.clients {
		if !client.wants(msg.service) {
			continue
		}
		select {
		case client.send <- msg.data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		logger.Warn("WebSocket client too slow, disconnecting")
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// Stop disconnects every client and ends Run.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Done is closed once the hub has been stopped.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) Broadcast(message []byte) {
	h.BroadcastToService("", message)
}

// BroadcastToService queues a message for clients subscribed to service
// and for unsubscribed clients. An empty service reaches everyone.
func (h *Hub) BroadcastToService(service string, message []byte) {
	select {
	case h.broadcast <- outbound{service: service, data: message}:
	default:
		logger.Warn("Broadcast channel full, dropping message")
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Full() bool {
	return h.ClientCount() >= h.settings.MaxConnections
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
