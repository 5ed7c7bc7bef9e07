package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	service string
	mu      sync.RWMutex
}

type IncomingMessage struct {
	Type    string `json:"type"`
	Service string `json:"service,omitempty"`
}

func NewClient(hub *Hub, conn *websocket.Conn, service string) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, hub.settings.ClientBuffer),
		service: service,
	}
}

func (c *Client) Service() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.service
}

func (c *Client) wants(service string) bool {
	sub := c.Service()
	return sub == "" || service == "" || sub == service
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	settings := c.hub.settings
	c.conn.SetReadLimit(settings.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(settings.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(settings.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Errorf("WebSocket error: %v", err)
			}
			break
		}

		var msg IncomingMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			c.handleMessage(&msg)
		}
	}
}

func (c *Client) WritePump() {
	settings := c.hub.settings
	ticker := time.NewTicker(settings.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(settings.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(settings.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *IncomingMessage) {
	switch msg.Type {
	case "subscribe":
		if msg.Service != "" {
			c.mu.Lock()
			c.service = msg.Service
			c.mu.Unlock()
			logger.Infof("Client subscribed to service: %s", msg.Service)
			c.sendConfirmation("subscribed", msg.Service)
		}
	case "unsubscribe":
		c.mu.Lock()
		old := c.service
		c.service = ""
		c.mu.Unlock()
		logger.Info("Client unsubscribed from service")
		c.sendConfirmation("unsubscribed", old)
	}
}

func (c *Client) sendConfirmation(action, service string) {
	data := NewMessage(MessageTypeSubscription, service, gin.H{"action": action}).JSON()
	select {
	case c.send <- data:
	default:
		logger.Warn("Client send channel full, dropping confirmation")
	}
}

// ServeWebSocket upgrades the request. The optional "service" query
// parameter ("opstring/element") narrows the stream to one element.
func ServeWebSocket(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		if hub.Full() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many websocket connections"})
			return
		}

		conn, err := hub.settings.Upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Errorf("WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(hub, conn, c.Query("service"))
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()
	}
}
