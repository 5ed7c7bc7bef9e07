package websocket

import (
	"net/http"
	"time"

	"github.com/OldStager01/elastic-orchestrator/pkg/config"
	"github.com/gorilla/websocket"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 512
	defaultClientBuffer   = 256
	defaultMaxConnections = 1000
)

type WebSocketSettings struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	ClientBuffer   int
	MaxConnections int
	Upgrader       websocket.Upgrader
}

func NewWebSocketSettings(cfg *config.WebSocketConfig) *WebSocketSettings {
	s := &WebSocketSettings{
		WriteWait:      defaultWriteWait,
		PongWait:       defaultPongWait,
		MaxMessageSize: defaultMaxMessageSize,
		ClientBuffer:   defaultClientBuffer,
		MaxConnections: defaultMaxConnections,
	}
	if cfg != nil {
		if cfg.WriteTimeout > 0 {
			s.WriteWait = cfg.WriteTimeout
		}
		if cfg.PongTimeout > 0 {
			s.PongWait = cfg.PongTimeout
		}
		if cfg.MaxMessageSize > 0 {
			s.MaxMessageSize = cfg.MaxMessageSize
		}
		if cfg.ClientBuffer > 0 {
			s.ClientBuffer = cfg.ClientBuffer
		}
		if cfg.MaxConnections > 0 {
			s.MaxConnections = cfg.MaxConnections
		}
	}

	s.PingPeriod = (s.PongWait * 9) / 10
	if cfg != nil && cfg.PingInterval > 0 && cfg.PingInterval < s.PongWait {
		s.PingPeriod = cfg.PingInterval
	}

	s.Upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	return s
}
