package websocket

import (
	"encoding/json"
	"time"

	"github.com/OldStager01/elastic-orchestrator/pkg/models"
)

type MessageType string

const (
	MessageTypeThreshold    MessageType = "threshold"
	MessageTypePolicyAction MessageType = "policy_action"
	MessageTypeInstance     MessageType = "instance_update"
	MessageTypeElement      MessageType = "element_update"
	MessageTypeOpString     MessageType = "opstring_update"
	MessageTypeHandler      MessageType = "handler_update"
	MessageTypeAlert        MessageType = "alert"
	MessageTypeError        MessageType = "error"
	MessageTypeSubscription MessageType = "subscription_update"
)

type OutgoingMessage struct {
	Type      MessageType `json:"type"`
	Event     string      `json:"event,omitempty"`
	Service   string      `json:"service,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Severity  string      `json:"severity,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

func NewMessage(msgType MessageType, service string, data interface{}) *OutgoingMessage {
	return &OutgoingMessage{
		Type:      msgType,
		Service:   service,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func (m *OutgoingMessage) JSON() []byte {
	data, _ := json.Marshal(m)
	return data
}

// MessageFromEvent converts a bus event. It returns nil for event types
// that are not streamed.
func MessageFromEvent(event *models.Event) *OutgoingMessage {
	msgType := mapEventType(event.Type)
	if msgType == "" {
		return nil
	}
	return &OutgoingMessage{
		Type:      msgType,
		Event:     string(event.Type),
		Service:   event.Service,
		Timestamp: event.Timestamp,
		Severity:  string(event.Severity),
		Message:   event.Message,
		Data:      event.Data,
	}
}

func mapEventType(eventType models.EventType) MessageType {
	switch eventType {
	case models.EventTypeThresholdBreached, models.EventTypeThresholdCleared:
		return MessageTypeThreshold
	case models.EventTypePolicyAction:
		return MessageTypePolicyAction
	case models.EventTypeInstanceAdded, models.EventTypeInstanceRemoved:
		return MessageTypeInstance
	case models.EventTypeElementChanged:
		return MessageTypeElement
	case models.EventTypeOpStringDeployed, models.EventTypeOpStringRemoved:
		return MessageTypeOpString
	case models.EventTypeHandlerDetached:
		return MessageTypeHandler
	case models.EventTypeAlert:
		return MessageTypeAlert
	case models.EventTypeError:
		return MessageTypeError
	default:
		return ""
	}
}
