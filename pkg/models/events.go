package models

import "time"

type EventType string

const (
	EventTypeThresholdBreached EventType = "threshold_breached"
	EventTypeThresholdCleared  EventType = "threshold_cleared"
	EventTypePolicyAction      EventType = "policy_action"
	EventTypeInstanceAdded     EventType = "instance_added"
	EventTypeInstanceRemoved   EventType = "instance_removed"
	EventTypeElementChanged    EventType = "element_changed"
	EventTypeOpStringDeployed  EventType = "opstring_deployed"
	EventTypeOpStringRemoved   EventType = "opstring_removed"
	EventTypeHandlerDetached   EventType = "handler_detached"
	EventTypeAlert             EventType = "alert"
	EventTypeError             EventType = "error"
)

type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityCritical EventSeverity = "critical"
)

// Event represents an internal system event
type Event struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	Severity  EventSeverity `json:"severity"`
	Service   string        `json:"service,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Message   string        `json:"message"`
	Data      interface{}   `json:"data,omitempty"`
	TraceID   string        `json:"trace_id,omitempty"`
}

// NewEvent creates an info event. service is the element key
// ("opstring/name") or empty for system-wide events.
func NewEvent(eventType EventType, service, message string) *Event {
	return &Event{
		ID:        NewUUID(),
		Type:      eventType,
		Severity:  SeverityInfo,
		Service:   service,
		Timestamp: time.Now(),
		Message:   message,
	}
}

func (e *Event) WithSeverity(severity EventSeverity) *Event {
	e.Severity = severity
	return e
}

func (e *Event) WithData(data interface{}) *Event {
	e.Data = data
	return e
}

func (e *Event) WithTraceID(traceID string) *Event {
	e.TraceID = traceID
	return e
}
