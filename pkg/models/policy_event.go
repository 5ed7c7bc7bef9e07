package models

import "time"

type SLAPolicyAction string

const (
	ActionIncrementPending     SLAPolicyAction = "INCREMENT_PENDING"
	ActionIncrementFailure     SLAPolicyAction = "INCREMENT_FAILURE"
	ActionIncrementSucceeded   SLAPolicyAction = "INCREMENT_SUCCEEDED"
	ActionDecrementDestroySent SLAPolicyAction = "DECREMENT_DESTROY_SENT"
	ActionDecrementFailed      SLAPolicyAction = "DECREMENT_FAILED"
)

// SLAPolicyEvent reports an action taken by a scaling policy handler.
type SLAPolicyEvent struct {
	Action        SLAPolicyAction      `json:"action"`
	SLAID         string               `json:"sla_id"`
	OpString      string               `json:"opstring"`
	Element       string               `json:"element"`
	ServiceBeanID string               `json:"service_bean_id,omitempty"`
	Instance      *ServiceBeanInstance `json:"instance,omitempty"`
	Reason        string               `json:"reason,omitempty"`
	Timestamp     time.Time            `json:"timestamp"`
}

// ThresholdEvent is the forwarded form of a threshold notification received
// by a policy handler.
type ThresholdEvent struct {
	SLAID         string          `json:"sla_id"`
	OpString      string          `json:"opstring"`
	Element       string          `json:"element"`
	ServiceBeanID string          `json:"service_bean_id,omitempty"`
	Type          ThresholdType   `json:"type"`
	Calculable    Calculable      `json:"calculable"`
	Thresholds    ThresholdValues `json:"thresholds"`
	Timestamp     time.Time       `json:"timestamp"`
}
