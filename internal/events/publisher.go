package events

import (
	"fmt"

	"github.com/OldStager01/elastic-orchestrator/pkg/models"
)

// Publisher turns domain notifications into bus events. It is the sink
// registered on every policy handler.
type Publisher struct {
	bus     *EventBus
	traceID string
}

func NewPublisher(bus *EventBus) *Publisher {
	return &Publisher{bus: bus}
}

func (p *Publisher) WithTraceID(traceID string) *Publisher {
	return &Publisher{
		bus:     p.bus,
		traceID: traceID,
	}
}

func (p *Publisher) publish(event *models.Event) {
	if p.traceID != "" {
		event.TraceID = p.traceID
	}
	p.bus.Publish(event)
}

func (p *Publisher) ThresholdNotified(te models.ThresholdEvent) {
	eventType := models.EventTypeThresholdBreached
	if te.Type == models.ThresholdCleared {
		eventType = models.EventTypeThresholdCleared
	}
	msg := fmt.Sprintf("SLA %s %s at %.2f", te.SLAID, te.Type, te.Calculable.Value)
	event := models.NewEvent(eventType, models.ElementKey(te.OpString, te.Element), msg).
		WithData(te)
	if te.Type == models.ThresholdBreached {
		event.WithSeverity(models.SeverityWarning)
	}
	p.publish(event)
}

func (p *Publisher) PolicyAction(pe models.SLAPolicyEvent) {
	msg := "Policy action: " + string(pe.Action)
	if pe.Reason != "" {
		msg += " (" + pe.Reason + ")"
	}
	event := models.NewEvent(models.EventTypePolicyAction, models.ElementKey(pe.OpString, pe.Element), msg).
		WithData(pe)

	switch pe.Action {
	case models.ActionIncrementFailure, models.ActionDecrementFailed:
		event.WithSeverity(models.SeverityWarning)
	}
	p.publish(event)
}

func (p *Publisher) InstanceAdded(instance models.ServiceBeanInstance) {
	event := models.NewEvent(models.EventTypeInstanceAdded, instance.ElementKey(),
		fmt.Sprintf("Instance %d added", instance.InstanceID)).
		WithData(instance)
	p.publish(event)
}

func (p *Publisher) InstanceRemoved(instance models.ServiceBeanInstance) {
	event := models.NewEvent(models.EventTypeInstanceRemoved, instance.ElementKey(),
		fmt.Sprintf("Instance %d removed", instance.InstanceID)).
		WithData(instance)
	p.publish(event)
}

func (p *Publisher) ElementChanged(prior, current models.ServiceElement) {
	msg := fmt.Sprintf("Service element changed: planned %d -> %d", prior.Planned, current.Planned)
	event := models.NewEvent(models.EventTypeElementChanged, current.Key(), msg).
		WithData(map[string]interface{}{
			"prior":   prior,
			"current": current,
		})
	p.publish(event)
}

func (p *Publisher) OpStringDeployed(ops *models.OperationalString) {
	event := models.NewEvent(models.EventTypeOpStringDeployed, "", "Operational string deployed: "+ops.Name).
		WithData(ops)
	p.publish(event)
}

func (p *Publisher) OpStringRemoved(name string) {
	event := models.NewEvent(models.EventTypeOpStringRemoved, "", "Operational string undeployed: "+name).
		WithData(map[string]string{"name": name})
	p.publish(event)
}

func (p *Publisher) HandlerDetached(service, handlerID, reason string) {
	event := models.NewEvent(models.EventTypeHandlerDetached, service, "Policy handler detached: "+reason).
		WithData(map[string]string{
			"handler": handlerID,
			"reason":  reason,
		})
	p.publish(event)
}

func (p *Publisher) Alert(service string, severity models.EventSeverity, message string, data interface{}) {
	event := models.NewEvent(models.EventTypeAlert, service, message).
		WithSeverity(severity).
		WithData(data)
	p.publish(event)
}

func (p *Publisher) Error(service string, message string, err error) {
	event := models.NewEvent(models.EventTypeError, service, message).
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{
			"error": err.Error(),
		})
	p.publish(event)
}
