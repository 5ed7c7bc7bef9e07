package provision

import (
	"context"
	"errors"

	"github.com/OldStager01/elastic-orchestrator/pkg/models"
)

var (
	ErrManagerDecommissioned = errors.New("operational string manager decommissioned")
	ErrUnsupported           = errors.New("operation not supported")
	ErrUnknownElement        = errors.New("unknown service element")
	ErrUnknownInstance       = errors.New("unknown service instance")
	ErrOpStringExists        = errors.New("operational string already deployed")
	ErrUnknownOpString       = errors.New("unknown operational string")
	ErrDuplicateRequest      = errors.New("provision request already recorded")
	ErrLaunchFailed          = errors.New("process launch failed")
)

// ProvisionListener is told the outcome of an increment request. Failed with
// resubmitted set means the same request will be retried.
type ProvisionListener interface {
	Succeeded(instance models.ServiceBeanInstance)
	Failed(elem models.ServiceElement, resubmitted bool)
}

// OperationalStringManager is the authority on the instances of deployed
// service elements.
type OperationalStringManager interface {
	GetServiceBeanInstances(ctx context.Context, elem models.ServiceElement) ([]models.ServiceBeanInstance, error)

	// GetPendingCount may return ErrUnsupported, callers treat that as 0.
	GetPendingCount(ctx context.Context, elem models.ServiceElement) (int, error)

	// Increment queues a provision request and returns once it is queued.
	Increment(ctx context.Context, elem models.ServiceElement, listener ProvisionListener) error

	Decrement(ctx context.Context, instance models.ServiceBeanInstance, destroy bool) error

	// Trim cancels up to count pending requests and returns how many were
	// cancelled.
	Trim(ctx context.Context, elem models.ServiceElement, count int) (int, error)
}

type ElementChangeListener interface {
	ServiceElementChanged(prior, current models.ServiceElement)
}

// ServiceBeanManager is the per-instance view of the manager.
type ServiceBeanManager interface {
	ServiceBeanID() string
	Instance() models.ServiceBeanInstance
	AddElementChangeListener(l ElementChangeListener) (remove func())
}

type nopListener struct{}

func (nopListener) Succeeded(models.ServiceBeanInstance) {}
func (nopListener) Failed(models.ServiceElement, bool) {}
