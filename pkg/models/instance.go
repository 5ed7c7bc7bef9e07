package models

import "time"

// ServiceBeanInstance identifies one live instance of a service element.
type ServiceBeanInstance struct {
	ServiceBeanID         string    `json:"service_bean_id"`
	InstanceID            int64     `json:"instance_id"`
	ElementName           string    `json:"element"`
	OperationalStringName string    `json:"opstring"`
	HostAddress           string    `json:"host_address,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

func NewServiceBeanInstance(elem ServiceElement, instanceID int64, host string) ServiceBeanInstance {
	return ServiceBeanInstance{
		ServiceBeanID:         NewUUID(),
		InstanceID:            instanceID,
		ElementName:           elem.Name,
		OperationalStringName: elem.OperationalStringName,
		HostAddress:           host,
		CreatedAt:             time.Now(),
	}
}

func (i ServiceBeanInstance) ElementKey() string {
	return ElementKey(i.OperationalStringName, i.ElementName)
}
