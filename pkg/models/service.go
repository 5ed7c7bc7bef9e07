package models

import (
	"errors"
	"fmt"

	"github.com/OldStager01/elastic-orchestrator/pkg/validation"
)

type ProvisionType string

const (
	ProvisionDynamic  ProvisionType = "dynamic"
	ProvisionFixed    ProvisionType = "fixed"
	ProvisionExternal ProvisionType = "external"
)

var ErrInvalidServiceElement = errors.New("invalid service element")

// ServiceElement describes one deployable service. It is treated as a value:
// changes are published as prior/current pairs, never applied in place.
type ServiceElement struct {
	Name                  string        `json:"name" yaml:"name"`
	OperationalStringName string        `json:"opstring" yaml:"-"`
	Planned               int           `json:"planned" yaml:"planned"`
	ProvisionType         ProvisionType `json:"provision_type" yaml:"provisionType"`
	SLAs                  []SLA         `json:"slas,omitempty" yaml:"slas,omitempty"`
	Version               int64         `json:"version" yaml:"-"`
}

func (e ServiceElement) Key() string {
	return ElementKey(e.OperationalStringName, e.Name)
}

func ElementKey(opstring, name string) string {
	return opstring + "/" + name
}

func (e ServiceElement) IsDynamic() bool {
	return e.ProvisionType == "" || e.ProvisionType == ProvisionDynamic
}

// Copy returns an element that shares no slices with e.
func (e ServiceElement) Copy() ServiceElement {
	out := e
	if e.SLAs != nil {
		out.SLAs = make([]SLA, len(e.SLAs))
		copy(out.SLAs, e.SLAs)
	}
	return out
}

func (e ServiceElement) SLA(id string) (SLA, bool) {
	for _, s := range e.SLAs {
		if s.ID == id {
			return s, true
		}
	}
	return SLA{}, false
}

func (e ServiceElement) Validate() error {
	if err := validation.ValidateName("service", e.Name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidServiceElement, err)
	}
	if e.Planned < 0 {
		return fmt.Errorf("%w: %s planned must not be negative", ErrInvalidServiceElement, e.Name)
	}
	switch e.ProvisionType {
	case "", ProvisionDynamic, ProvisionFixed, ProvisionExternal:
	default:
		return fmt.Errorf("%w: %s unknown provision type %q", ErrInvalidServiceElement, e.Name, e.ProvisionType)
	}
	seen := make(map[string]bool, len(e.SLAs))
	for _, s := range e.SLAs {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%s: %w", e.Name, err)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: %s duplicate sla %q", ErrInvalidServiceElement, e.Name, s.ID)
		}
		seen[s.ID] = true
		if s.HasMaxServices() && e.Planned > s.MaxServices {
			return fmt.Errorf("%w: %s planned %d exceeds sla %s max %d",
				ErrInvalidServiceElement, e.Name, e.Planned, s.ID, s.MaxServices)
		}
		if e.Planned < s.MinServices {
			return fmt.Errorf("%w: %s planned %d is below sla %s min %d",
				ErrInvalidServiceElement, e.Name, e.Planned, s.ID, s.MinServices)
		}
	}
	return nil
}

// OperationalString groups service elements and may nest other op strings.
type OperationalString struct {
	Name     string               `json:"name" yaml:"name"`
	Services []ServiceElement     `json:"services" yaml:"services"`
	Nested   []*OperationalString `json:"nested,omitempty" yaml:"nested,omitempty"`
}

// AllElements returns the elements of o and every nested op string, each
// stamped with the name of the op string that declares it.
func (o *OperationalString) AllElements() []ServiceElement {
	var out []ServiceElement
	for _, e := range o.Services {
		e = e.Copy()
		e.OperationalStringName = o.Name
		out = append(out, e)
	}
	for _, nested := range o.Nested {
		if nested != nil {
			out = append(out, nested.AllElements()...)
		}
	}
	return out
}

// Element finds a service by name in o or its nested op strings.
func (o *OperationalString) Element(name string) (ServiceElement, bool) {
	for _, e := range o.AllElements() {
		if e.Name == name {
			return e, true
		}
	}
	return ServiceElement{}, false
}

func (o *OperationalString) Validate() error {
	if err := validation.ValidateName("operational string", o.Name); err != nil {
		return err
	}
	seen := make(map[string]bool)
	names := map[string]bool{o.Name: true}
	var walk func(o *OperationalString) error
	walk = func(node *OperationalString) error {
		for _, n := range node.Nested {
			if n == nil {
				continue
			}
			if err := validation.ValidateName("operational string", n.Name); err != nil {
				return fmt.Errorf("%s: %w", node.Name, err)
			}
			if names[n.Name] {
				return fmt.Errorf("duplicate operational string %q", n.Name)
			}
			names[n.Name] = true
			if err := walk(n); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(o); err != nil {
		return err
	}
	for _, e := range o.AllElements() {
		if err := e.Validate(); err != nil {
			return err
		}
		if seen[e.Key()] {
			return fmt.Errorf("%w: duplicate service %s", ErrInvalidServiceElement, e.Key())
		}
		seen[e.Key()] = true
	}
	return nil
}
