// Package opstring reads operational string deployment descriptors.
package opstring

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/OldStager01/elastic-orchestrator/pkg/models"
)

var ErrInvalidDescriptor = errors.New("invalid operational string descriptor")

// Defaults fill SLA fields a descriptor leaves out.
type Defaults struct {
	MinServices int
	MaxServices int
}

var DefaultDefaults = Defaults{
	MinServices: 1,
	MaxServices: models.UndefinedServices,
}

type document struct {
	Name     string       `yaml:"name"`
	Services []serviceDoc `yaml:"services"`
	Nested   []document   `yaml:"nested,omitempty"`
}

type serviceDoc struct {
	Name          string   `yaml:"name"`
	Planned       *int     `yaml:"planned"`
	ProvisionType string   `yaml:"provisionType,omitempty"`
	SLAs          []slaDoc `yaml:"slas,omitempty"`
}

type slaDoc struct {
	ID             string        `yaml:"id"`
	Low            float64       `yaml:"low"`
	High           float64       `yaml:"high"`
	Step           float64       `yaml:"step,omitempty"`
	Min            *int          `yaml:"min"`
	Max            *int          `yaml:"max"`
	UpperDampening time.Duration `yaml:"upperDampening"`
	LowerDampening time.Duration `yaml:"lowerDampening"`
}

// Load reads and validates the descriptor at path.
func Load(path string) (*models.OperationalString, error) {
	return LoadWithDefaults(path, DefaultDefaults)
}

func LoadWithDefaults(path string, d Defaults) (*models.OperationalString, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	ops, err := ParseWithDefaults(data, d)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ops, nil
}

func Parse(data []byte) (*models.OperationalString, error) {
	return ParseWithDefaults(data, DefaultDefaults)
}

// ParseWithDefaults decodes a single descriptor document. Unknown keys are
// rejected so typos in SLA fields do not silently fall back to defaults.
func ParseWithDefaults(data []byte, d Defaults) (*models.OperationalString, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidDescriptor)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}

	ops := doc.toModel(d)
	if err := ops.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	return ops, nil
}

// Marshal renders ops back into descriptor form.
func Marshal(ops *models.OperationalString) ([]byte, error) {
	return yaml.Marshal(fromModel(ops))
}

func (doc document) toModel(d Defaults) *models.OperationalString {
	ops := &models.OperationalString{Name: doc.Name}
	for _, s := range doc.Services {
		ops.Services = append(ops.Services, s.toModel(d))
	}
	for _, n := range doc.Nested {
		ops.Nested = append(ops.Nested, n.toModel(d))
	}
	return ops
}

func (s serviceDoc) toModel(d Defaults) models.ServiceElement {
	elem := models.ServiceElement{
		Name:          s.Name,
		Planned:       1,
		ProvisionType: models.ProvisionType(s.ProvisionType),
	}
	if elem.ProvisionType == "" {
		elem.ProvisionType = models.ProvisionDynamic
	}
	if s.Planned != nil {
		elem.Planned = *s.Planned
	}
	for _, sd := range s.SLAs {
		sla := models.SLA{
			ID:                          sd.ID,
			LowThreshold:                sd.Low,
			HighThreshold:               sd.High,
			Step:                        sd.Step,
			MinServices:                 d.MinServices,
			MaxServices:                 d.MaxServices,
			UpperThresholdDampeningTime: sd.UpperDampening,
			LowerThresholdDampeningTime: sd.LowerDampening,
		}
		if sd.Min != nil {
			sla.MinServices = *sd.Min
		}
		if sd.Max != nil {
			sla.MaxServices = *sd.Max
		}
		elem.SLAs = append(elem.SLAs, sla)
	}
	return elem
}

func fromModel(ops *models.OperationalString) document {
	doc := document{Name: ops.Name}
	for _, e := range ops.Services {
		planned := e.Planned
		sd := serviceDoc{
			Name:          e.Name,
			Planned:       &planned,
			ProvisionType: string(e.ProvisionType),
		}
		for _, s := range e.SLAs {
			minServices, maxServices := s.MinServices, s.MaxServices
			sd.SLAs = append(sd.SLAs, slaDoc{
				ID:             s.ID,
				Low:            s.LowThreshold,
				High:           s.HighThreshold,
				Step:           s.Step,
				Min:            &minServices,
				Max:            &maxServices,
				UpperDampening: s.UpperThresholdDampeningTime,
				LowerDampening: s.LowerThresholdDampeningTime,
			})
		}
		doc.Services = append(doc.Services, sd)
	}
	for _, n := range ops.Nested {
		if n != nil {
			doc.Nested = append(doc.Nested, fromModel(n))
		}
	}
	return doc
}
