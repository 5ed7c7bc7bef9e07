package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/OldStager01/elastic-orchestrator/pkg/validation"
)

// UndefinedServices marks an unbounded instance count.
const UndefinedServices = -1

var ErrInvalidSLA = errors.New("invalid service level agreement")

// SLA configures one scaling policy for one metric of a service.
type SLA struct {
	ID                          string        `json:"id" yaml:"id"`
	LowThreshold                float64       `json:"low_threshold" yaml:"low"`
	HighThreshold               float64       `json:"high_threshold" yaml:"high"`
	Step                        float64       `json:"step,omitempty" yaml:"step,omitempty"`
	MinServices                 int           `json:"min_services" yaml:"min"`
	MaxServices                 int           `json:"max_services" yaml:"max"`
	UpperThresholdDampeningTime time.Duration `json:"upper_dampening" yaml:"upperDampening"`
	LowerThresholdDampeningTime time.Duration `json:"lower_dampening" yaml:"lowerDampening"`
}

func (s SLA) Validate() error {
	if err := validation.ValidateName("sla", s.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSLA, err)
	}
	if s.LowThreshold > s.HighThreshold {
		return fmt.Errorf("%w: %s low threshold exceeds high threshold", ErrInvalidSLA, s.ID)
	}
	if s.MinServices < 0 {
		return fmt.Errorf("%w: %s min services must not be negative", ErrInvalidSLA, s.ID)
	}
	if s.MaxServices != UndefinedServices {
		if s.MaxServices < 0 {
			return fmt.Errorf("%w: %s max services must be %d or positive", ErrInvalidSLA, s.ID, UndefinedServices)
		}
		if s.MaxServices < s.MinServices {
			return fmt.Errorf("%w: %s max services is below min services", ErrInvalidSLA, s.ID)
		}
	}
	if s.UpperThresholdDampeningTime < 0 || s.LowerThresholdDampeningTime < 0 {
		return fmt.Errorf("%w: %s dampening times must not be negative", ErrInvalidSLA, s.ID)
	}
	return nil
}

func (s SLA) HasMaxServices() bool {
	return s.MaxServices != UndefinedServices
}

func (s SLA) ThresholdValues() ThresholdValues {
	tv := NewThresholdValues(s.LowThreshold, s.HighThreshold)
	tv.Step = s.Step
	return tv
}
