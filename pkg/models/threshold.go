package models

import "fmt"

type ThresholdType string

const (
	ThresholdBreached ThresholdType = "BREACHED"
	ThresholdCleared  ThresholdType = "CLEARED"
)

// ThresholdValues separates the configured bounds from the currently
// effective bounds. CurrentLowThreshold <= CurrentHighThreshold must hold
// after every update.
type ThresholdValues struct {
	LowThreshold         float64 `json:"low_threshold"`
	HighThreshold        float64 `json:"high_threshold"`
	CurrentLowThreshold  float64 `json:"current_low_threshold"`
	CurrentHighThreshold float64 `json:"current_high_threshold"`
	Step                 float64 `json:"step,omitempty"`
	BreachedCount        int64   `json:"breached_count"`
	ClearedCount         int64   `json:"cleared_count"`
}

func NewThresholdValues(low, high float64) ThresholdValues {
	return ThresholdValues{
		LowThreshold:         low,
		HighThreshold:        high,
		CurrentLowThreshold:  low,
		CurrentHighThreshold: high,
	}
}

func (t ThresholdValues) Validate() error {
	if t.LowThreshold > t.HighThreshold {
		return fmt.Errorf("low threshold %.4f exceeds high threshold %.4f", t.LowThreshold, t.HighThreshold)
	}
	if t.CurrentLowThreshold > t.CurrentHighThreshold {
		return fmt.Errorf("current low threshold %.4f exceeds current high threshold %.4f",
			t.CurrentLowThreshold, t.CurrentHighThreshold)
	}
	if t.Step < 0 {
		return fmt.Errorf("threshold step must not be negative")
	}
	return nil
}

// SetThresholds replaces the configured bounds and resets the current ones.
func (t *ThresholdValues) SetThresholds(low, high float64) {
	t.LowThreshold = low
	t.HighThreshold = high
	t.Reset()
}

func (t *ThresholdValues) Reset() {
	t.CurrentLowThreshold = t.LowThreshold
	t.CurrentHighThreshold = t.HighThreshold
}

func (t ThresholdValues) AboveHigh(value float64) bool {
	return value > t.CurrentHighThreshold
}

func (t ThresholdValues) BelowLow(value float64) bool {
	return value < t.CurrentLowThreshold
}

func (t ThresholdValues) Within(value float64) bool {
	return !t.AboveHigh(value) && !t.BelowLow(value)
}

func (t ThresholdValues) String() string {
	return fmt.Sprintf("low=%.4f high=%.4f current=[%.4f, %.4f]",
		t.LowThreshold, t.HighThreshold, t.CurrentLowThreshold, t.CurrentHighThreshold)
}
