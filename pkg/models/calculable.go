package models

import (
	"fmt"
	"time"
)

// Calculable is a single timestamped metric sample.
//
// Two Calculables are Equal when their IDs match, regardless of value or
// timestamp. Collections keyed on samples rely on this.
type Calculable struct {
	ID     string    `json:"id"`
	Value  float64   `json:"value"`
	When   time.Time `json:"when"`
	Detail string    `json:"detail,omitempty"`
}

func NewCalculable(id string, value float64) Calculable {
	return Calculable{
		ID:    id,
		Value: value,
		When:  time.Now(),
	}
}

func NewCalculableAt(id string, value float64, when time.Time) Calculable {
	return Calculable{
		ID:    id,
		Value: value,
		When:  when,
	}
}

func (c Calculable) WithDetail(detail string) Calculable {
	c.Detail = detail
	return c
}

func (c Calculable) Equal(other Calculable) bool {
	return c.ID == other.ID
}

func (c Calculable) IsZero() bool {
	return c.ID == "" && c.When.IsZero()
}

func (c Calculable) String() string {
	return fmt.Sprintf("%s=%.4f@%s", c.ID, c.Value, c.When.Format(time.RFC3339))
}
