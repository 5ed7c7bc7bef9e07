package statistics

import (
	"math"
	"sort"
)

// Statistics computes aggregates over a set of samples. The stored order of
// values is preserved; sorted views are computed on copies.
//
// A Statistics value is not safe for concurrent mutation.
type Statistics struct {
	values []float64
}

func New(values ...float64) *Statistics {
	s := &Statistics{}
	s.SetValues(values)
	return s
}

// SetValues replaces the sample set wholesale.
func (s *Statistics) SetValues(values []float64) {
	s.values = make([]float64, len(values))
	copy(s.values, values)
}

func (s *Statistics) Clear() {
	s.values = s.values[:0]
}

func (s *Statistics) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

func (s *Statistics) Count() int {
	return len(s.values)
}

func (s *Statistics) Sum() float64 {
	if len(s.values) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range s.values {
		sum += v
	}
	return sum
}

func (s *Statistics) Min() float64 {
	if len(s.values) == 0 {
		return math.NaN()
	}
	min := s.values[0]
	for _, v := range s.values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

func (s *Statistics) Max() float64 {
	if len(s.values) == 0 {
		return math.NaN()
	}
	max := s.values[0]
	for _, v := range s.values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

func (s *Statistics) Mean() float64 {
	if len(s.values) == 0 {
		return math.NaN()
	}
	return s.Sum() / float64(len(s.values))
}

func (s *Statistics) Median() float64 {
	n := len(s.values)
	if n == 0 {
		return math.NaN()
	}
	sorted := s.sorted()
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Mode returns the most frequent value. Ties go to the smallest value.
func (s *Statistics) Mode() float64 {
	mode, _ := s.mode()
	return mode
}

func (s *Statistics) ModeOccurrenceCount() int {
	_, count := s.mode()
	return count
}

func (s *Statistics) Range() float64 {
	if len(s.values) == 0 {
		return math.NaN()
	}
	return s.Max() - s.Min()
}

// StandardDeviation is the sample standard deviation (n-1 denominator).
// A single value yields 0.
func (s *Statistics) StandardDeviation() float64 {
	n := len(s.values)
	switch n {
	case 0:
		return math.NaN()
	case 1:
		return 0
	}
	mean := s.Mean()
	var sq float64
	for _, v := range s.values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(n-1))
}

// Snapshot is a point-in-time copy of every statistic.
type Snapshot struct {
	Count               int     `json:"count"`
	Min                 float64 `json:"min"`
	Max                 float64 `json:"max"`
	Mean                float64 `json:"mean"`
	Median              float64 `json:"median"`
	Mode                float64 `json:"mode"`
	ModeOccurrenceCount int     `json:"mode_occurrence_count"`
	Range               float64 `json:"range"`
	StandardDeviation   float64 `json:"standard_deviation"`
	Sum                 float64 `json:"sum"`
}

func (s *Statistics) Snapshot() Snapshot {
	mode, modeCount := s.mode()
	return Snapshot{
		Count:               s.Count(),
		Min:                 s.Min(),
		Max:                 s.Max(),
		Mean:                s.Mean(),
		Median:              s.Median(),
		Mode:                mode,
		ModeOccurrenceCount: modeCount,
		Range:               s.Range(),
		StandardDeviation:   s.StandardDeviation(),
		Sum:                 s.Sum(),
	}
}

func (s *Statistics) sorted() []float64 {
	out := s.Values()
	sort.Float64s(out)
	return out
}

func (s *Statistics) mode() (float64, int) {
	if len(s.values) == 0 {
		return math.NaN(), 0
	}
	sorted := s.sorted()
	mode, best := sorted[0], 0
	run := 0
	for i, v := range sorted {
		if i > 0 && v == sorted[i-1] {
			run++
		} else {
			run = 1
		}
		if run > best {
			mode, best = v, run
		}
	}
	return mode, best
}
