package simulator

import (
	"math"
	"math/rand"
	"time"
)

// Pattern shapes a metric's base value over time.
type Pattern interface {
	Apply(base float64, now time.Time) float64
	Name() string
}

var (
	PatternSteady Pattern = &SteadyPattern{}
	PatternDaily  Pattern = &DailyPattern{}
	PatternWeekly Pattern = &WeeklyPattern{}
)

func ParsePattern(name string) Pattern {
	switch name {
	case "daily":
		return PatternDaily
	case "weekly":
		return PatternWeekly
	case "random":
		return NewRandomPattern(time.Now().UnixNano())
	case "gradual_rise":
		return &GradualRisePattern{StartTime: time.Now()}
	case "sine_wave":
		return &SineWavePattern{}
	default:
		return PatternSteady
	}
}

type SteadyPattern struct{}

func (p *SteadyPattern) Apply(base float64, _ time.Time) float64 {
	return base
}

func (p *SteadyPattern) Name() string {
	return "steady"
}

// DailyPattern peaks during business hours.
type DailyPattern struct{}

func (p *DailyPattern) Apply(base float64, now time.Time) float64 {
	return base * dailyModifier(now.Hour())
}

func (p *DailyPattern) Name() string {
	return "daily"
}

func dailyModifier(hour int) float64 {
	switch {
	case hour >= 9 && hour <= 11:
		return 1.4
	case hour >= 14 && hour <= 16:
		return 1.3
	case hour >= 17 && hour <= 20:
		return 1.1
	case hour >= 0 && hour <= 6:
		return 0.6
	default:
		return 1.0
	}
}

// WeeklyPattern is the daily cycle with halved weekends.
type WeeklyPattern struct{}

func (p *WeeklyPattern) Apply(base float64, now time.Time) float64 {
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return base * 0.5
	}
	return base * dailyModifier(now.Hour())
}

func (p *WeeklyPattern) Name() string {
	return "weekly"
}

// RandomPattern scales the base by a factor in [0.5, 1.5).
type RandomPattern struct {
	rng *rand.Rand
}

func NewRandomPattern(seed int64) *RandomPattern {
	return &RandomPattern{rng: rand.New(rand.NewSource(seed))}
}

func (p *RandomPattern) Apply(base float64, _ time.Time) float64 {
	return base * (0.5 + p.rng.Float64())
}

func (p *RandomPattern) Name() string {
	return "random"
}

// GradualRisePattern grows 2% per minute up to +50%.
type GradualRisePattern struct {
	StartTime time.Time
}

func (p *GradualRisePattern) Apply(base float64, now time.Time) float64 {
	minutes := now.Sub(p.StartTime).Minutes()
	increase := math.Min(math.Max(minutes*2, 0), 50)
	return base * (1.0 + increase/100)
}

func (p *GradualRisePattern) Name() string {
	return "gradual_rise"
}

type SineWavePattern struct {
	Period    time.Duration
	Amplitude float64
}

func (p *SineWavePattern) Apply(base float64, now time.Time) float64 {
	period := p.Period
	if period == 0 {
		period = 10 * time.Minute
	}
	amplitude := p.Amplitude
	if amplitude == 0 {
		amplitude = 20
	}

	phase := (float64(now.UnixNano()) / float64(period.Nanoseconds())) * 2 * math.Pi
	return base + math.Sin(phase)*amplitude
}

func (p *SineWavePattern) Name() string {
	return "sine_wave"
}
