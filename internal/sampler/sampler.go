package sampler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/OldStager01/elastic-orchestrator/internal/collector"
	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/OldStager01/elastic-orchestrator/pkg/models"
)

// Recorder accepts samples. threshold.Watch satisfies it.
type Recorder interface {
	AddCalculable(calc models.Calculable)
}

type Config struct {
	// Metric is the name read from the source and the ID of every sample.
	Metric   string
	Interval time.Duration
	Source   collector.MetricSource
	Recorder Recorder
	// Detail is attached to every sample, e.g. the reading instance.
	Detail string
	Fields logrus.Fields
}

// Sampler reads one metric on a fixed interval and records each value.
type Sampler struct {
	config  Config
	entry   *logrus.Entry
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	samples int64
	misses  int64
	streak  int64
	mu      sync.Mutex
}

func New(cfg Config) *Sampler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Source == nil {
		cfg.Source = collector.NoopSource{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry := logger.WithField("metric", cfg.Metric)
	if len(cfg.Fields) > 0 {
		entry = entry.WithFields(cfg.Fields)
	}

	return &Sampler{
		config: cfg,
		entry:  entry,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.ctx.Err() != nil {
		return
	}

	s.running = true
	s.wg.Add(1)
	go s.run()

	s.entry.Debug("Sampler started")
}

// Stop ends the loop and waits for an in-flight read. A stopped sampler
// cannot be restarted.
func (s *Sampler) Stop() {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	if wasRunning {
		s.entry.Debug("Sampler stopped")
	}
}

func (s *Sampler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Counts returns how many reads produced a sample and how many did not.
func (s *Sampler) Counts() (samples, misses int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples, s.misses
}

func (s *Sampler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.SampleOnce(s.ctx)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.SampleOnce(s.ctx)
		}
	}
}

// SampleOnce performs a single read and reports whether a sample was
// recorded.
func (s *Sampler) SampleOnce(ctx context.Context) bool {
	if !s.config.Source.IsAvailable() {
		s.miss()
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Interval)
	defer cancel()

	readAt := time.Now()
	value, ok := s.config.Source.ReadMetric(ctx, s.config.Metric)
	if !ok {
		s.miss()
		return false
	}
	// stopped while reading
	if s.ctx.Err() != nil {
		return false
	}

	s.mu.Lock()
	s.samples++
	if s.streak > 0 {
		s.entry.Debugf("Metric available again after %d misses", s.streak)
	}
	s.streak = 0
	s.mu.Unlock()

	s.config.Recorder.AddCalculable(models.NewCalculableAt(s.config.Metric, value, readAt).WithDetail(s.config.Detail))
	return true
}

func (s *Sampler) miss() {
	s.mu.Lock()
	s.misses++
	s.streak++
	n := s.streak
	s.mu.Unlock()

	if n == 1 {
		s.entry.Debug("Metric unavailable")
	}
}
