package provision

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/OldStager01/elastic-orchestrator/pkg/models"
)

type LaunchSpec struct {
	RequestID  string
	InstanceID int64
	Element    models.ServiceElement
}

// Handle refers to a launched process.
type Handle interface {
	ID() string
	Host() string
	Terminate(ctx context.Context) error
}

type ProcessLauncher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Handle, error)
}

type SimulatedLauncherConfig struct {
	StartupTime time.Duration
	FailureRate float64
	Host        string
	Seed        int64
}

// SimulatedLauncher pretends to start processes. Launches take StartupTime
// and fail with probability FailureRate.
type SimulatedLauncher struct {
	config  SimulatedLauncherConfig
	rng     *rand.Rand
	running map[string]*simulatedHandle
	mu      sync.Mutex
}

func NewSimulatedLauncher(cfg SimulatedLauncherConfig) *SimulatedLauncher {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &SimulatedLauncher{
		config:  cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		running: make(map[string]*simulatedHandle),
	}
}

func (l *SimulatedLauncher) Launch(ctx context.Context, spec LaunchSpec) (Handle, error) {
	if l.config.StartupTime > 0 {
		timer := time.NewTimer(l.config.StartupTime)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.config.FailureRate > 0 && l.rng.Float64() < l.config.FailureRate {
		logger.WithService(spec.Element.OperationalStringName, spec.Element.Name).
			Warnf("Simulated launch of request %s failed", shortID(spec.RequestID))
		return nil, fmt.Errorf("%w: %s", ErrLaunchFailed, spec.Element.Name)
	}

	h := &simulatedHandle{
		id:       models.NewUUID(),
		host:     l.config.Host,
		launcher: l,
	}
	l.running[h.id] = h
	return h, nil
}

func (l *SimulatedLauncher) Running() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.running)
}

type simulatedHandle struct {
	id       string
	host     string
	launcher *SimulatedLauncher
}

func (h *simulatedHandle) ID() string   { return h.id }
func (h *simulatedHandle) Host() string { return h.host }

func (h *simulatedHandle) Terminate(ctx context.Context) error {
	h.launcher.mu.Lock()
	defer h.launcher.mu.Unlock()
	delete(h.launcher.running, h.id)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
