package policy_test

import (
	"context"
	"sync"
	"time"

	"github.com/OldStager01/elastic-orchestrator/internal/policy"
	"github.com/OldStager01/elastic-orchestrator/internal/provision"
	"github.com/OldStager01/elastic-orchestrator/pkg/models"
)

type fakeTask struct {
	scheduler *fakeScheduler
	delay     time.Duration
	fn        func()
	cancelled bool
	fired     bool
}

func (t *fakeTask) Cancel() bool {
	t.scheduler.mu.Lock()
	defer t.scheduler.mu.Unlock()
	if t.fired || t.cancelled {
		return false
	}
	t.cancelled = true
	return true
}

// fakeScheduler only runs tasks when the test fires them.
type fakeScheduler struct {
	mu     sync.Mutex
	tasks  []*fakeTask
	closed bool
}

func (s *fakeScheduler) Schedule(delay time.Duration, fn func()) (policy.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, policy.ErrSchedulerClosed
	}
	t := &fakeTask{scheduler: s, delay: delay, fn: fn}
	s.tasks = append(s.tasks, t)
	return t, nil
}

func (s *fakeScheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeScheduler) all() []*fakeTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*fakeTask, len(s.tasks))
	copy(out, s.tasks)
	return out
}

func (s *fakeScheduler) active() []*fakeTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTask
	for _, t := range s.tasks {
		if !t.cancelled && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire runs the task even if it was cancelled, the way a timer that already
// expired would race with Cancel.
func (s *fakeScheduler) fire(t *fakeTask) {
	s.mu.Lock()
	t.fired = true
	s.mu.Unlock()
	t.fn()
}

type fakeManager struct {
	mu           sync.Mutex
	instances    []models.ServiceBeanInstance
	pending      int
	instancesErr error
	pendingErr   error
	incrementErr error
	decrementErr error
	trimErr      error
	increments   []provision.ProvisionListener
	decrements   []models.ServiceBeanInstance
	trims        []int
}

func (m *fakeManager) GetServiceBeanInstances(ctx context.Context, elem models.ServiceElement) ([]models.ServiceBeanInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.instancesErr != nil {
		return nil, m.instancesErr
	}
	out := make([]models.ServiceBeanInstance, len(m.instances))
	copy(out, m.instances)
	return out, nil
}

func (m *fakeManager) GetPendingCount(ctx context.Context, elem models.ServiceElement) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pendingErr != nil {
		return 0, m.pendingErr
	}
	return m.pending, nil
}

func (m *fakeManager) Increment(ctx context.Context, elem models.ServiceElement, listener provision.ProvisionListener) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incrementErr != nil {
		return m.incrementErr
	}
	m.increments = append(m.increments, listener)
	return nil
}

func (m *fakeManager) Decrement(ctx context.Context, instance models.ServiceBeanInstance, destroy bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.decrementErr != nil {
		return m.decrementErr
	}
	m.decrements = append(m.decrements, instance)
	for i, inst := range m.instances {
		if inst.ServiceBeanID == instance.ServiceBeanID {
			m.instances = append(m.instances[:i], m.instances[i+1:]...)
			break
		}
	}
	return nil
}

func (m *fakeManager) Trim(ctx context.Context, elem models.ServiceElement, count int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.trimErr != nil {
		return 0, m.trimErr
	}
	m.trims = append(m.trims, count)
	trimmed := count
	if trimmed > m.pending {
		trimmed = m.pending
	}
	m.pending -= trimmed
	return trimmed, nil
}

func (m *fakeManager) set(fn func(m *fakeManager)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

func (m *fakeManager) incrementCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.increments)
}

func (m *fakeManager) decrementCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.decrements)
}

func (m *fakeManager) trimCalls() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.trims))
	copy(out, m.trims)
	return out
}

type fakeBean struct {
	id        string
	mu        sync.Mutex
	listeners map[int]provision.ElementChangeListener
	next      int
}

func newFakeBean(id string) *fakeBean {
	return &fakeBean{id: id, listeners: make(map[int]provision.ElementChangeListener)}
}

func (b *fakeBean) ServiceBeanID() string {
	return b.id
}

func (b *fakeBean) Instance() models.ServiceBeanInstance {
	return models.ServiceBeanInstance{ServiceBeanID: b.id}
}

func (b *fakeBean) AddElementChangeListener(l provision.ElementChangeListener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	id := b.next
	b.listeners[id] = l
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

func (b *fakeBean) listenerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

type recordingSink struct {
	mu         sync.Mutex
	thresholds []models.ThresholdEvent
	actions    []models.SLAPolicyEvent
}

func (s *recordingSink) ThresholdNotified(event models.ThresholdEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholds = append(s.thresholds, event)
}

func (s *recordingSink) PolicyAction(event models.SLAPolicyEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, event)
}

func (s *recordingSink) actionTypes() []models.SLAPolicyAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SLAPolicyAction, len(s.actions))
	for i, a := range s.actions {
		out[i] = a.Action
	}
	return out
}

func (s *recordingSink) thresholdCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.thresholds)
}
