package policy

import (
	"sync"
	"time"
)

// Task is a scheduled function that has not necessarily run yet.
type Task interface {
	// Cancel stops the task. It reports false if the task already fired.
	Cancel() bool
}

type Scheduler interface {
	Schedule(delay time.Duration, fn func()) (Task, error)
	Shutdown()
}

// TimerScheduler runs each task on its own timer.
type TimerScheduler struct {
	tasks  map[*timerTask]struct{}
	closed bool
	mu     sync.Mutex
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{tasks: make(map[*timerTask]struct{})}
}

func (s *TimerScheduler) Schedule(delay time.Duration, fn func()) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSchedulerClosed
	}

	t := &timerTask{scheduler: s}
	s.tasks[t] = struct{}{}
	t.timer = time.AfterFunc(delay, func() {
		s.remove(t)
		fn()
	})
	return t, nil
}

// Shutdown cancels every outstanding task. Later Schedule calls fail with
// ErrSchedulerClosed.
func (s *TimerScheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for t := range s.tasks {
		t.timer.Stop()
	}
	s.tasks = make(map[*timerTask]struct{})
}

func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *TimerScheduler) remove(t *timerTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, t)
}

type timerTask struct {
	scheduler *TimerScheduler
	timer     *time.Timer
}

func (t *timerTask) Cancel() bool {
	stopped := t.timer.Stop()
	t.scheduler.remove(t)
	return stopped
}
