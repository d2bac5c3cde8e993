package progression

import (
	"sort"
	"sync"
	"time"
)

// Scheduler runs deferred callbacks keyed by the identity that armed them.
// Scheduling a key that is already pending replaces the pending task.
type Scheduler interface {
	Schedule(key string, delay time.Duration, fn func())
	Cancel(key string)
}

// TimerScheduler is a Scheduler backed by runtime timers.
type TimerScheduler struct {
	mu     sync.Mutex
	tasks  map[string]timerTask
	nextID uint64
}

type timerTask struct {
	id    uint64
	timer *time.Timer
}

// NewTimerScheduler creates a timer-backed scheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{tasks: make(map[string]timerTask)}
}

func (s *TimerScheduler) Schedule(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.tasks[key]; ok {
		old.timer.Stop()
	}
	s.nextID++
	id := s.nextID
	s.tasks[key] = timerTask{
		id: id,
		timer: time.AfterFunc(delay, func() {
			s.mu.Lock()
			task, ok := s.tasks[key]
			if !ok || task.id != id {
				// Cancelled or replaced after the timer had already fired.
				s.mu.Unlock()
				return
			}
			delete(s.tasks, key)
			s.mu.Unlock()
			fn()
		}),
	}
}

func (s *TimerScheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task, ok := s.tasks[key]; ok {
		task.timer.Stop()
		delete(s.tasks, key)
	}
}

// Pending returns the number of armed tasks.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// ManualScheduler is a Scheduler driven by an explicit clock, for tests.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	tasks  map[string]manualTask
	nextID uint64
}

type manualTask struct {
	id  uint64
	due time.Duration
	fn  func()
}

// NewManualScheduler creates a scheduler whose clock only moves on Advance.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{tasks: make(map[string]manualTask)}
}

func (s *ManualScheduler) Schedule(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.tasks[key] = manualTask{id: s.nextID, due: s.now + delay, fn: fn}
}

func (s *ManualScheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, key)
}

// Pending returns the keys of armed tasks in sorted order.
func (s *ManualScheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.tasks))
	for k := range s.tasks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Advance moves the clock forward by d and runs every task that falls due,
// earliest first. Tasks scheduled by a running task fire in the same call if
// they fall due within d.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		key, task, ok := s.nextDue(target)
		if !ok {
			s.now = target
			s.mu.Unlock()
			return
		}
		delete(s.tasks, key)
		s.now = task.due
		s.mu.Unlock()

		task.fn()
	}
}

func (s *ManualScheduler) nextDue(limit time.Duration) (string, manualTask, bool) {
	var (
		bestKey string
		best    manualTask
		found   bool
	)
	for k, t := range s.tasks {
		if t.due > limit {
			continue
		}
		if !found || t.due < best.due || (t.due == best.due && t.id < best.id) {
			bestKey, best, found = k, t, true
		}
	}
	return bestKey, best, found
}
