package progression

import "time"

const (
	DefaultCompletionDelay = 1500 * time.Millisecond
	DefaultAdvanceDelay    = 2 * time.Second
)

// Transitions arms the delayed chain that follows a finished level: after
// the completion delay the level is recorded, and when a next level exists
// it is activated after the advance delay.
type Transitions struct {
	sched           Scheduler
	completionDelay time.Duration
	advanceDelay    time.Duration
}

// NewTransitions creates a transition planner. Zero delays use the defaults.
func NewTransitions(sched Scheduler, completionDelay, advanceDelay time.Duration) *Transitions {
	if completionDelay == 0 {
		completionDelay = DefaultCompletionDelay
	}
	if advanceDelay == 0 {
		advanceDelay = DefaultAdvanceDelay
	}
	return &Transitions{
		sched:           sched,
		completionDelay: completionDelay,
		advanceDelay:    advanceDelay,
	}
}

// Arm schedules complete under key. When complete reports true, advance is
// scheduled under the same key, so a single Disarm cancels either stage.
func (t *Transitions) Arm(key string, complete func() bool, advance func()) {
	t.sched.Schedule(key, t.completionDelay, func() {
		if complete() {
			t.sched.Schedule(key, t.advanceDelay, advance)
		}
	})
}

// Disarm cancels whatever stage is pending for key.
func (t *Transitions) Disarm(key string) {
	t.sched.Cancel(key)
}
