package report

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Step is one entry of a run's step trace.
type Step struct {
	Name   string        `json:"name"`
	Status string        `json:"status,omitempty"`
	Watch  time.Duration `json:"watch_ns"`
}

// Trace records elapsed wall time between successive marks. It is safe for
// concurrent use.
type Trace struct {
	mu    sync.Mutex
	clock clockwork.Clock
	prev  time.Time
	steps []Step
}

// NewTrace starts a trace at the clock's current time.
func NewTrace(clock clockwork.Clock) *Trace {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Trace{clock: clock, prev: clock.Now()}
}

// Mark closes a step measured from the previous mark.
func (t *Trace) Mark(name string) {
	t.MarkStatus(name, "")
}

// MarkStatus is Mark with a status label such as "FAIL".
func (t *Trace) MarkStatus(name, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	t.steps = append(t.steps, Step{Name: name, Status: status, Watch: now.Sub(t.prev)})
	t.prev = now
}

// MarkDuration appends a step with an externally measured duration. The
// trace's own reference point is left untouched.
func (t *Trace) MarkDuration(name, status string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, Step{Name: name, Status: status, Watch: d})
}

// Steps returns a copy of the recorded steps.
func (t *Trace) Steps() []Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Step(nil), t.steps...)
}
