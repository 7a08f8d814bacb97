// Package scheduler runs named periodic tasks driven by frame time.
package scheduler

import (
	"modhost/internal/logging"
	"modhost/pkg/api"
)

// DefaultCapacity is the initial task slice capacity.
const DefaultCapacity = 16

// Task is one periodic callback. Intervals and elapsed time are in seconds.
type Task struct {
	Name     string
	Interval float64
	Elapsed  float64
	Fn       api.TaskFunc
	UserData any

	removed bool
}

// Scheduler fires tasks once their accumulated frame time crosses their
// interval. It is owned by the control thread.
type Scheduler struct {
	tasks []*Task
}

// New creates a scheduler with room for capacity tasks.
func New(capacity int) *Scheduler {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Scheduler{tasks: make([]*Task, 0, capacity)}
}

// Register adds a task. A non-positive interval or nil callback is rejected
// and Register returns false. Names need not be unique.
func (s *Scheduler) Register(name string, interval float64, fn api.TaskFunc, userData any) bool {
	if interval <= 0 || fn == nil {
		logging.Get(logging.CategoryScheduler).Warn("rejected task %q (interval=%g, callback=%t)", name, interval, fn != nil)
		return false
	}
	s.tasks = append(s.tasks, &Task{Name: name, Interval: interval, Fn: fn, UserData: userData})
	logging.SchedulerDebug("registered task %q every %gs", name, interval)
	return true
}

// Remove drops every task called name and reports whether any existed.
func (s *Scheduler) Remove(name string) bool {
	kept := s.tasks[:0]
	removed := false
	for _, t := range s.tasks {
		if t.Name == name {
			t.removed = true
			removed = true
			continue
		}
		kept = append(kept, t)
	}
	clear(s.tasks[len(kept):])
	s.tasks = kept
	return removed
}

// Tick advances every task by dt and fires each task whose elapsed time has
// reached its interval, at most once per tick. Elapsed then resets to zero
// and any excess is discarded. Tick returns the number of tasks fired.
//
// Tasks registered by a callback start counting on the next tick; tasks
// removed by a callback do not fire.
func (s *Scheduler) Tick(ctx *api.Context, dt float64) int {
	snapshot := make([]*Task, len(s.tasks))
	copy(snapshot, s.tasks)

	fired := 0
	for _, t := range snapshot {
		if t.removed {
			continue
		}
		t.Elapsed += dt
		if t.Elapsed < t.Interval {
			continue
		}
		t.Elapsed = 0
		t.Fn(ctx, t.UserData)
		fired++
	}
	return fired
}

// Len returns the number of registered tasks.
func (s *Scheduler) Len() int { return len(s.tasks) }

// Tasks returns a copy of the registered tasks.
func (s *Scheduler) Tasks() []Task {
	out := make([]Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = *t
	}
	return out
}

// Reset drops every task.
func (s *Scheduler) Reset() {
	for _, t := range s.tasks {
		t.removed = true
	}
	clear(s.tasks)
	s.tasks = s.tasks[:0]
}
