// Package jobs runs background work on a fixed set of worker slots with an
// overflow queue.
//
// Everything except the job functions themselves runs on the control
// thread: Spawn, Reap and Drain must not be called concurrently. Jobs must
// not touch the registry or the bus; SpawnWithResult hands a job's outcome
// back to the control thread instead.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"modhost/internal/logging"
	"modhost/pkg/api"
)

const (
	// DefaultWorkers is the number of concurrent worker slots.
	DefaultWorkers = 32

	// DefaultQueueCapacity is the initial overflow queue capacity.
	DefaultQueueCapacity = 64
)

type job struct {
	id   string
	fn   api.JobFunc
	data any
	done api.JobDoneFunc
}

type slot struct {
	job      *job
	active   bool
	finished atomic.Bool
	exited   chan struct{}
	err      error
}

// System is the background job system.
type System struct {
	slots []*slot
	queue *queue
}

// New creates a system with the given number of worker slots and initial
// overflow queue capacity. Non-positive values fall back to the defaults.
func New(workers, queueCapacity int) *System {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	s := &System{
		slots: make([]*slot, workers),
		queue: newQueue(queueCapacity),
	}
	for i := range s.slots {
		s.slots[i] = &slot{}
	}
	return s
}

// Spawn runs fn(data) on the first free slot, or queues it when every slot
// is busy. The job's return value is ignored.
func (s *System) Spawn(fn api.JobFunc, data any) {
	s.SpawnWithResult(fn, data, nil)
}

// SpawnWithResult is like Spawn, but done receives the job's error (or a
// recovered panic) during the Reap that collects it.
func (s *System) SpawnWithResult(fn api.JobFunc, data any, done api.JobDoneFunc) {
	if fn == nil {
		logging.Get(logging.CategoryJobs).Warn("spawn rejected: nil job function")
		return
	}
	j := &job{id: uuid.NewString(), fn: fn, data: data, done: done}
	if sl := s.freeSlot(); sl != nil {
		s.start(sl, j)
		return
	}
	s.queue.push(j)
	logging.JobsDebug("job %s queued (%d pending)", j.id, s.queue.size())
}

func (s *System) freeSlot() *slot {
	for _, sl := range s.slots {
		if !sl.active {
			return sl
		}
	}
	return nil
}

func (s *System) start(sl *slot, j *job) {
	sl.job = j
	sl.active = true
	sl.err = nil
	sl.finished.Store(false)
	sl.exited = make(chan struct{})

	go func() {
		defer close(sl.exited)
		sl.err = run(j)
		sl.finished.Store(true)
	}()
	logging.JobsDebug("job %s started", j.id)
}

func run(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.id, r)
			logging.JobsError("%v", err)
		}
	}()
	return j.fn(j.data)
}

type result struct {
	done api.JobDoneFunc
	err  error
}

// Reap joins every finished slot, promotes queued jobs in FIFO order into
// the freed slots, and then delivers results to SpawnWithResult callbacks.
// Jobs spawned from a callback therefore run after everything already
// queued. It returns the number of jobs reaped.
func (s *System) Reap() int {
	var results []result
	reaped := 0
	for _, sl := range s.slots {
		if !sl.active || !sl.finished.Load() {
			continue
		}
		<-sl.exited
		j, err := sl.job, sl.err
		sl.job = nil
		sl.active = false
		reaped++

		if j.done != nil {
			results = append(results, result{done: j.done, err: err})
		}
	}

	for s.queue.size() > 0 {
		sl := s.freeSlot()
		if sl == nil {
			break
		}
		j, _ := s.queue.pop()
		s.start(sl, j)
	}

	for _, r := range results {
		r.done(r.err)
	}
	return reaped
}

// Drain blocks until every running job has returned and discards queued
// jobs without running them. Result callbacks are not invoked. Drain
// returns ctx.Err() if ctx ends first; the slots stay active in that case.
func (s *System) Drain(ctx context.Context) error {
	if n := s.queue.reset(); n > 0 {
		logging.Jobs("discarded %d queued jobs", n)
	}
	for _, sl := range s.slots {
		if !sl.active {
			continue
		}
		select {
		case <-sl.exited:
		case <-ctx.Done():
			return ctx.Err()
		}
		sl.job = nil
		sl.active = false
	}
	return nil
}

// Active returns the number of occupied slots.
func (s *System) Active() int {
	n := 0
	for _, sl := range s.slots {
		if sl.active {
			n++
		}
	}
	return n
}

// Queued returns the number of jobs waiting for a slot.
func (s *System) Queued() int { return s.queue.size() }

// Workers returns the slot count.
func (s *System) Workers() int { return len(s.slots) }
