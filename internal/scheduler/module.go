package scheduler

import (
	"modhost/pkg/api"
	"modhost/pkg/memory"
)

// Module exposes a Scheduler as the built-in "Scheduler" module.
type Module struct {
	sched *Scheduler
}

// NewModule wraps s.
func NewModule(s *Scheduler) *Module {
	return &Module{sched: s}
}

func (m *Module) Metadata() api.Metadata {
	return api.Metadata{Name: api.ModuleScheduler}
}

func (m *Module) Init(ctx *api.Context) error {
	s := m.sched
	memory.Put(ctx.Memory, api.KeySchedulerRegister, api.ScheduleFunc(func(name string, interval float64, fn api.TaskFunc, userData any) {
		s.Register(name, interval, fn, userData)
	}), false)
	memory.Put(ctx.Memory, api.KeySchedulerRemove, api.UnscheduleFunc(s.Remove), false)
	return nil
}

// Update is a no-op; the kernel ticks the scheduler after the bus flush.
func (m *Module) Update(*api.Context) error { return nil }

func (m *Module) Shutdown(ctx *api.Context) error {
	ctx.Memory.Remove(api.KeySchedulerRegister)
	ctx.Memory.Remove(api.KeySchedulerRemove)
	m.sched.Reset()
	return nil
}
