package jobs

import (
	"context"
	"sync"
	"time"

	"modhost/pkg/api"
	"modhost/pkg/memory"
)

var threadKeys = []string{
	api.KeyThreadSpawn,
	api.KeyThreadSpawnWithResult,
	api.KeyThreadMutexLock,
	api.KeyThreadMutexTryLock,
	api.KeyThreadMutexUnlock,
}

// Module exposes a System as the built-in "Threads" module. Its Shutdown
// drains running jobs.
type Module struct {
	sys          *System
	drainTimeout time.Duration
}

// NewModule wraps s. A positive drainTimeout bounds how long Shutdown waits
// for running jobs.
func NewModule(s *System, drainTimeout time.Duration) *Module {
	return &Module{sys: s, drainTimeout: drainTimeout}
}

func (m *Module) Metadata() api.Metadata {
	return api.Metadata{Name: api.ModuleThreads}
}

func (m *Module) Init(ctx *api.Context) error {
	s := m.sys
	memory.Put(ctx.Memory, api.KeyThreadSpawn, api.SpawnFunc(s.Spawn), false)
	memory.Put(ctx.Memory, api.KeyThreadSpawnWithResult, api.SpawnWithResultFunc(s.SpawnWithResult), false)
	memory.Put(ctx.Memory, api.KeyThreadMutexLock, api.MutexFunc(func(mu *sync.Mutex) { mu.Lock() }), false)
	memory.Put(ctx.Memory, api.KeyThreadMutexTryLock, api.TryMutexFunc(func(mu *sync.Mutex) bool { return mu.TryLock() }), false)
	memory.Put(ctx.Memory, api.KeyThreadMutexUnlock, api.MutexFunc(func(mu *sync.Mutex) { mu.Unlock() }), false)
	return nil
}

// Update is a no-op; the kernel reaps jobs once per tick.
func (m *Module) Update(*api.Context) error { return nil }

func (m *Module) Shutdown(ctx *api.Context) error {
	for _, key := range threadKeys {
		ctx.Memory.Remove(key)
	}

	drainCtx := context.Background()
	if m.drainTimeout > 0 {
		var cancel context.CancelFunc
		drainCtx, cancel = context.WithTimeout(drainCtx, m.drainTimeout)
		defer cancel()
	}
	return m.sys.Drain(drainCtx)
}
