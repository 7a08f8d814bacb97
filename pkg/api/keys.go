package api

import "sync"

// Registry keys published by the kernel. Keys follow the soft
// "<component>::<capability>" convention; the registry does not enforce it.
const (
	KeyShouldRun = "core::should_run"
	KeyVersion   = "core::version"
	KeyInstance  = "core::instance"

	KeySignalConnect      = "signal::connect"
	KeySignalDisconnect   = "signal::disconnect"
	KeySignalEmit         = "signal::emit"
	KeySignalEmitDeferred = "signal::emit_deferred"

	KeySchedulerRegister = "scheduler::register"
	KeySchedulerRemove   = "scheduler::remove"

	KeyThreadSpawn           = "thread::spawn"
	KeyThreadSpawnWithResult = "thread::spawn_with_result"
	KeyThreadMutexLock       = "thread::mtx_lock"
	KeyThreadMutexTryLock    = "thread::mtx_trylock"
	KeyThreadMutexUnlock     = "thread::mtx_unlock"
)

// Names of the built-in modules, usable in Metadata.Requires.
const (
	ModuleSignals   = "Signals"
	ModuleScheduler = "Scheduler"
	ModuleThreads   = "Threads"
)

// -----------------------------------------------------------------------------
// Signals
// -----------------------------------------------------------------------------

// SignalID identifies one connection.
type SignalID uint64

// SignalCallback receives an emitted signal. sender and args are passed
// through untouched.
type SignalCallback func(ctx *Context, sender, args, userData any)

type (
	ConnectFunc      func(name string, cb SignalCallback, userData any) SignalID
	DisconnectFunc   func(id SignalID)
	EmitFunc         func(ctx *Context, name string, sender, args any)
	EmitDeferredFunc func(name string, sender, args any)
)

// -----------------------------------------------------------------------------
// Scheduler
// -----------------------------------------------------------------------------

// TaskFunc is a periodic task callback.
type TaskFunc func(ctx *Context, userData any)

type (
	// ScheduleFunc registers a task firing every interval seconds.
	ScheduleFunc func(name string, interval float64, fn TaskFunc, userData any)
	// UnscheduleFunc removes every task with the given name.
	UnscheduleFunc func(name string) bool
)

// -----------------------------------------------------------------------------
// Threads
// -----------------------------------------------------------------------------

// JobFunc runs on a background goroutine. It must not touch the registry or
// the context; hand results back with SpawnWithResultFunc instead.
type JobFunc func(userData any) error

// JobDoneFunc receives a job's result on the control thread.
type JobDoneFunc func(err error)

type (
	SpawnFunc           func(fn JobFunc, userData any)
	SpawnWithResultFunc func(fn JobFunc, userData any, done JobDoneFunc)

	// MutexFunc and TryMutexFunc operate on caller-owned mutexes.
	MutexFunc    func(mu *sync.Mutex)
	TryMutexFunc func(mu *sync.Mutex) bool
)
