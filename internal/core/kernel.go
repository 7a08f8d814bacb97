// Package core wires the kernel primitives together and drives the tick
// loop.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"modhost/internal/bus"
	"modhost/internal/config"
	"modhost/internal/host"
	"modhost/internal/jobs"
	"modhost/internal/logging"
	"modhost/internal/scheduler"
	"modhost/pkg/api"
	"modhost/pkg/memory"
)

// ErrNotBooted is returned by Tick and Run before Boot succeeded.
var ErrNotBooted = errors.New("kernel not booted")

// -----------------------------------------------------------------------------
// Clock
// -----------------------------------------------------------------------------

// Clock supplies frame timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

// Option configures a Kernel.
type Option func(*Kernel)

// WithClock replaces the wall clock used for frame deltas.
func WithClock(c Clock) Option {
	return func(k *Kernel) {
		if c != nil {
			k.clock = c
		}
	}
}

// WithMaxTicks makes Run return after n ticks. Zero means unbounded.
func WithMaxTicks(n uint64) Option {
	return func(k *Kernel) { k.maxTicks = n }
}

// WithLoaders replaces the default module loaders.
func WithLoaders(loaders ...host.Loader) Option {
	return func(k *Kernel) { k.loaders = loaders }
}

// WithModules registers modules compiled into the host alongside the
// built-ins.
func WithModules(mods ...api.Module) Option {
	return func(k *Kernel) { k.extra = append(k.extra, mods...) }
}

// -----------------------------------------------------------------------------
// Kernel
// -----------------------------------------------------------------------------

// Kernel owns the registry, the module host and the built-in primitives.
// Apart from Stop and RequestReload, its methods must be called from one
// goroutine, the control thread.
type Kernel struct {
	cfg      *config.Config
	clock    Clock
	maxTicks uint64
	loaders  []host.Loader
	extra    []api.Module

	memory *memory.Registry
	ctx    *api.Context
	host   *host.Host
	bus    *bus.Bus
	sched  *scheduler.Scheduler
	jobs   *jobs.System

	shouldRun atomic.Bool
	reload    atomic.Bool
	lastTick  time.Time
	booted    bool
	down      bool
}

// New builds a kernel from cfg. Nothing is loaded until Boot.
func New(cfg *config.Config, opts ...Option) (*Kernel, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	k := &Kernel{cfg: cfg, clock: systemClock{}}
	for _, opt := range opts {
		opt(k)
	}

	k.memory = memory.New(cfg.Memory.Buckets, memory.WithLoadThreshold(cfg.Memory.LoadFactor))
	k.ctx = api.NewContext(cfg.Kernel.Version, uuid.NewString(), k.memory)
	k.ctx.FixedDeltaTime = cfg.Kernel.FixedDeltaTime

	k.bus = bus.New(cfg.Signals.Buckets, cfg.Signals.QueueCapacity)
	k.sched = scheduler.New(cfg.Scheduler.Capacity)
	k.jobs = jobs.New(cfg.Jobs.Workers, cfg.Jobs.QueueCapacity)

	k.host = host.New(cfg.Modules.Dir, k.loaders...)
	builtins := []api.Module{
		bus.NewModule(k.bus),
		scheduler.NewModule(k.sched),
		jobs.NewModule(k.jobs, cfg.GetDrainTimeout()),
	}
	for _, m := range append(builtins, k.extra...) {
		if err := k.host.Register(m); err != nil {
			return nil, err
		}
	}
	return k, nil
}

// Boot publishes the core registry entries, discovers dir (the configured
// module directory when empty) and initializes every module. An error means
// the kernel cannot run; no module Init has been called after a dependency
// resolution failure.
func (k *Kernel) Boot(dir string) error {
	if k.booted {
		return errors.New("kernel already booted")
	}
	if dir == "" {
		dir = k.cfg.Modules.Dir
	}
	timer := logging.StartTimer(logging.CategoryBoot, "boot")
	defer timer.Stop()

	k.shouldRun.Store(true)
	k.lastTick = time.Time{}
	memory.Put(k.memory, api.KeyShouldRun, &k.shouldRun, false)
	memory.Put(k.memory, api.KeyVersion, k.cfg.Kernel.Version, true)
	memory.Put(k.memory, api.KeyInstance, k.ctx.Instance, true)
	logging.Boot("kernel %s booting (version %d, %d workers)", k.ctx.Instance, k.cfg.Kernel.Version, k.jobs.Workers())

	if err := k.host.Discover(dir); err != nil {
		return err
	}
	if err := k.host.Initialize(k.ctx); err != nil {
		return err
	}
	k.booted = true
	k.down = false
	return nil
}

// Tick runs one frame: frame delta, module updates, deferred signal flush,
// scheduler, job reaping, then a pending hot reload. Only a failed hot
// reload returns an error.
func (k *Kernel) Tick() error {
	if !k.booted {
		return ErrNotBooted
	}

	now := k.clock.Now()
	if k.lastTick.IsZero() {
		k.ctx.DeltaTime = 0
	} else {
		k.ctx.DeltaTime = now.Sub(k.lastTick).Seconds()
	}
	k.lastTick = now

	k.host.Update(k.ctx)
	if n := k.bus.Flush(k.ctx); n > 0 {
		logging.KernelDebug("frame %d: flushed %d deferred signals", k.ctx.Frame, n)
	}
	k.sched.Tick(k.ctx, k.ctx.DeltaTime)
	k.jobs.Reap()
	k.ctx.Frame++

	if k.reload.CompareAndSwap(true, false) {
		timer := logging.StartTimer(logging.CategoryKernel, "hot reload")
		err := k.host.HotReload(k.ctx)
		timer.Stop()
		if err != nil {
			return fmt.Errorf("hot reload failed: %w", err)
		}
	}
	return nil
}

// Run ticks until core::should_run is cleared, ctx ends or the tick limit
// is reached. Ticks are paced to kernel.tick_rate when it is positive.
func (k *Kernel) Run(ctx context.Context) error {
	if !k.booted {
		return ErrNotBooted
	}

	var pace <-chan time.Time
	if interval := k.cfg.GetTickInterval(); interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		pace = ticker.C
	}

	var ticks uint64
	for k.shouldRun.Load() {
		if ctx.Err() != nil {
			logging.Kernel("run loop cancelled after %d ticks", ticks)
			return nil
		}
		if k.maxTicks > 0 && ticks >= k.maxTicks {
			break
		}
		if err := k.Tick(); err != nil {
			return err
		}
		ticks++

		if pace != nil {
			select {
			case <-ctx.Done():
			case <-pace:
			}
		}
	}
	logging.Kernel("run loop finished after %d ticks", ticks)
	return nil
}

// Shutdown shuts modules down in reverse order, drains background jobs and
// tears down the registry. It is safe to call more than once and after a
// failed Boot.
func (k *Kernel) Shutdown() {
	if k.down {
		return
	}
	k.down = true

	timer := logging.StartTimer(logging.CategoryKernel, "shutdown")
	k.host.Shutdown(k.ctx)
	k.memory.Teardown()
	k.booted = false
	timer.Stop()
	logging.Kernel("kernel %s shut down after %d frames", k.ctx.Instance, k.ctx.Frame)
}

// Stop asks Run to return after the current tick. Safe from any goroutine.
func (k *Kernel) Stop() { k.shouldRun.Store(false) }

// RequestReload schedules a hot reload at the end of the next tick. Safe
// from any goroutine.
func (k *Kernel) RequestReload() { k.reload.Store(true) }

// Watch starts a watcher on the module directory that requests a hot reload
// whenever module files change. The caller stops it.
func (k *Kernel) Watch(ctx context.Context) (*host.Watcher, error) {
	w, err := host.NewWatcher(k.host.Dir(), k.cfg.GetWatchDebounce(), k.host.Accepts, k.RequestReload)
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return nil, fmt.Errorf("failed to watch %s: %w", k.host.Dir(), err)
	}
	return w, nil
}

// Context returns the shared module context.
func (k *Kernel) Context() *api.Context { return k.ctx }

// Memory returns the shared registry.
func (k *Kernel) Memory() *memory.Registry { return k.memory }

// Host returns the module host.
func (k *Kernel) Host() *host.Host { return k.host }

// Bus returns the signal bus.
func (k *Kernel) Bus() *bus.Bus { return k.bus }

// Scheduler returns the task scheduler.
func (k *Kernel) Scheduler() *scheduler.Scheduler { return k.sched }

// Jobs returns the background job system.
func (k *Kernel) Jobs() *jobs.System { return k.jobs }
