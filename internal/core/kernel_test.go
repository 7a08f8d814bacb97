package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"modhost/internal/config"
	"modhost/internal/resolver"
	"modhost/pkg/api"
	"modhost/pkg/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// TEST HELPERS
// =============================================================================

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// probe is a compiled-in module driven by closures.
type probe struct {
	meta     api.Metadata
	init     func(*api.Context) error
	update   func(*api.Context) error
	shutdown func(*api.Context) error
}

func (p *probe) Metadata() api.Metadata { return p.meta }

func (p *probe) Init(ctx *api.Context) error {
	if p.init == nil {
		return nil
	}
	return p.init(ctx)
}

func (p *probe) Update(ctx *api.Context) error {
	if p.update == nil {
		return nil
	}
	return p.update(ctx)
}

func (p *probe) Shutdown(ctx *api.Context) error {
	if p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Kernel.TickRate = 0
	cfg.Modules.Dir = t.TempDir()
	cfg.Jobs.Workers = 2
	return cfg
}

func newKernel(t *testing.T, opts ...Option) (*Kernel, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	k, err := New(testConfig(t), append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(k.Shutdown)
	return k, clock
}

// =============================================================================
// BOOT
// =============================================================================

func TestBoot_PublishesCoreEntries(t *testing.T) {
	k, _ := newKernel(t)
	require.NoError(t, k.Boot(""))

	mem := k.Memory()
	for _, key := range []string{
		api.KeyShouldRun, api.KeyVersion, api.KeyInstance,
		api.KeySignalConnect, api.KeySignalEmit, api.KeySignalEmitDeferred, api.KeySignalDisconnect,
		api.KeySchedulerRegister, api.KeySchedulerRemove,
		api.KeyThreadSpawn, api.KeyThreadSpawnWithResult,
		api.KeyThreadMutexLock, api.KeyThreadMutexTryLock, api.KeyThreadMutexUnlock,
	} {
		assert.True(t, mem.Has(key), "missing %s", key)
	}

	instance, err := memory.Lookup[string](mem, api.KeyInstance)
	require.NoError(t, err)
	assert.Equal(t, k.Context().Instance, instance)

	var names []string
	for _, r := range k.Host().Records() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{api.ModuleSignals, api.ModuleScheduler, api.ModuleThreads}, names)
}

func TestBoot_MissingDirIsFatal(t *testing.T) {
	k, _ := newKernel(t)
	err := k.Boot(filepath.Join(t.TempDir(), "absent"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.ErrorIs(t, k.Tick(), ErrNotBooted)
}

func TestBoot_CycleIsFatal(t *testing.T) {
	inits := 0
	countInit := func(*api.Context) error { inits++; return nil }
	k, _ := newKernel(t, WithModules(
		&probe{meta: api.Metadata{Name: "X", Requires: []string{"Y"}}, init: countInit},
		&probe{meta: api.Metadata{Name: "Y", Requires: []string{"X"}}, init: countInit},
	))

	err := k.Boot("")
	var cycle *resolver.CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, 0, inits)
	assert.False(t, k.Memory().Has(api.KeySignalConnect), "built-ins are not initialized either")
}

func TestBoot_Twice(t *testing.T) {
	k, _ := newKernel(t)
	require.NoError(t, k.Boot(""))
	assert.Error(t, k.Boot(""))
}

// =============================================================================
// TICK
// =============================================================================

func TestTick_Order(t *testing.T) {
	var events []string
	game := &probe{
		meta: api.Metadata{Name: "Game", Requires: []string{api.ModuleSignals, api.ModuleScheduler}},
		init: func(ctx *api.Context) error {
			connect, err := api.Fetch[api.ConnectFunc](ctx, api.KeySignalConnect)
			if err != nil {
				return err
			}
			connect("frame_end", func(*api.Context, any, any, any) {
				events = append(events, "signal")
			}, nil)

			schedule, err := api.Fetch[api.ScheduleFunc](ctx, api.KeySchedulerRegister)
			if err != nil {
				return err
			}
			schedule("autosave", 1.0, func(*api.Context, any) {
				events = append(events, "task")
			}, nil)
			return nil
		},
		update: func(ctx *api.Context) error {
			events = append(events, "update")
			deferred, err := api.Fetch[api.EmitDeferredFunc](ctx, api.KeySignalEmitDeferred)
			if err != nil {
				return err
			}
			deferred("frame_end", nil, nil)
			return nil
		},
	}
	k, clock := newKernel(t, WithModules(game))
	require.NoError(t, k.Boot(""))

	require.NoError(t, k.Tick())
	assert.Equal(t, 0.0, k.Context().DeltaTime, "first tick has no delta")
	assert.Equal(t, []string{"update", "signal"}, events)

	events = nil
	clock.Advance(time.Second)
	require.NoError(t, k.Tick())
	assert.InDelta(t, 1.0, k.Context().DeltaTime, 1e-9)
	assert.Equal(t, []string{"update", "signal", "task"}, events)
	assert.Equal(t, uint64(2), k.Context().Frame)
}

func TestTick_DeliversJobResults(t *testing.T) {
	var results []error
	failure := errors.New("checksum mismatch")
	release := make(chan struct{})

	worker := &probe{
		meta: api.Metadata{Name: "Worker", Requires: []string{api.ModuleThreads}},
		init: func(ctx *api.Context) error {
			spawn, err := api.Fetch[api.SpawnWithResultFunc](ctx, api.KeyThreadSpawnWithResult)
			if err != nil {
				return err
			}
			spawn(func(any) error {
				<-release
				return failure
			}, nil, func(err error) { results = append(results, err) })
			return nil
		},
	}
	k, _ := newKernel(t, WithModules(worker))
	require.NoError(t, k.Boot(""))

	require.NoError(t, k.Tick())
	assert.Empty(t, results)

	close(release)
	deadline := time.Now().Add(5 * time.Second)
	for len(results) == 0 && time.Now().Before(deadline) {
		require.NoError(t, k.Tick())
		time.Sleep(time.Millisecond)
	}
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0], failure)
}

// =============================================================================
// RUN / SHUTDOWN
// =============================================================================

func TestRun_MaxTicks(t *testing.T) {
	updates := 0
	k, _ := newKernel(t, WithMaxTicks(5), WithModules(&probe{
		meta:   api.Metadata{Name: "Counter"},
		update: func(*api.Context) error { updates++; return nil },
	}))
	require.NoError(t, k.Boot(""))
	require.NoError(t, k.Run(context.Background()))
	assert.Equal(t, 5, updates)
}

func TestRun_ModuleStopsLoop(t *testing.T) {
	k, _ := newKernel(t, WithModules(&probe{
		meta: api.Metadata{Name: "Quitter"},
		update: func(ctx *api.Context) error {
			if ctx.Frame == 2 {
				ctx.Stop()
			}
			return nil
		},
	}))
	require.NoError(t, k.Boot(""))
	require.NoError(t, k.Run(context.Background()))
	assert.Equal(t, uint64(3), k.Context().Frame)
}

func TestRun_ContextCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Kernel.TickRate = 1000
	k, err := New(cfg)
	require.NoError(t, err)
	defer k.Shutdown()
	require.NoError(t, k.Boot(""))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.NoError(t, k.Run(ctx))
	assert.Greater(t, k.Context().Frame, uint64(0))
}

func TestRun_NotBooted(t *testing.T) {
	k, _ := newKernel(t)
	assert.ErrorIs(t, k.Run(context.Background()), ErrNotBooted)
}

func TestShutdown_ReverseOrderAndTeardown(t *testing.T) {
	var order []string
	track := func(name string) func(*api.Context) error {
		return func(*api.Context) error { order = append(order, name); return nil }
	}
	buf := []byte("secret")

	k, _ := newKernel(t, WithModules(
		&probe{meta: api.Metadata{Name: "UI", Requires: []string{"Engine"}}, shutdown: track("UI")},
		&probe{
			meta: api.Metadata{Name: "Engine"},
			init: func(ctx *api.Context) error {
				ctx.Memory.Bind("engine::scratch", buf, uintptr(len(buf)), true)
				return nil
			},
			shutdown: track("Engine"),
		},
	))
	require.NoError(t, k.Boot(""))
	require.NoError(t, k.Tick())

	k.Shutdown()
	k.Shutdown()

	assert.Equal(t, []string{"UI", "Engine"}, order)
	assert.Equal(t, make([]byte, len(buf)), buf, "owned buffers are scrubbed at teardown")
	assert.Equal(t, 0, k.Memory().Len())
}

// =============================================================================
// HOT RELOAD
// =============================================================================

const versionModule = `package main

import "modhost/pkg/api"

func Load() api.Descriptor {
	return api.Descriptor{
		Meta: api.Metadata{Name: "Versioned"},
		Init: func(ctx *api.Context) error {
			ctx.Memory.Bind("versioned::value", VALUE, 8, false)
			return nil
		},
	}
}
`

func writeVersionModule(t *testing.T, dir, value string) {
	t.Helper()
	src := []byte(strings.ReplaceAll(versionModule, "VALUE", value))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "versioned.go"), src, 0644))
}

func TestRequestReload(t *testing.T) {
	cfg := testConfig(t)
	writeVersionModule(t, cfg.Modules.Dir, "1")
	k, err := New(cfg)
	require.NoError(t, err)
	defer k.Shutdown()
	require.NoError(t, k.Boot(""))

	v, err := memory.Lookup[int](k.Memory(), "versioned::value")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	writeVersionModule(t, cfg.Modules.Dir, "2")
	require.NoError(t, k.Tick())
	v, _ = memory.Lookup[int](k.Memory(), "versioned::value")
	assert.Equal(t, 1, v, "nothing changes without a reload request")

	k.RequestReload()
	require.NoError(t, k.Tick())
	v, err = memory.Lookup[int](k.Memory(), "versioned::value")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.True(t, k.Memory().Has(api.KeySignalConnect))
}

func TestRequestReload_FailureIsReturned(t *testing.T) {
	cfg := testConfig(t)
	k, err := New(cfg)
	require.NoError(t, err)
	defer k.Shutdown()
	require.NoError(t, k.Boot(""))

	require.NoError(t, os.RemoveAll(cfg.Modules.Dir))
	k.RequestReload()
	assert.ErrorContains(t, k.Tick(), "hot reload failed")
}

func TestWatch_RequestsReload(t *testing.T) {
	cfg := testConfig(t)
	cfg.Modules.WatchDebounce = "20ms"
	k, err := New(cfg)
	require.NoError(t, err)
	defer k.Shutdown()
	require.NoError(t, k.Boot(""))

	w, err := k.Watch(context.Background())
	require.NoError(t, err)
	defer w.Stop()

	writeVersionModule(t, cfg.Modules.Dir, "3")
	require.Eventually(t, func() bool { return k.reload.Load() }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, k.Tick())
	v, err := memory.Lookup[int](k.Memory(), "versioned::value")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Jobs.Workers = 0
	_, err := New(cfg)
	assert.ErrorContains(t, err, "invalid config")
}
