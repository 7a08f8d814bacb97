package bus

import (
	"modhost/pkg/api"
	"modhost/pkg/memory"
)

// Module exposes a Bus to other modules as the built-in "Signals" module.
type Module struct {
	bus *Bus
}

// NewModule wraps b.
func NewModule(b *Bus) *Module {
	return &Module{bus: b}
}

func (m *Module) Metadata() api.Metadata {
	return api.Metadata{Name: api.ModuleSignals}
}

// Init publishes the bus entry points.
func (m *Module) Init(ctx *api.Context) error {
	b := m.bus
	memory.Put(ctx.Memory, api.KeySignalConnect, api.ConnectFunc(b.Connect), false)
	memory.Put(ctx.Memory, api.KeySignalDisconnect, api.DisconnectFunc(func(id api.SignalID) {
		b.Disconnect(id)
	}), false)
	memory.Put(ctx.Memory, api.KeySignalEmit, api.EmitFunc(b.Emit), false)
	memory.Put(ctx.Memory, api.KeySignalEmitDeferred, api.EmitDeferredFunc(b.EmitDeferred), false)
	return nil
}

// Update is a no-op; the kernel flushes the bus once per tick.
func (m *Module) Update(*api.Context) error { return nil }

// Shutdown withdraws the entry points and drops all subscriptions.
func (m *Module) Shutdown(ctx *api.Context) error {
	for _, key := range []string{
		api.KeySignalConnect,
		api.KeySignalDisconnect,
		api.KeySignalEmit,
		api.KeySignalEmitDeferred,
	} {
		ctx.Memory.Remove(key)
	}
	m.bus.Reset()
	return nil
}
