// Package bus implements the named publish/subscribe signal bus with
// immediate and deferred delivery.
package bus

import (
	"modhost/internal/logging"
	"modhost/pkg/api"
	"modhost/pkg/memory"
)

const (
	// DefaultBuckets is the initial bucket count of the subscriber table.
	DefaultBuckets = 32

	// DefaultQueueCapacity is the initial capacity of the deferred queue.
	DefaultQueueCapacity = 16
)

// Connection is one subscription.
type Connection struct {
	ID       api.SignalID
	Signal   string
	Callback api.SignalCallback
	UserData any
}

type queuedSignal struct {
	name   string
	sender any
	args   any
}

// Bus dispatches named signals to subscribers. It is owned by the control
// thread and is not safe for concurrent use.
type Bus struct {
	signals  *memory.Table[[]*Connection]
	queue    []queuedSignal
	buckets  int
	queueCap int
	nextID   api.SignalID
}

// New creates a bus. Non-positive sizes fall back to the defaults.
func New(buckets, queueCapacity int) *Bus {
	if buckets <= 0 {
		buckets = DefaultBuckets
	}
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	return &Bus{
		signals: memory.NewTable[[]*Connection](buckets, memory.WithRehashHook(func(from, to int) {
			logging.SignalsDebug("signal table rehashed: %d -> %d buckets", from, to)
		})),
		queue:    make([]queuedSignal, 0, queueCapacity),
		buckets:  buckets,
		queueCap: queueCapacity,
		nextID:   1,
	}
}

// Connect subscribes cb to the named signal and returns the connection id.
// A nil callback is rejected and returns 0.
func (b *Bus) Connect(name string, cb api.SignalCallback, userData any) api.SignalID {
	if cb == nil {
		logging.Get(logging.CategorySignals).Warn("connect %q: nil callback rejected", name)
		return 0
	}
	id := b.nextID
	b.nextID++

	conns, _ := b.signals.Get(name)
	b.signals.Set(name, append(conns, &Connection{ID: id, Signal: name, Callback: cb, UserData: userData}))

	logging.SignalsDebug("connected #%d to %q", id, name)
	return id
}

// Disconnect removes the subscription with the given id wherever it is
// stored. It reports whether one was found.
func (b *Bus) Disconnect(id api.SignalID) bool {
	name, idx := "", -1
	b.signals.Range(func(signal string, conns []*Connection) bool {
		for i, c := range conns {
			if c.ID == id {
				name, idx = signal, i
				return false
			}
		}
		return true
	})
	if idx < 0 {
		return false
	}

	conns, _ := b.signals.Get(name)
	// Copy so that an Emit iterating the old slice is unaffected.
	next := make([]*Connection, 0, len(conns)-1)
	next = append(next, conns[:idx]...)
	next = append(next, conns[idx+1:]...)
	if len(next) == 0 {
		b.signals.Delete(name)
	} else {
		b.signals.Set(name, next)
	}

	logging.SignalsDebug("disconnected #%d from %q", id, name)
	return true
}

// Emit synchronously invokes every subscriber of name in subscription
// order. Subscribers connected or disconnected by a callback take effect
// from the next emission.
func (b *Bus) Emit(ctx *api.Context, name string, sender, args any) {
	conns, ok := b.signals.Get(name)
	if !ok {
		return
	}
	for _, c := range conns {
		c.Callback(ctx, sender, args, c.UserData)
	}
}

// EmitDeferred queues a signal for the next Flush.
func (b *Bus) EmitDeferred(name string, sender, args any) {
	b.queue = append(b.queue, queuedSignal{name: name, sender: sender, args: args})
}

// Flush replays queued signals in FIFO order and returns how many were
// replayed. Signals deferred by callbacks during the flush are held for the
// next one.
func (b *Bus) Flush(ctx *api.Context) int {
	if len(b.queue) == 0 {
		return 0
	}
	pending := b.queue
	b.queue = make([]queuedSignal, 0, b.queueCap)

	for _, s := range pending {
		b.Emit(ctx, s.name, s.sender, s.args)
	}
	return len(pending)
}

// Pending returns the number of queued deferred signals.
func (b *Bus) Pending() int { return len(b.queue) }

// Subscribers returns the number of connections to name.
func (b *Bus) Subscribers(name string) int {
	conns, _ := b.signals.Get(name)
	return len(conns)
}

// Buckets returns the current bucket count of the signal table.
func (b *Bus) Buckets() int { return b.signals.Buckets() }

// Reset drops every connection and queued signal and shrinks the signal
// table back to its configured size. Connection ids keep increasing.
func (b *Bus) Reset() {
	b.signals.Clear(b.buckets)
	b.queue = make([]queuedSignal, 0, b.queueCap)
}
