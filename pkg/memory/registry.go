// Package memory implements the named memory registry: string-keyed storage
// with per-entry ownership tracking. The kernel publishes every shared entry
// point through one Registry so that modules find each other by key instead
// of by import.
//
// Ownership contract: an entry bound with owned=true belongs to the registry,
// which releases it when the key is overwritten, removed or torn down. An
// entry bound with owned=false is a borrowed reference. The registry never
// releases it and the binder must keep it valid for as long as the key is
// registered; nothing enforces this.
package memory

import (
	"errors"
	"fmt"
	"io"
	"reflect"

	"modhost/internal/logging"
)

var (
	// ErrNotFound is returned by Lookup when the key is not registered.
	ErrNotFound = errors.New("memory: key not registered")

	// ErrTypeMismatch is matched by TypeMismatchError.
	ErrTypeMismatch = errors.New("memory: type mismatch")
)

// TypeMismatchError reports a Lookup whose requested type differs from the
// type stored under the key.
type TypeMismatchError struct {
	Key  string
	Want reflect.Type
	Got  reflect.Type
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("memory: key %q holds %v, not %v", e.Key, e.Got, e.Want)
}

// Is makes errors.Is(err, ErrTypeMismatch) work.
func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// Releaser is implemented by owned values that hold resources of their own.
type Releaser interface {
	Release()
}

// Entry is one registered value.
type Entry struct {
	Key   string
	Value any
	Size  uintptr
	Owned bool
}

// Type returns the dynamic type of the stored value.
func (e Entry) Type() reflect.Type {
	return reflect.TypeOf(e.Value)
}

// Registry is the named memory map. It is owned by the control thread and
// is not safe for concurrent use; background jobs must not touch it.
type Registry struct {
	table *Table[*Entry]
}

// New creates a registry with the given initial bucket count.
func New(buckets int, opts ...TableOption) *Registry {
	opts = append([]TableOption{WithRehashHook(func(from, to int) {
		logging.MemoryDebug("registry rehashed: %d -> %d buckets", from, to)
	})}, opts...)
	return &Registry{table: NewTable[*Entry](buckets, opts...)}
}

// Allocate reserves size zero-initialised bytes, registers them as an owned
// entry under key and returns them. A previous owned entry under key is
// released first. A negative size returns nil.
func (r *Registry) Allocate(key string, size int) []byte {
	if size < 0 {
		return nil
	}
	buf := make([]byte, size)
	r.Bind(key, buf, uintptr(size), true)
	return buf
}

// Bind registers value under key with an explicit ownership flag. Binding
// over an existing key updates it in place; the old value is released first
// if it was owned and is not the value being bound.
func (r *Registry) Bind(key string, value any, size uintptr, owned bool) {
	entry := &Entry{Key: key, Value: value, Size: size, Owned: owned}
	if old, ok := r.table.Set(key, entry); ok && old.Owned && !sameValue(old.Value, value) {
		release(old.Value)
	}
}

// Get returns the value stored under key.
func (r *Registry) Get(key string) (any, bool) {
	e, ok := r.table.Get(key)
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// GetSize returns the recorded size for key, or 0 if it is not registered.
func (r *Registry) GetSize(key string) uintptr {
	e, ok := r.table.Get(key)
	if !ok {
		return 0
	}
	return e.Size
}

// Entry returns a copy of the entry stored under key.
func (r *Registry) Entry(key string) (Entry, bool) {
	e, ok := r.table.Get(key)
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	_, ok := r.table.Get(key)
	return ok
}

// Remove deletes key, releasing its value if owned. It reports whether an
// entry existed.
func (r *Registry) Remove(key string) bool {
	e, ok := r.table.Delete(key)
	if !ok {
		return false
	}
	if e.Owned {
		release(e.Value)
	}
	return true
}

// Teardown releases every owned entry and drops all entries. Entries bound
// with owned=false are left untouched. The registry is empty but usable
// afterwards.
func (r *Registry) Teardown() {
	released := 0
	r.table.Range(func(_ string, e *Entry) bool {
		if e.Owned {
			release(e.Value)
			released++
		}
		return true
	})
	logging.MemoryDebug("registry teardown: %d entries, %d owned released", r.table.Len(), released)
	r.table.Clear(r.table.Buckets())
}

// Len returns the number of entries.
func (r *Registry) Len() int { return r.table.Len() }

// Buckets returns the current bucket count.
func (r *Registry) Buckets() int { return r.table.Buckets() }

// LoadFactor returns entries per bucket.
func (r *Registry) LoadFactor() float64 { return r.table.LoadFactor() }

// Optimize forces a rehash to the target load factor.
func (r *Registry) Optimize(target float64) { r.table.Rehash(target) }

// Keys returns every registered key in bucket order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, r.table.Len())
	r.table.Range(func(k string, _ *Entry) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// Put binds v under key, recording the size of its static type.
func Put[T any](r *Registry, key string, v T, owned bool) {
	r.Bind(key, v, sizeOf(v), owned)
}

// Lookup returns the value under key as a T. It returns ErrNotFound when the
// key is absent and a *TypeMismatchError when the stored value is not a T.
func Lookup[T any](r *Registry, key string) (T, error) {
	var zero T
	v, ok := r.Get(key)
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	t, ok := v.(T)
	if !ok {
		return zero, &TypeMismatchError{
			Key:  key,
			Want: reflect.TypeOf((*T)(nil)).Elem(),
			Got:  reflect.TypeOf(v),
		}
	}
	return t, nil
}

func sizeOf(v any) uintptr {
	switch b := v.(type) {
	case nil:
		return 0
	case []byte:
		return uintptr(len(b))
	}
	return reflect.TypeOf(v).Size()
}

// release frees an owned value: byte buffers are scrubbed, Releasers and
// io.Closers are released/closed.
func release(v any) {
	switch x := v.(type) {
	case []byte:
		clear(x)
	case Releaser:
		x.Release()
	case io.Closer:
		_ = x.Close()
	}
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Slice:
		return va.Len() == vb.Len() && va.Pointer() == vb.Pointer()
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	}
	if va.Type().Comparable() {
		return a == b
	}
	return false
}
