package api

import (
	"sync/atomic"

	"modhost/internal/logging"
	"modhost/pkg/memory"
)

// Context is the shared host context passed to every lifecycle call. It is
// owned by the control thread; background jobs must not use it.
type Context struct {
	// Version is the host version handed to modules.
	Version int
	// Instance identifies this kernel instance.
	Instance string
	// Memory is the shared named memory registry.
	Memory *memory.Registry

	// DeltaTime is the time in seconds since the previous tick.
	DeltaTime float64
	// FixedDeltaTime is the configured fixed step in seconds.
	FixedDeltaTime float64
	// Frame counts completed ticks.
	Frame uint64
}

// NewContext creates a context over mem.
func NewContext(version int, instance string, mem *memory.Registry) *Context {
	return &Context{
		Version:  version,
		Instance: instance,
		Memory:   mem,
	}
}

func (c *Context) logger() *logging.Logger {
	return logging.Get(logging.CategoryModule)
}

// Debugf logs at debug level through the host logger.
func (c *Context) Debugf(format string, args ...interface{}) { c.logger().Debug(format, args...) }

// Infof logs at info level through the host logger.
func (c *Context) Infof(format string, args ...interface{}) { c.logger().Info(format, args...) }

// Warnf logs at warn level through the host logger.
func (c *Context) Warnf(format string, args ...interface{}) { c.logger().Warn(format, args...) }

// Errorf logs at error level through the host logger.
func (c *Context) Errorf(format string, args ...interface{}) { c.logger().Error(format, args...) }

// Get returns the registry value under key.
func (c *Context) Get(key string) (any, bool) {
	return c.Memory.Get(key)
}

// Stop asks the kernel to leave its run loop after the current tick.
func (c *Context) Stop() {
	if flag, err := memory.Lookup[*atomic.Bool](c.Memory, KeyShouldRun); err == nil {
		flag.Store(false)
	}
}

// Fetch returns the registry value under key as a T.
func Fetch[T any](ctx *Context, key string) (T, error) {
	return memory.Lookup[T](ctx.Memory, key)
}
