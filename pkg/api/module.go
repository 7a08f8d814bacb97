// Package api is the contract between the kernel and its modules.
//
// A module is anything implementing Module. Modules compiled into the host
// implement it directly; modules loaded from the module directory export a
// Load function returning a Descriptor, which the host adapts once at load
// time:
//
//	package main
//
//	import "modhost/pkg/api"
//
//	func Load() api.Descriptor {
//		return api.Descriptor{
//			Meta: api.Metadata{Name: "Game", Requires: []string{"Signals"}},
//			Init: func(ctx *api.Context) error { return nil },
//		}
//	}
//
// Load is called again on every discovery, so state captured by the returned
// closures is per instance and does not survive a hot reload.
package api

// LoadSymbol is the entry point every dynamic module exports.
const LoadSymbol = "Load"

// Metadata names a module and its dependency edges.
type Metadata struct {
	Name     string
	Requires []string
	Optional []string
}

// Module is the fixed lifecycle capability set driven by the host.
// A non-nil error is logged by the host and has no further effect.
type Module interface {
	Metadata() Metadata
	Init(ctx *Context) error
	Update(ctx *Context) error
	Shutdown(ctx *Context) error
}

// LifecycleFunc is one lifecycle entry point of a Descriptor.
type LifecycleFunc func(ctx *Context) error

// Descriptor is what a dynamic module's Load function returns. Nil
// lifecycle functions are skipped.
type Descriptor struct {
	Meta     Metadata
	Init     LifecycleFunc
	Update   LifecycleFunc
	Shutdown LifecycleFunc
}

// Module adapts d to the Module interface.
func (d Descriptor) Module() Module {
	return descriptorModule{d: d}
}

type descriptorModule struct {
	d Descriptor
}

func (m descriptorModule) Metadata() Metadata { return m.d.Meta }

func (m descriptorModule) Init(ctx *Context) error {
	if m.d.Init == nil {
		return nil
	}
	return m.d.Init(ctx)
}

func (m descriptorModule) Update(ctx *Context) error {
	if m.d.Update == nil {
		return nil
	}
	return m.d.Update(ctx)
}

func (m descriptorModule) Shutdown(ctx *Context) error {
	if m.d.Shutdown == nil {
		return nil
	}
	return m.d.Shutdown(ctx)
}
