//go:build (linux || darwin || freebsd) && cgo

package host

import (
	"fmt"
	"io"
	"path/filepath"
	"plugin"

	"modhost/pkg/api"
)

// PluginLoader opens *.so files built with -buildmode=plugin. The plugin
// must export func Load() api.Descriptor and be built against the same
// version of this module.
type PluginLoader struct{}

// NewPluginLoader creates the native plugin loader.
func NewPluginLoader() *PluginLoader { return &PluginLoader{} }

func (l *PluginLoader) Name() string { return "plugin" }

func (l *PluginLoader) Accepts(path string) bool {
	return filepath.Ext(path) == ".so"
}

// Load opens the plugin. Go plugins cannot be unloaded, so the returned
// handle is a no-op and reopening a path yields the already loaded code.
func (l *PluginLoader) Load(path string) (api.Module, io.Closer, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open plugin: %w", err)
	}
	sym, err := p.Lookup(api.LoadSymbol)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNoEntryPoint, err)
	}
	load, ok := sym.(func() api.Descriptor)
	if !ok {
		return nil, nil, fmt.Errorf("%w: Load has type %T (expected: func() api.Descriptor)", ErrNoEntryPoint, sym)
	}

	desc, err := descriptorFromLoad(load)
	if err != nil {
		return nil, nil, err
	}
	return desc.Module(), nopCloser{}, nil
}
