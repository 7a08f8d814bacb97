//go:build !((linux || darwin || freebsd) && cgo)

package host

import (
	"io"
	"path/filepath"

	"modhost/pkg/api"
)

// PluginLoader reports *.so modules as unsupported on builds without Go
// plugin support.
type PluginLoader struct{}

// NewPluginLoader creates the native plugin loader.
func NewPluginLoader() *PluginLoader { return &PluginLoader{} }

func (l *PluginLoader) Name() string { return "plugin" }

func (l *PluginLoader) Accepts(path string) bool {
	return filepath.Ext(path) == ".so"
}

func (l *PluginLoader) Load(string) (api.Module, io.Closer, error) {
	return nil, nil, ErrUnsupported
}
