package host

import (
	"errors"
	"fmt"
	"io"

	"modhost/pkg/api"
)

var (
	// ErrNoEntryPoint is wrapped by load errors for files without a usable
	// Load function.
	ErrNoEntryPoint = errors.New("missing Load entry point")

	// ErrDuplicateModule is wrapped by load errors for a module whose name
	// is already registered.
	ErrDuplicateModule = errors.New("duplicate module name")

	// ErrUnsupported is returned by loaders that cannot run on this build.
	ErrUnsupported = errors.New("module format not supported by this build")
)

// Loader turns one file of the module directory into a module.
type Loader interface {
	// Name identifies the loader in logs.
	Name() string
	// Accepts reports whether path has a format this loader handles.
	Accepts(path string) bool
	// Load loads path and returns the module together with the handle that
	// keeps its code alive. The handle is closed after Shutdown.
	Load(path string) (api.Module, io.Closer, error)
}

// LoadError is a recoverable failure to load one file.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// DefaultLoaders returns the interpreter loader followed by the native
// plugin loader.
func DefaultLoaders() []Loader {
	return []Loader{NewYaegiLoader(), NewPluginLoader()}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// descriptorFromLoad calls a module's Load function and validates the
// result.
func descriptorFromLoad(load func() api.Descriptor) (desc api.Descriptor, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("Load panicked: %v", r)
		}
	}()
	desc = load()
	if desc.Meta.Name == "" {
		return desc, errors.New("module metadata has no name")
	}
	return desc, nil
}
