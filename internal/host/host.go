// Package host discovers modules, orders them by dependency and drives
// their lifecycle.
package host

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"modhost/internal/logging"
	"modhost/internal/resolver"
	"modhost/pkg/api"
)

// Record is one module known to the host.
type Record struct {
	Name     string
	Requires []string
	Optional []string
	// Path is the file the module was loaded from, empty for built-ins.
	Path string
	// Loader names the loader that produced the module, empty for built-ins.
	Loader  string
	Builtin bool

	module api.Module
	handle io.Closer
}

// Host owns the module records. It is driven from the control thread.
type Host struct {
	loaders    []Loader
	defaultDir string

	builtins   []*Record
	records    []*Record
	loadErrors []error
	lastDir    string
	ready      bool
}

// New creates a host. defaultDir is rediscovered by HotReload when Discover
// was never called. With no loaders the DefaultLoaders are used.
func New(defaultDir string, loaders ...Loader) *Host {
	if len(loaders) == 0 {
		loaders = DefaultLoaders()
	}
	return &Host{loaders: loaders, defaultDir: defaultDir}
}

// Register adds a module compiled into the host. Registered modules survive
// hot reloads and take part in dependency ordering like discovered ones.
func (h *Host) Register(m api.Module) error {
	meta := m.Metadata()
	if meta.Name == "" {
		return fmt.Errorf("register: module metadata has no name")
	}
	for _, r := range h.builtins {
		if r.Name == meta.Name {
			return fmt.Errorf("register %s: %w", meta.Name, ErrDuplicateModule)
		}
	}
	rec := newRecord(m, "", "")
	rec.Builtin = true
	h.builtins = append(h.builtins, rec)
	h.records = append(h.records, rec)
	return nil
}

func newRecord(m api.Module, path, loader string) *Record {
	meta := m.Metadata()
	return &Record{
		Name:     meta.Name,
		Requires: append([]string(nil), meta.Requires...),
		Optional: append([]string(nil), meta.Optional...),
		Path:     path,
		Loader:   loader,
		module:   m,
	}
}

// Accepts reports whether any loader handles path.
func (h *Host) Accepts(path string) bool {
	return h.loaderFor(path) != nil
}

func (h *Host) loaderFor(path string) Loader {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return nil
	}
	for _, l := range h.loaders {
		if l.Accepts(path) {
			return l
		}
	}
	return nil
}

// Discover loads every module file in dir and appends it to the records in
// directory order. Failing to read dir is fatal and returned. Files that
// fail to load are skipped; their errors are logged and kept in LoadErrors.
func (h *Host) Discover(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to open module directory: %w", err)
	}
	h.lastDir = dir
	h.loadErrors = nil

	timer := logging.StartTimer(logging.CategoryModules, "discover "+dir)
	defer timer.Stop()

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		loader := h.loaderFor(path)
		if loader == nil {
			continue
		}

		m, handle, err := loader.Load(path)
		if err != nil {
			h.recordLoadError(path, err)
			continue
		}
		rec := newRecord(m, path, loader.Name())
		rec.handle = handle
		if h.find(rec.Name) != nil {
			closeHandle(rec)
			h.recordLoadError(path, fmt.Errorf("%w: %s", ErrDuplicateModule, rec.Name))
			continue
		}

		h.records = append(h.records, rec)
		loaded++
		logging.ModulesDebug("loaded %s from %s (%s)", rec.Name, entry.Name(), loader.Name())
	}

	logging.Modules("discovered %d modules in %s (%d failed)", loaded, dir, len(h.loadErrors))
	return nil
}

func (h *Host) recordLoadError(path string, err error) {
	le := &LoadError{Path: path, Err: err}
	h.loadErrors = append(h.loadErrors, le)
	logging.ModulesError("%v", le)
}

func (h *Host) find(name string) *Record {
	for _, r := range h.records {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// Resolve computes the dependency order of the current records without
// changing them.
func (h *Host) Resolve() (resolver.Result, error) {
	nodes := make([]resolver.Node, len(h.records))
	for i, r := range h.records {
		nodes[i] = resolver.Node{Name: r.Name, Requires: r.Requires, Optional: r.Optional}
	}
	return resolver.Resolve(nodes)
}

// Initialize orders the records by dependency and calls Init on each in
// that order. A resolution failure is returned before any Init runs. Init
// errors are logged and do not stop the remaining modules.
func (h *Host) Initialize(ctx *api.Context) error {
	if h.ready {
		return fmt.Errorf("modules already initialized")
	}
	res, err := h.Resolve()
	if err != nil {
		return fmt.Errorf("failed to resolve module dependencies: %w", err)
	}

	byName := make(map[string]*Record, len(h.records))
	for _, r := range h.records {
		byName[r.Name] = r
	}
	ordered := make([]*Record, 0, len(res.Order))
	for _, name := range res.Order {
		ordered = append(ordered, byName[name])
	}
	h.records = ordered
	h.ready = true

	for _, r := range h.records {
		if err := r.module.Init(ctx); err != nil {
			logging.ModulesError("module %s init failed: %v", r.Name, err)
			continue
		}
		logging.ModulesDebug("initialized %s", r.Name)
	}
	logging.Modules("initialized %d modules: %s", len(h.records), strings.Join(res.Order, ", "))
	return nil
}

// Update calls Update on every module in initialization order.
func (h *Host) Update(ctx *api.Context) {
	if !h.ready {
		return
	}
	for _, r := range h.records {
		if err := r.module.Update(ctx); err != nil {
			logging.Get(logging.CategoryModules).Warn("module %s update: %v", r.Name, err)
		}
	}
}

// Shutdown calls Shutdown on every module in reverse initialization order,
// then closes the handles of discovered modules and forgets them. Built-in
// modules stay registered.
func (h *Host) Shutdown(ctx *api.Context) {
	if h.ready {
		for i := len(h.records) - 1; i >= 0; i-- {
			r := h.records[i]
			if err := r.module.Shutdown(ctx); err != nil {
				logging.ModulesError("module %s shutdown failed: %v", r.Name, err)
				continue
			}
			logging.ModulesDebug("shut down %s", r.Name)
		}
	}

	for _, r := range h.records {
		if !r.Builtin {
			closeHandle(r)
		}
	}
	h.records = append([]*Record(nil), h.builtins...)
	h.ready = false
}

func closeHandle(r *Record) {
	if r.handle == nil {
		return
	}
	if err := r.handle.Close(); err != nil {
		logging.ModulesError("failed to unload %s: %v", r.Name, err)
	}
	r.handle = nil
}

// HotReload shuts every module down, unloads discovered modules, then
// rediscovers the last discovered directory (or the default directory) and
// initializes again. Discovery and resolution errors are returned; the host
// is left with only its built-in modules registered in that case.
func (h *Host) HotReload(ctx *api.Context) error {
	dir := h.lastDir
	if dir == "" {
		dir = h.defaultDir
	}
	logging.Modules("hot reload: %s", dir)

	h.Shutdown(ctx)
	if err := h.Discover(dir); err != nil {
		return err
	}
	if err := h.Initialize(ctx); err != nil {
		h.Shutdown(ctx)
		return err
	}
	return nil
}

// Records returns a snapshot of the records: discovery order before
// Initialize, dependency order after.
func (h *Host) Records() []Record {
	out := make([]Record, len(h.records))
	for i, r := range h.records {
		out[i] = *r
	}
	return out
}

// LoadErrors returns the recoverable errors of the last discovery.
func (h *Host) LoadErrors() []error {
	return append([]error(nil), h.loadErrors...)
}

// Dir returns the directory HotReload will rediscover.
func (h *Host) Dir() string {
	if h.lastDir != "" {
		return h.lastDir
	}
	return h.defaultDir
}

// Initialized reports whether Initialize has run since the last Shutdown.
func (h *Host) Initialized() bool { return h.ready }
