package host

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"modhost/pkg/api"
)

// YaegiLoader interprets *.go module sources. Each file is a self-contained
// package main exporting func Load() api.Descriptor. Interpreted code can
// import the standard library, modhost/pkg/api and modhost/pkg/memory.
type YaegiLoader struct{}

// NewYaegiLoader creates the interpreter loader.
func NewYaegiLoader() *YaegiLoader { return &YaegiLoader{} }

func (l *YaegiLoader) Name() string { return "yaegi" }

func (l *YaegiLoader) Accepts(path string) bool {
	return filepath.Ext(path) == ".go" && !strings.HasSuffix(path, "_test.go")
}

// Load evaluates the file in a fresh interpreter. Every call yields
// independent module state.
func (l *YaegiLoader) Load(path string) (api.Module, io.Closer, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read module source: %w", err)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, nil, fmt.Errorf("failed to load stdlib: %w", err)
	}
	if err := i.Use(Symbols); err != nil {
		return nil, nil, fmt.Errorf("failed to load module API: %w", err)
	}

	if _, err := i.Eval(string(src)); err != nil {
		return nil, nil, fmt.Errorf("module evaluation failed: %w", err)
	}

	sym, err := i.Eval("main." + api.LoadSymbol)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNoEntryPoint, err)
	}
	load, ok := sym.Interface().(func() api.Descriptor)
	if !ok {
		return nil, nil, fmt.Errorf("%w: Load has incorrect signature (expected: func() api.Descriptor)", ErrNoEntryPoint)
	}

	desc, err := descriptorFromLoad(load)
	if err != nil {
		return nil, nil, err
	}
	return desc.Module(), &interpreterHandle{interp: i}, nil
}

// interpreterHandle keeps the interpreter reachable while its closures are
// in use.
type interpreterHandle struct {
	interp *interp.Interpreter
}

func (h *interpreterHandle) Close() error {
	h.interp = nil
	return nil
}
