// Package resolver orders modules so that every module comes after the
// modules it depends on.
package resolver

import (
	"errors"
	"fmt"
	"strings"

	"modhost/internal/logging"
)

// ErrDuplicateModule is returned when two nodes share a name.
var ErrDuplicateModule = errors.New("duplicate module name")

// Node is the resolver's view of one module.
type Node struct {
	Name     string
	Requires []string
	Optional []string
}

// Warning records an optional dependency that was not present.
type Warning struct {
	Module     string
	Dependency string
}

func (w Warning) String() string {
	return fmt.Sprintf("module %s: optional dependency %s not found", w.Module, w.Dependency)
}

// Result is a successful resolution.
type Result struct {
	// Order lists module names, dependencies first.
	Order    []string
	Warnings []Warning
}

// MissingDependencyError reports a required dependency that was not present.
type MissingDependencyError struct {
	Module     string
	Dependency string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("module %s requires %s, which was not found", e.Module, e.Dependency)
}

// CycleError reports a dependency cycle. Path starts and ends with the same
// module.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

type state uint8

const (
	unvisited state = iota
	visiting
	visited
)

type resolver struct {
	nodes    []Node
	index    map[string]int
	state    []state
	stack    []string
	order    []string
	warnings []Warning
}

// Resolve returns a dependency-first ordering of nodes.
//
// Traversal is depth first from every unvisited node in input order, so
// independent subgraphs keep their discovery order. Required edges are
// followed before optional ones. A missing required dependency or a cycle
// (through either kind of edge) fails the whole resolution and no partial
// order is returned. A missing optional dependency is logged and recorded as
// a warning.
func Resolve(nodes []Node) (Result, error) {
	r := &resolver{
		nodes: nodes,
		index: make(map[string]int, len(nodes)),
		state: make([]state, len(nodes)),
		order: make([]string, 0, len(nodes)),
	}
	for i, n := range nodes {
		if _, dup := r.index[n.Name]; dup {
			return Result{}, fmt.Errorf("%w: %s", ErrDuplicateModule, n.Name)
		}
		r.index[n.Name] = i
	}

	for i := range nodes {
		if r.state[i] != unvisited {
			continue
		}
		if err := r.visit(i); err != nil {
			return Result{}, err
		}
	}

	logging.ResolverDebug("resolved %d modules: %s", len(r.order), strings.Join(r.order, ", "))
	return Result{Order: r.order, Warnings: r.warnings}, nil
}

func (r *resolver) visit(i int) error {
	n := r.nodes[i]
	r.state[i] = visiting
	r.stack = append(r.stack, n.Name)

	for _, dep := range n.Requires {
		j, ok := r.index[dep]
		if !ok {
			return &MissingDependencyError{Module: n.Name, Dependency: dep}
		}
		if err := r.follow(j); err != nil {
			return err
		}
	}

	for _, dep := range n.Optional {
		j, ok := r.index[dep]
		if !ok {
			w := Warning{Module: n.Name, Dependency: dep}
			logging.ResolverWarn("%s", w)
			r.warnings = append(r.warnings, w)
			continue
		}
		if err := r.follow(j); err != nil {
			return err
		}
	}

	r.stack = r.stack[:len(r.stack)-1]
	r.state[i] = visited
	r.order = append(r.order, n.Name)
	return nil
}

func (r *resolver) follow(j int) error {
	switch r.state[j] {
	case visited:
		return nil
	case visiting:
		return &CycleError{Path: r.cyclePath(r.nodes[j].Name)}
	}
	return r.visit(j)
}

func (r *resolver) cyclePath(name string) []string {
	start := 0
	for k, s := range r.stack {
		if s == name {
			start = k
			break
		}
	}
	path := make([]string, 0, len(r.stack)-start+1)
	path = append(path, r.stack[start:]...)
	return append(path, name)
}
