package statements

import (
	"fmt"
	"sync"
)

// Registry is the process-wide table of named statements.
type Registry struct {
	mu       sync.RWMutex
	compiler Compiler
	byName   map[string]*Lazy
	order    []string
}

func NewRegistry(c Compiler) *Registry {
	return &Registry{
		compiler: c,
		byName:   make(map[string]*Lazy),
	}
}

// Register adds def and returns its lazy plan. Registering the same
// definition twice returns the existing plan; reusing a name for a
// different query is a programming error and panics.
func (r *Registry) Register(def Definition) *Lazy {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.byName[def.Name]; ok {
		if !sameDefinition(l.def, def) {
			panic(fmt.Sprintf("statements: %s registered twice with different definitions", def.Name))
		}
		return l
	}

	l := NewLazy(def, r.compiler)
	r.byName[def.Name] = l
	r.order = append(r.order, def.Name)
	return l
}

// Lookup returns the lazy plan registered under name.
func (r *Registry) Lookup(name string) (*Lazy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.byName[name]
	return l, ok
}

// Get resolves name to its compiled plan. Unknown names panic.
func (r *Registry) Get(name string) *Plan {
	l, ok := r.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("statements: %s is not registered", name))
	}
	return l.Get()
}

// Names lists registered statements in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Warm compiles every registered statement in registration order. A
// compilation failure panics exactly like a lazy first use would.
func (r *Registry) Warm() {
	for _, name := range r.Names() {
		r.Get(name)
	}
}

func sameDefinition(a, b Definition) bool {
	if a.Query != b.Query || len(a.Params) != len(b.Params) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	return true
}
