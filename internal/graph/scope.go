package graph

import (
	"errors"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
)

// ErrScopeBusy is returned by BeginBuild when another build already owns the scope.
var ErrScopeBusy = errors.New("scope: build already in progress")

// Variable is a named tensor slot. Value holds the tensor handle owned by the
// surrounding runtime's storage manager; the engine never interprets it.
type Variable struct {
	Name        string
	Dims        []int
	Persistable bool
	Value       any
}

// NumElements returns the product of Dims, or 0 when the shape is unknown.
func (v *Variable) NumElements() int {
	if len(v.Dims) == 0 {
		return 0
	}
	n := 1
	for _, d := range v.Dims {
		if d <= 0 {
			return 0
		}
		n *= d
	}
	return n
}

// Scope maps variable names to variables for the lifetime of one loaded model.
//
// Writes happen during the build phase only, under the single-writer build
// lock taken with BeginBuild. Reads are safe from any goroutine.
type Scope struct {
	mu       sync.RWMutex
	vars     map[string]*Variable
	building atomic.Bool
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{vars: make(map[string]*Variable)}
}

// BeginBuild claims the scope for a build pass.
func (s *Scope) BeginBuild() error {
	if !s.building.CompareAndSwap(false, true) {
		return ErrScopeBusy
	}
	return nil
}

// EndBuild releases the claim taken by BeginBuild.
func (s *Scope) EndBuild() {
	s.building.Store(false)
}

// Find returns the named variable if it exists.
func (s *Scope) Find(name string) (*Variable, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// Var returns the named variable, creating an empty one when absent.
func (s *Scope) Var(name string) *Variable {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.vars[name]; ok {
		return v
	}
	v := &Variable{Name: name}
	s.vars[name] = v
	return v
}

// Set stores v under v.Name, replacing any existing variable.
func (s *Scope) Set(v *Variable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[v.Name] = v
}

// SetDims records the shape of the named variable, creating it when absent.
func (s *Scope) SetDims(name string, dims []int) *Variable {
	v := s.Var(name)
	s.mu.Lock()
	v.Dims = slices.Clone(dims)
	s.mu.Unlock()
	return v
}

// Len returns the number of variables.
func (s *Scope) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vars)
}

// Names returns the variable names in sorted order.
func (s *Scope) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.vars))
	for name := range s.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
