// Package device defines the compute device abstraction kernels are bound to,
// the init context that selects where device code is loaded from, and the
// code library that serves compute function sources.
package device

import (
	"github.com/born-ml/opgraph/internal/graph"
)

// WorkgroupSize is the number of invocations per workgroup used by the
// built-in compute functions.
const WorkgroupSize = 256

// Device is a compute device that kernels allocate resources on.
type Device interface {
	// Name identifies the device in logs.
	Name() string

	// MakePipeline compiles the named compute function from the code library
	// selected by ic.
	MakePipeline(ic InitContext, function string) (Pipeline, error)

	// NewCommandBuffer starts a new command buffer for one inference.
	NewCommandBuffer() (CommandBuffer, error)
}

// Pipeline is a compiled compute function resident on a device.
type Pipeline interface {
	Function() string
}

// Binding attaches a variable to the storage binding slot at its index in
// Dispatch.Bindings. A nil Var binds an empty placeholder buffer.
type Binding struct {
	Var   *graph.Variable
	Write bool
}

// Read binds v as a read-only storage buffer.
func Read(v *graph.Variable) Binding { return Binding{Var: v} }

// Write binds v as a read-write storage buffer.
func Write(v *graph.Variable) Binding { return Binding{Var: v, Write: true} }

// Dispatch is one encoded compute invocation. The uniform buffer takes the
// slot following the last storage binding.
type Dispatch struct {
	Pipeline Pipeline
	Bindings []Binding
	Uniforms []byte
	Groups   [3]uint32
}

// Outputs returns the variables the dispatch writes.
func (d Dispatch) Outputs() []*graph.Variable {
	var out []*graph.Variable
	for _, b := range d.Bindings {
		if b.Write && b.Var != nil {
			out = append(out, b.Var)
		}
	}
	return out
}

// CommandBuffer accumulates dispatches and submits them to the device queue.
// Completion ordering across command buffers is the caller's concern.
type CommandBuffer interface {
	Encode(d Dispatch) error
	Commit() error
}

// Groups1D returns the workgroup count covering n invocations.
func Groups1D(n int) [3]uint32 {
	if n <= 0 {
		return [3]uint32{1, 1, 1}
	}
	//nolint:gosec // G115: n is positive
	return [3]uint32{uint32((n + WorkgroupSize - 1) / WorkgroupSize), 1, 1}
}
