package operators

import (
	"github.com/born-ml/opgraph/internal/device"
	"github.com/born-ml/opgraph/internal/graph"
)

// Kernel is a device-bound compute unit for exactly one Param type.
// Compute encodes the work for param into cb; it must not mutate kernel state.
type Kernel[P any] interface {
	Compute(dev device.Device, cb device.CommandBuffer, param P) error
}

// ParamBuilder projects a descriptor onto a typed Param.
type ParamBuilder[P any] func(b *binder) (P, error)

// KernelBuilder allocates the device resources of a kernel for a Param.
// Failures are reported as *KernelConstructionError.
type KernelBuilder[P any, K Kernel[P]] func(dev device.Device, param P, ic device.InitContext) (K, error)

// Factory builds one operator from a descriptor.
type Factory func(dev device.Device, desc *graph.OpDesc, scope *graph.Scope, ic device.InitContext) (Runnable, error)

// shapeInferer is implemented by Params that can derive output dims from input dims.
type shapeInferer interface {
	InferShape()
}

// Runnable is an operator with its Param and Kernel types erased, as stored
// in a graph.
type Runnable interface {
	// Type returns the operator type tag.
	Type() string
	// Desc returns a copy of the descriptor the operator was built from.
	Desc() *graph.OpDesc
	// Device returns the device the kernel was built on.
	Device() device.Device
	// Outputs returns the variables the operator writes, in role order.
	Outputs() []*graph.Variable
	// Run encodes the operator's kernel into cb.
	Run(dev device.Device, cb device.CommandBuffer) error
	String() string
}

// Operator binds a Param and the Kernel built for it. K is constrained to
// Kernel[P], so a kernel can never be paired with another Param type.
type Operator[P any, K Kernel[P]] struct {
	desc    *graph.OpDesc
	dev     device.Device
	param   P
	kernel  K
	outputs []*graph.Variable
}

var _ Runnable = (*Operator[*ReluParam, *reluKernel])(nil)

// Type implements Runnable.
func (o *Operator[P, K]) Type() string { return o.desc.Type }

// Desc implements Runnable.
func (o *Operator[P, K]) Desc() *graph.OpDesc { return o.desc.Clone() }

// Device implements Runnable.
func (o *Operator[P, K]) Device() device.Device { return o.dev }

// Outputs implements Runnable.
func (o *Operator[P, K]) Outputs() []*graph.Variable {
	return append([]*graph.Variable(nil), o.outputs...)
}

// Param returns the operator's typed parameters.
func (o *Operator[P, K]) Param() P { return o.param }

// Kernel returns the operator's kernel.
func (o *Operator[P, K]) Kernel() K { return o.kernel }

// Run implements Runnable. Kernel errors are returned unchanged.
func (o *Operator[P, K]) Run(dev device.Device, cb device.CommandBuffer) error {
	return o.kernel.Compute(dev, cb, o.param)
}

func (o *Operator[P, K]) String() string { return o.desc.String() }

// Creator composes a ParamBuilder and a KernelBuilder into a Factory for the
// operator type described by entry. When the Param cannot be built the
// KernelBuilder is never called. The scope is only changed once both have
// succeeded: new outputs are registered and output dims inferred.
func Creator[P any, K Kernel[P]](entry graph.SchemaEntry, pb ParamBuilder[P], kb KernelBuilder[P, K]) Factory {
	return func(dev device.Device, desc *graph.OpDesc, scope *graph.Scope, ic device.InitContext) (Runnable, error) {
		b := newBinder(desc, entry, scope)
		if err := b.checkRoles(); err != nil {
			return nil, err
		}
		param, err := pb(b)
		if err != nil {
			return nil, err
		}
		kernel, err := kb(dev, param, ic)
		if err != nil {
			return nil, err
		}
		if s, ok := any(param).(shapeInferer); ok {
			s.InferShape()
		}
		b.commit()
		return &Operator[P, K]{
			desc:    desc.Clone(),
			dev:     dev,
			param:   param,
			kernel:  kernel,
			outputs: b.written,
		}, nil
	}
}
