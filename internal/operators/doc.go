// Package operators builds typed, device-bound operators from descriptors.
//
// Every operator type pairs a Param, a typed projection of a descriptor over
// a scope, with a Kernel that is statically bound to that Param type:
//
//	Operator[P any, K Kernel[P]]
//
// Creator composes a ParamBuilder and a KernelBuilder into a Factory, and the
// Registry maps each operator type tag to its Factory. Construction errors are
// *ParamConstructionError, *KernelConstructionError or *UnknownOperatorError
// and are returned to the caller without wrapping.
//
// Example:
//
//	reg := operators.NewRegistry(graph.DefaultSchema())
//	op, err := reg.Create(dev, desc, scope, device.DefaultInitContext())
//	if err != nil {
//	    return err
//	}
//	err = operators.Run(op, dev, cb)
package operators
