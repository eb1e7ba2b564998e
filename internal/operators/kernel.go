package operators

import (
	"encoding/binary"
	"math"

	"github.com/born-ml/opgraph/internal/device"
	"github.com/born-ml/opgraph/internal/graph"
)

// makePipeline compiles the compute function of op on dev.
func makePipeline(dev device.Device, ic device.InitContext, op string) (device.Pipeline, error) {
	function := device.FunctionName(op)
	p, err := dev.MakePipeline(ic, function)
	if err != nil {
		return nil, &KernelConstructionError{Op: op, Function: function, Err: err}
	}
	return p, nil
}

// uniforms packs a WGSL uniform struct of u32 and f32 fields.
type uniforms []byte

func (u uniforms) u32(vs ...int) uniforms {
	for _, v := range vs {
		//nolint:gosec // G115: shapes and flags are non-negative and small
		u = binary.LittleEndian.AppendUint32(u, uint32(v))
	}
	return u
}

func (u uniforms) f32(v float32) uniforms {
	return binary.LittleEndian.AppendUint32(u, math.Float32bits(v))
}

// bytes pads the struct to the 16-byte uniform alignment.
func (u uniforms) bytes() []byte {
	for len(u)%16 != 0 {
		u = append(u, 0)
	}
	return u
}

// nchw returns dims left-padded with ones to rank 4.
func nchw(dims []int) [4]int {
	out := [4]int{1, 1, 1, 1}
	if len(dims) > 4 {
		dims = dims[len(dims)-4:]
	}
	copy(out[4-len(dims):], dims)
	return out
}

func numel(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

func dimsOf(v *graph.Variable) []int {
	if v == nil {
		return nil
	}
	return v.Dims
}

func lenOf(v *graph.Variable) int {
	if v == nil {
		return 0
	}
	return v.NumElements()
}

// unaryIO is implemented by Params with one input and one output.
type unaryIO interface {
	io() (x, out *graph.Variable)
}

// copyKernel moves its input to its output unchanged. It serves every
// operator whose effect is only on shape metadata.
type copyKernel[P unaryIO] struct {
	pipeline device.Pipeline
}

func newCopyKernel[P unaryIO](op string) KernelBuilder[P, *copyKernel[P]] {
	return func(dev device.Device, _ P, ic device.InitContext) (*copyKernel[P], error) {
		p, err := makePipeline(dev, ic, op)
		if err != nil {
			return nil, err
		}
		return &copyKernel[P]{pipeline: p}, nil
	}
}

func (k *copyKernel[P]) Compute(_ device.Device, cb device.CommandBuffer, param P) error {
	x, out := param.io()
	n := x.NumElements()
	return cb.Encode(device.Dispatch{
		Pipeline: k.pipeline,
		Bindings: []device.Binding{device.Read(x), device.Write(out)},
		Uniforms: uniforms{}.u32(n).bytes(),
		Groups:   device.Groups1D(n),
	})
}

// encodeFunc encodes the dispatches of one operator with its compiled pipeline.
type encodeFunc[P any] func(cb device.CommandBuffer, pipeline device.Pipeline, param P) error

// funcKernel is a kernel whose only device resource is the pipeline of its
// operator's compute function.
type funcKernel[P any] struct {
	pipeline device.Pipeline
	encode   encodeFunc[P]
}

func newFuncKernel[P any](op string, encode encodeFunc[P]) KernelBuilder[P, *funcKernel[P]] {
	return func(dev device.Device, _ P, ic device.InitContext) (*funcKernel[P], error) {
		p, err := makePipeline(dev, ic, op)
		if err != nil {
			return nil, err
		}
		return &funcKernel[P]{pipeline: p, encode: encode}, nil
	}
}

func (k *funcKernel[P]) Compute(_ device.Device, cb device.CommandBuffer, param P) error {
	return k.encode(cb, k.pipeline, param)
}
