package operators

import (
	"github.com/born-ml/opgraph/internal/device"
	"github.com/born-ml/opgraph/internal/graph"
)

// ElementwiseAddParam is X + Y with Y broadcast over X starting at Axis.
// Y comes from the "Y" parameter role, or from the second X binding.
type ElementwiseAddParam struct {
	X    *graph.Variable
	Y    *graph.Variable
	Out  *graph.Variable
	Axis int
}

// InferShape implements shape inference.
func (p *ElementwiseAddParam) InferShape() { inferSame(p.X, p.Out) }

func (p *ElementwiseAddParam) addArgs() (*ElementwiseAddParam, *graph.Variable) { return p, nil }

func buildElementwiseAddParam(b *binder) (*ElementwiseAddParam, error) {
	p := &ElementwiseAddParam{X: b.input("X")}
	p.Y = addend(b)
	p.Out = b.output("Out")
	p.Axis = b.attrInt("axis", -1)
	return p, b.err
}

func addend(b *binder) *graph.Variable {
	if _, ok := b.desc.ParaInput("Y"); ok {
		return b.para("Y")
	}
	if y := b.inputAt("X", 1); y != nil || b.err != nil {
		return y
	}
	b.fail(FieldParaInput, "Y", ErrMissing)
	return nil
}

// ElementwiseAddPreluParam is elementwise_add followed by prelu.
type ElementwiseAddPreluParam struct {
	ElementwiseAddParam
	Alpha *graph.Variable
	Mode  string
}

func (p *ElementwiseAddPreluParam) addArgs() (*ElementwiseAddParam, *graph.Variable) {
	return &p.ElementwiseAddParam, p.Alpha
}

func buildElementwiseAddPreluParam(b *binder) (*ElementwiseAddPreluParam, error) {
	p := &ElementwiseAddPreluParam{}
	p.X = b.input("X")
	p.Y = addend(b)
	p.Alpha = b.para("Alpha")
	p.Out = b.output("Out")
	p.Axis = b.attrInt("axis", -1)
	p.Mode = b.attrString("mode", PreluChannel)
	checkPreluMode(b, p.Mode)
	return p, b.err
}

// addParam is implemented by the Params served by the elementwise add source.
// A nil alpha disables the prelu stage.
type addParam interface {
	addArgs() (*ElementwiseAddParam, *graph.Variable)
}

type addKernel[P addParam] struct {
	pipeline device.Pipeline
}

func newAddKernel[P addParam](op string) KernelBuilder[P, *addKernel[P]] {
	return func(dev device.Device, _ P, ic device.InitContext) (*addKernel[P], error) {
		p, err := makePipeline(dev, ic, op)
		if err != nil {
			return nil, err
		}
		return &addKernel[P]{pipeline: p}, nil
	}
}

func (k *addKernel[P]) Compute(_ device.Device, cb device.CommandBuffer, param P) error {
	add, alpha := param.addArgs()
	n := add.X.NumElements()
	yLen, inner := broadcast(add.X.Dims, dimsOf(add.Y), add.Axis)
	d := nchw(add.X.Dims)
	flags := 0
	if alpha != nil {
		flags |= device.FlagPrelu
	}
	return cb.Encode(device.Dispatch{
		Pipeline: k.pipeline,
		Bindings: []device.Binding{device.Read(add.X), device.Read(add.Y), device.Read(alpha), device.Write(add.Out)},
		Uniforms: uniforms{}.u32(n, yLen, inner, flags, d[1], d[2]*d[3], lenOf(alpha)).bytes(),
		Groups:   device.Groups1D(n),
	})
}

// broadcast returns the length of y and the stride of x it repeats over when
// y is aligned with x at axis (-1 aligns trailing dims).
func broadcast(x, y []int, axis int) (yLen, inner int) {
	if len(y) == 0 || len(x) == 0 {
		return 1, 1
	}
	if axis < 0 {
		axis = len(x) - len(y)
	}
	end := axis + len(y)
	if axis < 0 || end > len(x) {
		return numel(y), 1
	}
	return numel(y), numel(x[end:])
}

// BatchNormParam normalizes X per channel with precomputed statistics.
type BatchNormParam struct {
	X        *graph.Variable
	Scale    *graph.Variable
	Bias     *graph.Variable
	Mean     *graph.Variable
	Variance *graph.Variable
	Y        *graph.Variable
	Epsilon  float32
}

// InferShape implements shape inference.
func (p *BatchNormParam) InferShape() { inferSame(p.X, p.Y) }

func buildBatchNormParam(b *binder) (*BatchNormParam, error) {
	p := &BatchNormParam{
		X:        b.input("X"),
		Scale:    b.para("Scale"),
		Bias:     b.para("Bias"),
		Mean:     b.para("Mean"),
		Variance: b.para("Variance"),
		Y:        b.output("Y"),
		Epsilon:  b.attrFloat("epsilon", 1e-5),
	}
	return p, b.err
}

type batchNormKernel struct {
	pipeline device.Pipeline
}

func newBatchNormKernel(dev device.Device, _ *BatchNormParam, ic device.InitContext) (*batchNormKernel, error) {
	p, err := makePipeline(dev, ic, graph.OpBatchNorm)
	if err != nil {
		return nil, err
	}
	return &batchNormKernel{pipeline: p}, nil
}

func (k *batchNormKernel) Compute(_ device.Device, cb device.CommandBuffer, param *BatchNormParam) error {
	n := param.X.NumElements()
	d := nchw(param.X.Dims)
	return cb.Encode(device.Dispatch{
		Pipeline: k.pipeline,
		Bindings: []device.Binding{
			device.Read(param.X),
			device.Read(param.Scale),
			device.Read(param.Bias),
			device.Read(param.Mean),
			device.Read(param.Variance),
			device.Write(param.Y),
		},
		Uniforms: uniforms{}.u32(n, d[1], d[2]*d[3]).f32(param.Epsilon).bytes(),
		Groups:   device.Groups1D(n),
	})
}
