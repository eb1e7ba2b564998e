package operators

import (
	"github.com/born-ml/opgraph/internal/device"
	"github.com/born-ml/opgraph/internal/graph"
)

// ReluParam is max(x, 0).
type ReluParam struct {
	X   *graph.Variable
	Out *graph.Variable
}

// InferShape implements shape inference.
func (p *ReluParam) InferShape() { inferSame(p.X, p.Out) }

func buildReluParam(b *binder) (*ReluParam, error) {
	p := &ReluParam{X: b.input("X"), Out: b.output("Out")}
	return p, b.err
}

type reluKernel struct {
	pipeline device.Pipeline
}

func newReluKernel(dev device.Device, _ *ReluParam, ic device.InitContext) (*reluKernel, error) {
	p, err := makePipeline(dev, ic, graph.OpRelu)
	if err != nil {
		return nil, err
	}
	return &reluKernel{pipeline: p}, nil
}

func (k *reluKernel) Compute(_ device.Device, cb device.CommandBuffer, param *ReluParam) error {
	n := param.X.NumElements()
	return cb.Encode(device.Dispatch{
		Pipeline: k.pipeline,
		Bindings: []device.Binding{device.Read(param.X), device.Write(param.Out)},
		Uniforms: uniforms{}.u32(n).bytes(),
		Groups:   device.Groups1D(n),
	})
}

// PReLU alpha layouts.
const (
	PreluAll     = "all"
	PreluChannel = "channel"
	PreluElement = "element"
)

// PreluParam is x for x >= 0 and alpha*x otherwise.
type PreluParam struct {
	X     *graph.Variable
	Alpha *graph.Variable
	Out   *graph.Variable
	Mode  string
}

// InferShape implements shape inference.
func (p *PreluParam) InferShape() { inferSame(p.X, p.Out) }

func buildPreluParam(b *binder) (*PreluParam, error) {
	p := &PreluParam{
		X:     b.input("X"),
		Alpha: b.para("Alpha"),
		Out:   b.output("Out"),
		Mode:  b.attrString("mode", PreluChannel),
	}
	checkPreluMode(b, p.Mode)
	return p, b.err
}

func checkPreluMode(b *binder, mode string) {
	switch mode {
	case PreluAll, PreluChannel, PreluElement:
	default:
		b.unsupported("mode")
	}
}

type preluKernel struct {
	pipeline device.Pipeline
}

func newPreluKernel(dev device.Device, _ *PreluParam, ic device.InitContext) (*preluKernel, error) {
	p, err := makePipeline(dev, ic, graph.OpPrelu)
	if err != nil {
		return nil, err
	}
	return &preluKernel{pipeline: p}, nil
}

func (k *preluKernel) Compute(_ device.Device, cb device.CommandBuffer, param *PreluParam) error {
	n := param.X.NumElements()
	d := nchw(param.X.Dims)
	return cb.Encode(device.Dispatch{
		Pipeline: k.pipeline,
		Bindings: []device.Binding{device.Read(param.X), device.Read(param.Alpha), device.Write(param.Out)},
		Uniforms: uniforms{}.u32(n, d[1], d[2]*d[3], lenOf(param.Alpha)).bytes(),
		Groups:   device.Groups1D(n),
	})
}

// SoftmaxParam normalizes along the last axis.
type SoftmaxParam struct {
	X    *graph.Variable
	Out  *graph.Variable
	Axis int
}

// InferShape implements shape inference.
func (p *SoftmaxParam) InferShape() { inferSame(p.X, p.Out) }

func buildSoftmaxParam(b *binder) (*SoftmaxParam, error) {
	p := &SoftmaxParam{
		X:    b.input("X"),
		Out:  b.output("Out"),
		Axis: b.attrInt("axis", -1),
	}
	if rank := len(dimsOf(p.X)); p.Axis != -1 && rank > 0 && p.Axis != rank-1 {
		b.unsupported("axis")
	}
	return p, b.err
}

type softmaxKernel struct {
	pipeline device.Pipeline
}

func newSoftmaxKernel(dev device.Device, _ *SoftmaxParam, ic device.InitContext) (*softmaxKernel, error) {
	p, err := makePipeline(dev, ic, graph.OpSoftmax)
	if err != nil {
		return nil, err
	}
	return &softmaxKernel{pipeline: p}, nil
}

func (k *softmaxKernel) Compute(_ device.Device, cb device.CommandBuffer, param *SoftmaxParam) error {
	dims := param.X.Dims
	cols := 1
	if len(dims) > 0 {
		cols = dims[len(dims)-1]
	}
	rows := 0
	if cols > 0 {
		rows = param.X.NumElements() / cols
	}
	return cb.Encode(device.Dispatch{
		Pipeline: k.pipeline,
		Bindings: []device.Binding{device.Read(param.X), device.Write(param.Out)},
		Uniforms: uniforms{}.u32(rows, cols).bytes(),
		Groups:   device.Groups1D(rows),
	})
}
