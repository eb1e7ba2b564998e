package operators

import (
	"github.com/born-ml/opgraph/internal/device"
	"github.com/born-ml/opgraph/internal/graph"
)

// ConvParam is a grouped 2-D convolution over NCHW input with an optional
// per-channel bias.
type ConvParam struct {
	Input     *graph.Variable
	Filter    *graph.Variable
	Bias      *graph.Variable
	Output    *graph.Variable
	Strides   []int
	Paddings  []int
	Dilations []int
	Groups    int
}

func (p *ConvParam) conv() *ConvParam { return p }

// InferShape implements shape inference.
func (p *ConvParam) InferShape() {
	in, w := dimsOf(p.Input), dimsOf(p.Filter)
	if len(in) != 4 || len(w) != 4 || p.Output == nil {
		return
	}
	p.Output.Dims = []int{
		in[0],
		w[0],
		convOut(in[2], w[2], p.Strides[0], p.Paddings[0], p.Dilations[0]),
		convOut(in[3], w[3], p.Strides[1], p.Paddings[1], p.Dilations[1]),
	}
}

func convOut(in, k, stride, pad, dilation int) int {
	return (in+2*pad-(dilation*(k-1)+1))/stride + 1
}

// convFields reads the convolution inputs and the output bound to outRole.
func convFields(b *binder, p *ConvParam, outRole string, requireBias bool) {
	p.Input = b.input("Input")
	p.Filter = b.para("Filter")
	var biases []*graph.Variable
	if requireBias {
		biases = b.paras("Bias")
	} else {
		biases = b.optionalParas("Bias")
	}
	if len(biases) > 0 {
		p.Bias = biases[0]
	}
	p.Output = b.output(outRole)
}

func convAttrs(b *binder, p *ConvParam, depthwise bool) {
	p.Strides = b.attrInts("strides", 1, 1)
	p.Paddings = b.attrInts("paddings", 0, 0)
	p.Dilations = b.attrInts("dilations", 1, 1)
	groups := 1
	if in := dimsOf(p.Input); depthwise && len(in) == 4 {
		groups = in[1]
	}
	p.Groups = b.attrInt("groups", groups)
	checkPair(b, "strides", p.Strides, 1)
	checkPair(b, "paddings", p.Paddings, 0)
	checkPair(b, "dilations", p.Dilations, 1)
	if p.Groups < 1 {
		b.unsupported("groups")
	}
}

// checkPair requires an (h, w) attribute with both values no smaller than least.
func checkPair(b *binder, name string, vals []int, least int) {
	if len(vals) != 2 || vals[0] < least || vals[1] < least {
		b.unsupported(name)
	}
}

func convParamBuilder(outRole string, depthwise bool) ParamBuilder[*ConvParam] {
	return func(b *binder) (*ConvParam, error) {
		p := &ConvParam{}
		convFields(b, p, outRole, false)
		convAttrs(b, p, depthwise)
		return p, b.err
	}
}

// ConvAddParam is a convolution with a required bias.
type ConvAddParam struct {
	ConvParam
}

func buildConvAddParam(b *binder) (*ConvAddParam, error) {
	p := &ConvAddParam{}
	convFields(b, &p.ConvParam, "Out", true)
	convAttrs(b, &p.ConvParam, false)
	return p, b.err
}

// ConvTransposeParam is a grouped 2-D transposed convolution. Its Filter is
// laid out [in_c, out_c/groups, k_h, k_w].
type ConvTransposeParam struct {
	ConvParam
}

// InferShape implements shape inference.
func (p *ConvTransposeParam) InferShape() {
	in, w := dimsOf(p.Input), dimsOf(p.Filter)
	if len(in) != 4 || len(w) != 4 || p.Output == nil {
		return
	}
	p.Output.Dims = []int{
		in[0],
		w[1] * p.Groups,
		convTransposeOut(in[2], w[2], p.Strides[0], p.Paddings[0], p.Dilations[0]),
		convTransposeOut(in[3], w[3], p.Strides[1], p.Paddings[1], p.Dilations[1]),
	}
}

func convTransposeOut(in, k, stride, pad, dilation int) int {
	return (in-1)*stride - 2*pad + dilation*(k-1) + 1
}

func buildConvTransposeParam(b *binder) (*ConvTransposeParam, error) {
	p := &ConvTransposeParam{}
	convFields(b, &p.ConvParam, "Output", false)
	convAttrs(b, &p.ConvParam, false)
	return p, b.err
}

// convParam is implemented by the Params served by the conv sources.
type convParam interface {
	conv() *ConvParam
}

type convKernel[P convParam] struct {
	pipeline device.Pipeline
}

func newConvKernel[P convParam](op string) KernelBuilder[P, *convKernel[P]] {
	return func(dev device.Device, _ P, ic device.InitContext) (*convKernel[P], error) {
		p, err := makePipeline(dev, ic, op)
		if err != nil {
			return nil, err
		}
		return &convKernel[P]{pipeline: p}, nil
	}
}

func (k *convKernel[P]) Compute(_ device.Device, cb device.CommandBuffer, param P) error {
	p := param.conv()
	flags := 0
	if p.Bias != nil {
		flags |= device.FlagBias
	}
	n := p.Output.NumElements()
	return cb.Encode(device.Dispatch{
		Pipeline: k.pipeline,
		Bindings: []device.Binding{device.Read(p.Input), device.Read(p.Filter), device.Write(p.Output), device.Read(p.Bias)},
		Uniforms: convUniforms(p, flags, 0, 0),
		Groups:   device.Groups1D(n),
	})
}

// ConvBnReluParam is a convolution with an optional bias, batch
// normalization and relu.
type ConvBnReluParam struct {
	ConvParam
	Scale    *graph.Variable
	Shift    *graph.Variable
	Mean     *graph.Variable
	Variance *graph.Variable
	Epsilon  float32
}

func convBnReluParamBuilder(requireBias, depthwise bool) ParamBuilder[*ConvBnReluParam] {
	return func(b *binder) (*ConvBnReluParam, error) {
		p := &ConvBnReluParam{}
		p.Input = b.input("Input")
		p.Filter = b.para("Filter")
		if requireBias {
			p.Bias = b.para("Bias")
		} else if biases := b.optionalParas("Bias"); len(biases) > 0 {
			p.Bias = biases[0]
		}
		p.Scale = b.para("Scale")
		p.Shift = b.para("Shift")
		p.Mean = b.para("Mean")
		p.Variance = b.para("Variance")
		p.Output = b.output("Out")
		convAttrs(b, &p.ConvParam, depthwise)
		p.Epsilon = b.attrFloat("epsilon", 1e-5)
		return p, b.err
	}
}

type convBnKernel struct {
	pipeline device.Pipeline
}

func newConvBnKernel(op string) KernelBuilder[*ConvBnReluParam, *convBnKernel] {
	return func(dev device.Device, _ *ConvBnReluParam, ic device.InitContext) (*convBnKernel, error) {
		p, err := makePipeline(dev, ic, op)
		if err != nil {
			return nil, err
		}
		return &convBnKernel{pipeline: p}, nil
	}
}

func (k *convBnKernel) Compute(_ device.Device, cb device.CommandBuffer, param *ConvBnReluParam) error {
	flags := device.FlagRelu
	if param.Bias != nil {
		flags |= device.FlagBias
	}
	n := param.Output.NumElements()
	return cb.Encode(device.Dispatch{
		Pipeline: k.pipeline,
		Bindings: []device.Binding{
			device.Read(param.Input),
			device.Read(param.Filter),
			device.Write(param.Output),
			device.Read(param.Bias),
			device.Read(param.Scale),
			device.Read(param.Shift),
			device.Read(param.Mean),
			device.Read(param.Variance),
		},
		Uniforms: convUniforms(&param.ConvParam, flags, param.Epsilon, 0),
		Groups:   device.Groups1D(n),
	})
}

// ConvAddPreluParam is a convolution with one or two biases followed by prelu.
type ConvAddPreluParam struct {
	ConvParam
	Bias2 *graph.Variable
	Alpha *graph.Variable
	Mode  string
}

func convAddPreluParamBuilder(biases int) ParamBuilder[*ConvAddPreluParam] {
	return func(b *binder) (*ConvAddPreluParam, error) {
		p := &ConvAddPreluParam{}
		p.Input = b.input("Input")
		p.Filter = b.para("Filter")
		bs := b.paras("Bias")
		if b.err == nil && len(bs) < biases {
			b.fail(FieldParaInput, "Bias", ErrMissing)
		}
		if len(bs) > 0 {
			p.Bias = bs[0]
		}
		if biases > 1 && len(bs) > 1 {
			p.Bias2 = bs[1]
		}
		p.Alpha = b.para("Alpha")
		p.Output = b.output("Out")
		convAttrs(b, &p.ConvParam, false)
		p.Mode = b.attrString("mode", PreluChannel)
		checkPreluMode(b, p.Mode)
		return p, b.err
	}
}

type convPreluKernel struct {
	pipeline device.Pipeline
}

func newConvPreluKernel(op string) KernelBuilder[*ConvAddPreluParam, *convPreluKernel] {
	return func(dev device.Device, _ *ConvAddPreluParam, ic device.InitContext) (*convPreluKernel, error) {
		p, err := makePipeline(dev, ic, op)
		if err != nil {
			return nil, err
		}
		return &convPreluKernel{pipeline: p}, nil
	}
}

func (k *convPreluKernel) Compute(_ device.Device, cb device.CommandBuffer, param *ConvAddPreluParam) error {
	flags := device.FlagBias | device.FlagPrelu
	if param.Bias2 != nil {
		flags |= device.FlagBias2
	}
	n := param.Output.NumElements()
	return cb.Encode(device.Dispatch{
		Pipeline: k.pipeline,
		Bindings: []device.Binding{
			device.Read(param.Input),
			device.Read(param.Filter),
			device.Write(param.Output),
			device.Read(param.Bias),
			device.Read(param.Bias2),
			device.Read(param.Alpha),
		},
		Uniforms: convUniforms(&param.ConvParam, flags, 0, lenOf(param.Alpha)),
		Groups:   device.Groups1D(n),
	})
}

func convUniforms(p *ConvParam, flags int, epsilon float32, alphaLen int) []byte {
	in := nchw(dimsOf(p.Input))
	w := nchw(dimsOf(p.Filter))
	out := nchw(dimsOf(p.Output))
	return uniforms{}.
		u32(lenOf(p.Output), in[1], in[2], in[3], out[1], out[2], out[3], w[2], w[3]).
		u32(p.Strides[0], p.Strides[1], p.Paddings[0], p.Paddings[1], p.Dilations[0], p.Dilations[1]).
		u32(p.Groups, flags).
		f32(epsilon).
		u32(alphaLen).
		bytes()
}

// Pooling types.
const (
	PoolMax = "max"
	PoolAvg = "avg"
)

// PoolParam is max or average pooling over NCHW input.
type PoolParam struct {
	X             *graph.Variable
	Out           *graph.Variable
	PoolingType   string
	Ksize         []int
	Strides       []int
	Paddings      []int
	GlobalPooling bool
}

// window returns the effective kernel size and paddings.
func (p *PoolParam) window() (ksize, paddings []int) {
	if in := dimsOf(p.X); p.GlobalPooling && len(in) == 4 {
		return []int{in[2], in[3]}, []int{0, 0}
	}
	return p.Ksize, p.Paddings
}

// InferShape implements shape inference.
func (p *PoolParam) InferShape() {
	in := dimsOf(p.X)
	if len(in) != 4 || p.Out == nil {
		return
	}
	k, pad := p.window()
	p.Out.Dims = []int{
		in[0],
		in[1],
		convOut(in[2], k[0], p.Strides[0], pad[0], 1),
		convOut(in[3], k[1], p.Strides[1], pad[1], 1),
	}
}

func buildPoolParam(b *binder) (*PoolParam, error) {
	p := &PoolParam{
		X:             b.input("X"),
		Out:           b.output("Out"),
		PoolingType:   b.attrString("pooling_type", PoolMax),
		Ksize:         b.attrInts("ksize", 1, 1),
		Strides:       b.attrInts("strides", 1, 1),
		Paddings:      b.attrInts("paddings", 0, 0),
		GlobalPooling: b.attrBool("global_pooling", false),
	}
	if p.PoolingType != PoolMax && p.PoolingType != PoolAvg {
		b.unsupported("pooling_type")
	}
	checkPair(b, "ksize", p.Ksize, 1)
	checkPair(b, "strides", p.Strides, 1)
	checkPair(b, "paddings", p.Paddings, 0)
	return p, b.err
}

type poolKernel struct {
	pipeline device.Pipeline
}

func newPoolKernel(dev device.Device, _ *PoolParam, ic device.InitContext) (*poolKernel, error) {
	p, err := makePipeline(dev, ic, graph.OpPool2D)
	if err != nil {
		return nil, err
	}
	return &poolKernel{pipeline: p}, nil
}

func (k *poolKernel) Compute(_ device.Device, cb device.CommandBuffer, param *PoolParam) error {
	in := nchw(param.X.Dims)
	out := nchw(param.Out.Dims)
	ksize, paddings := param.window()
	mode := 0
	if param.PoolingType == PoolAvg {
		mode = 1
	}
	n := param.Out.NumElements()
	return cb.Encode(device.Dispatch{
		Pipeline: k.pipeline,
		Bindings: []device.Binding{device.Read(param.X), device.Write(param.Out)},
		Uniforms: uniforms{}.
			u32(n, in[1], in[2], in[3], out[2], out[3], ksize[0], ksize[1]).
			u32(param.Strides[0], param.Strides[1], paddings[0], paddings[1], mode).
			bytes(),
		Groups: device.Groups1D(n),
	})
}
