package operators

import (
	"fmt"
	"slices"

	"github.com/born-ml/opgraph/internal/device"
	"github.com/born-ml/opgraph/internal/graph"
)

// ReshapeParam reinterprets X with a new shape. A 0 in Shape copies the
// input dim at that position and a single -1 is inferred.
type ReshapeParam struct {
	X     *graph.Variable
	Out   *graph.Variable
	Shape []int
}

func (p *ReshapeParam) io() (x, out *graph.Variable) { return p.X, p.Out }

// InferShape implements shape inference.
func (p *ReshapeParam) InferShape() {
	in := dimsOf(p.X)
	if len(in) == 0 {
		return
	}
	dims := make([]int, len(p.Shape))
	infer := -1
	known := 1
	for i, d := range p.Shape {
		switch {
		case d == 0 && i < len(in):
			dims[i] = in[i]
		case d == -1 && infer < 0:
			infer = i
			continue
		case d > 0:
			dims[i] = d
		default:
			return
		}
		known *= dims[i]
	}
	if infer >= 0 {
		if known == 0 || numel(in)%known != 0 {
			return
		}
		dims[infer] = numel(in) / known
	}
	if numel(dims) != numel(in) {
		return
	}
	p.Out.Dims = dims
}

func buildReshapeParam(b *binder) (*ReshapeParam, error) {
	p := &ReshapeParam{
		X:     b.input("X"),
		Out:   b.output("Out"),
		Shape: b.attrInts("shape"),
	}
	return p, b.err
}

// FlattenParam collapses X into a matrix split at Axis.
type FlattenParam struct {
	X    *graph.Variable
	Out  *graph.Variable
	Axis int
}

func (p *FlattenParam) io() (x, out *graph.Variable) { return p.X, p.Out }

// InferShape implements shape inference.
func (p *FlattenParam) InferShape() {
	in := dimsOf(p.X)
	if len(in) == 0 || p.Axis > len(in) {
		return
	}
	p.Out.Dims = []int{numel(in[:p.Axis]), numel(in[p.Axis:])}
}

func buildFlattenParam(b *binder) (*FlattenParam, error) {
	p := &FlattenParam{
		X:    b.input("X"),
		Out:  b.output("Out"),
		Axis: b.attrInt("axis", 1),
	}
	if p.Axis < 0 {
		b.unsupported("axis")
	}
	return p, b.err
}

// maxTransposeRank is the highest rank the transpose source handles.
const maxTransposeRank = 4

// TransposeParam permutes the dims of X.
type TransposeParam struct {
	X    *graph.Variable
	Out  *graph.Variable
	Axis []int
}

// InferShape implements shape inference.
func (p *TransposeParam) InferShape() {
	in := dimsOf(p.X)
	if len(in) != len(p.Axis) {
		return
	}
	dims := make([]int, len(in))
	for i, a := range p.Axis {
		dims[i] = in[a]
	}
	p.Out.Dims = dims
}

func buildTransposeParam(b *binder) (*TransposeParam, error) {
	p := &TransposeParam{
		X:    b.input("X"),
		Out:  b.output("Out"),
		Axis: b.attrInts("axis"),
	}
	if b.err == nil && !isPermutation(p.Axis) {
		b.fail(FieldAttr, "axis", ErrMistyped)
	}
	if len(p.Axis) > maxTransposeRank {
		b.unsupported("axis")
	}
	return p, b.err
}

func isPermutation(axis []int) bool {
	seen := make([]bool, len(axis))
	for _, a := range axis {
		if a < 0 || a >= len(axis) || seen[a] {
			return false
		}
		seen[a] = true
	}
	return true
}

type transposeKernel struct {
	pipeline device.Pipeline
}

func newTransposeKernel(dev device.Device, _ *TransposeParam, ic device.InitContext) (*transposeKernel, error) {
	p, err := makePipeline(dev, ic, graph.OpTranspose)
	if err != nil {
		return nil, err
	}
	return &transposeKernel{pipeline: p}, nil
}

func (k *transposeKernel) Compute(_ device.Device, cb device.CommandBuffer, param *TransposeParam) error {
	d := nchw(param.X.Dims)
	// Leading padded axes stay in place.
	offset := maxTransposeRank - len(param.Axis)
	perm := [maxTransposeRank]int{0, 1, 2, 3}
	for i, a := range param.Axis {
		perm[offset+i] = offset + a
	}
	n := param.X.NumElements()
	return cb.Encode(device.Dispatch{
		Pipeline: k.pipeline,
		Bindings: []device.Binding{device.Read(param.X), device.Write(param.Out)},
		Uniforms: uniforms{}.u32(n).u32(d[:]...).u32(perm[:]...).bytes(),
		Groups:   device.Groups1D(n),
	})
}

// ConcatParam joins every X along Axis.
type ConcatParam struct {
	X    []*graph.Variable
	Out  *graph.Variable
	Axis int
}

// axis returns Axis normalized against rank.
func (p *ConcatParam) axis(rank int) int {
	if p.Axis < 0 {
		return p.Axis + rank
	}
	return p.Axis
}

// InferShape implements shape inference.
func (p *ConcatParam) InferShape() {
	first := dimsOf(p.X[0])
	axis := p.axis(len(first))
	if len(first) == 0 || axis < 0 || axis >= len(first) {
		return
	}
	dims := append([]int(nil), first...)
	dims[axis] = 0
	for _, x := range p.X {
		if len(x.Dims) != len(first) {
			return
		}
		dims[axis] += x.Dims[axis]
	}
	p.Out.Dims = dims
}

func buildConcatParam(b *binder) (*ConcatParam, error) {
	p := &ConcatParam{
		X:    b.inputs("X"),
		Out:  b.output("Out"),
		Axis: b.attrInt("axis", 0),
	}
	return p, b.err
}

type concatKernel struct {
	pipeline device.Pipeline
}

func newConcatKernel(dev device.Device, _ *ConcatParam, ic device.InitContext) (*concatKernel, error) {
	p, err := makePipeline(dev, ic, graph.OpConcat)
	if err != nil {
		return nil, err
	}
	return &concatKernel{pipeline: p}, nil
}

// Compute encodes one dispatch per input, each writing its block of Out.
func (k *concatKernel) Compute(_ device.Device, cb device.CommandBuffer, param *ConcatParam) error {
	out := param.Out.Dims
	axis := param.axis(len(out))
	if axis < 0 || axis > len(out) {
		return fmt.Errorf("concat: axis %d of rank %d output: %w", param.Axis, len(out), ErrNotImplemented)
	}
	outInner := numel(out[axis:])
	offset := 0
	for _, x := range param.X {
		if len(x.Dims) != len(out) {
			return fmt.Errorf("concat: input %s has rank %d, output rank %d: %w", x.Name, len(x.Dims), len(out), ErrNotImplemented)
		}
		inner := numel(x.Dims[axis:])
		n := x.NumElements()
		err := cb.Encode(device.Dispatch{
			Pipeline: k.pipeline,
			Bindings: []device.Binding{device.Read(x), device.Write(param.Out)},
			Uniforms: uniforms{}.u32(n, numel(out[:axis]), inner, outInner, offset).bytes(),
			Groups:   device.Groups1D(n),
		})
		if err != nil {
			return err
		}
		offset += inner
	}
	return nil
}

// BilinearInterpParam resizes the spatial dims of NCHW input to OutH x OutW.
type BilinearInterpParam struct {
	X            *graph.Variable
	Out          *graph.Variable
	OutH         int
	OutW         int
	AlignCorners bool
}

// InferShape implements shape inference.
func (p *BilinearInterpParam) InferShape() {
	in := dimsOf(p.X)
	if len(in) != 4 {
		return
	}
	p.Out.Dims = []int{in[0], in[1], p.OutH, p.OutW}
}

func buildBilinearInterpParam(b *binder) (*BilinearInterpParam, error) {
	p := &BilinearInterpParam{
		X:            b.input("X"),
		Out:          b.output("Out"),
		OutH:         b.attrInt("out_h"),
		OutW:         b.attrInt("out_w"),
		AlignCorners: b.attrBool("align_corners", true),
	}
	if p.OutH < 1 {
		b.unsupported("out_h")
	}
	if p.OutW < 1 {
		b.unsupported("out_w")
	}
	return p, b.err
}

func encodeBilinearInterp(cb device.CommandBuffer, pipeline device.Pipeline, param *BilinearInterpParam) error {
	in := nchw(param.X.Dims)
	align := 0
	if param.AlignCorners {
		align = 1
	}
	n := param.Out.NumElements()
	return cb.Encode(device.Dispatch{
		Pipeline: pipeline,
		Bindings: []device.Binding{device.Read(param.X), device.Write(param.Out)},
		Uniforms: uniforms{}.u32(n, in[2], in[3], param.OutH, param.OutW, align).bytes(),
		Groups:   device.Groups1D(n),
	})
}

// SplitParam cuts X along Axis into one block per Out variable. Sections
// gives the block extents, a single -1 taking the remainder; otherwise the
// axis is cut into Num equal blocks.
type SplitParam struct {
	X        *graph.Variable
	Out      []*graph.Variable
	Axis     int
	Num      int
	Sections []int
}

func (p *SplitParam) axis(rank int) int {
	if p.Axis < 0 {
		return p.Axis + rank
	}
	return p.Axis
}

// extents returns the size of each block along an axis of length total.
func (p *SplitParam) extents(total int) ([]int, bool) {
	if len(p.Sections) == 0 {
		if p.Num < 1 || total%p.Num != 0 {
			return nil, false
		}
		out := make([]int, p.Num)
		for i := range out {
			out[i] = total / p.Num
		}
		return out, true
	}
	out := slices.Clone(p.Sections)
	infer, known := -1, 0
	for i, s := range out {
		if s == -1 {
			infer = i
			continue
		}
		known += s
	}
	if infer >= 0 {
		if known > total {
			return nil, false
		}
		out[infer] = total - known
		known = total
	}
	return out, known == total
}

// InferShape implements shape inference.
func (p *SplitParam) InferShape() {
	in := dimsOf(p.X)
	axis := p.axis(len(in))
	if len(in) == 0 || axis < 0 || axis >= len(in) {
		return
	}
	extents, ok := p.extents(in[axis])
	if !ok || len(extents) != len(p.Out) {
		return
	}
	for i, out := range p.Out {
		dims := slices.Clone(in)
		dims[axis] = extents[i]
		out.Dims = dims
	}
}

func buildSplitParam(b *binder) (*SplitParam, error) {
	p := &SplitParam{
		X:        b.input("X"),
		Out:      b.outputs("Out"),
		Axis:     b.attrInt("axis", 0),
		Num:      b.attrInt("num", 0),
		Sections: b.attrInts("sections", []int{}...),
	}
	switch {
	case b.err != nil:
	case len(p.Sections) > 0:
		if len(p.Sections) != len(p.Out) {
			b.fail(FieldAttr, "sections", &arityError{want: len(p.Out), got: len(p.Sections)})
		}
		if slices.ContainsFunc(p.Sections, func(s int) bool { return s < -1 || s == 0 }) || countOf(p.Sections, -1) > 1 {
			b.unsupported("sections")
		}
	case p.Num == 0:
		b.fail(FieldAttr, "num", ErrMissing)
	case p.Num != len(p.Out):
		b.fail(FieldAttr, "num", &arityError{want: len(p.Out), got: p.Num})
	}
	return p, b.err
}

func countOf(vs []int, v int) int {
	n := 0
	for _, x := range vs {
		if x == v {
			n++
		}
	}
	return n
}

// encodeSplit encodes one dispatch per output, each reading its block of X.
func encodeSplit(cb device.CommandBuffer, pipeline device.Pipeline, param *SplitParam) error {
	in := param.X.Dims
	axis := param.axis(len(in))
	if axis < 0 || axis >= len(in) {
		return fmt.Errorf("split: axis %d of rank %d input: %w", param.Axis, len(in), ErrNotImplemented)
	}
	inInner := numel(in[axis:])
	offset := 0
	for _, out := range param.Out {
		if len(out.Dims) != len(in) {
			return fmt.Errorf("split: output %s has rank %d, input rank %d: %w", out.Name, len(out.Dims), len(in), ErrNotImplemented)
		}
		inner := numel(out.Dims[axis:])
		n := out.NumElements()
		err := cb.Encode(device.Dispatch{
			Pipeline: pipeline,
			Bindings: []device.Binding{device.Read(param.X), device.Write(out)},
			Uniforms: uniforms{}.u32(n, inner, inInner, offset).bytes(),
			Groups:   device.Groups1D(n),
		})
		if err != nil {
			return err
		}
		offset += inner
	}
	return nil
}

// maxShapeRank is the highest input rank the shape source reports.
const maxShapeRank = 4

// ShapeParam writes the dims of Input as a 1-D tensor.
type ShapeParam struct {
	Input *graph.Variable
	Out   *graph.Variable
}

// InferShape implements shape inference.
func (p *ShapeParam) InferShape() {
	if in := dimsOf(p.Input); len(in) > 0 {
		p.Out.Dims = []int{len(in)}
	}
}

func buildShapeParam(b *binder) (*ShapeParam, error) {
	p := &ShapeParam{
		Input: b.input("Input"),
		Out:   b.output("Out"),
	}
	return p, b.err
}

func encodeShape(cb device.CommandBuffer, pipeline device.Pipeline, param *ShapeParam) error {
	in := param.Input.Dims
	if len(in) > maxShapeRank {
		return fmt.Errorf("shape: rank %d input: %w", len(in), ErrNotImplemented)
	}
	var dims [maxShapeRank]int
	copy(dims[:], in)
	return cb.Encode(device.Dispatch{
		Pipeline: pipeline,
		Bindings: []device.Binding{device.Write(param.Out)},
		Uniforms: uniforms{}.u32(len(in), 0, 0, 0).u32(dims[:]...).bytes(),
		Groups:   device.Groups1D(len(in)),
	})
}
