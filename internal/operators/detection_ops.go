package operators

import (
	"fmt"
	"math"

	"github.com/born-ml/opgraph/internal/device"
	"github.com/born-ml/opgraph/internal/graph"
)

// maxPriors is the number of prior sizes the prior_box source holds in its
// uniform block.
const maxPriors = 16

// PriorBoxParam generates SSD prior boxes for every cell of the Input
// feature map, normalized by the Image size.
type PriorBoxParam struct {
	Input     *graph.Variable
	Image     *graph.Variable
	Boxes     *graph.Variable
	Variances *graph.Variable

	MinSizes     []float32
	MaxSizes     []float32
	AspectRatios []float32
	// BoxVariances is written to Variances for every prior.
	BoxVariances []float32

	Flip   bool
	Clip   bool
	StepW  float32
	StepH  float32
	Offset float32

	MinMaxAspectRatiosOrder bool
}

// expandedRatios returns 1 followed by every distinct aspect ratio, and its
// reciprocal when Flip is set.
func (p *PriorBoxParam) expandedRatios() []float32 {
	out := []float32{1}
	for _, ar := range p.AspectRatios {
		dup := false
		for _, seen := range out {
			if math.Abs(float64(ar-seen)) < 1e-6 {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		out = append(out, ar)
		if p.Flip {
			out = append(out, 1/ar)
		}
	}
	return out
}

// priorSizes returns the width and height of each prior of a cell, in
// output order.
func (p *PriorBoxParam) priorSizes() [][2]float32 {
	ratios := p.expandedRatios()
	var sizes [][2]float32
	for i, s := range p.MinSizes {
		if p.MinMaxAspectRatiosOrder {
			sizes = append(sizes, [2]float32{s, s})
			if len(p.MaxSizes) > 0 {
				m := float32(math.Sqrt(float64(s * p.MaxSizes[i])))
				sizes = append(sizes, [2]float32{m, m})
			}
			for _, ar := range ratios[1:] {
				r := float32(math.Sqrt(float64(ar)))
				sizes = append(sizes, [2]float32{s * r, s / r})
			}
			continue
		}
		for _, ar := range ratios {
			r := float32(math.Sqrt(float64(ar)))
			sizes = append(sizes, [2]float32{s * r, s / r})
		}
		if len(p.MaxSizes) > 0 {
			m := float32(math.Sqrt(float64(s * p.MaxSizes[i])))
			sizes = append(sizes, [2]float32{m, m})
		}
	}
	return sizes
}

// InferShape implements shape inference.
func (p *PriorBoxParam) InferShape() {
	in := dimsOf(p.Input)
	if len(in) != 4 {
		return
	}
	dims := []int{in[2], in[3], len(p.priorSizes()), 4}
	p.Boxes.Dims = dims
	p.Variances.Dims = append([]int(nil), dims...)
}

func buildPriorBoxParam(b *binder) (*PriorBoxParam, error) {
	p := &PriorBoxParam{
		Input:     b.input("Input"),
		Image:     b.input("Image"),
		Boxes:     b.output("Boxes"),
		Variances: b.output("Variances"),

		MinSizes:     b.attrFloats("min_sizes"),
		MaxSizes:     b.attrFloats("max_sizes", []float32{}...),
		AspectRatios: b.attrFloats("aspect_ratios", 1),
		BoxVariances: b.attrFloats("variances", 0.1, 0.1, 0.2, 0.2),

		Flip:   b.attrBool("flip", false),
		Clip:   b.attrBool("clip", false),
		StepW:  b.attrFloat("step_w", 0),
		StepH:  b.attrFloat("step_h", 0),
		Offset: b.attrFloat("offset", 0.5),

		MinMaxAspectRatiosOrder: b.attrBool("min_max_aspect_ratios_order", false),
	}
	if b.err != nil {
		return p, b.err
	}
	if len(p.MinSizes) == 0 {
		b.fail(FieldAttr, "min_sizes", ErrMissing)
	}
	if len(p.MaxSizes) > 0 && len(p.MaxSizes) != len(p.MinSizes) {
		b.fail(FieldAttr, "max_sizes", &arityError{want: len(p.MinSizes), got: len(p.MaxSizes)})
	}
	for _, ar := range p.AspectRatios {
		if ar <= 0 {
			b.unsupported("aspect_ratios")
			break
		}
	}
	if len(p.BoxVariances) != 4 {
		b.fail(FieldAttr, "variances", &arityError{want: 4, got: len(p.BoxVariances)})
	}
	if len(p.priorSizes()) > maxPriors {
		b.unsupported("min_sizes")
	}
	return p, b.err
}

func encodePriorBox(cb device.CommandBuffer, pipeline device.Pipeline, param *PriorBoxParam) error {
	feat, img := dimsOf(param.Input), dimsOf(param.Image)
	if len(feat) != 4 || len(img) != 4 {
		return fmt.Errorf("prior_box: input and image must be NCHW, got %v and %v: %w", feat, img, ErrNotImplemented)
	}
	imgH, imgW := float32(img[2]), float32(img[3])
	stepH, stepW := param.StepH, param.StepW
	if stepH == 0 || stepW == 0 {
		stepH, stepW = imgH/float32(feat[2]), imgW/float32(feat[3])
	}
	clip := 0
	if param.Clip {
		clip = 1
	}

	sizes := param.priorSizes()
	n := feat[2] * feat[3] * len(sizes)
	u := uniforms{}.
		u32(n, feat[2], feat[3], len(sizes)).
		f32(imgH).f32(imgW).f32(stepH).f32(stepW).
		f32(param.Offset).u32(clip, 0, 0)
	for _, v := range param.BoxVariances {
		u = u.f32(v)
	}
	for i := range maxPriors {
		var wh [2]float32
		if i < len(sizes) {
			wh = sizes[i]
		}
		u = u.f32(wh[0]).f32(wh[1]).f32(0).f32(0)
	}
	return cb.Encode(device.Dispatch{
		Pipeline: pipeline,
		Bindings: []device.Binding{device.Write(param.Boxes), device.Write(param.Variances)},
		Uniforms: u.bytes(),
		Groups:   device.Groups1D(n),
	})
}

// Box coder code types.
const (
	BoxDecodeCenterSize = "decode_center_size"
	BoxEncodeCenterSize = "encode_center_size"
)

// BoxCoderParam decodes TargetBox offsets against PriorBox and its
// variances. TargetBox is [N, M, 4] for M priors.
type BoxCoderParam struct {
	PriorBox      *graph.Variable
	PriorBoxVar   *graph.Variable
	TargetBox     *graph.Variable
	OutputBox     *graph.Variable
	CodeType      string
	BoxNormalized bool
}

// InferShape implements shape inference.
func (p *BoxCoderParam) InferShape() { inferSame(p.TargetBox, p.OutputBox) }

func buildBoxCoderParam(b *binder) (*BoxCoderParam, error) {
	p := &BoxCoderParam{
		PriorBox:      b.input("PriorBox"),
		PriorBoxVar:   b.input("PriorBoxVar"),
		TargetBox:     b.input("TargetBox"),
		OutputBox:     b.output("OutputBox"),
		CodeType:      b.attrString("code_type", BoxDecodeCenterSize),
		BoxNormalized: b.attrBool("box_normalized", true),
	}
	switch p.CodeType {
	case BoxDecodeCenterSize:
	case BoxEncodeCenterSize:
		b.unsupported("code_type")
	default:
		b.fail(FieldAttr, "code_type", ErrMistyped)
	}
	return p, b.err
}

func encodeBoxCoder(cb device.CommandBuffer, pipeline device.Pipeline, param *BoxCoderParam) error {
	priors := lenOf(param.PriorBox) / 4
	if priors == 0 {
		return fmt.Errorf("box_coder: prior box %s has no known size: %w", param.PriorBox.Name, ErrMissing)
	}
	normalized := 0
	if param.BoxNormalized {
		normalized = 1
	}
	n := lenOf(param.TargetBox) / 4
	return cb.Encode(device.Dispatch{
		Pipeline: pipeline,
		Bindings: []device.Binding{
			device.Read(param.PriorBox),
			device.Read(param.PriorBoxVar),
			device.Read(param.TargetBox),
			device.Write(param.OutputBox),
		},
		Uniforms: uniforms{}.u32(n, priors, normalized).bytes(),
		Groups:   device.Groups1D(n),
	})
}

// MulticlassNMSParam selects detections from BBoxes [N, M, 4] and Scores
// [N, C, M]. The device pass writes Out as [N, M, C+4]: the per-class
// scores of each box with those under ScoreThreshold or of the background
// class zeroed, followed by the box. Suppression over that candidate table
// runs on the host since its result size depends on the data; the
// remaining fields configure it.
type MulticlassNMSParam struct {
	BBoxes          *graph.Variable
	Scores          *graph.Variable
	Out             *graph.Variable
	ScoreThreshold  float32
	NMSTopK         int
	KeepTopK        int
	NMSThreshold    float32
	NMSEta          float32
	BackgroundLabel int
}

// InferShape implements shape inference.
func (p *MulticlassNMSParam) InferShape() {
	boxes, scores := dimsOf(p.BBoxes), dimsOf(p.Scores)
	if len(boxes) != 3 || len(scores) != 3 {
		return
	}
	p.Out.Dims = []int{boxes[0], boxes[1], scores[1] + 4}
}

func buildMulticlassNMSParam(b *binder) (*MulticlassNMSParam, error) {
	p := &MulticlassNMSParam{
		BBoxes:          b.input("BBoxes"),
		Scores:          b.input("Scores"),
		Out:             b.output("Out"),
		ScoreThreshold:  b.attrFloat("score_threshold"),
		NMSTopK:         b.attrInt("nms_top_k"),
		KeepTopK:        b.attrInt("keep_top_k"),
		NMSThreshold:    b.attrFloat("nms_threshold", 0.3),
		NMSEta:          b.attrFloat("nms_eta", 1),
		BackgroundLabel: b.attrInt("background_label", 0),
	}
	if p.NMSEta <= 0 || p.NMSEta > 1 {
		b.unsupported("nms_eta")
	}
	return p, b.err
}

func encodeMulticlassNMS(cb device.CommandBuffer, pipeline device.Pipeline, param *MulticlassNMSParam) error {
	boxes, scores := dimsOf(param.BBoxes), dimsOf(param.Scores)
	if len(boxes) != 3 || len(scores) != 3 || boxes[1] != scores[2] {
		return fmt.Errorf("multiclass_nms: boxes %v and scores %v do not match: %w", boxes, scores, ErrNotImplemented)
	}
	background, hasBackground := 0, 0
	if param.BackgroundLabel >= 0 {
		background, hasBackground = param.BackgroundLabel, 1
	}
	n := param.Out.NumElements()
	return cb.Encode(device.Dispatch{
		Pipeline: pipeline,
		Bindings: []device.Binding{device.Read(param.BBoxes), device.Read(param.Scores), device.Write(param.Out)},
		Uniforms: uniforms{}.
			u32(n, boxes[1], scores[1], background, hasBackground).
			f32(param.ScoreThreshold).
			bytes(),
		Groups: device.Groups1D(n),
	})
}
