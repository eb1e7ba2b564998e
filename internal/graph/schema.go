package graph

import (
	"slices"
	"sort"
)

// Operator type tags.
const (
	OpFeed                 = "feed"
	OpFetch                = "fetch"
	OpConv2D               = "conv2d"
	OpDepthwiseConv2D      = "depthwise_conv2d"
	OpBatchNorm            = "batch_norm"
	OpRelu                 = "relu"
	OpElementwiseAdd       = "elementwise_add"
	OpSoftmax              = "softmax"
	OpPool2D               = "pool2d"
	OpReshape              = "reshape"
	OpFlatten              = "flatten"
	OpTranspose            = "transpose"
	OpConcat               = "concat"
	OpPrelu                = "prelu"
	OpConvAdd              = "conv_add"
	OpConvBnRelu           = "conv_bn_relu"
	OpConvAddBatchNormRelu = "conv_add_batchnorm_relu"
	OpDepthConvBnRelu      = "depth_conv_bn_relu"
	OpConvAddPrelu         = "conv_add_prelu"
	OpConvAddAddPrelu      = "conv_add_add_prelu"
	OpElementwiseAddPrelu  = "elementwise_add_prelu"
	OpFusionConvAdd        = "fusion_conv_add"
	OpConv2DTranspose      = "conv2d_transpose"
	OpBilinearInterp       = "bilinear_interp"
	OpSplit                = "split"
	OpShape                = "shape"
	OpPriorBox             = "prior_box"
	OpBoxCoder             = "box_coder"
	OpMulticlassNMS        = "multiclass_nms"
)

// SchemaEntry lists the input and output roles an operator type requires.
type SchemaEntry struct {
	Inputs  []string
	Outputs []string
}

// Schema maps operator type tags to their required roles. It is built once
// and never mutated; lookups return copies.
type Schema struct {
	entries map[string]SchemaEntry
}

// NewSchema builds a schema from the given entries. The map is copied.
func NewSchema(entries map[string]SchemaEntry) *Schema {
	s := &Schema{entries: make(map[string]SchemaEntry, len(entries))}
	for op, e := range entries {
		s.entries[op] = SchemaEntry{
			Inputs:  slices.Clone(e.Inputs),
			Outputs: slices.Clone(e.Outputs),
		}
	}
	return s
}

// DefaultSchema returns the schema of every built-in operator type.
func DefaultSchema() *Schema {
	x := SchemaEntry{Inputs: []string{"X"}, Outputs: []string{"Out"}}
	convFused := SchemaEntry{Inputs: []string{"Input"}, Outputs: []string{"Out"}}
	return NewSchema(map[string]SchemaEntry{
		OpFeed:                 x,
		OpFetch:                x,
		OpConv2D:               {Inputs: []string{"Input"}, Outputs: []string{"Output"}},
		OpDepthwiseConv2D:      {Inputs: []string{"Input"}, Outputs: []string{"Output"}},
		OpBatchNorm:            {Inputs: []string{"X"}, Outputs: []string{"Y"}},
		OpRelu:                 x,
		OpElementwiseAdd:       x,
		OpSoftmax:              x,
		OpPool2D:               x,
		OpReshape:              x,
		OpFlatten:              x,
		OpTranspose:            x,
		OpConcat:               x,
		OpPrelu:                x,
		OpConvAdd:              convFused,
		OpConvBnRelu:           convFused,
		OpConvAddBatchNormRelu: convFused,
		OpDepthConvBnRelu:      convFused,
		OpConvAddPrelu:         convFused,
		OpConvAddAddPrelu:      convFused,
		OpElementwiseAddPrelu:  x,
		OpFusionConvAdd:        convFused,
		OpConv2DTranspose:      {Inputs: []string{"Input"}, Outputs: []string{"Output"}},
		OpBilinearInterp:       x,
		OpSplit:                x,
		OpShape:                {Inputs: []string{"Input"}, Outputs: []string{"Out"}},
		OpPriorBox:             {Inputs: []string{"Input", "Image"}, Outputs: []string{"Boxes", "Variances"}},
		OpBoxCoder:             {Inputs: []string{"PriorBox", "PriorBoxVar", "TargetBox"}, Outputs: []string{"OutputBox"}},
		OpMulticlassNMS:        {Inputs: []string{"BBoxes", "Scores"}, Outputs: []string{"Out"}},
	})
}

// Lookup returns a copy of the entry for op.
func (s *Schema) Lookup(op string) (SchemaEntry, bool) {
	e, ok := s.entries[op]
	if !ok {
		return SchemaEntry{}, false
	}
	return SchemaEntry{Inputs: slices.Clone(e.Inputs), Outputs: slices.Clone(e.Outputs)}, true
}

// Types returns the operator types in sorted order.
func (s *Schema) Types() []string {
	types := make([]string, 0, len(s.entries))
	for op := range s.entries {
		types = append(types, op)
	}
	sort.Strings(types)
	return types
}
