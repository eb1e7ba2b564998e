package fusion

import "github.com/born-ml/opgraph/internal/graph"

// Role renames shared by the built-in rules. An elementwise_add after a
// convolution contributes its addend as a conv bias and a batch_norm bias
// becomes the shift.
var (
	addendAsBias  = []Rename{{From: "Y", To: "Bias"}, {From: "X", To: "Bias"}}
	bnBiasAsShift = []Rename{{From: "Bias", To: "Shift"}}
)

// convHasNoBias keeps a conv that already carries a bias out of rules that
// add one.
var convHasNoBias = Precondition{Position: 0, Role: "Bias", State: Absent}

// channelAdd requires the elementwise_add at position to broadcast per channel.
func channelAdd(position int) Precondition {
	return Precondition{Position: position, Attr: "axis", State: Equal, Value: graph.Int(1)}
}

// BuiltinRules returns the built-in rules in priority order.
func BuiltinRules() []Rule {
	return []Rule{
		{
			Name:      graph.OpConvAddBatchNormRelu,
			Pattern:   []string{graph.OpConv2D, graph.OpElementwiseAdd, graph.OpBatchNorm, graph.OpRelu},
			FusedType: graph.OpConvAddBatchNormRelu,
			Renames: map[string][]Rename{
				graph.OpElementwiseAdd: addendAsBias,
				graph.OpBatchNorm:      bnBiasAsShift,
			},
			Preconditions: []Precondition{convHasNoBias, channelAdd(1)},
		},
		{
			Name:      graph.OpConvBnRelu,
			Pattern:   []string{graph.OpConv2D, graph.OpBatchNorm, graph.OpRelu},
			FusedType: graph.OpConvBnRelu,
			Renames: map[string][]Rename{
				graph.OpBatchNorm: bnBiasAsShift,
			},
			Preconditions: []Precondition{convHasNoBias},
		},
		{
			Name:      graph.OpDepthConvBnRelu,
			Pattern:   []string{graph.OpDepthwiseConv2D, graph.OpBatchNorm, graph.OpRelu},
			FusedType: graph.OpDepthConvBnRelu,
			Renames: map[string][]Rename{
				graph.OpBatchNorm: bnBiasAsShift,
			},
		},
		{
			Name:      graph.OpConvAddAddPrelu,
			Pattern:   []string{graph.OpConv2D, graph.OpElementwiseAdd, graph.OpElementwiseAdd, graph.OpPrelu},
			FusedType: graph.OpConvAddAddPrelu,
			Renames: map[string][]Rename{
				graph.OpElementwiseAdd: addendAsBias,
			},
			Preconditions: []Precondition{convHasNoBias, channelAdd(1), channelAdd(2)},
		},
		{
			Name:      graph.OpConvAddPrelu,
			Pattern:   []string{graph.OpConv2D, graph.OpElementwiseAdd, graph.OpPrelu},
			FusedType: graph.OpConvAddPrelu,
			Renames: map[string][]Rename{
				graph.OpElementwiseAdd: addendAsBias,
			},
			Preconditions: []Precondition{convHasNoBias, channelAdd(1)},
		},
		{
			Name:      graph.OpElementwiseAddPrelu,
			Pattern:   []string{graph.OpElementwiseAdd, graph.OpPrelu},
			FusedType: graph.OpElementwiseAddPrelu,
		},
		{
			Name:      graph.OpConvAdd,
			Pattern:   []string{graph.OpConv2D, graph.OpElementwiseAdd},
			FusedType: graph.OpConvAdd,
			Renames: map[string][]Rename{
				graph.OpElementwiseAdd: addendAsBias,
			},
			Preconditions: []Precondition{convHasNoBias, channelAdd(1)},
		},
	}
}
