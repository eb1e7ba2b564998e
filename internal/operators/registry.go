package operators

import (
	"fmt"
	"sort"

	"github.com/born-ml/opgraph/internal/device"
	"github.com/born-ml/opgraph/internal/graph"
)

// binding turns a schema entry into the Factory of one operator type.
type binding func(entry graph.SchemaEntry) Factory

func bind[P any, K Kernel[P]](pb ParamBuilder[P], kb KernelBuilder[P, K]) binding {
	return func(entry graph.SchemaEntry) Factory {
		return Creator[P, K](entry, pb, kb)
	}
}

// builtinOperators is the fixed table of supported operator types.
func builtinOperators() map[string]binding {
	return map[string]binding{
		graph.OpFeed:    bind[*FeedParam, *copyKernel[*FeedParam]](buildFeedParam, newCopyKernel[*FeedParam](graph.OpFeed)),
		graph.OpFetch:   bind[*FetchParam, *copyKernel[*FetchParam]](buildFetchParam, newCopyKernel[*FetchParam](graph.OpFetch)),
		graph.OpReshape: bind[*ReshapeParam, *copyKernel[*ReshapeParam]](buildReshapeParam, newCopyKernel[*ReshapeParam](graph.OpReshape)),
		graph.OpFlatten: bind[*FlattenParam, *copyKernel[*FlattenParam]](buildFlattenParam, newCopyKernel[*FlattenParam](graph.OpFlatten)),

		graph.OpTranspose: bind[*TransposeParam, *transposeKernel](buildTransposeParam, newTransposeKernel),
		graph.OpConcat:    bind[*ConcatParam, *concatKernel](buildConcatParam, newConcatKernel),

		graph.OpConv2D:          bind[*ConvParam, *convKernel[*ConvParam]](convParamBuilder("Output", false), newConvKernel[*ConvParam](graph.OpConv2D)),
		graph.OpDepthwiseConv2D: bind[*ConvParam, *convKernel[*ConvParam]](convParamBuilder("Output", true), newConvKernel[*ConvParam](graph.OpDepthwiseConv2D)),
		graph.OpConvAdd:         bind[*ConvAddParam, *convKernel[*ConvAddParam]](buildConvAddParam, newConvKernel[*ConvAddParam](graph.OpConvAdd)),
		graph.OpFusionConvAdd:   bind[*ConvAddParam, *convKernel[*ConvAddParam]](buildConvAddParam, newConvKernel[*ConvAddParam](graph.OpFusionConvAdd)),
		graph.OpConv2DTranspose: bind[*ConvTransposeParam, *convKernel[*ConvTransposeParam]](buildConvTransposeParam, newConvKernel[*ConvTransposeParam](graph.OpConv2DTranspose)),

		graph.OpConvBnRelu:           bind[*ConvBnReluParam, *convBnKernel](convBnReluParamBuilder(false, false), newConvBnKernel(graph.OpConvBnRelu)),
		graph.OpConvAddBatchNormRelu: bind[*ConvBnReluParam, *convBnKernel](convBnReluParamBuilder(true, false), newConvBnKernel(graph.OpConvAddBatchNormRelu)),
		graph.OpDepthConvBnRelu:      bind[*ConvBnReluParam, *convBnKernel](convBnReluParamBuilder(false, true), newConvBnKernel(graph.OpDepthConvBnRelu)),

		graph.OpConvAddPrelu:    bind[*ConvAddPreluParam, *convPreluKernel](convAddPreluParamBuilder(1), newConvPreluKernel(graph.OpConvAddPrelu)),
		graph.OpConvAddAddPrelu: bind[*ConvAddPreluParam, *convPreluKernel](convAddPreluParamBuilder(2), newConvPreluKernel(graph.OpConvAddAddPrelu)),

		graph.OpBatchNorm:           bind[*BatchNormParam, *batchNormKernel](buildBatchNormParam, newBatchNormKernel),
		graph.OpElementwiseAdd:      bind[*ElementwiseAddParam, *addKernel[*ElementwiseAddParam]](buildElementwiseAddParam, newAddKernel[*ElementwiseAddParam](graph.OpElementwiseAdd)),
		graph.OpElementwiseAddPrelu: bind[*ElementwiseAddPreluParam, *addKernel[*ElementwiseAddPreluParam]](buildElementwiseAddPreluParam, newAddKernel[*ElementwiseAddPreluParam](graph.OpElementwiseAddPrelu)),

		graph.OpRelu:    bind[*ReluParam, *reluKernel](buildReluParam, newReluKernel),
		graph.OpPrelu:   bind[*PreluParam, *preluKernel](buildPreluParam, newPreluKernel),
		graph.OpSoftmax: bind[*SoftmaxParam, *softmaxKernel](buildSoftmaxParam, newSoftmaxKernel),
		graph.OpPool2D:  bind[*PoolParam, *poolKernel](buildPoolParam, newPoolKernel),

		graph.OpBilinearInterp: bind[*BilinearInterpParam, *funcKernel[*BilinearInterpParam]](buildBilinearInterpParam, newFuncKernel[*BilinearInterpParam](graph.OpBilinearInterp, encodeBilinearInterp)),
		graph.OpSplit:          bind[*SplitParam, *funcKernel[*SplitParam]](buildSplitParam, newFuncKernel[*SplitParam](graph.OpSplit, encodeSplit)),
		graph.OpShape:          bind[*ShapeParam, *funcKernel[*ShapeParam]](buildShapeParam, newFuncKernel[*ShapeParam](graph.OpShape, encodeShape)),

		graph.OpPriorBox:      bind[*PriorBoxParam, *funcKernel[*PriorBoxParam]](buildPriorBoxParam, newFuncKernel[*PriorBoxParam](graph.OpPriorBox, encodePriorBox)),
		graph.OpBoxCoder:      bind[*BoxCoderParam, *funcKernel[*BoxCoderParam]](buildBoxCoderParam, newFuncKernel[*BoxCoderParam](graph.OpBoxCoder, encodeBoxCoder)),
		graph.OpMulticlassNMS: bind[*MulticlassNMSParam, *funcKernel[*MulticlassNMSParam]](buildMulticlassNMSParam, newFuncKernel[*MulticlassNMSParam](graph.OpMulticlassNMS, encodeMulticlassNMS)),
	}
}

// Registry maps operator type tags to factories. It is built once and never
// modified afterwards, so it is safe for concurrent use.
type Registry struct {
	schema    *graph.Schema
	factories map[string]Factory
}

// NewRegistry builds the registry of every built-in operator type against
// schema. It panics if schema lacks an entry for a built-in type.
func NewRegistry(schema *graph.Schema) *Registry {
	defs := builtinOperators()
	r := &Registry{
		schema:    schema,
		factories: make(map[string]Factory, len(defs)),
	}
	for tag, def := range defs {
		entry, ok := schema.Lookup(tag)
		if !ok {
			panic(fmt.Sprintf("operators: no schema entry for operator type %q", tag))
		}
		r.factories[tag] = def(entry)
	}
	return r
}

// Schema returns the schema the registry was built against.
func (r *Registry) Schema() *graph.Schema { return r.schema }

// Dispatch returns the factory registered for tag.
func (r *Registry) Dispatch(tag string) (Factory, error) {
	f, ok := r.factories[tag]
	if !ok {
		return nil, &UnknownOperatorError{Type: tag}
	}
	return f, nil
}

// Create dispatches desc.Type and builds the operator. Errors from dispatch
// and construction are returned unchanged.
func (r *Registry) Create(dev device.Device, desc *graph.OpDesc, scope *graph.Scope, ic device.InitContext) (Runnable, error) {
	f, err := r.Dispatch(desc.Type)
	if err != nil {
		return nil, err
	}
	return f(dev, desc, scope, ic)
}

// Types returns the registered operator types in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.factories))
	for tag := range r.factories {
		types = append(types, tag)
	}
	sort.Strings(types)
	return types
}
