package operators

import (
	"slices"

	"github.com/born-ml/opgraph/internal/graph"
)

// FeedParam copies a program input into the graph.
type FeedParam struct {
	X   *graph.Variable
	Out *graph.Variable
	Col int
}

func (p *FeedParam) io() (x, out *graph.Variable) { return p.X, p.Out }

// InferShape implements shape inference.
func (p *FeedParam) InferShape() { inferSame(p.X, p.Out) }

func buildFeedParam(b *binder) (*FeedParam, error) {
	p := &FeedParam{
		X:   b.input("X"),
		Out: b.output("Out"),
		Col: b.attrInt("col", 0),
	}
	return p, b.err
}

// FetchParam copies a graph result to a program output.
type FetchParam struct {
	X   *graph.Variable
	Out *graph.Variable
	Col int
}

func (p *FetchParam) io() (x, out *graph.Variable) { return p.X, p.Out }

// InferShape implements shape inference.
func (p *FetchParam) InferShape() { inferSame(p.X, p.Out) }

func buildFetchParam(b *binder) (*FetchParam, error) {
	p := &FetchParam{
		X:   b.input("X"),
		Out: b.output("Out"),
		Col: b.attrInt("col", 0),
	}
	return p, b.err
}

// inferSame gives out the dims of x when x has a known shape.
func inferSame(x, out *graph.Variable) {
	if x == nil || out == nil || len(x.Dims) == 0 {
		return
	}
	out.Dims = slices.Clone(x.Dims)
}
