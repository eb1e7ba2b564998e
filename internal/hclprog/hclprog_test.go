package hclprog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/opgraph/internal/graph"
	"github.com/born-ml/opgraph/internal/program"
)

const convBn = `
var "x" {
  dims = [1, 4, 8, 8]
}
var "w" {
  dims        = [4, 4, 3, 3]
  persistable = true
}

op "conv2d" {
  inputs      = { Input = ["x"] }
  para_inputs = { Filter = ["w"] }
  outputs     = { Output = ["c"] }
  attrs       = { strides = [1, 1], groups = 1 }
}

op "batch_norm" {
  inputs      = { X = ["c"] }
  para_inputs = { Scale = ["scale"], Bias = ["shift"], Mean = ["mean"], Variance = ["variance"] }
  outputs     = { Y = ["bn"] }
  attrs       = { epsilon = 0.001, is_test = true, data_layout = "NCHW" }
}

fetch = ["bn"]
`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(convBn), "conv_bn.hcl")
	require.NoError(t, err)

	assert.Equal(t, []program.Var{
		{Name: "x", Dims: []int{1, 4, 8, 8}},
		{Name: "w", Dims: []int{4, 4, 3, 3}, Persistable: true},
	}, p.Vars)
	assert.Equal(t, []string{"bn"}, p.Fetch)
	require.Len(t, p.Ops, 2)

	conv := p.Ops[0]
	assert.Equal(t, graph.OpConv2D, conv.Type)
	assert.Equal(t, map[string][]string{"Input": {"x"}}, conv.Inputs)
	assert.Equal(t, map[string][]string{"Filter": {"w"}}, conv.ParaInputs)
	assert.Equal(t, map[string][]string{"Output": {"c"}}, conv.Outputs)
	assert.True(t, graph.Ints(1, 1).Equal(conv.Attrs["strides"]))
	assert.True(t, graph.Int(1).Equal(conv.Attrs["groups"]))

	bn := p.Ops[1]
	eps, ok := bn.Attrs.Get("epsilon")
	require.True(t, ok)
	assert.Equal(t, graph.AttrFloat, eps.Kind())
	assert.True(t, graph.Float(0.001).Equal(eps))
	assert.True(t, graph.Bool(true).Equal(bn.Attrs["is_test"]))
	assert.True(t, graph.String("NCHW").Equal(bn.Attrs["data_layout"]))
	assert.Len(t, bn.ParaInputs, 4)
}

func TestParseListAttrs(t *testing.T) {
	p, err := Parse([]byte(`
op "reshape" {
  inputs  = { X = ["x"] }
  outputs = { Out = ["y"] }
  attrs = {
    shape  = [0, -1]
    scales = [0.5, 2]
    names  = ["a", "b"]
    flags  = [true, false]
    empty  = []
  }
}
`), "lists.hcl")
	require.NoError(t, err)
	attrs := p.Ops[0].Attrs
	assert.True(t, graph.Ints(0, -1).Equal(attrs["shape"]))
	assert.True(t, graph.Floats(0.5, 2).Equal(attrs["scales"]))
	assert.True(t, graph.Strings("a", "b").Equal(attrs["names"]))
	assert.True(t, graph.Bools(true, false).Equal(attrs["flags"]))
	assert.True(t, graph.Ints().Equal(attrs["empty"]))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `op "relu" {`},
		{"unknown block", `layer "relu" {}`},
		{"unknown attribute", `op "relu" { color = "red" }`},
		{"missing label", `op { inputs = { X = ["x"] } }`},
		{"mixed list", `op "relu" { attrs = { a = [1, "x"] } }`},
		{"nested object", `op "relu" { attrs = { a = { b = 1 } } }`},
		{"attrs not object", `op "relu" { attrs = 3 }`},
		{"null attribute", `op "relu" { attrs = { a = null } }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "bad.hcl")
			assert.Error(t, err)
		})
	}
}

func TestFormatRoundTrip(t *testing.T) {
	p, err := Parse([]byte(convBn), "conv_bn.hcl")
	require.NoError(t, err)
	p.Ops[1].Attrs["momentum"] = graph.Floats(0.9, 0.25)
	p.Ops[1].Attrs["tags"] = graph.Strings("a")
	p.Ops[1].Attrs["mask"] = graph.Bools(false)

	src, err := Format(p)
	require.NoError(t, err)

	back, err := Parse(src, "formatted.hcl")
	require.NoError(t, err, string(src))
	assert.Equal(t, p.Vars, back.Vars)
	assert.Equal(t, p.Fetch, back.Fetch)
	require.Len(t, back.Ops, len(p.Ops))
	for i := range p.Ops {
		want, got := p.Ops[i], back.Ops[i]
		assert.Equal(t, want.Type, got.Type)
		assert.Equal(t, want.Inputs, got.Inputs)
		assert.Equal(t, want.ParaInputs, got.ParaInputs)
		assert.Equal(t, want.Outputs, got.Outputs)
		require.Equal(t, want.Attrs.Names(), got.Attrs.Names())
		for _, name := range want.Attrs.Names() {
			assert.True(t, want.Attrs[name].Equal(got.Attrs[name]), "%s: %s != %s", name, want.Attrs[name], got.Attrs[name])
		}
	}
}

func TestFormatRejectsInvalidAttr(t *testing.T) {
	p := &program.Program{Ops: []*graph.OpDesc{{Type: graph.OpRelu, Attrs: graph.Attrs{"bad": {}}}}}
	_, err := Format(p)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conv_bn.hcl")
	require.NoError(t, os.WriteFile(path, []byte(convBn), 0o600))

	p, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, p.Ops, 2)

	_, err = Load(context.Background(), filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}
