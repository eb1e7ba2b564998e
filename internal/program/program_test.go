package program

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/opgraph/internal/device"
	"github.com/born-ml/opgraph/internal/device/trace"
	"github.com/born-ml/opgraph/internal/graph"
	"github.com/born-ml/opgraph/internal/operators"
)

func roles(kv ...string) map[string][]string {
	m := make(map[string][]string)
	for i := 0; i < len(kv); i += 2 {
		m[kv[i]] = append(m[kv[i]], kv[i+1])
	}
	return m
}

// convBnProgram is conv2d -> batch_norm -> relu -> softmax.
func convBnProgram() *Program {
	return &Program{
		Vars: []Var{
			{Name: "x", Dims: []int{1, 4, 8, 8}},
			{Name: "w", Dims: []int{4, 4, 3, 3}, Persistable: true},
			{Name: "scale", Dims: []int{4}, Persistable: true},
			{Name: "shift", Dims: []int{4}, Persistable: true},
			{Name: "mean", Dims: []int{4}, Persistable: true},
			{Name: "variance", Dims: []int{4}, Persistable: true},
		},
		Ops: []*graph.OpDesc{
			{
				Type:       graph.OpConv2D,
				Inputs:     roles("Input", "x"),
				ParaInputs: roles("Filter", "w"),
				Outputs:    roles("Output", "c"),
			},
			{
				Type:       graph.OpBatchNorm,
				Inputs:     roles("X", "c"),
				ParaInputs: roles("Scale", "scale", "Bias", "shift", "Mean", "mean", "Variance", "variance"),
				Outputs:    roles("Y", "bn"),
			},
			{Type: graph.OpRelu, Inputs: roles("X", "bn"), Outputs: roles("Out", "r")},
			{Type: graph.OpSoftmax, Inputs: roles("X", "r"), Outputs: roles("Out", "s")},
		},
		Fetch: []string{"s"},
	}
}

func types(ops []operators.Runnable) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.Type()
	}
	return out
}

func defaultOptions(t *testing.T) BuildOptions {
	t.Helper()
	opts, err := DefaultBuildOptions()
	require.NoError(t, err)
	return opts
}

func TestBuildFusesAndFreezes(t *testing.T) {
	dev := trace.New("trace0")
	scope := graph.NewScope()

	g, err := Build(context.Background(), convBnProgram(), dev, scope, defaultOptions(t))
	require.NoError(t, err)
	assert.Equal(t, []string{graph.OpConvBnRelu, graph.OpSoftmax}, types(g.Ops()))
	assert.Equal(t, StateFrozen, g.State())
	assert.Len(t, g.Matches(), 1)
	assert.Equal(t, []string{"s"}, g.Fetch())
	assert.Same(t, scope, g.Scope())

	w, ok := scope.Find("w")
	require.True(t, ok)
	assert.True(t, w.Persistable)
	s, ok := scope.Find("s")
	require.True(t, ok)
	assert.Equal(t, []int{1, 4, 6, 6}, s.Dims)

	require.NoError(t, scope.BeginBuild(), "build lock must be released")
	scope.EndBuild()
}

func TestBuildWithoutFusion(t *testing.T) {
	opts := defaultOptions(t)
	opts.Fuser = nil

	g, err := Build(context.Background(), convBnProgram(), trace.New("trace0"), graph.NewScope(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{graph.OpConv2D, graph.OpBatchNorm, graph.OpRelu, graph.OpSoftmax}, types(g.Ops()))
	assert.Empty(t, g.Matches())
}

func TestBuildOrdersProducersFirst(t *testing.T) {
	p := &Program{
		Vars: []Var{{Name: "x", Dims: []int{2, 8}}},
		Ops: []*graph.OpDesc{
			{Type: graph.OpSoftmax, Inputs: roles("X", "r"), Outputs: roles("Out", "s")},
			{Type: graph.OpRelu, Inputs: roles("X", "x"), Outputs: roles("Out", "r")},
		},
		Fetch: []string{"s"},
	}
	g, err := Build(context.Background(), p, trace.New("trace0"), graph.NewScope(), BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{graph.OpRelu, graph.OpSoftmax}, types(g.Ops()))
}

func TestBuildConstructionErrors(t *testing.T) {
	p := convBnProgram()
	p.Ops = append(p.Ops, &graph.OpDesc{Type: "gelu", Inputs: roles("X", "s"), Outputs: roles("Out", "g")})

	_, err := Build(context.Background(), p, trace.New("trace0"), graph.NewScope(), defaultOptions(t))
	var uoe *operators.UnknownOperatorError
	require.ErrorAs(t, err, &uoe)
	assert.Equal(t, "gelu", uoe.Type)
	assert.Same(t, uoe, err)
	assert.True(t, IsConstructionError(err))

	p = convBnProgram()
	p.Ops[2].Inputs = nil
	_, err = Build(context.Background(), p, trace.New("trace0"), graph.NewScope(), defaultOptions(t))
	var pce *operators.ParamConstructionError
	require.ErrorAs(t, err, &pce)
	assert.Equal(t, graph.OpRelu, pce.Op)
	assert.Equal(t, "X", pce.Name)
	assert.Same(t, pce, err)
}

func TestBuildRejectsBusyScope(t *testing.T) {
	scope := graph.NewScope()
	require.NoError(t, scope.BeginBuild())
	defer scope.EndBuild()

	_, err := Build(context.Background(), convBnProgram(), trace.New("trace0"), scope, defaultOptions(t))
	assert.ErrorIs(t, err, graph.ErrScopeBusy)
}

func TestBuildRejectsInvalidInitContext(t *testing.T) {
	opts := defaultOptions(t)
	opts.InitContext = device.InitContext{CodeLoadMode: device.LoadCustomPath}

	_, err := Build(context.Background(), convBnProgram(), trace.New("trace0"), graph.NewScope(), opts)
	assert.ErrorIs(t, err, device.ErrCustomPathRequired)
	assert.False(t, IsConstructionError(err))
}

func TestProgramValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Program)
	}{
		{"unnamed variable", func(p *Program) { p.Vars = append(p.Vars, Var{}) }},
		{"variable declared twice", func(p *Program) { p.Vars = append(p.Vars, Var{Name: "x"}) }},
		{"op without type", func(p *Program) { p.Ops[1].Type = "" }},
		{"op writes declared variable", func(p *Program) { p.Ops[2].Outputs = roles("Out", "w") }},
		{"variable written twice", func(p *Program) { p.Ops[3].Outputs = roles("Out", "r") }},
		{"unknown fetch", func(p *Program) { p.Fetch = []string{"nope"} }},
	}
	require.NoError(t, convBnProgram().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := convBnProgram()
			tt.mutate(p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestProgramTypes(t *testing.T) {
	assert.Equal(t,
		[]string{graph.OpBatchNorm, graph.OpConv2D, graph.OpRelu, graph.OpSoftmax},
		convBnProgram().Types())
}

func TestGraphVersionAndState(t *testing.T) {
	ctx := context.Background()
	dev := trace.New("trace0")
	opts := defaultOptions(t)
	fuser := opts.Fuser
	opts.Fuser = nil
	opts.KeepBuilding = true

	g, err := Build(ctx, convBnProgram(), dev, graph.NewScope(), opts)
	require.NoError(t, err)
	assert.Equal(t, StateBuilding, g.State())
	v0 := g.Version()

	res, err := g.Fuse(ctx, fuser, dev, opts.InitContext)
	require.NoError(t, err)
	assert.Len(t, res.Matches, 1)
	v1 := g.Version()
	assert.NotEqual(t, v0, v1)

	res, err = g.Fuse(ctx, fuser, dev, opts.InitContext)
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
	assert.Equal(t, v1, g.Version())
	assert.Len(t, g.Matches(), 1)

	_, err = NewExecutor(g, dev, nil)
	assert.ErrorIs(t, err, ErrGraphNotFrozen)

	require.NoError(t, g.Freeze())
	assert.ErrorIs(t, g.Freeze(), ErrGraphFrozen)
	_, err = g.Fuse(ctx, fuser, dev, opts.InitContext)
	assert.ErrorIs(t, err, ErrGraphFrozen)
	assert.Contains(t, g.String(), "frozen")
}

func TestExecutorRun(t *testing.T) {
	ctx := context.Background()
	dev := trace.New("trace0")
	scope := graph.NewScope()
	g, err := Build(ctx, convBnProgram(), dev, scope, defaultOptions(t))
	require.NoError(t, err)

	var captured []string
	exec, err := NewExecutor(g, dev, func(op operators.Runnable, outputs []*graph.Variable) {
		captured = append(captured, op.Type())
		assert.Len(t, outputs, 1)
	})
	require.NoError(t, err)

	out, err := exec.Run(ctx)
	require.NoError(t, err)
	s, _ := scope.Find("s")
	assert.Equal(t, map[string]*graph.Variable{"s": s}, out)
	assert.Equal(t, []string{graph.OpConvBnRelu, graph.OpSoftmax}, captured)

	cbs := dev.CommandBuffers()
	require.Len(t, cbs, 1)
	assert.True(t, cbs[0].Committed())
	assert.Equal(t,
		[]string{device.FunctionName(graph.OpConvBnRelu), device.FunctionName(graph.OpSoftmax)},
		cbs[0].Functions())

	_, err = exec.Run(ctx)
	require.NoError(t, err)
	assert.Len(t, dev.CommandBuffers(), 2)
}

type brokenBuffers struct {
	*trace.Device
	err error
}

func (d brokenBuffers) NewCommandBuffer() (device.CommandBuffer, error) {
	return brokenBuffer{err: d.err}, nil
}

type brokenBuffer struct{ err error }

func (b brokenBuffer) Encode(device.Dispatch) error { return b.err }
func (b brokenBuffer) Commit() error                { return nil }

func TestExecutorPropagatesKernelErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	dev := brokenBuffers{Device: trace.New("trace0"), err: boom}

	g, err := Build(ctx, convBnProgram(), dev, graph.NewScope(), defaultOptions(t))
	require.NoError(t, err)
	exec, err := NewExecutor(g, dev, nil)
	require.NoError(t, err)

	_, err = exec.Run(ctx)
	assert.Same(t, boom, err)
}
