package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/opgraph/internal/device/trace"
	"github.com/born-ml/opgraph/internal/graph"
)

const addPrelu = `
var "x" {
  dims = [1, 4, 8, 8]
}
var "b" {
  dims        = [4]
  persistable = true
}
var "alpha" {
  dims        = [1]
  persistable = true
}

op "elementwise_add" {
  inputs      = { X = ["x"] }
  para_inputs = { Y = ["b"] }
  outputs     = { Out = ["t"] }
  attrs       = { axis = 1 }
}

op "prelu" {
  inputs      = { X = ["t"] }
  para_inputs = { Alpha = ["alpha"] }
  outputs     = { Out = ["p"] }
  attrs       = { mode = "all" }
}

fetch = ["p"]
`

func writeProgram(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "add_prelu.hcl")
	require.NoError(t, os.WriteFile(path, []byte(addPrelu), 0o600))
	return path
}

func TestEngineLoadAndRun(t *testing.T) {
	ctx := context.Background()
	dev := trace.New("trace0")
	e, err := New(ctx, DefaultConfig(), dev)
	require.NoError(t, err)
	assert.Same(t, dev, e.Device())

	scope := NewScope()
	g, err := e.Load(ctx, writeProgram(t), scope)
	require.NoError(t, err)
	require.Equal(t, 1, g.Len())
	assert.Equal(t, graph.OpElementwiseAddPrelu, g.Ops()[0].Type())

	exec, err := e.Executor(g, nil)
	require.NoError(t, err)
	out, err := exec.Run(ctx)
	require.NoError(t, err)
	p, _ := scope.Find("p")
	assert.Same(t, p, out["p"])
}

func TestEngineWithoutFusion(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Fusion.Enabled = false
	e, err := New(ctx, cfg, trace.New("trace0"))
	require.NoError(t, err)

	g, err := e.Load(ctx, writeProgram(t), NewScope())
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device.CodeLoadMode = "custom"
	_, err := New(context.Background(), cfg, trace.New("trace0"))
	assert.Error(t, err)
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx, DefaultConfig(), trace.New("trace0"))
	require.NoError(t, err)

	p, err := ParseProgram([]byte(addPrelu), "add_prelu.hcl")
	require.NoError(t, err)
	g, err := e.Build(ctx, p, NewScope())
	require.NoError(t, err)

	src, err := FormatProgram(Snapshot(g, p))
	require.NoError(t, err)
	assert.Contains(t, string(src), `op "elementwise_add_prelu"`)

	fused, err := ParseProgram(src, "fused.hcl")
	require.NoError(t, err)
	again, err := e.Build(ctx, fused, NewScope())
	require.NoError(t, err)
	assert.Empty(t, again.Matches())
	assert.Equal(t, graph.OpElementwiseAddPrelu, again.Ops()[0].Type())
}

func TestNewDevice(t *testing.T) {
	dev, err := NewDevice("trace")
	require.NoError(t, err)
	assert.Equal(t, "trace0", dev.Name())

	_, err = NewDevice("metal")
	assert.Error(t, err)
}

func TestSupportedOps(t *testing.T) {
	ops := SupportedOps()
	assert.Contains(t, ops, graph.OpConvBnRelu)
	assert.Contains(t, ops, graph.OpSoftmax)
	assert.Len(t, ops, 29)
}
