package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const convBn = `
var "x" {
  dims = [1, 4, 8, 8]
}
var "w" {
  dims        = [4, 4, 3, 3]
  persistable = true
}
var "scale" {
  dims = [4]
}
var "shift" {
  dims = [4]
}
var "mean" {
  dims = [4]
}
var "variance" {
  dims = [4]
}

op "conv2d" {
  inputs      = { Input = ["x"] }
  para_inputs = { Filter = ["w"] }
  outputs     = { Output = ["c"] }
}

op "batch_norm" {
  inputs      = { X = ["c"] }
  para_inputs = { Scale = ["scale"], Bias = ["shift"], Mean = ["mean"], Variance = ["variance"] }
  outputs     = { Y = ["bn"] }
}

op "relu" {
  inputs  = { X = ["bn"] }
  outputs = { Out = ["r"] }
}

op "softmax" {
  inputs  = { X = ["r"] }
  outputs = { Out = ["s"] }
}

fetch = ["s"]
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeProgram(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conv_bn.hcl")
	require.NoError(t, os.WriteFile(path, []byte(convBn), 0o600))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "opgraph "+version+"\n", out)
}

func TestOps(t *testing.T) {
	out, err := execute(t, "ops")
	require.NoError(t, err)
	assert.Contains(t, out, "conv_bn_relu")
	assert.Contains(t, out, "convBnRelu")
	assert.Contains(t, out, "Input")
}

func TestFuse(t *testing.T) {
	out, err := execute(t, "fuse", writeProgram(t))
	require.NoError(t, err)
	assert.Contains(t, out, `op "conv_bn_relu"`)
	assert.Contains(t, out, `op "softmax"`)
	assert.NotContains(t, out, `op "batch_norm"`)

	dest := filepath.Join(t.TempDir(), "fused.hcl")
	_, err = execute(t, "fuse", writeProgram(t), "-o", dest)
	require.NoError(t, err)
	src, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(src), `op "conv_bn_relu"`)
}

func TestRun(t *testing.T) {
	out, err := execute(t, "run", writeProgram(t))
	require.NoError(t, err)
	assert.Contains(t, out, "dispatch 0: convBnRelu")
	assert.Contains(t, out, "dispatch 1: softmax")
	assert.Contains(t, out, "fetch s [1 4 6 6]")

	out, err = execute(t, "run", "--no-fuse", writeProgram(t))
	require.NoError(t, err)
	assert.Contains(t, out, "dispatch 3: softmax")
}

func TestRunErrors(t *testing.T) {
	_, err := execute(t, "run", filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)

	_, err = execute(t, "run", "--device", "metal", writeProgram(t))
	assert.Error(t, err)

	_, err = execute(t, "fuse")
	assert.Error(t, err)
}
