package device

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/opgraph/internal/graph"
)

func TestInitContextValidate(t *testing.T) {
	tests := []struct {
		name    string
		ic      InitContext
		wantErr error
	}{
		{"default", DefaultInitContext(), nil},
		{"default with ignored path", InitContext{CodeLoadMode: LoadDefault, CustomPath: "/tmp/x"}, nil},
		{"custom with path", InitContext{CodeLoadMode: LoadCustomPath, CustomPath: "/tmp/x"}, nil},
		{"custom without path", InitContext{CodeLoadMode: LoadCustomPath}, ErrCustomPathRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ic.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Error(t, InitContext{CodeLoadMode: CodeLoadMode(7)}.Validate())
}

func TestParseCodeLoadMode(t *testing.T) {
	m, err := ParseCodeLoadMode("custom")
	require.NoError(t, err)
	assert.Equal(t, LoadCustomPath, m)
	assert.Equal(t, "custom", m.String())

	m, err = ParseCodeLoadMode("")
	require.NoError(t, err)
	assert.Equal(t, LoadDefault, m)

	_, err = ParseCodeLoadMode("metal")
	assert.Error(t, err)
}

func TestFunctionName(t *testing.T) {
	assert.Equal(t, "convAddBatchnormRelu", FunctionName(graph.OpConvAddBatchNormRelu))
	assert.Equal(t, "elementwiseAdd", FunctionName(graph.OpElementwiseAdd))
	assert.Equal(t, "relu", FunctionName(graph.OpRelu))
}

func TestBuiltinLibraryCoversSchema(t *testing.T) {
	lib, err := OpenLibrary(DefaultInitContext())
	require.NoError(t, err)
	require.True(t, lib.Builtin())

	for _, op := range graph.DefaultSchema().Types() {
		src, err := lib.Source(FunctionName(op))
		require.NoError(t, err, op)
		assert.Contains(t, src, "fn main", op)
	}

	_, err = lib.Source("missing")
	assert.ErrorIs(t, err, ErrFunctionNotFound)
}

func TestCustomLibrary(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "relu.wgsl"), []byte("// custom relu"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	lib, err := OpenLibrary(InitContext{CodeLoadMode: LoadCustomPath, CustomPath: dir})
	require.NoError(t, err)

	src, err := lib.Source("relu")
	require.NoError(t, err)
	assert.Equal(t, "// custom relu", src)

	_, err = lib.Source("softmax")
	assert.ErrorIs(t, err, ErrFunctionNotFound)

	names, err := lib.Functions()
	require.NoError(t, err)
	assert.Equal(t, []string{"relu"}, names)
}

func TestCustomLibraryMustBeDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "lib.wgsl")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	_, err := OpenLibrary(InitContext{CodeLoadMode: LoadCustomPath, CustomPath: file})
	assert.Error(t, err)

	_, err = OpenLibrary(InitContext{CodeLoadMode: LoadCustomPath, CustomPath: filepath.Join(t.TempDir(), "absent")})
	assert.Error(t, err)
}

func TestLibrariesCache(t *testing.T) {
	var ls Libraries
	a, err := ls.Get(DefaultInitContext())
	require.NoError(t, err)
	b, err := ls.Get(InitContext{CodeLoadMode: LoadDefault, CustomPath: "ignored"})
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestLocalizeLeavesLocalPaths(t *testing.T) {
	ic := InitContext{CodeLoadMode: LoadCustomPath, CustomPath: "/opt/kernels"}
	assert.False(t, ic.IsRemote())

	got, err := Localize(context.Background(), ic, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, ic, got)
}

func TestLocalizeRejectsEmptyBucket(t *testing.T) {
	ic := InitContext{CodeLoadMode: LoadCustomPath, CustomPath: "gs:///kernels"}
	require.True(t, ic.IsRemote())
	_, err := Localize(context.Background(), ic, t.TempDir())
	assert.Error(t, err)
}

func TestSaveSource(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "relu.wgsl")
	require.NoError(t, saveSource(strings.NewReader("abc"), dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	// A failed copy leaves neither the destination nor a staged file behind.
	broken := filepath.Join(dir, "softmax.wgsl")
	err = saveSource(iotest.ErrReader(errors.New("reset")), broken)
	assert.ErrorContains(t, err, "softmax.wgsl")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "relu.wgsl", entries[0].Name())
}

func TestGroups1D(t *testing.T) {
	assert.Equal(t, [3]uint32{1, 1, 1}, Groups1D(0))
	assert.Equal(t, [3]uint32{1, 1, 1}, Groups1D(256))
	assert.Equal(t, [3]uint32{2, 1, 1}, Groups1D(257))
}
