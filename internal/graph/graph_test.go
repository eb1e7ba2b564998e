package graph

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttrAccessors(t *testing.T) {
	tests := []struct {
		name string
		attr Attr
		kind AttrKind
	}{
		{"int", Int(3), AttrInt},
		{"float", Float(0.5), AttrFloat},
		{"bool", Bool(true), AttrBool},
		{"string", String("max"), AttrString},
		{"ints", Ints(1, 2), AttrInts},
		{"floats", Floats(1, 2), AttrFloats},
		{"bools", Bools(true), AttrBools},
		{"strings", Strings("a"), AttrStrings},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.attr.Kind())
			assert.True(t, tt.attr.Equal(tt.attr))
		})
	}

	_, ok := String("x").AsInt()
	assert.False(t, ok)

	f, ok := Int(4).AsFloat()
	require.True(t, ok, "ints widen to float")
	assert.Equal(t, float32(4), f)

	fs, ok := Ints(1, 2).AsFloats()
	require.True(t, ok, "int lists widen to floats")
	assert.Equal(t, []float32{1, 2}, fs)
}

func TestAttrListIsCopied(t *testing.T) {
	src := []int64{1, 2, 3}
	a := Ints(src...)
	src[0] = 9

	got, ok := a.AsInts()
	require.True(t, ok)
	assert.Equal(t, []int64{1, 2, 3}, got)

	got[1] = 7
	again, _ := a.AsInts()
	assert.Equal(t, []int64{1, 2, 3}, again)
}

func TestAttrEqualKindMismatch(t *testing.T) {
	assert.False(t, Int(1).Equal(Float(1)))
	assert.False(t, Ints(1).Equal(Ints(1, 2)))
	assert.True(t, Strings("a", "b").Equal(Strings("a", "b")))
}

func TestOpDescCloneIsDeep(t *testing.T) {
	d := &OpDesc{
		Type:       OpConv2D,
		Inputs:     map[string][]string{"Input": {"x"}},
		ParaInputs: map[string][]string{"Filter": {"w"}},
		Outputs:    map[string][]string{"Output": {"c"}},
		Attrs:      Attrs{"groups": Int(1)},
	}
	c := d.Clone()
	c.Inputs["Input"][0] = "changed"
	c.Attrs["groups"] = Int(2)

	assert.Equal(t, "x", d.Inputs["Input"][0])
	assert.True(t, d.Attrs["groups"].Equal(Int(1)))
	assert.Equal(t, []string{"x", "w"}, d.InputNames())
	assert.Equal(t, "conv2d(Input=[x] Filter=[w]) -> (Output=[c])", d.String())
}

func TestScopeVarCreatesOnce(t *testing.T) {
	s := NewScope()
	a := s.Var("t")
	b := s.Var("t")
	assert.Same(t, a, b)

	_, ok := s.Find("missing")
	assert.False(t, ok)

	s.SetDims("u", []int{2, 3})
	u, ok := s.Find("u")
	require.True(t, ok)
	assert.Equal(t, 6, u.NumElements())
	assert.Equal(t, []string{"t", "u"}, s.Names())
}

func TestScopeBuildLock(t *testing.T) {
	s := NewScope()
	require.NoError(t, s.BeginBuild())
	assert.ErrorIs(t, s.BeginBuild(), ErrScopeBusy)
	s.EndBuild()
	require.NoError(t, s.BeginBuild())
	s.EndBuild()
}

func TestScopeConcurrentReads(t *testing.T) {
	s := NewScope()
	s.Var("a")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := s.Find("a")
			assert.True(t, ok)
		}()
	}
	wg.Wait()
}

func TestDefaultSchema(t *testing.T) {
	s := DefaultSchema()

	e, ok := s.Lookup(OpBatchNorm)
	require.True(t, ok)
	assert.Equal(t, []string{"X"}, e.Inputs)
	assert.Equal(t, []string{"Y"}, e.Outputs)

	e.Inputs[0] = "mutated"
	again, _ := s.Lookup(OpBatchNorm)
	assert.Equal(t, "X", again.Inputs[0], "lookups return copies")

	_, ok = s.Lookup("nope")
	assert.False(t, ok)
	assert.Len(t, s.Types(), 29)

	e, ok = s.Lookup(OpPriorBox)
	require.True(t, ok)
	assert.Equal(t, []string{"Input", "Image"}, e.Inputs)
	assert.Equal(t, []string{"Boxes", "Variances"}, e.Outputs)
}
