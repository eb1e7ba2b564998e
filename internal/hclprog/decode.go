package hclprog

import (
	"context"
	"fmt"
	"math/big"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"k8s.io/klog/v2"

	"github.com/born-ml/opgraph/internal/graph"
	"github.com/born-ml/opgraph/internal/program"
)

// fileRoot is the top level of a program file.
type fileRoot struct {
	Vars  []*varBlock `hcl:"var,block"`
	Ops   []*opBlock  `hcl:"op,block"`
	Fetch []string    `hcl:"fetch,optional"`
}

type varBlock struct {
	Name        string `hcl:"name,label"`
	Dims        []int  `hcl:"dims,optional"`
	Persistable bool   `hcl:"persistable,optional"`
}

type opBlock struct {
	Type       string              `hcl:"type,label"`
	Inputs     map[string][]string `hcl:"inputs,optional"`
	ParaInputs map[string][]string `hcl:"para_inputs,optional"`
	Outputs    map[string][]string `hcl:"outputs,optional"`
	Attrs      cty.Value           `hcl:"attrs,optional"`
}

// Load parses the program file at path.
func Load(ctx context.Context, path string) (*program.Program, error) {
	log := klog.FromContext(ctx)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("hclprog: failed to parse %s: %w", path, diags)
	}
	p, err := decode(file.Body, path)
	if err != nil {
		return nil, err
	}
	log.V(2).Info("loaded program", "path", path, "vars", len(p.Vars), "ops", len(p.Ops))
	return p, nil
}

// Parse parses program source. filename is only used in diagnostics.
func Parse(src []byte, filename string) (*program.Program, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("hclprog: failed to parse %s: %w", filename, diags)
	}
	return decode(file.Body, filename)
}

func decode(body hcl.Body, filename string) (*program.Program, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("hclprog: failed to decode %s: %w", filename, diags)
	}
	p := &program.Program{Fetch: root.Fetch}
	for _, v := range root.Vars {
		p.Vars = append(p.Vars, program.Var{Name: v.Name, Dims: v.Dims, Persistable: v.Persistable})
	}
	for i, o := range root.Ops {
		attrs, err := toAttrs(o.Attrs)
		if err != nil {
			return nil, fmt.Errorf("hclprog: %s: op %d (%s): %w", filename, i, o.Type, err)
		}
		p.Ops = append(p.Ops, &graph.OpDesc{
			Type:       o.Type,
			Inputs:     o.Inputs,
			ParaInputs: o.ParaInputs,
			Outputs:    o.Outputs,
			Attrs:      attrs,
		})
	}
	return p, nil
}

// toAttrs converts an attrs object. Integral numbers become ints.
func toAttrs(val cty.Value) (graph.Attrs, error) {
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsKnown() {
		return nil, fmt.Errorf("attrs must be known")
	}
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return nil, fmt.Errorf("attrs must be an object, got %s", val.Type().FriendlyName())
	}
	attrs := make(graph.Attrs, val.LengthInt())
	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		a, err := toAttr(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k.AsString(), err)
		}
		attrs[k.AsString()] = a
	}
	return attrs, nil
}

func toAttr(val cty.Value) (graph.Attr, error) {
	if val.IsNull() || !val.IsKnown() {
		return graph.Attr{}, fmt.Errorf("value must be known and not null")
	}
	ty := val.Type()
	switch {
	case ty == cty.String:
		return graph.String(val.AsString()), nil
	case ty == cty.Bool:
		return graph.Bool(val.True()), nil
	case ty == cty.Number:
		if i, ok := integral(val); ok {
			return graph.Int(i), nil
		}
		f, _ := val.AsBigFloat().Float64()
		return graph.Float(float32(f)), nil
	case ty.IsTupleType() || ty.IsListType():
		return toListAttr(val)
	default:
		return graph.Attr{}, fmt.Errorf("unsupported type %s", ty.FriendlyName())
	}
}

// toListAttr converts a homogeneous list. Numbers form an int list unless
// one of them has a fractional part. An empty list is an empty int list.
func toListAttr(val cty.Value) (graph.Attr, error) {
	var elems []cty.Value
	for it := val.ElementIterator(); it.Next(); {
		_, v := it.Element()
		if v.IsNull() || !v.IsKnown() {
			return graph.Attr{}, fmt.Errorf("list element must be known and not null")
		}
		elems = append(elems, v)
	}
	if len(elems) == 0 {
		return graph.Ints(), nil
	}

	kind := elems[0].Type()
	for _, v := range elems[1:] {
		if !v.Type().Equals(kind) {
			return graph.Attr{}, fmt.Errorf("mixed list of %s and %s", kind.FriendlyName(), v.Type().FriendlyName())
		}
	}

	switch kind {
	case cty.String:
		ss := make([]string, len(elems))
		for i, v := range elems {
			ss[i] = v.AsString()
		}
		return graph.Strings(ss...), nil
	case cty.Bool:
		bs := make([]bool, len(elems))
		for i, v := range elems {
			bs[i] = v.True()
		}
		return graph.Bools(bs...), nil
	case cty.Number:
		ints := make([]int64, 0, len(elems))
		for _, v := range elems {
			i, ok := integral(v)
			if !ok {
				break
			}
			ints = append(ints, i)
		}
		if len(ints) == len(elems) {
			return graph.Ints(ints...), nil
		}
		fs := make([]float32, len(elems))
		for i, v := range elems {
			f, _ := v.AsBigFloat().Float64()
			fs[i] = float32(f)
		}
		return graph.Floats(fs...), nil
	default:
		return graph.Attr{}, fmt.Errorf("unsupported list of %s", kind.FriendlyName())
	}
}

func integral(val cty.Value) (int64, bool) {
	bf := val.AsBigFloat()
	if !bf.IsInt() {
		return 0, false
	}
	i, acc := bf.Int64()
	return i, acc == big.Exact
}
