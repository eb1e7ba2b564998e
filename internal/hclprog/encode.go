package hclprog

import (
	"fmt"
	"io"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/born-ml/opgraph/internal/graph"
	"github.com/born-ml/opgraph/internal/program"
)

// Format renders p in the program file syntax. Parse(Format(p)) yields an
// equivalent program, except that integral float attributes read back as ints.
func Format(p *program.Program) ([]byte, error) {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	for _, v := range p.Vars {
		blk := body.AppendNewBlock("var", []string{v.Name})
		if len(v.Dims) > 0 {
			dims := make([]cty.Value, len(v.Dims))
			for i, d := range v.Dims {
				dims[i] = cty.NumberIntVal(int64(d))
			}
			blk.Body().SetAttributeValue("dims", cty.TupleVal(dims))
		}
		if v.Persistable {
			blk.Body().SetAttributeValue("persistable", cty.True)
		}
	}
	if len(p.Vars) > 0 {
		body.AppendNewline()
	}

	for i, d := range p.Ops {
		blk := body.AppendNewBlock("op", []string{d.Type})
		ob := blk.Body()
		setRoles(ob, "inputs", d.Inputs)
		setRoles(ob, "para_inputs", d.ParaInputs)
		setRoles(ob, "outputs", d.Outputs)
		if len(d.Attrs) > 0 {
			attrs := make(map[string]cty.Value, len(d.Attrs))
			for name, a := range d.Attrs {
				v, err := fromAttr(a)
				if err != nil {
					return nil, fmt.Errorf("hclprog: op %d (%s): attribute %q: %w", i, d.Type, name, err)
				}
				attrs[name] = v
			}
			ob.SetAttributeValue("attrs", cty.ObjectVal(attrs))
		}
		body.AppendNewline()
	}

	if len(p.Fetch) > 0 {
		body.SetAttributeValue("fetch", stringList(p.Fetch))
	}
	return hclwrite.Format(f.Bytes()), nil
}

// Write writes Format(p) to w.
func Write(w io.Writer, p *program.Program) error {
	src, err := Format(p)
	if err != nil {
		return err
	}
	_, err = w.Write(src)
	return err
}

func setRoles(body *hclwrite.Body, name string, roles map[string][]string) {
	if len(roles) == 0 {
		return
	}
	obj := make(map[string]cty.Value, len(roles))
	for role, names := range roles {
		obj[role] = stringList(names)
	}
	body.SetAttributeValue(name, cty.ObjectVal(obj))
}

func stringList(ss []string) cty.Value {
	vals := make([]cty.Value, len(ss))
	for i, s := range ss {
		vals[i] = cty.StringVal(s)
	}
	return cty.TupleVal(vals)
}

func fromAttr(a graph.Attr) (cty.Value, error) {
	switch a.Kind() {
	case graph.AttrInt:
		v, _ := a.AsInt()
		return cty.NumberIntVal(v), nil
	case graph.AttrFloat:
		v, _ := a.AsFloat()
		return cty.NumberFloatVal(float64(v)), nil
	case graph.AttrBool:
		v, _ := a.AsBool()
		return cty.BoolVal(v), nil
	case graph.AttrString:
		v, _ := a.AsString()
		return cty.StringVal(v), nil
	case graph.AttrInts:
		vs, _ := a.AsInts()
		vals := make([]cty.Value, len(vs))
		for i, v := range vs {
			vals[i] = cty.NumberIntVal(v)
		}
		return cty.TupleVal(vals), nil
	case graph.AttrFloats:
		vs, _ := a.AsFloats()
		vals := make([]cty.Value, len(vs))
		for i, v := range vs {
			vals[i] = cty.NumberFloatVal(float64(v))
		}
		return cty.TupleVal(vals), nil
	case graph.AttrBools:
		vs, _ := a.AsBools()
		vals := make([]cty.Value, len(vs))
		for i, v := range vs {
			vals[i] = cty.BoolVal(v)
		}
		return cty.TupleVal(vals), nil
	case graph.AttrStrings:
		vs, _ := a.AsStrings()
		return stringList(vs), nil
	default:
		return cty.NilVal, fmt.Errorf("invalid attribute")
	}
}
