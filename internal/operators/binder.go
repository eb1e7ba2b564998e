package operators

import (
	"fmt"
	"slices"

	"github.com/born-ml/opgraph/internal/graph"
)

// binder resolves a descriptor against its schema entry and a scope for a
// ParamBuilder. The first failure is kept and every later call is a no-op,
// so builders read fields in order and return b.err at the end.
//
// Outputs that do not exist yet are held back and registered in the scope
// only once the whole operator has been built.
type binder struct {
	desc  *graph.OpDesc
	entry graph.SchemaEntry
	scope *graph.Scope

	pending map[string]*graph.Variable
	written []*graph.Variable
	err     error
}

func newBinder(desc *graph.OpDesc, entry graph.SchemaEntry, scope *graph.Scope) *binder {
	return &binder{desc: desc, entry: entry, scope: scope, pending: make(map[string]*graph.Variable)}
}

func (b *binder) fail(kind FieldKind, name string, err error) {
	if b.err == nil {
		b.err = &ParamConstructionError{Op: b.desc.Type, Kind: kind, Name: name, Err: err}
	}
}

// checkRoles rejects roles the schema does not declare and requires every
// declared input role to be bound.
func (b *binder) checkRoles() error {
	for _, role := range sortedKeys(b.desc.Inputs) {
		if !slices.Contains(b.entry.Inputs, role) {
			b.fail(FieldInput, role, ErrUnknownRole)
		}
	}
	for _, role := range sortedKeys(b.desc.Outputs) {
		if !slices.Contains(b.entry.Outputs, role) {
			b.fail(FieldOutput, role, ErrUnknownRole)
		}
	}
	for _, role := range b.entry.Inputs {
		if len(b.desc.Inputs[role]) == 0 {
			b.fail(FieldInput, role, ErrMissing)
		}
	}
	return b.err
}

func (b *binder) find(kind FieldKind, role, name string) *graph.Variable {
	if b.err != nil {
		return nil
	}
	v, ok := b.scope.Find(name)
	if !ok {
		b.fail(kind, role, &missingVariableError{name: name})
		return nil
	}
	return v
}

// input returns the first variable bound to a schema input role.
func (b *binder) input(role string) *graph.Variable {
	vs := b.inputs(role)
	if len(vs) == 0 {
		return nil
	}
	return vs[0]
}

// inputs returns every variable bound to a schema input role.
func (b *binder) inputs(role string) []*graph.Variable {
	if b.err != nil {
		return nil
	}
	names := b.desc.Inputs[role]
	if len(names) == 0 {
		b.fail(FieldInput, role, ErrMissing)
		return nil
	}
	return b.resolve(FieldInput, role, names)
}

// inputAt returns the i-th variable of a schema input role, or nil when the
// role has fewer bindings.
func (b *binder) inputAt(role string, i int) *graph.Variable {
	names := b.desc.Inputs[role]
	if b.err != nil || i >= len(names) {
		return nil
	}
	return b.find(FieldInput, role, names[i])
}

// para returns the first variable bound to a required parameter role.
func (b *binder) para(role string) *graph.Variable {
	vs := b.paras(role)
	if len(vs) == 0 {
		return nil
	}
	return vs[0]
}

// paras returns every variable bound to a required parameter role.
func (b *binder) paras(role string) []*graph.Variable {
	if b.err != nil {
		return nil
	}
	names := b.desc.ParaInputs[role]
	if len(names) == 0 {
		b.fail(FieldParaInput, role, ErrMissing)
		return nil
	}
	return b.resolve(FieldParaInput, role, names)
}

// optionalParas is paras for a role that may be absent.
func (b *binder) optionalParas(role string) []*graph.Variable {
	if b.err != nil || len(b.desc.ParaInputs[role]) == 0 {
		return nil
	}
	return b.resolve(FieldParaInput, role, b.desc.ParaInputs[role])
}

func (b *binder) resolve(kind FieldKind, role string, names []string) []*graph.Variable {
	vs := make([]*graph.Variable, 0, len(names))
	for _, name := range names {
		v := b.find(kind, role, name)
		if v == nil {
			return nil
		}
		vs = append(vs, v)
	}
	return vs
}

// output returns the variable bound to a single-output role.
func (b *binder) output(role string) *graph.Variable {
	if b.err != nil {
		return nil
	}
	if names := b.desc.Outputs[role]; len(names) > 1 {
		b.fail(FieldOutput, role, &arityError{want: 1, got: len(names)})
		return nil
	}
	vs := b.outputs(role)
	if len(vs) == 0 {
		return nil
	}
	return vs[0]
}

// outputs returns every variable bound to an output role in order, creating
// the ones the scope does not hold yet.
func (b *binder) outputs(role string) []*graph.Variable {
	if b.err != nil {
		return nil
	}
	names := b.desc.Outputs[role]
	if len(names) == 0 {
		b.fail(FieldOutput, role, ErrMissing)
		return nil
	}
	vs := make([]*graph.Variable, 0, len(names))
	for _, name := range names {
		v, ok := b.scope.Find(name)
		if !ok {
			if v, ok = b.pending[name]; !ok {
				v = &graph.Variable{Name: name}
				b.pending[name] = v
			}
		}
		vs = append(vs, v)
	}
	b.written = append(b.written, vs...)
	return vs
}

// commit registers held-back outputs in the scope.
func (b *binder) commit() {
	for _, name := range sortedKeys(b.pending) {
		b.scope.Set(b.pending[name])
	}
	b.pending = nil
}

func (b *binder) attr(name string, kind graph.AttrKind) (graph.Attr, bool) {
	if b.err != nil {
		return graph.Attr{}, false
	}
	a, ok := b.desc.Attrs.Get(name)
	if !ok {
		return graph.Attr{}, false
	}
	if a.Kind() != kind && !widens(a.Kind(), kind) {
		b.fail(FieldAttr, name, &attrKindError{want: kind, got: a.Kind()})
		return graph.Attr{}, false
	}
	return a, true
}

// widens reports whether an attribute of kind from is accepted where kind to
// is expected.
func widens(from, to graph.AttrKind) bool {
	return (from == graph.AttrInt && to == graph.AttrFloat) || (from == graph.AttrInts && to == graph.AttrFloats)
}

func (b *binder) missingAttr(name string, hasDefault bool) {
	if !hasDefault {
		b.fail(FieldAttr, name, ErrMissing)
	}
}

func (b *binder) attrInt(name string, def ...int) int {
	a, ok := b.attr(name, graph.AttrInt)
	if !ok {
		b.missingAttr(name, len(def) > 0)
		return first(def)
	}
	v, _ := a.AsInt()
	return int(v)
}

func (b *binder) attrInts(name string, def ...int) []int {
	a, ok := b.attr(name, graph.AttrInts)
	if !ok {
		b.missingAttr(name, def != nil)
		return slices.Clone(def)
	}
	vs, _ := a.AsInts()
	out := make([]int, len(vs))
	for i, v := range vs {
		out[i] = int(v)
	}
	return out
}

func (b *binder) attrFloats(name string, def ...float32) []float32 {
	a, ok := b.attr(name, graph.AttrFloats)
	if !ok {
		b.missingAttr(name, def != nil)
		return slices.Clone(def)
	}
	vs, _ := a.AsFloats()
	return vs
}

func (b *binder) attrFloat(name string, def ...float32) float32 {
	a, ok := b.attr(name, graph.AttrFloat)
	if !ok {
		b.missingAttr(name, len(def) > 0)
		return first(def)
	}
	v, _ := a.AsFloat()
	return v
}

func (b *binder) attrString(name string, def ...string) string {
	a, ok := b.attr(name, graph.AttrString)
	if !ok {
		b.missingAttr(name, len(def) > 0)
		return first(def)
	}
	v, _ := a.AsString()
	return v
}

func (b *binder) attrBool(name string, def ...bool) bool {
	a, ok := b.attr(name, graph.AttrBool)
	if !ok {
		b.missingAttr(name, len(def) > 0)
		return first(def)
	}
	v, _ := a.AsBool()
	return v
}

// unsupported records a valid but unsupported attribute value.
func (b *binder) unsupported(name string) {
	b.fail(FieldAttr, name, ErrNotImplemented)
}

type missingVariableError struct {
	name string
}

func (e *missingVariableError) Error() string {
	return "variable " + e.name + " not in scope"
}

func (e *missingVariableError) Unwrap() error { return ErrMissing }

type attrKindError struct {
	want, got graph.AttrKind
}

func (e *attrKindError) Error() string {
	return "want " + e.want.String() + ", got " + e.got.String()
}

func (e *attrKindError) Unwrap() error { return ErrMistyped }

// arityError reports a role bound to more variables than it accepts.
type arityError struct {
	want, got int
}

func (e *arityError) Error() string {
	return fmt.Sprintf("%d variables bound, want %d", e.got, e.want)
}

func (e *arityError) Unwrap() error { return ErrMistyped }

func first[T any](vs []T) T {
	var zero T
	if len(vs) == 0 {
		return zero
	}
	return vs[0]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
