package graph

import (
	"fmt"
	"slices"
	"sort"
)

// AttrKind identifies which field of an Attr is populated.
type AttrKind uint8

// Attribute kinds.
const (
	AttrInvalid AttrKind = iota
	AttrInt
	AttrFloat
	AttrBool
	AttrString
	AttrInts
	AttrFloats
	AttrBools
	AttrStrings
)

var attrKindNames = [...]string{
	AttrInvalid: "invalid",
	AttrInt:     "int",
	AttrFloat:   "float",
	AttrBool:    "bool",
	AttrString:  "string",
	AttrInts:    "ints",
	AttrFloats:  "floats",
	AttrBools:   "bools",
	AttrStrings: "strings",
}

// String returns the kind name.
func (k AttrKind) String() string {
	if int(k) < len(attrKindNames) {
		return attrKindNames[k]
	}
	return fmt.Sprintf("AttrKind(%d)", uint8(k))
}

// Attr is a tagged union over the scalar and list attribute values an
// operator descriptor can carry. The zero value is an invalid attribute.
type Attr struct {
	kind    AttrKind
	i       int64
	f       float32
	b       bool
	s       string
	ints    []int64
	floats  []float32
	bools   []bool
	strings []string
}

// Int returns an integer attribute.
func Int(v int64) Attr { return Attr{kind: AttrInt, i: v} }

// Float returns a float attribute.
func Float(v float32) Attr { return Attr{kind: AttrFloat, f: v} }

// Bool returns a boolean attribute.
func Bool(v bool) Attr { return Attr{kind: AttrBool, b: v} }

// String returns a string attribute.
func String(v string) Attr { return Attr{kind: AttrString, s: v} }

// Ints returns an integer list attribute. The slice is copied.
func Ints(v ...int64) Attr { return Attr{kind: AttrInts, ints: slices.Clone(v)} }

// Floats returns a float list attribute. The slice is copied.
func Floats(v ...float32) Attr { return Attr{kind: AttrFloats, floats: slices.Clone(v)} }

// Bools returns a boolean list attribute. The slice is copied.
func Bools(v ...bool) Attr { return Attr{kind: AttrBools, bools: slices.Clone(v)} }

// Strings returns a string list attribute. The slice is copied.
func Strings(v ...string) Attr { return Attr{kind: AttrStrings, strings: slices.Clone(v)} }

// Kind reports which value the attribute holds.
func (a Attr) Kind() AttrKind { return a.kind }

// AsInt returns the integer value.
func (a Attr) AsInt() (int64, bool) { return a.i, a.kind == AttrInt }

// AsFloat returns the float value. Integer attributes are widened, since
// serialized graphs frequently store whole-number floats as ints.
func (a Attr) AsFloat() (float32, bool) {
	switch a.kind {
	case AttrFloat:
		return a.f, true
	case AttrInt:
		return float32(a.i), true
	default:
		return 0, false
	}
}

// AsBool returns the boolean value.
func (a Attr) AsBool() (bool, bool) { return a.b, a.kind == AttrBool }

// AsString returns the string value.
func (a Attr) AsString() (string, bool) { return a.s, a.kind == AttrString }

// AsInts returns a copy of the integer list.
func (a Attr) AsInts() ([]int64, bool) {
	if a.kind != AttrInts {
		return nil, false
	}
	return slices.Clone(a.ints), true
}

// AsFloats returns a copy of the float list. Integer lists are widened like
// AsFloat widens integers.
func (a Attr) AsFloats() ([]float32, bool) {
	switch a.kind {
	case AttrFloats:
		return slices.Clone(a.floats), true
	case AttrInts:
		fs := make([]float32, len(a.ints))
		for i, v := range a.ints {
			fs[i] = float32(v)
		}
		return fs, true
	default:
		return nil, false
	}
}

// AsBools returns a copy of the boolean list.
func (a Attr) AsBools() ([]bool, bool) {
	if a.kind != AttrBools {
		return nil, false
	}
	return slices.Clone(a.bools), true
}

// AsStrings returns a copy of the string list.
func (a Attr) AsStrings() ([]string, bool) {
	if a.kind != AttrStrings {
		return nil, false
	}
	return slices.Clone(a.strings), true
}

// Equal reports whether both attributes have the same kind and value.
func (a Attr) Equal(b Attr) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case AttrInt:
		return a.i == b.i
	case AttrFloat:
		return a.f == b.f
	case AttrBool:
		return a.b == b.b
	case AttrString:
		return a.s == b.s
	case AttrInts:
		return slices.Equal(a.ints, b.ints)
	case AttrFloats:
		return slices.Equal(a.floats, b.floats)
	case AttrBools:
		return slices.Equal(a.bools, b.bools)
	case AttrStrings:
		return slices.Equal(a.strings, b.strings)
	default:
		return true
	}
}

// String formats the value for logs and the CLI.
func (a Attr) String() string {
	switch a.kind {
	case AttrInt:
		return fmt.Sprint(a.i)
	case AttrFloat:
		return fmt.Sprint(a.f)
	case AttrBool:
		return fmt.Sprint(a.b)
	case AttrString:
		return fmt.Sprintf("%q", a.s)
	case AttrInts:
		return fmt.Sprint(a.ints)
	case AttrFloats:
		return fmt.Sprint(a.floats)
	case AttrBools:
		return fmt.Sprint(a.bools)
	case AttrStrings:
		return fmt.Sprintf("%q", a.strings)
	default:
		return "<invalid>"
	}
}

// Attrs maps attribute names to values.
type Attrs map[string]Attr

// Get returns the named attribute.
func (as Attrs) Get(name string) (Attr, bool) {
	a, ok := as[name]
	return a, ok
}

// Has reports whether the attribute is present.
func (as Attrs) Has(name string) bool {
	_, ok := as[name]
	return ok
}

// Names returns the attribute names in sorted order.
func (as Attrs) Names() []string {
	names := make([]string, 0, len(as))
	for name := range as {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a copy of the map. Attr values are immutable, so a shallow
// copy of each entry is sufficient.
func (as Attrs) Clone() Attrs {
	if as == nil {
		return nil
	}
	out := make(Attrs, len(as))
	for k, v := range as {
		out[k] = v
	}
	return out
}
