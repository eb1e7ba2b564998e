package graph

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// OpDesc describes one graph node as produced by a model deserializer.
//
// Inputs holds the schema input roles of the operator type, ParaInputs holds
// the extra parameter bindings (weights, biases, scales). The engine treats a
// descriptor as read-only; rewriting synthesizes new descriptors.
type OpDesc struct {
	Type       string
	Inputs     map[string][]string
	ParaInputs map[string][]string
	Outputs    map[string][]string
	Attrs      Attrs
}

// Input returns the variable names bound to a schema input role.
func (d *OpDesc) Input(role string) ([]string, bool) {
	names, ok := d.Inputs[role]
	return names, ok
}

// ParaInput returns the variable names bound to a parameter role.
func (d *OpDesc) ParaInput(role string) ([]string, bool) {
	names, ok := d.ParaInputs[role]
	return names, ok
}

// Output returns the variable names bound to an output role.
func (d *OpDesc) Output(role string) ([]string, bool) {
	names, ok := d.Outputs[role]
	return names, ok
}

// HasRole reports whether role is bound as an input or parameter input.
func (d *OpDesc) HasRole(role string) bool {
	if _, ok := d.Inputs[role]; ok {
		return true
	}
	_, ok := d.ParaInputs[role]
	return ok
}

// InputNames returns every variable read by the node, schema inputs first,
// each group in sorted role order.
func (d *OpDesc) InputNames() []string {
	var names []string
	for _, role := range sortedRoles(d.Inputs) {
		names = append(names, d.Inputs[role]...)
	}
	for _, role := range sortedRoles(d.ParaInputs) {
		names = append(names, d.ParaInputs[role]...)
	}
	return names
}

// OutputNames returns every variable written by the node in sorted role order.
func (d *OpDesc) OutputNames() []string {
	var names []string
	for _, role := range sortedRoles(d.Outputs) {
		names = append(names, d.Outputs[role]...)
	}
	return names
}

// Clone returns a deep copy.
func (d *OpDesc) Clone() *OpDesc {
	return &OpDesc{
		Type:       d.Type,
		Inputs:     cloneRoles(d.Inputs),
		ParaInputs: cloneRoles(d.ParaInputs),
		Outputs:    cloneRoles(d.Outputs),
		Attrs:      d.Attrs.Clone(),
	}
}

// String renders the descriptor on one line, e.g.
// conv2d(Input=[x] Filter=[w]) -> (Output=[c]).
func (d *OpDesc) String() string {
	var b strings.Builder
	b.WriteString(d.Type)
	b.WriteByte('(')
	writeRoles(&b, d.Inputs)
	if len(d.Inputs) > 0 && len(d.ParaInputs) > 0 {
		b.WriteByte(' ')
	}
	writeRoles(&b, d.ParaInputs)
	b.WriteString(") -> (")
	writeRoles(&b, d.Outputs)
	b.WriteByte(')')
	return b.String()
}

func writeRoles(b *strings.Builder, roles map[string][]string) {
	for i, role := range sortedRoles(roles) {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(b, "%s=[%s]", role, strings.Join(roles[role], ","))
	}
}

func sortedRoles(roles map[string][]string) []string {
	keys := make([]string, 0, len(roles))
	for k := range roles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneRoles(roles map[string][]string) map[string][]string {
	if roles == nil {
		return nil
	}
	out := make(map[string][]string, len(roles))
	for k, v := range roles {
		out[k] = slices.Clone(v)
	}
	return out
}
