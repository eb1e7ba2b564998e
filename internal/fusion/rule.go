package fusion

import (
	"errors"
	"fmt"
	"slices"

	"github.com/born-ml/opgraph/internal/graph"
)

// errPreconditionFailed rejects a structural candidate. It only ever steers
// the matcher and is never returned to callers.
var errPreconditionFailed = errors.New("fusion: precondition failed")

// State is the condition a Precondition places on an attribute or role.
type State int

// Precondition states.
const (
	Present State = iota
	Absent
	Equal
)

func (s State) String() string {
	switch s {
	case Present:
		return "present"
	case Absent:
		return "absent"
	case Equal:
		return "equal"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Precondition constrains the node at Position of a candidate. Exactly one
// of Attr and Role is set; Equal only applies to attributes.
type Precondition struct {
	Position int
	Attr     string
	Role     string
	State    State
	Value    graph.Attr
}

func (p Precondition) holds(d *graph.OpDesc) bool {
	if p.Role != "" {
		switch p.State {
		case Present:
			return d.HasRole(p.Role)
		case Absent:
			return !d.HasRole(p.Role)
		default:
			return false
		}
	}
	a, ok := d.Attrs.Get(p.Attr)
	switch p.State {
	case Present:
		return ok
	case Absent:
		return !ok
	case Equal:
		return ok && a.Equal(p.Value)
	default:
		return false
	}
}

func (p Precondition) String() string {
	if p.Role != "" {
		return fmt.Sprintf("role %s %s at %d", p.Role, p.State, p.Position)
	}
	if p.State == Equal {
		return fmt.Sprintf("attr %s == %s at %d", p.Attr, p.Value, p.Position)
	}
	return fmt.Sprintf("attr %s %s at %d", p.Attr, p.State, p.Position)
}

// Rename maps a role name of a matched node to its name in the fused descriptor.
type Rename struct {
	From string
	To   string
}

// Rule rewrites a chain of operators whose types follow Pattern into one
// operator of FusedType. Renames are keyed by the matched node's type.
type Rule struct {
	Name          string
	Pattern       []string
	Renames       map[string][]Rename
	FusedType     string
	Preconditions []Precondition
}

// Validate reports a malformed rule.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return errors.New("fusion: rule without name")
	}
	if len(r.Pattern) < 2 {
		return fmt.Errorf("fusion: rule %s: pattern needs at least two operators", r.Name)
	}
	if r.FusedType == "" {
		return fmt.Errorf("fusion: rule %s: no fused type", r.Name)
	}
	for _, p := range r.Preconditions {
		if p.Position < 0 || p.Position >= len(r.Pattern) {
			return fmt.Errorf("fusion: rule %s: precondition position %d out of range", r.Name, p.Position)
		}
		if (p.Attr == "") == (p.Role == "") {
			return fmt.Errorf("fusion: rule %s: precondition must name exactly one of attr and role", r.Name)
		}
		if p.Role != "" && p.State == Equal {
			return fmt.Errorf("fusion: rule %s: role precondition cannot test equality", r.Name)
		}
	}
	return nil
}

// check evaluates the preconditions against the matched descriptors.
func (r *Rule) check(chain []*graph.OpDesc) error {
	for _, p := range r.Preconditions {
		if !p.holds(chain[p.Position]) {
			return fmt.Errorf("%w: %s: %s", errPreconditionFailed, r.Name, p)
		}
	}
	return nil
}

func (r *Rule) rename(opType, role string) string {
	for _, rn := range r.Renames[opType] {
		if rn.From == role {
			return rn.To
		}
	}
	return role
}

// synthesize builds the fused descriptor for a matched chain. links[i] is the
// tensor flowing from chain[i] into chain[i+1].
//
// The fused node reads the first node's inputs; every other input of the
// chain becomes a parameter input under its renamed role, lists for the same
// role concatenated in chain order. It writes the last node's outputs. On
// attribute conflicts the earlier node wins.
func (r *Rule) synthesize(chain []*graph.OpDesc, links []string) *graph.OpDesc {
	first := chain[0]
	last := chain[len(chain)-1]
	fused := &graph.OpDesc{
		Type:       r.FusedType,
		Inputs:     make(map[string][]string, len(first.Inputs)),
		ParaInputs: make(map[string][]string),
		Outputs:    make(map[string][]string, len(last.Outputs)),
		Attrs:      graph.Attrs{},
	}
	for role, names := range first.Inputs {
		fused.Inputs[role] = slices.Clone(names)
	}

	for i, d := range chain {
		if i > 0 {
			for _, role := range sortedRoles(d.Inputs) {
				rest := slices.DeleteFunc(slices.Clone(d.Inputs[role]), func(n string) bool { return n == links[i-1] })
				if len(rest) > 0 {
					to := r.rename(d.Type, role)
					fused.ParaInputs[to] = append(fused.ParaInputs[to], rest...)
				}
			}
		}
		for _, role := range sortedRoles(d.ParaInputs) {
			to := r.rename(d.Type, role)
			fused.ParaInputs[to] = append(fused.ParaInputs[to], d.ParaInputs[role]...)
		}
		for name, a := range d.Attrs {
			if !fused.Attrs.Has(name) {
				fused.Attrs[name] = a
			}
		}
	}

	for role, names := range last.Outputs {
		fused.Outputs[r.rename(last.Type, role)] = slices.Clone(names)
	}
	return fused
}

func sortedRoles(m map[string][]string) []string {
	roles := make([]string, 0, len(m))
	for role := range m {
		roles = append(roles, role)
	}
	slices.Sort(roles)
	return roles
}
