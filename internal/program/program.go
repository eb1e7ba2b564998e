package program

import (
	"errors"
	"fmt"
	"slices"

	"github.com/born-ml/opgraph/internal/graph"
)

// Var declares a scope variable before any operator is built.
type Var struct {
	Name        string
	Dims        []int
	Persistable bool
}

// Program is a parsed model: declared variables, operator descriptors and
// the variables read back after execution.
type Program struct {
	Vars  []Var
	Ops   []*graph.OpDesc
	Fetch []string
}

// Validate checks that every operator has a type and that each variable is
// written by at most one operator and never both declared and written.
func (p *Program) Validate() error {
	declared := make(map[string]bool, len(p.Vars))
	for _, v := range p.Vars {
		if v.Name == "" {
			return errors.New("program: variable without name")
		}
		if declared[v.Name] {
			return fmt.Errorf("program: variable %q declared twice", v.Name)
		}
		declared[v.Name] = true
	}

	producer := make(map[string]int)
	for i, d := range p.Ops {
		if d == nil || d.Type == "" {
			return fmt.Errorf("program: op %d has no type", i)
		}
		for _, name := range d.OutputNames() {
			if declared[name] {
				return fmt.Errorf("program: op %d (%s) writes declared variable %q", i, d.Type, name)
			}
			if j, ok := producer[name]; ok {
				return fmt.Errorf("program: variable %q written by ops %d and %d", name, j, i)
			}
			producer[name] = i
		}
	}

	for _, name := range p.Fetch {
		if _, ok := producer[name]; !ok && !declared[name] {
			return fmt.Errorf("program: fetch target %q is never produced", name)
		}
	}
	return nil
}

// Types returns the distinct operator types used by the program, sorted.
func (p *Program) Types() []string {
	var types []string
	for _, d := range p.Ops {
		if !slices.Contains(types, d.Type) {
			types = append(types, d.Type)
		}
	}
	slices.Sort(types)
	return types
}

// executionOrder returns the descriptors ordered so that every producer
// precedes its consumers. Independent operators keep their relative order.
func executionOrder(ops []*graph.OpDesc) []*graph.OpDesc {
	producer := make(map[string]int)
	for i, d := range ops {
		for _, name := range d.OutputNames() {
			producer[name] = i
		}
	}

	visited := make([]bool, len(ops))
	result := make([]*graph.OpDesc, 0, len(ops))

	var visit func(i int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true
		for _, name := range ops[i].InputNames() {
			if dep, ok := producer[name]; ok {
				visit(dep)
			}
		}
		result = append(result, ops[i])
	}

	for i := range ops {
		visit(i)
	}
	return result
}
