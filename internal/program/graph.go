package program

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/born-ml/opgraph/internal/device"
	"github.com/born-ml/opgraph/internal/fusion"
	"github.com/born-ml/opgraph/internal/graph"
	"github.com/born-ml/opgraph/internal/operators"
)

// Graph state errors.
var (
	ErrGraphFrozen    = errors.New("program: graph is frozen")
	ErrGraphNotFrozen = errors.New("program: graph is not frozen")
)

// State is the lifecycle stage of a Graph.
type State int

// Graph states.
const (
	StateBuilding State = iota
	StateFrozen
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateFrozen:
		return "frozen"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Graph is an instantiated program. It can be rewritten while building and
// executed once frozen. Every rewrite gives the graph a new version.
type Graph struct {
	mu      sync.RWMutex
	ops     []operators.Runnable
	fetch   []string
	scope   *graph.Scope
	version uuid.UUID
	state   State
	matches []fusion.Match
}

// NewGraph creates a building graph over already constructed operators.
func NewGraph(ops []operators.Runnable, fetch []string, scope *graph.Scope) *Graph {
	return &Graph{
		ops:     slices.Clone(ops),
		fetch:   slices.Clone(fetch),
		scope:   scope,
		version: uuid.New(),
	}
}

// Ops returns the operators in execution order.
func (g *Graph) Ops() []operators.Runnable {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.ops)
}

// Len returns the number of operators.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.ops)
}

// Fetch returns the names of the variables read back after execution.
func (g *Graph) Fetch() []string {
	return slices.Clone(g.fetch)
}

// Scope returns the scope the operators are bound to.
func (g *Graph) Scope() *graph.Scope { return g.scope }

// Version identifies the current operator list.
func (g *Graph) Version() uuid.UUID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}

// State returns the lifecycle state.
func (g *Graph) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Matches returns every rewrite applied so far.
func (g *Graph) Matches() []fusion.Match {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.matches)
}

// Fuse rewrites the graph with f. The graph must still be building.
func (g *Graph) Fuse(ctx context.Context, f *fusion.Fuser, dev device.Device, ic device.InitContext) (fusion.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateBuilding {
		return fusion.Result{}, ErrGraphFrozen
	}
	res, err := f.Fuse(ctx, fusion.Graph{Ops: g.ops, Fetch: g.fetch}, dev, g.scope, ic)
	if err != nil {
		return res, err
	}
	if len(res.Matches) > 0 {
		g.ops = res.Graph.Ops
		g.version = uuid.New()
		g.matches = append(g.matches, res.Matches...)
	}
	return res, nil
}

// Freeze ends the build phase. Freezing twice returns ErrGraphFrozen.
func (g *Graph) Freeze() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateFrozen {
		return ErrGraphFrozen
	}
	g.state = StateFrozen
	return nil
}

func (g *Graph) String() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var b strings.Builder
	fmt.Fprintf(&b, "graph %s (%s, %d ops)\n", g.version, g.state, len(g.ops))
	for i, op := range g.ops {
		fmt.Fprintf(&b, "  %3d  %s\n", i, op)
	}
	if len(g.fetch) > 0 {
		fmt.Fprintf(&b, "  fetch %s\n", strings.Join(g.fetch, ", "))
	}
	return b.String()
}
