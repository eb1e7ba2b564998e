package fusion

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"k8s.io/klog/v2"

	"github.com/born-ml/opgraph/internal/device"
	"github.com/born-ml/opgraph/internal/graph"
	"github.com/born-ml/opgraph/internal/operators"
)

// DefaultMaxIterations bounds the number of passes of a Fuse call.
const DefaultMaxIterations = 8

// Options are the settings of a Fuser.
type Options struct {
	// MaxIterations is the maximum number of passes over the graph.
	MaxIterations int
}

// DefaultOptions returns the default fuser options.
func DefaultOptions() *Options {
	return &Options{MaxIterations: DefaultMaxIterations}
}

// Option is an option function that changes Options.
type Option func(o *Options)

// WithMaxIterations sets the maximum number of passes.
func WithMaxIterations(n int) Option {
	return func(o *Options) {
		o.MaxIterations = n
	}
}

// Graph is an ordered list of operators and the variable names read from
// outside it.
type Graph struct {
	Ops   []operators.Runnable
	Fetch []string
}

// Match records one applied rewrite.
type Match struct {
	Rule     string
	Pass     int
	Replaced []string
	Fused    operators.Runnable
}

// Result is the outcome of Fuse.
type Result struct {
	Graph   Graph
	Matches []Match
	Passes  int
}

// Fuser rewrites operator chains into fused operators built through a registry.
type Fuser struct {
	registry *operators.Registry
	rules    []Rule
	options  *Options
}

// NewFuser creates a fuser applying rules in list order.
func NewFuser(registry *operators.Registry, rules []Rule, opts ...Option) (*Fuser, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.MaxIterations < 1 {
		return nil, fmt.Errorf("fusion: max iterations must be positive, got %d", options.MaxIterations)
	}
	for i := range rules {
		if err := rules[i].Validate(); err != nil {
			return nil, err
		}
	}
	return &Fuser{registry: registry, rules: slices.Clone(rules), options: options}, nil
}

// Fuse rewrites g until a pass finds no match or MaxIterations passes ran.
// The input graph is not modified. Operator construction errors are returned
// unchanged.
func (f *Fuser) Fuse(ctx context.Context, g Graph, dev device.Device, scope *graph.Scope, ic device.InitContext) (Result, error) {
	log := klog.FromContext(ctx)

	res := Result{Graph: Graph{Ops: slices.Clone(g.Ops), Fetch: slices.Clone(g.Fetch)}}
	for pass := 1; pass <= f.options.MaxIterations; pass++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ops, matches, err := f.pass(ctx, res.Graph, pass, dev, scope, ic)
		if err != nil {
			return res, err
		}
		res.Passes = pass
		if len(matches) == 0 {
			break
		}
		log.V(2).Info("fusion pass", "pass", pass, "matches", len(matches), "ops", len(ops))
		res.Graph.Ops = ops
		res.Matches = append(res.Matches, matches...)
	}
	return res, nil
}

// pass applies every rule once over g. Each node is claimed by at most one
// match and a fused operator takes the position of the last node it replaces.
func (f *Fuser) pass(ctx context.Context, g Graph, pass int, dev device.Device, scope *graph.Scope, ic device.InitContext) ([]operators.Runnable, []Match, error) {
	log := klog.FromContext(ctx)

	descs := make([]*graph.OpDesc, len(g.Ops))
	for i, op := range g.Ops {
		descs[i] = op.Desc()
	}
	idx := newEdgeIndex(descs, g.Fetch)

	consumed := make([]bool, len(g.Ops))
	fused := make(map[int]operators.Runnable)
	var matches []Match

	for ri := range f.rules {
		rule := &f.rules[ri]
		for start := range g.Ops {
			if consumed[start] || descs[start].Type != rule.Pattern[0] {
				continue
			}
			chain, links, ok := idx.chain(rule.Pattern, start, consumed)
			if !ok {
				continue
			}
			matched := make([]*graph.OpDesc, len(chain))
			for i, n := range chain {
				matched[i] = descs[n]
			}
			if err := rule.check(matched); err != nil {
				if errors.Is(err, errPreconditionFailed) {
					log.V(4).Info("fusion candidate rejected", "reason", err.Error())
					continue
				}
				return nil, nil, err
			}

			op, err := f.registry.Create(dev, rule.synthesize(matched, links), scope, ic)
			if err != nil {
				return nil, nil, err
			}
			for _, n := range chain {
				consumed[n] = true
			}
			last := chain[len(chain)-1]
			fused[last] = op
			matches = append(matches, Match{Rule: rule.Name, Pass: pass, Replaced: slices.Clone(rule.Pattern), Fused: op})
			log.V(3).Info("fused operators", "rule", rule.Name, "into", op.String())
		}
	}

	if len(matches) == 0 {
		return g.Ops, nil, nil
	}
	out := make([]operators.Runnable, 0, len(g.Ops))
	for i, op := range g.Ops {
		switch {
		case fused[i] != nil:
			out = append(out, fused[i])
		case !consumed[i]:
			out = append(out, op)
		}
	}
	return out, matches, nil
}

// edgeIndex records which nodes read each variable.
type edgeIndex struct {
	descs     []*graph.OpDesc
	consumers map[string][]int
	fetched   map[string]bool
}

func newEdgeIndex(descs []*graph.OpDesc, fetch []string) *edgeIndex {
	idx := &edgeIndex{descs: descs, consumers: make(map[string][]int), fetched: make(map[string]bool)}
	for i, d := range descs {
		for _, name := range d.InputNames() {
			if c := idx.consumers[name]; len(c) == 0 || c[len(c)-1] != i {
				idx.consumers[name] = append(c, i)
			}
		}
	}
	for _, name := range fetch {
		idx.fetched[name] = true
	}
	return idx
}

// chain follows data edges from start along pattern. It returns the matched
// node indices and the tensor linking each node to the next.
//
// Every node but the last must write exactly one used variable, read only by
// the next node through a schema input role and not fetched.
func (idx *edgeIndex) chain(pattern []string, start int, consumed []bool) ([]int, []string, bool) {
	chain := []int{start}
	var links []string
	cur := start
	for _, want := range pattern[1:] {
		link, next, ok := idx.follow(cur, consumed)
		if !ok || idx.descs[next].Type != want {
			return nil, nil, false
		}
		chain = append(chain, next)
		links = append(links, link)
		cur = next
	}
	return chain, links, true
}

func (idx *edgeIndex) follow(cur int, consumed []bool) (string, int, bool) {
	link := ""
	for _, name := range idx.descs[cur].OutputNames() {
		if len(idx.consumers[name]) == 0 && !idx.fetched[name] {
			continue
		}
		if link != "" {
			return "", 0, false
		}
		link = name
	}
	if link == "" || idx.fetched[link] || len(idx.consumers[link]) != 1 {
		return "", 0, false
	}
	next := idx.consumers[link][0]
	if next <= cur || consumed[next] {
		return "", 0, false
	}
	d := idx.descs[next]
	for _, names := range d.ParaInputs {
		if slices.Contains(names, link) {
			return "", 0, false
		}
	}
	for _, names := range d.Inputs {
		if slices.Contains(names, link) {
			return link, next, true
		}
	}
	return "", 0, false
}
