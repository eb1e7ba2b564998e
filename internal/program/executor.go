package program

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/born-ml/opgraph/internal/device"
	"github.com/born-ml/opgraph/internal/graph"
	"github.com/born-ml/opgraph/internal/operators"
)

// CaptureFunc observes each operator after it has been encoded, together
// with the variables it writes. It is a diagnostic hook: the variables may
// not hold results until the command buffer is committed.
type CaptureFunc func(op operators.Runnable, outputs []*graph.Variable)

// Executor runs a frozen graph. It is safe for concurrent use; each Run
// encodes into its own command buffer.
type Executor struct {
	graph   *Graph
	dev     device.Device
	capture CaptureFunc
}

// NewExecutor creates an executor for g on dev. capture may be nil.
func NewExecutor(g *Graph, dev device.Device, capture CaptureFunc) (*Executor, error) {
	if g.State() != StateFrozen {
		return nil, ErrGraphNotFrozen
	}
	return &Executor{graph: g, dev: dev, capture: capture}, nil
}

// Run encodes every operator into a new command buffer, commits it and
// returns the fetch variables by name.
func (e *Executor) Run(ctx context.Context) (map[string]*graph.Variable, error) {
	log := klog.FromContext(ctx)

	cb, err := e.dev.NewCommandBuffer()
	if err != nil {
		return nil, fmt.Errorf("program: new command buffer: %w", err)
	}
	ops := e.graph.Ops()
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := operators.Run(op, e.dev, cb); err != nil {
			log.Error(err, "operator failed", "index", i, "type", op.Type())
			return nil, err
		}
		if e.capture != nil {
			e.capture(op, op.Outputs())
		}
	}
	if err := cb.Commit(); err != nil {
		return nil, fmt.Errorf("program: commit: %w", err)
	}
	log.V(3).Info("executed graph", "version", e.graph.Version(), "ops", len(ops))

	out := make(map[string]*graph.Variable, len(e.graph.fetch))
	for _, name := range e.graph.fetch {
		v, ok := e.graph.scope.Find(name)
		if !ok {
			return nil, fmt.Errorf("program: missing fetch variable %s", name)
		}
		out[name] = v
	}
	return out, nil
}
