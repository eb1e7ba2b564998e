package program

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"k8s.io/klog/v2"

	"github.com/born-ml/opgraph/internal/device"
	"github.com/born-ml/opgraph/internal/fusion"
	"github.com/born-ml/opgraph/internal/graph"
	"github.com/born-ml/opgraph/internal/operators"
)

// BuildOptions configures Build.
type BuildOptions struct {
	// Registry builds operators. Defaults to the built-in operators over
	// graph.DefaultSchema.
	Registry *operators.Registry

	// InitContext selects where kernel code is loaded from.
	InitContext device.InitContext

	// Fuser rewrites the graph after instantiation. Nil disables fusion.
	Fuser *fusion.Fuser

	// KeepBuilding leaves the graph in StateBuilding instead of freezing it.
	KeepBuilding bool
}

// DefaultBuildOptions returns options that build with the built-in registry
// and rules and freeze the result.
func DefaultBuildOptions() (BuildOptions, error) {
	reg := operators.NewRegistry(graph.DefaultSchema())
	f, err := fusion.NewFuser(reg, fusion.BuiltinRules())
	if err != nil {
		return BuildOptions{}, err
	}
	return BuildOptions{Registry: reg, InitContext: device.DefaultInitContext(), Fuser: f}, nil
}

// Build instantiates every operator of p on dev, binding them to scope, and
// optionally fuses the result. It holds the scope's build lock throughout.
//
// Construction errors are wrapped with the operator position; errors.As still
// reaches the operators error types.
func Build(ctx context.Context, p *Program, dev device.Device, scope *graph.Scope, opts BuildOptions) (*Graph, error) {
	log := klog.FromContext(ctx).WithValues("device", dev.Name())

	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := opts.InitContext.Validate(); err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	if opts.Registry == nil {
		opts.Registry = operators.NewRegistry(graph.DefaultSchema())
	}

	if err := scope.BeginBuild(); err != nil {
		return nil, err
	}
	defer scope.EndBuild()

	for _, v := range p.Vars {
		sv := scope.SetDims(v.Name, slices.Clone(v.Dims))
		sv.Persistable = v.Persistable
	}

	order := executionOrder(p.Ops)
	ops := make([]operators.Runnable, 0, len(order))
	for i, d := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		op, err := opts.Registry.Create(dev, d, scope, opts.InitContext)
		if err != nil {
			log.Error(err, "operator construction failed", "index", i, "type", d.Type)
			return nil, err
		}
		ops = append(ops, op)
	}
	log.V(2).Info("instantiated operators", "ops", len(ops), "vars", scope.Len())

	g := NewGraph(ops, p.Fetch, scope)
	if opts.Fuser != nil {
		res, err := g.Fuse(ctx, opts.Fuser, dev, opts.InitContext)
		if err != nil {
			return nil, fmt.Errorf("program: fusion: %w", err)
		}
		log.Info("fused graph", "matches", len(res.Matches), "passes", res.Passes, "ops", g.Len())
	}

	if !opts.KeepBuilding {
		if err := g.Freeze(); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// IsConstructionError reports whether err came from building an operator.
func IsConstructionError(err error) bool {
	var (
		pce *operators.ParamConstructionError
		kce *operators.KernelConstructionError
		uoe *operators.UnknownOperatorError
	)
	return errors.As(err, &pce) || errors.As(err, &kce) || errors.As(err, &uoe)
}
