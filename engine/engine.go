// Package engine is the public entry point of opgraph.
//
// It loads programs, instantiates their operators on a device, fuses
// operator chains and executes the result.
//
// Example:
//
//	cfg, err := engine.LoadConfig("opgraph.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	dev, err := engine.NewDevice(cfg.Device.Name)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	e, err := engine.New(ctx, cfg, dev)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	g, err := e.Load(ctx, "model.hcl", engine.NewScope())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	exec, err := e.Executor(g, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	outputs, err := exec.Run(ctx)
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"

	"github.com/born-ml/opgraph/internal/config"
	"github.com/born-ml/opgraph/internal/device"
	"github.com/born-ml/opgraph/internal/device/trace"
	"github.com/born-ml/opgraph/internal/fusion"
	"github.com/born-ml/opgraph/internal/graph"
	"github.com/born-ml/opgraph/internal/hclprog"
	"github.com/born-ml/opgraph/internal/operators"
	"github.com/born-ml/opgraph/internal/program"
)

// Program is a parsed model.
type Program = program.Program

// Graph is an instantiated, possibly fused, program.
type Graph = program.Graph

// Executor runs a frozen graph.
type Executor = program.Executor

// CaptureFunc observes each executed operator.
type CaptureFunc = program.CaptureFunc

// Config is the engine configuration.
type Config = config.Config

// Device is a compute device.
type Device = device.Device

// Scope holds the variables of one loaded model.
type Scope = graph.Scope

// Operator is an instantiated operator.
type Operator = operators.Runnable

// NewScope creates an empty scope.
func NewScope() *Scope { return graph.NewScope() }

// LoadConfig reads the configuration at path. An empty path returns the
// defaults overridden by the environment.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return config.Default()
}

// ParseProgram parses a program in the HCL program syntax.
func ParseProgram(src []byte, filename string) (*Program, error) {
	return hclprog.Parse(src, filename)
}

// FormatProgram renders a program in the HCL program syntax.
func FormatProgram(p *Program) ([]byte, error) {
	return hclprog.Format(p)
}

// NewDevice creates the named device: "trace", or "webgpu" where supported.
func NewDevice(name string) (Device, error) {
	switch name {
	case "", "trace":
		return trace.New("trace0"), nil
	case "webgpu":
		return newWebGPU()
	default:
		return nil, fmt.Errorf("engine: unknown device %q", name)
	}
}

// SupportedOps returns every operator type the engine can instantiate.
func SupportedOps() []string {
	return operators.NewRegistry(graph.DefaultSchema()).Types()
}

// Engine builds and runs programs on one device.
type Engine struct {
	dev      device.Device
	ic       device.InitContext
	registry *operators.Registry
	fuser    *fusion.Fuser
}

// New creates an engine. A remote custom code path is mirrored to the
// configured cache directory before any kernel is built.
func New(ctx context.Context, cfg *Config, dev Device) (*Engine, error) {
	log := klog.FromContext(ctx)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ic, err := cfg.Device.InitContext()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if ic.IsRemote() {
		cacheDir := cfg.Device.CacheDir
		if cacheDir == "" {
			base, err := os.UserCacheDir()
			if err != nil {
				return nil, fmt.Errorf("engine: no cache directory for %s: %w", ic.CustomPath, err)
			}
			cacheDir = filepath.Join(base, "opgraph")
		}
		if ic, err = device.Localize(ctx, ic, cacheDir); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
	}

	e := &Engine{
		dev:      dev,
		ic:       ic,
		registry: operators.NewRegistry(graph.DefaultSchema()),
	}
	if cfg.Fusion.Enabled {
		if e.fuser, err = fusion.NewFuser(e.registry, fusion.BuiltinRules(), cfg.Fusion.FusionOptions()...); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
	}
	log.V(1).Info("engine ready", "device", dev.Name(), "codeLoadMode", ic.CodeLoadMode, "fusion", cfg.Fusion.Enabled)
	return e, nil
}

// Device returns the engine's device.
func (e *Engine) Device() Device { return e.dev }

// Build instantiates p in scope, fuses it when fusion is enabled and freezes it.
func (e *Engine) Build(ctx context.Context, p *Program, scope *Scope) (*Graph, error) {
	return program.Build(ctx, p, e.dev, scope, program.BuildOptions{
		Registry:    e.registry,
		InitContext: e.ic,
		Fuser:       e.fuser,
	})
}

// Load parses the program file at path and builds it in scope.
func (e *Engine) Load(ctx context.Context, path string, scope *Scope) (*Graph, error) {
	p, err := hclprog.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	return e.Build(ctx, p, scope)
}

// Executor returns an executor for g. capture may be nil.
func (e *Engine) Executor(g *Graph, capture CaptureFunc) (*Executor, error) {
	return program.NewExecutor(g, e.dev, capture)
}

// Snapshot returns g's current operators as a program, with the variable
// declarations of base.
func Snapshot(g *Graph, base *Program) *Program {
	p := &Program{Fetch: g.Fetch()}
	if base != nil {
		p.Vars = base.Vars
	}
	for _, op := range g.Ops() {
		p.Ops = append(p.Ops, op.Desc())
	}
	return p
}
