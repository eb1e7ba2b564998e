// Package program turns a parsed Program into an executable Graph.
//
// Build declares the program's variables in a scope, orders the descriptors
// so producers precede consumers, instantiates every operator through the
// registry and optionally fuses the result. The Graph is then frozen and run
// by an Executor, one command buffer per call.
//
// Example:
//
//	opts, err := program.DefaultBuildOptions()
//	if err != nil {
//	    return err
//	}
//	g, err := program.Build(ctx, prog, dev, graph.NewScope(), opts)
//	if err != nil {
//	    return err
//	}
//	exec, err := program.NewExecutor(g, dev, nil)
//	if err != nil {
//	    return err
//	}
//	outputs, err := exec.Run(ctx)
package program
