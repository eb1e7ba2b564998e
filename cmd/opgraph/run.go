package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/born-ml/opgraph/engine"
	"github.com/born-ml/opgraph/internal/device/trace"
	"github.com/born-ml/opgraph/internal/graph"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var noFuse bool
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Builds, fuses and executes a program, printing every encoded dispatch.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := root.setup(cmd.Context())
			if err != nil {
				return err
			}
			if noFuse {
				cfg.Fusion.Enabled = false
			}
			e, dev, err := root.newEngine(ctx, cfg)
			if err != nil {
				return err
			}

			scope := engine.NewScope()
			g, err := e.Load(ctx, args[0], scope)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, g)
			exec, err := e.Executor(g, func(op engine.Operator, outputs []*graph.Variable) {
				for _, v := range outputs {
					fmt.Fprintf(out, "  %-24s -> %s %v\n", op.Type(), v.Name, v.Dims)
				}
			})
			if err != nil {
				return err
			}
			fetched, err := exec.Run(ctx)
			if err != nil {
				return err
			}

			if tr, ok := dev.(*trace.Device); ok {
				cbs := tr.CommandBuffers()
				if len(cbs) > 0 {
					for i, d := range cbs[len(cbs)-1].Dispatches() {
						fmt.Fprintf(out, "dispatch %d: %s groups=%v bindings=%d uniforms=%dB\n",
							i, d.Pipeline.Function(), d.Groups, len(d.Bindings), len(d.Uniforms))
					}
				}
			}

			names := make([]string, 0, len(fetched))
			for name := range fetched {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				fmt.Fprintf(out, "fetch %s %v\n", name, fetched[name].Dims)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noFuse, "no-fuse", false, "execute the program without fusion")
	return cmd
}
