package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/born-ml/opgraph/engine"
	"github.com/born-ml/opgraph/internal/hclprog"
)

func newFuseCmd(root *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "fuse FILE",
		Short: "Fuses a program and prints the rewritten program.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, err := root.setup(cmd.Context())
			if err != nil {
				return err
			}
			cfg.Fusion.Enabled = true
			e, _, err := root.newEngine(ctx, cfg)
			if err != nil {
				return err
			}

			p, err := hclprog.Load(ctx, args[0])
			if err != nil {
				return err
			}
			g, err := e.Build(ctx, p, engine.NewScope())
			if err != nil {
				return err
			}
			for _, m := range g.Matches() {
				klog.FromContext(ctx).Info("fused", "rule", m.Rule, "pass", m.Pass, "replaced", m.Replaced)
			}

			src, err := engine.FormatProgram(engine.Snapshot(g, p))
			if err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(src)
				return err
			}
			if err := os.WriteFile(output, src, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the fused program to this file instead of stdout")
	return cmd
}
