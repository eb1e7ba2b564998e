package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/born-ml/opgraph/engine"
	"github.com/born-ml/opgraph/internal/device"
	"github.com/born-ml/opgraph/internal/graph"
)

func newOpsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ops",
		Short: "Lists the supported operator types with their roles and kernel functions.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema := graph.DefaultSchema()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tINPUTS\tOUTPUTS\tFUNCTION")
			for _, op := range engine.SupportedOps() {
				e, _ := schema.Lookup(op)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", op, strings.Join(e.Inputs, ","), strings.Join(e.Outputs, ","), device.FunctionName(op))
			}
			return w.Flush()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Shows the version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "opgraph %s\n", version)
		},
	}
}
