package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLayoutCmd(o *rootOptions) *cobra.Command {
	var ortho bool
	cmd := &cobra.Command{
		Use:   "layout <diagram>",
		Short: "Lay a diagram out with graphviz",
		Long: `Lay a diagram out with the configured graphviz engine.

Frames holding elements become clusters, flows are routed as splines or,
with --ortho, orthogonally. Nothing is written when the engine fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseOID(args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("ortho") {
				ortho = o.cfg.Layout.Ortho
			}
			ctx := cmd.Context()
			a, err := o.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			c, err := a.open(ctx, d)
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.LayoutDiagram(ctx, ortho); err != nil {
				return err
			}
			snap := c.Scene().Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d nodes, %d flows laid out\n", snap.Title, len(snap.Nodes), len(snap.Flows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&ortho, "ortho", false, "Route flows orthogonally (default from layout.ortho)")
	return cmd
}
