package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rochus-keller/FlowLine2/internal/maintenance"
)

func newSweepCmd(o *rootOptions) *cobra.Command {
	var vacuum bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Erase orphaned diagram items now",
		Long: `Erase the diagram items whose origin no longer belongs on their diagram
and, with --vacuum, compact the database afterwards. flowline serve runs
the same sweep on maintenance.schedule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.cfg.ReadOnly {
				return fmt.Errorf("the repository is configured read only")
			}
			ctx := cmd.Context()
			a, err := o.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := []maintenance.Option{maintenance.WithLock(&a.lock), maintenance.WithLogger(o.logger)}
			if vacuum {
				opts = append(opts, maintenance.WithVacuum(a.db))
			}
			schedule := o.cfg.Maintenance.Schedule
			if schedule == "" {
				schedule = "@daily"
			}
			sw, err := maintenance.NewSweeper(a.store, schedule, opts...)
			if err != nil {
				return err
			}
			rep, err := sw.Sweep(ctx)
			if err != nil {
				return err
			}
			return o.render(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().BoolVar(&vacuum, "vacuum", false, "Vacuum the database when items were erased")
	return cmd
}
