package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sawpanic/trendlab/internal/strategy"
	"github.com/sawpanic/trendlab/internal/sweep"
)

func newStrategiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategies",
		Short: "List strategies, their parameters and preset grid sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "STRATEGY\tPARAM\tDEFAULT\tMIN\tMAX\tINT")
			for _, k := range strategy.Kinds() {
				specs, err := strategy.Specs(k)
				if err != nil {
					return err
				}
				for _, ps := range specs {
					max := "-"
					if ps.Max != 0 {
						max = fmt.Sprintf("%g", ps.Max)
					}
					fmt.Fprintf(tw, "%s\t%s\t%g\t%g\t%s\t%t\n", k, ps.Name, ps.Default, ps.Min, max, ps.Integer)
				}
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Println()
			tw = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "STRATEGY\tQUICK\tSTANDARD\tCOMPREHENSIVE")
			for _, k := range strategy.Kinds() {
				fmt.Fprintf(tw, "%s", k)
				for _, d := range []sweep.Depth{sweep.Quick, sweep.Standard, sweep.Comprehensive} {
					g, err := sweep.Preset(k, d)
					if err != nil {
						return err
					}
					fmt.Fprintf(tw, "\t%d", g.Size())
				}
				fmt.Fprintln(tw)
			}
			return tw.Flush()
		},
	}
	return cmd
}
