package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPlanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <start|stop>",
		Short: "Show what a run would do without acting",
		Example: `  rds-scheduler plan stop
  rds-scheduler plan start -r all --json`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"start", "stop"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}

			plan, err := a.Plan(cmd.Context(), runRequest(args[0]))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, plan)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CLUSTER\tREGION\tMODE\tSTATUS\tVERDICT\tREASON")
			for _, entry := range plan {
				verdict := "act"
				if !entry.WouldAct {
					verdict = string(entry.Kind)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					entry.ResourceID, entry.Region, entry.EngineMode, entry.Status, verdict, entry.Reason)
			}
			return tw.Flush()
		},
	}
}
