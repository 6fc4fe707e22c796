package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

func newRunCommand() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "run <start|stop>",
		Short: "Start or stop every opted-in cluster",
		Long: `Run the scheduler once. Every cluster carrying the tag key ends up in
exactly one of three lists: processed, skipped or failed.

The command exits non-zero only when the fleet could not be listed.`,
		Example: `  # Stop tagged clusters in the configured regions
  rds-scheduler run stop

  # Start clusters tagged AutoStart in two regions
  rds-scheduler run start --tag-key AutoStart -r us-east-1 -r eu-west-1

  # Print the full run record
  rds-scheduler run stop --json --full`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"start", "stop"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}

			result, runErr := a.Run(cmd.Context(), runRequest(args[0]))
			if result == nil {
				return runErr
			}

			out := cmd.OutOrStdout()
			switch {
			case jsonOutput && full:
				err = writeJSON(out, result)
			case jsonOutput:
				err = writeJSON(out, result.Report)
			default:
				err = printRunResult(out, result)
			}
			if err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "with --json, print the full run record instead of the report")

	return cmd
}

func printRunResult(w io.Writer, result *types.RunResult) error {
	fmt.Fprintf(w, "Run %s: %s clusters tagged %q\n", result.RunID, strings.ToLower(string(result.Action)), result.TagKey)
	if result.Error != "" {
		fmt.Fprintf(w, "Discovery failed: %s\n", result.Error)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLUSTER\tREGION\tOUTCOME\tATTEMPTS\tSTATUS\tREASON")
	for _, o := range result.Outcomes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", o.ResourceID, o.Region, o.Kind, o.Attempts, o.Status, o.Reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nProcessed %d, skipped %d, failed %d in %s\n",
		len(result.Report.ProcessedClusters),
		len(result.Report.SkippedClusters),
		len(result.Report.FailedClusters),
		result.Duration().Round(time.Millisecond))
	return nil
}
