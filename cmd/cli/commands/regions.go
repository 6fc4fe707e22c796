package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRegionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List the regions a run can target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}

			list, err := a.ListRegions(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, list)
			}
			for _, region := range list {
				fmt.Fprintln(out, region)
			}
			return nil
		},
	}
}
