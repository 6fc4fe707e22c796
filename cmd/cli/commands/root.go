// Package commands implements the scheduler CLI.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/app"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/config"
)

var (
	// Global flags
	jsonOutput bool
	regions    []string
	tagKey     string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit string) error {
	return newRootCommand(version, commit).ExecuteContext(ctx)
}

func newRootCommand(version, commit string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rds-scheduler",
		Short: "Start or stop tagged RDS and Aurora clusters",
		Long: `rds-scheduler starts or stops every RDS/Aurora cluster that carries the
schedule tag. Clusters that cannot be stopped (Serverless v1, multi-master,
parallel query, global databases, Multi-AZ DB clusters) are skipped, as are
clusters already in the target state.

Configuration is read from the environment (and a .env file), the same way
as the server and Lambda entry points.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringSliceVarP(&regions, "region", "r", nil, "region to include (repeatable, \"all\" for every enabled region)")
	rootCmd.PersistentFlags().StringVarP(&tagKey, "tag-key", "t", "", "opt-in tag key (default from APP_SCHEDULE_TAG_KEY)")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newRegionsCommand())

	return rootCmd
}

// newApp builds the application from the environment.
func newApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

func runRequest(action string) app.RunRequest {
	return app.RunRequest{
		Action:         action,
		ScheduleTagKey: tagKey,
		Regions:        regions,
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
