// Package main provides the AWS Lambda entry point for the RDS cluster scheduler.
// It is designed to be invoked by EventBridge schedules, one rule per action.
package main

import (
	"context"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/cockroachdb/errors"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/app"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/config"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

var appInst *app.App

func init() {
	cfg, err := config.NewConfig()
	if err != nil {
		panic("config init failed: " + err.Error())
	}

	appInst, err = app.New(context.Background(), cfg)
	if err != nil {
		panic("app init failed: " + err.Error())
	}
}

// handler runs one scheduler pass. The event is
// {"Action": "Start"|"Stop", "ScheduleTagKey": "...", "Regions": [...]}.
//
// A discovery failure fails the invocation so that it is distinguishable from
// a run that found no clusters; the empty report is still returned.
func handler(ctx context.Context, event app.RunRequest) (types.RunReport, error) {
	result, err := appInst.Run(ctx, event)
	if err != nil {
		appInst.Logger.Error("run failed",
			slog.String("action", event.Action),
			slog.String("error", err.Error()))
		if result != nil {
			return result.Report, err
		}
		return types.EmptyReport(), errors.Wrap(err, "run")
	}
	return result.Report, nil
}

func main() {
	lambda.Start(handler)
}
