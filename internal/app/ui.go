package app

import (
	"bytes"
	"context"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/app/templates"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

// dashboardRunLimit is the number of runs shown on the dashboard.
const dashboardRunLimit = 20

// DashboardData contains data passed to the dashboard template.
type DashboardData struct {
	DemoMode bool
	BasePath string
	TagKey   string
	Regions  string
	Runs     []DashboardRun
}

// DashboardRun is one row of the run history table.
type DashboardRun struct {
	RunID     string
	Action    string
	StartedAt string
	Duration  string
	Processed []string
	Skipped   []string
	Failed    []string
	Error     string
}

var dashboardFuncs = template.FuncMap{
	"join": strings.Join,
}

// renderDashboard renders the dashboard template with the most recent runs.
func (a *App) renderDashboard(ctx context.Context) ([]byte, error) {
	runs, err := a.ListRuns(ctx, dashboardRunLimit)
	if err != nil {
		a.Logger.Warn("failed to list runs for dashboard", slog.String("error", err.Error()))
	}

	data := DashboardData{
		DemoMode: a.Config.DemoMode,
		BasePath: a.Config.BasePath,
		TagKey:   a.Config.ScheduleTagKey,
		Regions:  strings.Join(a.Config.RunRegions(), ", "),
		Runs:     make([]DashboardRun, 0, len(runs)),
	}
	for _, run := range runs {
		data.Runs = append(data.Runs, dashboardRun(run))
	}

	tmplContent, err := templates.FS.ReadFile("dashboard.html")
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New("dashboard").Funcs(dashboardFuncs).Parse(string(tmplContent))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func dashboardRun(run *types.RunResult) DashboardRun {
	return DashboardRun{
		RunID:     run.RunID,
		Action:    string(run.Action),
		StartedAt: run.StartedAt.UTC().Format(time.RFC3339),
		Duration:  run.Duration().Round(time.Millisecond).String(),
		Processed: run.Report.ProcessedClusters,
		Skipped:   run.Report.SkippedClusters,
		Failed:    run.Report.FailedClusters,
		Error:     run.Error,
	}
}
