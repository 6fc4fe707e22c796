// Package app wires the scheduler, its fleet and the run archive together
// and routes API requests to them.
package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/cockroachdb/errors"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/config"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/constants"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/metrics"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/notifiers"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/rds"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/scheduler"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/storage"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

// App is the main application instance.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Engine        *scheduler.Engine
	ClientManager *rds.ClientManager
	Store         storage.Store
	Notifier      scheduler.Notifier
	Metrics       *metrics.Metrics // nil when metrics are disabled
}

// New creates a new App instance.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := config.NewLogger()

	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize storage
	if cfg.DataDir != "" {
		fileStore, err := storage.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, errors.Wrap(err, "create file store")
		}
		n, err := fileStore.Recover(ctx)
		if err != nil {
			logger.Warn("failed to recover run archive", slog.String("error", err.Error()))
		}
		app.Store = fileStore
		logger.Info("using file-based run archive", slog.String("data_dir", cfg.DataDir), slog.Int("runs", n))
	} else {
		app.Store = storage.NewMemoryStore()
		logger.Info("run archive is in memory, runs will not persist")
	}

	// Initialize ClientManager
	if cfg.DemoMode && cfg.RDSEndpoint != "" {
		// In demo mode, create a minimal AWS config that won't try to fetch real credentials
		awsCfg := aws.Config{
			Region:           cfg.AWSRegion,
			RetryMaxAttempts: constants.DemoModeRetryAttempts,
			Credentials:      aws.AnonymousCredentials{},
		}
		app.ClientManager = rds.NewClientManager(rds.ClientManagerConfig{
			BaseConfig:     awsCfg,
			DemoMode:       true,
			BaseURL:        cfg.RDSEndpoint,
			RateLimit:      cfg.APIRateLimit,
			DefaultRegions: cfg.RunRegions(),
		})
		logger.Info("using demo mode with mock RDS endpoint", slog.String("endpoint", cfg.RDSEndpoint))
	} else {
		// Normal mode - load AWS config from environment/profile
		awsCfg, err := cfg.LoadAWSConfig(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "load aws config")
		}

		app.ClientManager = rds.NewClientManager(rds.ClientManagerConfig{
			BaseConfig:     awsCfg,
			Profile:        cfg.AWSProfile,
			BaseURL:        cfg.RDSEndpoint,
			RateLimit:      cfg.APIRateLimit,
			DefaultRegions: cfg.RunRegions(),
		})
	}

	// Initialize notifier
	if cfg.SlackEnabled && cfg.SlackToken != "" {
		app.Notifier = notifiers.NewSlackNotifier(cfg.SlackToken, cfg.SlackChannel)
	} else {
		app.Notifier = &notifiers.NullNotifier{}
	}

	var recorder scheduler.Recorder
	if cfg.MetricsEnabled {
		app.Metrics = metrics.New()
		recorder = app.Metrics
	}

	app.Engine = NewEngine(cfg, app.ClientManager.Fleet, logger, app.Notifier, recorder)
	return app, nil
}

// NewEngine builds the scheduler engine from configuration.
func NewEngine(cfg *config.Config, fleets scheduler.FleetResolver, logger *slog.Logger, notifier scheduler.Notifier, recorder scheduler.Recorder) *scheduler.Engine {
	policy := scheduler.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.MaxAttempts
	if cfg.RetryInitialInterval > 0 {
		policy.InitialInterval = cfg.RetryInitialInterval
	}
	if cfg.RetryMaxInterval > 0 {
		policy.MaxInterval = cfg.RetryMaxInterval
	}
	if cfg.DemoMode {
		// The mock settles in milliseconds, so full backoff only slows demos down.
		policy.InitialInterval = constants.DemoRetryInitialInterval
		policy.MaxInterval = 4 * constants.DemoRetryInitialInterval
	}

	return scheduler.NewEngine(scheduler.EngineConfig{
		Fleets:         fleets,
		Logger:         logger,
		Notifier:       notifier,
		Recorder:       recorder,
		Retry:          policy,
		MaxConcurrency: cfg.MaxConcurrency,
		ActionTimeout:  cfg.ActionTimeout,
		RunTimeout:     cfg.RunTimeout,
		DefaultTagKey:  cfg.ScheduleTagKey,
	})
}

// NewWithEngine creates an App with a pre-configured engine (for testing).
func NewWithEngine(cfg *config.Config, engine *scheduler.Engine, clientManager *rds.ClientManager, store storage.Store) *App {
	return &App{
		Config:        cfg,
		Logger:        config.NewLogger(),
		Engine:        engine,
		ClientManager: clientManager,
		Store:         store,
		Notifier:      &notifiers.NullNotifier{},
	}
}

// RunRequest is the invocation payload shared by the Lambda event and
// POST /api/runs.
type RunRequest struct {
	Action         string   `json:"Action"`
	ScheduleTagKey string   `json:"ScheduleTagKey"`
	Regions        []string `json:"Regions,omitempty"`
}

// ActionRequest converts the payload for the engine, which validates the
// action and applies the default tag key.
func (r RunRequest) ActionRequest() types.ActionRequest {
	return types.ActionRequest{
		Action:  types.Action(strings.TrimSpace(r.Action)),
		TagKey:  r.ScheduleTagKey,
		Regions: r.Regions,
	}
}

// Run executes one scheduler run and archives its result. The result is
// archived and returned even when discovery failed.
func (a *App) Run(ctx context.Context, req RunRequest) (*types.RunResult, error) {
	result, err := a.Engine.Run(ctx, req.ActionRequest())
	if result != nil && a.Store != nil {
		if serr := a.Store.SaveRun(ctx, result); serr != nil {
			a.Logger.Warn("failed to archive run",
				slog.String("run_id", result.RunID),
				slog.String("error", serr.Error()))
		}
	}
	return result, err
}

// Plan returns what a run would do without acting.
func (a *App) Plan(ctx context.Context, req RunRequest) ([]types.PlanEntry, error) {
	return a.Engine.Plan(ctx, req.ActionRequest())
}

// GetRun returns an archived run by ID.
func (a *App) GetRun(ctx context.Context, id string) (*types.RunResult, error) {
	return a.Store.GetRun(ctx, id)
}

// ListRuns returns the most recent archived runs.
func (a *App) ListRuns(ctx context.Context, limit int) ([]*types.RunResult, error) {
	return a.Store.ListRuns(ctx, limit)
}

// ListRegions returns available AWS regions.
func (a *App) ListRegions(ctx context.Context) ([]string, error) {
	return a.ClientManager.ListRegions(ctx)
}

// RunSummary is the condensed form of a run used by the status endpoint.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	Action      string    `json:"action"`
	CompletedAt time.Time `json:"completed_at"`
	Processed   int       `json:"processed"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	Error       string    `json:"error,omitempty"`
}

// StatusResponse contains application status.
type StatusResponse struct {
	Status         string      `json:"status"`
	DemoMode       bool        `json:"demo_mode"`
	SlackEnabled   bool        `json:"slack_enabled"`
	MetricsEnabled bool        `json:"metrics_enabled"`
	ArchivedRuns   int         `json:"archived_runs"`
	LastRun        *RunSummary `json:"last_run,omitempty"`
}

// GetStatus returns the current application status.
func (a *App) GetStatus(ctx context.Context) StatusResponse {
	status := StatusResponse{
		Status:         "ok",
		DemoMode:       a.Config.DemoMode,
		SlackEnabled:   a.Config.SlackEnabled,
		MetricsEnabled: a.Metrics != nil,
	}

	runs, err := a.Store.ListRuns(ctx, 0)
	if err != nil {
		a.Logger.Warn("failed to list runs", slog.String("error", err.Error()))
		status.Status = "degraded"
		return status
	}
	status.ArchivedRuns = len(runs)
	if len(runs) > 0 {
		last := runs[0]
		status.LastRun = &RunSummary{
			RunID:       last.RunID,
			Action:      string(last.Action),
			CompletedAt: last.CompletedAt,
			Processed:   len(last.Report.ProcessedClusters),
			Skipped:     len(last.Report.SkippedClusters),
			Failed:      len(last.Report.FailedClusters),
			Error:       last.Error,
		}
	}
	return status
}
