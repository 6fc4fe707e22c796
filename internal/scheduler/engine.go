package scheduler

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/constants"
	internalerrors "github.com/mpz/devops/tools/rds-cluster-scheduler/internal/errors"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

// FleetResolver returns the fleet that covers the requested regions. An
// empty region list selects the resolver's default.
type FleetResolver func(ctx context.Context, regions []string) (Fleet, error)

// StaticFleet returns a resolver that always yields f.
func StaticFleet(f Fleet) FleetResolver {
	return func(context.Context, []string) (Fleet, error) { return f, nil }
}

// EngineConfig contains configuration for the engine.
type EngineConfig struct {
	Fleets         FleetResolver
	Logger         *slog.Logger
	Notifier       Notifier
	Recorder       Recorder
	Retry          RetryPolicy
	MaxConcurrency int
	ActionTimeout  time.Duration
	RunTimeout     time.Duration
	DefaultTagKey  string
}

// Engine runs one discovery-filter-act-report pass per request. It keeps no
// state between runs.
type Engine struct {
	fleets         FleetResolver
	logger         *slog.Logger
	notifier       Notifier
	recorder       Recorder
	retry          RetryPolicy
	maxConcurrency int
	actionTimeout  time.Duration
	runTimeout     time.Duration
	defaultTagKey  string
}

// NewEngine creates a new scheduler engine.
func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		fleets:         cfg.Fleets,
		logger:         cfg.Logger,
		notifier:       cfg.Notifier,
		recorder:       cfg.Recorder,
		retry:          cfg.Retry.withDefaults(),
		maxConcurrency: cfg.MaxConcurrency,
		actionTimeout:  cfg.ActionTimeout,
		runTimeout:     cfg.RunTimeout,
		defaultTagKey:  cfg.DefaultTagKey,
	}

	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.notifier == nil {
		e.notifier = nopNotifier{}
	}
	if e.recorder == nil {
		e.recorder = nopRecorder{}
	}
	if e.maxConcurrency < 1 {
		e.maxConcurrency = constants.DefaultMaxConcurrency
	}
	if e.defaultTagKey == "" {
		e.defaultTagKey = constants.DefaultScheduleTagKey
	}

	return e
}

// evaluation is the pre-execution verdict for one candidate.
type evaluation struct {
	desc    types.ResourceDescriptor
	matched bool
	// decided is set when the cluster resolves without an action call.
	decided *types.ActionOutcome
}

// Run executes the action against every opted-in cluster. A failure to list
// the fleet aborts the run: the returned result carries an empty report and
// the error is marked ErrDiscovery. Per-cluster failures never abort the run.
func (e *Engine) Run(ctx context.Context, req types.ActionRequest) (*types.RunResult, error) {
	req, err := e.normalize(req)
	if err != nil {
		return nil, err
	}

	result := &types.RunResult{
		RunID:     uuid.New().String(),
		Action:    req.Action,
		TagKey:    req.TagKey,
		Regions:   req.Regions,
		StartedAt: time.Now().UTC(),
		Report:    types.EmptyReport(),
		Outcomes:  []types.ActionOutcome{},
	}
	logger := e.logger.With(
		slog.String("run_id", result.RunID),
		slog.String("action", req.Action.Verb()),
	)
	logger.Info("run started", slog.String("tag_key", req.TagKey), slog.String("regions", strings.Join(req.Regions, ",")))

	runCtx, cancel := e.runContext(ctx)
	defer cancel()

	fleet, candidates, err := e.discover(runCtx, req)
	if err != nil {
		result.CompletedAt = time.Now().UTC()
		result.Error = err.Error()
		logger.Error("discovery failed", slog.String("error", err.Error()))
		e.recorder.RunFinished(req.Action, RunStatusDiscoveryError, result.Duration())
		if nerr := e.notifier.NotifyRunFailed(ctx, result); nerr != nil {
			logger.Warn("failed to send notification", slog.String("error", nerr.Error()))
		}
		return result, err
	}
	result.Listed = len(candidates)

	exec := NewExecutor(fleet, logger, e.recorder, e.retry, e.actionTimeout)
	agg := NewAggregator(len(candidates))

	var g errgroup.Group
	g.SetLimit(e.maxConcurrency)
	for i, d := range candidates {
		g.Go(func() error {
			outcome, ok := e.process(runCtx, fleet, exec, req, d)
			if !ok {
				return nil
			}
			agg.Record(i, outcome)
			e.recorder.OutcomeRecorded(req.Action, outcome.Kind)
			logger.Info("cluster outcome",
				slog.String("cluster_id", outcome.ResourceID),
				slog.String("outcome", string(outcome.Kind)),
				slog.String("reason", outcome.Reason),
			)
			return nil
		})
	}
	_ = g.Wait()

	result.Outcomes = agg.Outcomes()
	result.Report = BuildReport(result.Outcomes)
	result.Discovered = result.Report.Total()
	result.CompletedAt = time.Now().UTC()

	logger.Info("run completed",
		slog.Int("processed", len(result.Report.ProcessedClusters)),
		slog.Int("skipped", len(result.Report.SkippedClusters)),
		slog.Int("failed", len(result.Report.FailedClusters)),
		slog.Int64("duration_ms", result.Duration().Milliseconds()),
	)
	e.recorder.RunFinished(req.Action, RunStatusCompleted, result.Duration())
	if nerr := e.notifier.NotifyRunCompleted(ctx, result); nerr != nil {
		logger.Warn("failed to send notification", slog.String("error", nerr.Error()))
	}

	return result, nil
}

// Plan performs discovery, tag resolution, classification and the state guard
// without issuing any action.
func (e *Engine) Plan(ctx context.Context, req types.ActionRequest) ([]types.PlanEntry, error) {
	req, err := e.normalize(req)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := e.runContext(ctx)
	defer cancel()

	fleet, candidates, err := e.discover(runCtx, req)
	if err != nil {
		return nil, err
	}

	entries := make([]*types.PlanEntry, len(candidates))
	var g errgroup.Group
	g.SetLimit(e.maxConcurrency)
	for i, d := range candidates {
		g.Go(func() error {
			ev := e.evaluate(runCtx, fleet, req, d)
			if !ev.matched {
				return nil
			}
			entry := &types.PlanEntry{
				ResourceID: ev.desc.ID,
				Region:     ev.desc.Region,
				EngineMode: ev.desc.EngineMode,
				State:      ev.desc.State,
				Status:     ev.desc.Status,
				WouldAct:   ev.decided == nil,
			}
			if ev.decided != nil {
				entry.Kind = ev.decided.Kind
				entry.Reason = ev.decided.Reason
			}
			entries[i] = entry
			return nil
		})
	}
	_ = g.Wait()

	plan := make([]types.PlanEntry, 0, len(entries))
	for _, entry := range entries {
		if entry != nil {
			plan = append(plan, *entry)
		}
	}
	return plan, nil
}

func (e *Engine) normalize(req types.ActionRequest) (types.ActionRequest, error) {
	action, err := types.ParseAction(string(req.Action))
	if err != nil {
		return req, err
	}
	req.Action = action
	req.TagKey = strings.TrimSpace(req.TagKey)
	if req.TagKey == "" {
		req.TagKey = e.defaultTagKey
	}
	return req, nil
}

func (e *Engine) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.runTimeout > 0 {
		return context.WithTimeout(ctx, e.runTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Engine) discover(ctx context.Context, req types.ActionRequest) (Fleet, []types.ResourceDescriptor, error) {
	if e.fleets == nil {
		return nil, nil, internalerrors.Discovery(errors.New("no fleet configured"))
	}
	fleet, err := e.fleets(ctx, req.Regions)
	if err != nil {
		return nil, nil, internalerrors.Discovery(errors.Wrap(err, "resolve fleet"))
	}
	candidates, err := discover(ctx, fleet, req.TagKey)
	if err != nil {
		return nil, nil, err
	}
	return fleet, candidates, nil
}

// evaluate runs tag resolution, classification and the state guard.
func (e *Engine) evaluate(ctx context.Context, fleet Fleet, req types.ActionRequest, d types.ResourceDescriptor) evaluation {
	if ctx.Err() != nil {
		// Without a tag set there is no way to tell whether the cluster opted in
		if !d.TagsKnown() {
			e.logger.Warn("run cancelled before tag lookup", slog.String("cluster_id", d.ID))
			return evaluation{desc: d}
		}
		o := types.Failed(d, constants.ReasonRunCancelled, 0)
		return evaluation{desc: d, matched: true, decided: &o}
	}

	d, matched, err := resolveTags(ctx, fleet, d, req.TagKey, e.logger)
	if err != nil {
		e.logger.Warn("tag lookup failed", slog.String("cluster_id", d.ID), slog.String("error", err.Error()))
		o := types.Failed(d, constants.ReasonTagLookupError, 0)
		return evaluation{desc: d, matched: true, decided: &o}
	}
	if !matched {
		return evaluation{desc: d}
	}

	if elig := Classify(d); !elig.Eligible {
		e.logger.Debug("cluster ineligible",
			slog.String("cluster_id", d.ID),
			slog.String("rule", elig.Rule),
			slog.String("engine_mode", string(d.EngineMode)),
		)
		o := types.Skipped(d, elig.Reason)
		return evaluation{desc: d, matched: true, decided: &o}
	}

	state, err := fleet.DescribeState(ctx, d)
	if err != nil {
		e.logger.Warn("state lookup failed", slog.String("cluster_id", d.ID), slog.String("error", err.Error()))
		o := types.Failed(d, constants.ReasonStateLookupError, 0)
		return evaluation{desc: d, matched: true, decided: &o}
	}
	d.State = state.State
	d.Status = state.Status

	if decision := Guard(req.Action, d.State); !decision.Proceed {
		o := types.Skipped(d, decision.SkipReason)
		return evaluation{desc: d, matched: true, decided: &o}
	}
	return evaluation{desc: d, matched: true}
}

func (e *Engine) process(ctx context.Context, fleet Fleet, exec *Executor, req types.ActionRequest, d types.ResourceDescriptor) (types.ActionOutcome, bool) {
	ev := e.evaluate(ctx, fleet, req, d)
	if !ev.matched {
		return types.ActionOutcome{}, false
	}
	if ev.decided != nil {
		return *ev.decided, true
	}
	return exec.Execute(ctx, req.Action, ev.desc), true
}
