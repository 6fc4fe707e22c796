package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cockroachdb/errors"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/constants"
	internalerrors "github.com/mpz/devops/tools/rds-cluster-scheduler/internal/errors"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

// RetryPolicy bounds executor retries of transient failures. Zero fields
// take the defaults; a negative Jitter disables randomization.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          float64
}

// DefaultRetryPolicy returns 3 attempts with exponential backoff from 1s to 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     constants.DefaultMaxAttempts,
		InitialInterval: constants.DefaultRetryInitialInterval,
		MaxInterval:     constants.DefaultRetryMaxInterval,
		Multiplier:      constants.DefaultRetryMultiplier,
		Jitter:          constants.DefaultRetryJitter,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = max(d.MaxInterval, p.InitialInterval)
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.Jitter == 0 || p.Jitter >= 1 {
		p.Jitter = d.Jitter
	}
	return p
}

func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = max(p.Jitter, 0)
	return b
}

// Executor issues start/stop calls with bounded retries.
type Executor struct {
	fleet         Fleet
	logger        *slog.Logger
	recorder      Recorder
	policy        RetryPolicy
	actionTimeout time.Duration
}

// NewExecutor creates an executor. A zero actionTimeout disables the
// per-attempt deadline.
func NewExecutor(fleet Fleet, logger *slog.Logger, recorder Recorder, policy RetryPolicy, actionTimeout time.Duration) *Executor {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Executor{
		fleet:         fleet,
		logger:        logger,
		recorder:      recorder,
		policy:        policy.withDefaults(),
		actionTimeout: actionTimeout,
	}
}

// Execute runs the action against one eligible cluster and returns its outcome.
func (e *Executor) Execute(ctx context.Context, action types.Action, d types.ResourceDescriptor) types.ActionOutcome {
	logger := e.logger.With(slog.String("cluster_id", d.ID))

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := e.attempt(ctx, action, d)
		switch {
		case err == nil:
			e.recorder.AttemptFinished(action, AttemptSuccess)
			return struct{}{}, nil
		case internalerrors.IsPermanent(err):
			e.recorder.AttemptFinished(action, AttemptPermanent)
			return struct{}{}, backoff.Permanent(err)
		default:
			e.recorder.AttemptFinished(action, AttemptTransient)
			logger.Warn("action attempt failed",
				slog.Int("attempt", attempts),
				slog.String("error", err.Error()),
			)
			return struct{}{}, err
		}
	},
		backoff.WithBackOff(e.policy.newBackOff()),
		backoff.WithMaxTries(uint(e.policy.MaxAttempts)),
	)

	if err != nil {
		var reason string
		switch {
		case internalerrors.IsPermanent(err):
			reason = err.Error()
		case ctx.Err() != nil:
			reason = constants.ReasonRunCancelled
		default:
			reason = constants.ReasonRetriesExhausted
		}
		logger.Error("action failed",
			slog.Int("attempts", attempts),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return types.Failed(d, reason, attempts)
	}

	status := e.readBack(ctx, d, logger)
	logger.Info("action issued",
		slog.Int("attempts", attempts),
		slog.String("status", status),
	)
	return types.Processed(d, attempts, status)
}

// attempt performs one call under the per-attempt deadline. A deadline that
// expires while the run is still live is transient.
func (e *Executor) attempt(ctx context.Context, action types.Action, d types.ResourceDescriptor) error {
	attemptCtx := ctx
	if e.actionTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, e.actionTimeout)
		defer cancel()
	}

	var err error
	if action == types.ActionStart {
		err = e.fleet.Start(attemptCtx, d)
	} else {
		err = e.fleet.Stop(attemptCtx, d)
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return internalerrors.Transient(errors.Wrapf(err, "%s %s timed out", action.Verb(), d.ID))
	}
	return errors.Wrapf(err, "%s %s", action.Verb(), d.ID)
}

// readBack fetches the status after a successful call. Failures are logged only.
func (e *Executor) readBack(ctx context.Context, d types.ResourceDescriptor, logger *slog.Logger) string {
	state, err := e.fleet.DescribeState(ctx, d)
	if err != nil {
		logger.Warn("failed to read status after action", slog.String("error", err.Error()))
		return ""
	}
	return state.Status
}
