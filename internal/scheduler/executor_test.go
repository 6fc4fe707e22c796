package scheduler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/constants"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

func fastRetry() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
		Jitter:          0.1,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingRecorder struct {
	nopRecorder
	attempts map[string]int
}

func (r *countingRecorder) AttemptFinished(_ types.Action, result string) {
	r.attempts[result]++
}

func TestExecutor_Execute(t *testing.T) {
	tests := []struct {
		name         string
		errs         []error
		wantKind     types.OutcomeKind
		wantAttempts int
		wantReason   string
	}{
		{
			name:         "success first try",
			wantKind:     types.OutcomeProcessed,
			wantAttempts: 1,
		},
		{
			name:         "transient twice then success",
			errs:         []error{transientErr("ThrottlingException"), transientErr("RequestTimeout")},
			wantKind:     types.OutcomeProcessed,
			wantAttempts: 3,
		},
		{
			name:         "unclassified errors are retried",
			errs:         []error{io.ErrUnexpectedEOF},
			wantKind:     types.OutcomeProcessed,
			wantAttempts: 2,
		},
		{
			name: "transient exhausted",
			errs: []error{
				transientErr("ThrottlingException"),
				transientErr("ThrottlingException"),
				transientErr("ThrottlingException"),
				transientErr("ThrottlingException"),
			},
			wantKind:     types.OutcomeFailed,
			wantAttempts: 3,
			wantReason:   constants.ReasonRetriesExhausted,
		},
		{
			name:         "permanent not retried",
			errs:         []error{permanentErr("InvalidDBClusterStateFault: cluster is not in available state")},
			wantKind:     types.OutcomeFailed,
			wantAttempts: 1,
			wantReason:   "InvalidDBClusterStateFault: cluster is not in available state",
		},
		{
			name:         "permanent after transient",
			errs:         []error{transientErr("ThrottlingException"), permanentErr("AccessDenied")},
			wantKind:     types.OutcomeFailed,
			wantAttempts: 2,
			wantReason:   "AccessDenied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := cluster("c1", types.EngineModeStandard, types.LifecycleAvailable)
			fleet := newFakeFleet(d)
			fleet.actionErrs["c1"] = tt.errs

			rec := &countingRecorder{attempts: map[string]int{}}
			exec := NewExecutor(fleet, discardLogger(), rec, fastRetry(), time.Second)
			got := exec.Execute(context.Background(), types.ActionStop, d)

			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s (reason %q)", got.Kind, tt.wantKind, got.Reason)
			}
			if got.Attempts != tt.wantAttempts {
				t.Errorf("Attempts = %d, want %d", got.Attempts, tt.wantAttempts)
			}
			if calls := fleet.callCount("stop:c1"); calls != tt.wantAttempts {
				t.Errorf("stop calls = %d, want %d", calls, tt.wantAttempts)
			}
			if tt.wantReason != "" && !strings.Contains(got.Reason, tt.wantReason) {
				t.Errorf("Reason = %q, want it to contain %q", got.Reason, tt.wantReason)
			}
			if tt.wantKind == types.OutcomeProcessed {
				if got.Status != string(types.LifecycleStopped) {
					t.Errorf("Status = %q, want read-back %q", got.Status, types.LifecycleStopped)
				}
				if rec.attempts[AttemptSuccess] != 1 {
					t.Errorf("success attempts recorded = %d, want 1", rec.attempts[AttemptSuccess])
				}
			}
		})
	}
}

func TestExecutor_ReadBackFailureStillProcessed(t *testing.T) {
	d := cluster("c1", types.EngineModeStandard, types.LifecycleStopped)
	fleet := newFakeFleet(d)
	fleet.stateErrs["c1"] = transientErr("ThrottlingException")

	exec := NewExecutor(fleet, discardLogger(), nil, fastRetry(), 0)
	got := exec.Execute(context.Background(), types.ActionStart, d)

	if got.Kind != types.OutcomeProcessed {
		t.Fatalf("Kind = %s, want Processed", got.Kind)
	}
	if got.Status != "" {
		t.Errorf("Status = %q, want empty", got.Status)
	}
}

func TestExecutor_CancelledRun(t *testing.T) {
	d := cluster("c1", types.EngineModeStandard, types.LifecycleAvailable)
	fleet := newFakeFleet(d)
	fleet.actionErrs["c1"] = []error{transientErr("ThrottlingException"), transientErr("ThrottlingException")}

	policy := fastRetry()
	policy.InitialInterval = time.Second
	policy.MaxInterval = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	exec := NewExecutor(fleet, discardLogger(), nil, policy, 0)
	got := exec.Execute(ctx, types.ActionStop, d)

	if got.Kind != types.OutcomeFailed {
		t.Fatalf("Kind = %s, want Failed", got.Kind)
	}
	if got.Reason != constants.ReasonRunCancelled {
		t.Errorf("Reason = %q, want %q", got.Reason, constants.ReasonRunCancelled)
	}
}

func TestRetryPolicy_WithDefaults(t *testing.T) {
	got := RetryPolicy{}.withDefaults()
	want := DefaultRetryPolicy()
	if got != want {
		t.Errorf("withDefaults() = %+v, want %+v", got, want)
	}

	custom := RetryPolicy{MaxAttempts: 5, InitialInterval: 20 * time.Second}.withDefaults()
	if custom.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", custom.MaxAttempts)
	}
	if custom.MaxInterval < custom.InitialInterval {
		t.Errorf("MaxInterval %s < InitialInterval %s", custom.MaxInterval, custom.InitialInterval)
	}
}

func TestRetryPolicy_Jitter(t *testing.T) {
	tests := []struct {
		name       string
		jitter     float64
		wantPolicy float64
		wantFactor float64
	}{
		{"zero takes default", 0, constants.DefaultRetryJitter, constants.DefaultRetryJitter},
		{"out of range takes default", 1.5, constants.DefaultRetryJitter, constants.DefaultRetryJitter},
		{"explicit value kept", 0.3, 0.3, 0.3},
		{"negative disables jitter", -1, -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := RetryPolicy{Jitter: tt.jitter}.withDefaults()
			if p.Jitter != tt.wantPolicy {
				t.Errorf("Jitter = %v, want %v", p.Jitter, tt.wantPolicy)
			}
			if again := p.withDefaults(); again != p {
				t.Errorf("withDefaults() not idempotent: %+v -> %+v", p, again)
			}
			if got := p.newBackOff().RandomizationFactor; got != tt.wantFactor {
				t.Errorf("RandomizationFactor = %v, want %v", got, tt.wantFactor)
			}
		})
	}
}

func TestExecutor_LogsEachAttributeOnce(t *testing.T) {
	d := cluster("c1", types.EngineModeStandard, types.LifecycleAvailable)
	fleet := newFakeFleet(d)
	fleet.actionErrs["c1"] = []error{transientErr("ThrottlingException")}

	var buf bytes.Buffer
	engine := NewEngine(EngineConfig{
		Fleets: StaticFleet(fleet),
		Logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Retry:  fastRetry(),
	})
	if _, err := engine.Run(context.Background(), types.ActionRequest{Action: types.ActionStop}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var sawAttempt bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.Contains(line, "action attempt failed") {
			sawAttempt = true
		}
		for _, attr := range []string{" action=", " cluster_id="} {
			if n := strings.Count(line, attr); n > 1 {
				t.Errorf("%q appears %d times in %q", strings.TrimSpace(attr), n, line)
			}
		}
	}
	if !sawAttempt {
		t.Errorf("expected a retry log line, got:\n%s", buf.String())
	}
}
