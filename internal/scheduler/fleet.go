// Package scheduler implements the discovery, classification, state guard,
// execution and reporting pipeline that starts or stops tagged clusters.
package scheduler

import (
	"context"
	"time"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

// Fleet is the narrow capability interface the engine needs from the
// database service. Implementations must be safe for concurrent use.
type Fleet interface {
	// ListClusters returns every cluster visible to the fleet, following
	// pagination. Descriptors whose Tags are nil have not had tags loaded.
	ListClusters(ctx context.Context) ([]types.ResourceDescriptor, error)
	// ListTags returns the full tag set of one cluster.
	ListTags(ctx context.Context, d types.ResourceDescriptor) (map[string]string, error)
	// DescribeState returns the current lifecycle state of one cluster.
	DescribeState(ctx context.Context, d types.ResourceDescriptor) (types.ClusterState, error)
	// Start issues a start for one cluster.
	Start(ctx context.Context, d types.ResourceDescriptor) error
	// Stop issues a stop for one cluster.
	Stop(ctx context.Context, d types.ResourceDescriptor) error
}

// Notifier sends notifications about finished runs.
type Notifier interface {
	NotifyRunCompleted(ctx context.Context, result *types.RunResult) error
	NotifyRunFailed(ctx context.Context, result *types.RunResult) error
}

// Recorder receives run and outcome measurements.
type Recorder interface {
	RunFinished(action types.Action, status string, duration time.Duration)
	OutcomeRecorded(action types.Action, kind types.OutcomeKind)
	AttemptFinished(action types.Action, result string)
}

// Attempt results reported to Recorder.AttemptFinished.
const (
	AttemptSuccess   = "success"
	AttemptTransient = "transient_error"
	AttemptPermanent = "permanent_error"
)

// Run statuses reported to Recorder.RunFinished.
const (
	RunStatusCompleted      = "completed"
	RunStatusDiscoveryError = "discovery_error"
)

type nopRecorder struct{}

func (nopRecorder) RunFinished(types.Action, string, time.Duration) {}
func (nopRecorder) OutcomeRecorded(types.Action, types.OutcomeKind) {}
func (nopRecorder) AttemptFinished(types.Action, string)            {}

type nopNotifier struct{}

func (nopNotifier) NotifyRunCompleted(context.Context, *types.RunResult) error { return nil }
func (nopNotifier) NotifyRunFailed(context.Context, *types.RunResult) error    { return nil }
