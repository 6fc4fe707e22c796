// Package types defines the core types for the RDS cluster scheduler.
package types

import (
	"strings"

	"github.com/cockroachdb/errors"
	internalerrors "github.com/mpz/devops/tools/rds-cluster-scheduler/internal/errors"
)

// Action is the lifecycle action requested for a run.
type Action string

const (
	// ActionStart starts stopped clusters.
	ActionStart Action = "Start"
	// ActionStop stops available clusters.
	ActionStop Action = "Stop"
)

// ParseAction parses an action name case-insensitively.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start":
		return ActionStart, nil
	case "stop":
		return ActionStop, nil
	default:
		return "", errors.Mark(
			errors.Newf("invalid action %q: must be Start or Stop", s),
			internalerrors.ErrInvalidAction,
		)
	}
}

// Verb returns the lower-case verb used in logs and metrics labels.
func (a Action) Verb() string {
	return strings.ToLower(string(a))
}

// TargetState returns the lifecycle state the action drives a cluster to.
func (a Action) TargetState() LifecycleState {
	if a == ActionStart {
		return LifecycleAvailable
	}
	return LifecycleStopped
}

// EngineMode classifies a cluster's engine mode.
type EngineMode string

const (
	// EngineModeStandard is a provisioned cluster (including Serverless v2).
	EngineModeStandard EngineMode = "standard"
	// EngineModeServerlessV1 is an Aurora Serverless v1 cluster.
	EngineModeServerlessV1 EngineMode = "serverless-v1"
	// EngineModeMultiMaster is an Aurora multi-master cluster.
	EngineModeMultiMaster EngineMode = "multimaster"
	// EngineModeParallelQuery is an Aurora parallel query cluster.
	EngineModeParallelQuery EngineMode = "parallel-query"
	// EngineModeGlobal is a member of an Aurora global database.
	EngineModeGlobal EngineMode = "global"
)

// ParseEngineMode maps an RDS EngineMode value to an EngineMode.
// Empty and unknown values (e.g. "provisioned") map to EngineModeStandard.
func ParseEngineMode(s string) EngineMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "serverless":
		return EngineModeServerlessV1
	case "multimaster":
		return EngineModeMultiMaster
	case "parallelquery":
		return EngineModeParallelQuery
	case "global":
		return EngineModeGlobal
	default:
		return EngineModeStandard
	}
}

// LifecycleState is the scheduler's view of a cluster's status.
type LifecycleState string

const (
	LifecycleAvailable LifecycleState = "available"
	LifecycleStopped   LifecycleState = "stopped"
	LifecycleStarting  LifecycleState = "starting"
	LifecycleStopping  LifecycleState = "stopping"
	LifecycleOther     LifecycleState = "other"
)

// IsTransitional reports whether a start or stop is already underway.
func (s LifecycleState) IsTransitional() bool {
	return s == LifecycleStarting || s == LifecycleStopping
}

// ClusterState is a fresh status read for a single cluster.
type ClusterState struct {
	State  LifecycleState `json:"state"`
	Status string         `json:"status"`
}

// ResourceDescriptor describes one discovered cluster. It is built fresh
// from the fleet on every run and never persisted.
type ResourceDescriptor struct {
	// ID is the cluster identifier.
	ID string `json:"id"`
	// ARN is the cluster ARN, used for tag lookups.
	ARN string `json:"arn,omitempty"`
	// Region is the AWS region that owns the cluster.
	Region string `json:"region,omitempty"`
	// Engine is the raw engine name (aurora-postgresql, mysql, ...).
	Engine string `json:"engine,omitempty"`
	// EngineMode is the classified engine mode.
	EngineMode EngineMode `json:"engine_mode"`
	// InstanceClass is DBClusterInstanceClass, only set on Multi-AZ DB clusters.
	InstanceClass string `json:"instance_class,omitempty"`
	// MultiAZCluster is true for the non-Aurora Multi-AZ DB cluster variant.
	MultiAZCluster bool `json:"multi_az_cluster"`
	// State is the lifecycle state reported by the listing.
	State LifecycleState `json:"state"`
	// Status is the raw RDS status string.
	Status string `json:"status,omitempty"`
	// Tags holds the cluster tags. Nil means the listing did not include tags.
	Tags map[string]string `json:"tags,omitempty"`
}

// TagsKnown reports whether the listing already returned the tag set.
func (d ResourceDescriptor) TagsKnown() bool {
	return d.Tags != nil
}

// HasTag reports whether the tag key is present with any value.
func (d ResourceDescriptor) HasTag(key string) bool {
	_, ok := d.Tags[key]
	return ok
}
