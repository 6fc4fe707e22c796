package rds

import "github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"

// ClusterStatus represents the status of an RDS DB cluster.
// See: https://docs.aws.amazon.com/AmazonRDS/latest/AuroraUserGuide/accessing-monitoring.html
type ClusterStatus string

// RDS DB cluster statuses the scheduler distinguishes. Every other status
// (modifying, backing-up, upgrading, ...) is LifecycleOther.
const (
	ClusterStatusAvailable ClusterStatus = "available"
	ClusterStatusStopped   ClusterStatus = "stopped"
	ClusterStatusStarting  ClusterStatus = "starting"
	ClusterStatusStopping  ClusterStatus = "stopping"
)

// Lifecycle maps an RDS status to the scheduler's lifecycle state. Only
// starting and stopping count as start/stop transitions; other busy statuses
// such as modifying map to LifecycleOther.
func (s ClusterStatus) Lifecycle() types.LifecycleState {
	switch s {
	case ClusterStatusAvailable:
		return types.LifecycleAvailable
	case ClusterStatusStopped:
		return types.LifecycleStopped
	case ClusterStatusStarting:
		return types.LifecycleStarting
	case ClusterStatusStopping:
		return types.LifecycleStopping
	default:
		return types.LifecycleOther
	}
}
