package rds

import (
	"testing"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

func TestClusterStatus_Lifecycle(t *testing.T) {
	tests := []struct {
		status   ClusterStatus
		expected types.LifecycleState
	}{
		{ClusterStatusAvailable, types.LifecycleAvailable},
		{ClusterStatusStopped, types.LifecycleStopped},
		{ClusterStatusStarting, types.LifecycleStarting},
		{ClusterStatusStopping, types.LifecycleStopping},
		{"modifying", types.LifecycleOther},
		{"backing-up", types.LifecycleOther},
		{"failed", types.LifecycleOther},
		{"inaccessible-encryption-credentials", types.LifecycleOther},
		{"", types.LifecycleOther},
		{"some-future-status", types.LifecycleOther},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Lifecycle(); got != tt.expected {
				t.Errorf("ClusterStatus(%q).Lifecycle() = %q, want %q", tt.status, got, tt.expected)
			}
		})
	}
}

func TestIsMultiAZCluster(t *testing.T) {
	tests := []struct {
		engine        string
		instanceClass string
		expected      bool
	}{
		{"mysql", "db.r6gd.large", true},
		{"postgres", "db.m6gd.large", true},
		{"aurora-postgresql", "", false},
		{"aurora-mysql", "db.r6g.large", false},
		{"mysql", "", false},
		{"neptune", "db.r5.large", false},
	}

	for _, tt := range tests {
		if got := IsMultiAZCluster(tt.engine, tt.instanceClass); got != tt.expected {
			t.Errorf("IsMultiAZCluster(%q, %q) = %v, want %v", tt.engine, tt.instanceClass, got, tt.expected)
		}
	}
}
