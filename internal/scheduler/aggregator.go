package scheduler

import (
	"sync"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

// Aggregator collects outcomes from concurrent cluster pipelines. Slots are
// indexed by discovery order so the report is deterministic regardless of
// completion order.
type Aggregator struct {
	mu       sync.Mutex
	outcomes []*types.ActionOutcome
}

// NewAggregator creates an aggregator for n discovered clusters.
func NewAggregator(n int) *Aggregator {
	return &Aggregator{outcomes: make([]*types.ActionOutcome, n)}
}

// Record stores the outcome for the cluster at discovery index i. The first
// outcome recorded for an index wins.
func (a *Aggregator) Record(i int, outcome types.ActionOutcome) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if i < 0 || i >= len(a.outcomes) || a.outcomes[i] != nil {
		return false
	}
	a.outcomes[i] = &outcome
	return true
}

// Outcomes returns the recorded outcomes in discovery order. Indexes with no
// outcome (clusters excluded after tag resolution) are omitted.
func (a *Aggregator) Outcomes() []types.ActionOutcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]types.ActionOutcome, 0, len(a.outcomes))
	for _, o := range a.outcomes {
		if o != nil {
			out = append(out, *o)
		}
	}
	return out
}

// Report partitions the recorded outcomes into the three result lists.
func (a *Aggregator) Report() types.RunReport {
	return BuildReport(a.Outcomes())
}

// BuildReport partitions outcomes by kind, preserving their order.
func BuildReport(outcomes []types.ActionOutcome) types.RunReport {
	report := types.EmptyReport()
	for _, o := range outcomes {
		switch o.Kind {
		case types.OutcomeProcessed:
			report.ProcessedClusters = append(report.ProcessedClusters, o.ResourceID)
		case types.OutcomeSkipped:
			report.SkippedClusters = append(report.SkippedClusters, o.ResourceID)
		case types.OutcomeFailed:
			report.FailedClusters = append(report.FailedClusters, o.ResourceID)
		}
	}
	return report
}
