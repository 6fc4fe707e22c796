package types

import (
	"time"
)

// ActionRequest is one invocation of the scheduler.
type ActionRequest struct {
	// Action is the requested lifecycle action.
	Action Action `json:"action"`
	// TagKey is the opt-in tag key; any value opts a cluster in.
	TagKey string `json:"tag_key"`
	// Regions optionally restricts or widens the run to these regions.
	Regions []string `json:"regions,omitempty"`
}

// OutcomeKind is the result category for one cluster.
type OutcomeKind string

const (
	OutcomeProcessed OutcomeKind = "Processed"
	OutcomeSkipped   OutcomeKind = "Skipped"
	OutcomeFailed    OutcomeKind = "Failed"
)

// ActionOutcome records what happened to one cluster in one run.
// It is created once and not modified afterwards.
type ActionOutcome struct {
	ResourceID string      `json:"resource_id"`
	Region     string      `json:"region,omitempty"`
	Kind       OutcomeKind `json:"kind"`
	// Reason is required for Skipped and Failed outcomes.
	Reason string `json:"reason,omitempty"`
	// Attempts is the number of start/stop calls issued.
	Attempts int `json:"attempts,omitempty"`
	// Status is the cluster status observed after the action, if read back.
	Status string `json:"status,omitempty"`
}

// Processed builds a Processed outcome.
func Processed(d ResourceDescriptor, attempts int, status string) ActionOutcome {
	return ActionOutcome{ResourceID: d.ID, Region: d.Region, Kind: OutcomeProcessed, Attempts: attempts, Status: status}
}

// Skipped builds a Skipped outcome.
func Skipped(d ResourceDescriptor, reason string) ActionOutcome {
	return ActionOutcome{ResourceID: d.ID, Region: d.Region, Kind: OutcomeSkipped, Reason: reason}
}

// Failed builds a Failed outcome.
func Failed(d ResourceDescriptor, reason string, attempts int) ActionOutcome {
	return ActionOutcome{ResourceID: d.ID, Region: d.Region, Kind: OutcomeFailed, Reason: reason, Attempts: attempts}
}

// RunReport is the return payload of a run. Every discovered, tag-matching
// cluster appears in exactly one of the three lists.
type RunReport struct {
	ProcessedClusters []string `json:"ProcessedClusters"`
	SkippedClusters   []string `json:"SkippedClusters"`
	FailedClusters    []string `json:"FailedClusters"`
}

// EmptyReport returns a report with three empty, non-nil lists.
func EmptyReport() RunReport {
	return RunReport{
		ProcessedClusters: []string{},
		SkippedClusters:   []string{},
		FailedClusters:    []string{},
	}
}

// Total returns the number of clusters in the report.
func (r RunReport) Total() int {
	return len(r.ProcessedClusters) + len(r.SkippedClusters) + len(r.FailedClusters)
}

// RunResult is the full record of a run: the report plus per-cluster detail.
type RunResult struct {
	RunID       string          `json:"run_id"`
	Action      Action          `json:"action"`
	TagKey      string          `json:"tag_key"`
	Regions     []string        `json:"regions,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	// Listed counts clusters returned by the listing before tag resolution;
	// Discovered counts those that carried the tag key.
	Listed      int             `json:"listed"`
	Discovered  int             `json:"discovered"`
	Report      RunReport       `json:"report"`
	Outcomes    []ActionOutcome `json:"outcomes"`
	// Error is set when the run aborted on a discovery failure.
	Error string `json:"error,omitempty"`
}

// Duration returns how long the run took.
func (r *RunResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Validate checks the fields required to archive a run.
func (r *RunResult) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "run_id", Message: "run ID is required"}
	}
	if r.Action != ActionStart && r.Action != ActionStop {
		return &ValidationError{Field: "action", Message: "invalid action: " + string(r.Action)}
	}
	if r.StartedAt.IsZero() {
		return &ValidationError{Field: "started_at", Message: "start time is required"}
	}
	return nil
}

// PlanEntry is the dry-run verdict for one cluster.
type PlanEntry struct {
	ResourceID string         `json:"resource_id"`
	Region     string         `json:"region,omitempty"`
	EngineMode EngineMode     `json:"engine_mode"`
	State      LifecycleState `json:"state"`
	Status     string         `json:"status,omitempty"`
	// WouldAct is true when a run would issue the action.
	WouldAct bool `json:"would_act"`
	// Kind is the outcome the run would record if it does not act.
	Kind   OutcomeKind `json:"kind,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
