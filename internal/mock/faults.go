package mock

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// FaultType identifies the type of fault to inject.
type FaultType string

const (
	// FaultTypeAPIError returns an error for a specific API action.
	FaultTypeAPIError FaultType = "api_error"
	// FaultTypeDelay adds extra delay to an action.
	FaultTypeDelay FaultType = "delay"
	// FaultTypeStuck makes a cluster stay in a transitional state forever.
	FaultTypeStuck FaultType = "stuck"
	// FaultTypePartialFail fails after N successful calls.
	FaultTypePartialFail FaultType = "partial_fail"
	// FaultTypeFailFirstN fails the first N calls, then succeeds.
	FaultTypeFailFirstN FaultType = "fail_first_n"
)

// Fault represents a fault injection rule.
type Fault struct {
	ID          string    `json:"id" yaml:"id"`
	Type        FaultType `json:"type" yaml:"type"`
	Action      string    `json:"action" yaml:"action"`               // RDS action to target (e.g., "StopDBCluster")
	Target      string    `json:"target" yaml:"target"`               // Optional: specific cluster ID to target
	Probability float64   `json:"probability" yaml:"probability"`     // 0.0-1.0, chance the fault triggers (0 = always)
	ErrorCode   string    `json:"error_code" yaml:"error_code"`       // For api_error, partial_fail, fail_first_n
	ErrorMsg    string    `json:"error_message" yaml:"error_message"` // For api_error, partial_fail, fail_first_n
	StatusCode  int       `json:"status_code" yaml:"status_code"`     // HTTP status for the error, default 400
	DelayMs     int       `json:"delay_ms" yaml:"delay_ms"`           // For delay type
	FailAfterN  int       `json:"fail_after_n" yaml:"fail_after_n"`   // For partial_fail type
	FailFirstN  int       `json:"fail_first_n" yaml:"fail_first_n"`   // For fail_first_n type
	Enabled     bool      `json:"enabled" yaml:"enabled"`

	// Internal counter for partial_fail and fail_first_n
	callCount int
}

// FaultInjector manages fault injection rules.
type FaultInjector struct {
	mu     sync.RWMutex
	faults map[string]*Fault
}

// NewFaultInjector creates a new fault injector.
func NewFaultInjector() *FaultInjector {
	return &FaultInjector{
		faults: make(map[string]*Fault),
	}
}

// AddFault adds a new fault rule.
func (fi *FaultInjector) AddFault(f Fault) string {
	fi.mu.Lock()
	defer fi.mu.Unlock()

	if f.ID == "" {
		f.ID = uuid.New().String()[:8]
	}
	f.callCount = 0
	fi.faults[f.ID] = &f
	return f.ID
}

// RemoveFault removes a fault by ID.
func (fi *FaultInjector) RemoveFault(id string) bool {
	fi.mu.Lock()
	defer fi.mu.Unlock()

	if _, ok := fi.faults[id]; ok {
		delete(fi.faults, id)
		return true
	}
	return false
}

// EnableFault enables or disables a fault.
func (fi *FaultInjector) EnableFault(id string, enabled bool) bool {
	fi.mu.Lock()
	defer fi.mu.Unlock()

	if f, ok := fi.faults[id]; ok {
		f.Enabled = enabled
		return true
	}
	return false
}

// ListFaults returns all faults ordered by ID.
func (fi *FaultInjector) ListFaults() []Fault {
	fi.mu.RLock()
	defer fi.mu.RUnlock()

	result := make([]Fault, 0, len(fi.faults))
	for _, f := range fi.faults {
		result = append(result, *f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// ClearAll removes all faults.
func (fi *FaultInjector) ClearAll() {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	fi.faults = make(map[string]*Fault)
}

// FaultCheckResult contains the result of checking for a fault.
type FaultCheckResult struct {
	ShouldFail bool
	ErrorCode  string
	ErrorMsg   string
	StatusCode int
	ExtraDelay int // milliseconds
}

func (r *FaultCheckResult) fail(f *Fault, defaultMsg string) {
	r.ShouldFail = true
	r.ErrorCode = f.ErrorCode
	if r.ErrorCode == "" {
		r.ErrorCode = "InternalFailure"
	}
	r.ErrorMsg = f.ErrorMsg
	if r.ErrorMsg == "" {
		r.ErrorMsg = defaultMsg
	}
	r.StatusCode = f.StatusCode
	if r.StatusCode == 0 {
		r.StatusCode = 400
	}
}

// Check checks if a fault should be triggered for the given action and target.
// Untargeted faults are checked once per request with an empty target;
// targeted faults only match their own cluster ID.
func (fi *FaultInjector) Check(action, target string) FaultCheckResult {
	fi.mu.Lock()
	defer fi.mu.Unlock()

	result := FaultCheckResult{}

	for _, f := range fi.faults {
		if !f.Enabled {
			continue
		}

		// Check if this fault matches
		if f.Action != "" && f.Action != action {
			continue
		}
		if f.Target != target {
			continue
		}
		if f.Type == FaultTypeStuck {
			continue
		}

		// Check probability
		if f.Probability > 0 && f.Probability < 1.0 && rand.Float64() > f.Probability {
			continue
		}

		// Apply the fault
		switch f.Type {
		case FaultTypeAPIError:
			result.fail(f, fmt.Sprintf("Injected fault for action %s", action))

		case FaultTypeDelay:
			result.ExtraDelay += f.DelayMs

		case FaultTypePartialFail:
			f.callCount++
			if f.callCount > f.FailAfterN {
				result.fail(f, fmt.Sprintf("Partial fail triggered after %d calls", f.FailAfterN))
			}

		case FaultTypeFailFirstN:
			f.callCount++
			if f.callCount <= f.FailFirstN {
				result.fail(f, fmt.Sprintf("Injected failure %d of %d", f.callCount, f.FailFirstN))
			}
		}
	}

	return result
}

// CheckStateTransition checks if a state transition should be blocked (for stuck faults).
func (fi *FaultInjector) CheckStateTransition(resourceID string) bool {
	fi.mu.RLock()
	defer fi.mu.RUnlock()

	for _, f := range fi.faults {
		if !f.Enabled {
			continue
		}
		if f.Type != FaultTypeStuck {
			continue
		}
		if f.Target != "" && f.Target != resourceID {
			continue
		}
		if f.Probability > 0 && f.Probability < 1.0 && rand.Float64() > f.Probability {
			continue
		}
		return true // Block the transition
	}
	return false
}
