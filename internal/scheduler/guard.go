package scheduler

import (
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/constants"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

// GuardDecision is the state guard verdict.
type GuardDecision struct {
	Proceed    bool
	SkipReason string
}

// Guard decides whether the requested action is a no-op for the current state.
// States other than the target and the two transitional states proceed; the
// backend rejects them as a permanent error if the action is not allowed.
func Guard(action types.Action, state types.LifecycleState) GuardDecision {
	if state == action.TargetState() {
		reason := constants.ReasonAlreadyStopped
		if action == types.ActionStart {
			reason = constants.ReasonAlreadyRunning
		}
		return GuardDecision{SkipReason: reason}
	}
	if state.IsTransitional() {
		return GuardDecision{SkipReason: constants.ReasonInTransition}
	}
	return GuardDecision{Proceed: true}
}
