package scheduler

import (
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/constants"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

// Eligibility is the classifier verdict for one cluster.
type Eligibility struct {
	Eligible bool
	// Rule names the exclusion rule that matched.
	Rule   string
	Reason string
}

type exclusionRule struct {
	name    string
	reason  string
	matches func(d types.ResourceDescriptor) bool
}

func engineModeIs(mode types.EngineMode) func(types.ResourceDescriptor) bool {
	return func(d types.ResourceDescriptor) bool { return d.EngineMode == mode }
}

// exclusionRules are evaluated in order; the first match wins.
var exclusionRules = []exclusionRule{
	{name: "serverless_v1", reason: constants.ReasonServerlessV1, matches: engineModeIs(types.EngineModeServerlessV1)},
	{name: "multimaster", reason: constants.ReasonMultiMaster, matches: engineModeIs(types.EngineModeMultiMaster)},
	{name: "parallel_query", reason: constants.ReasonParallelQuery, matches: engineModeIs(types.EngineModeParallelQuery)},
	{name: "global", reason: constants.ReasonGlobal, matches: engineModeIs(types.EngineModeGlobal)},
	{
		name:    "multi_az_cluster",
		reason:  constants.ReasonMultiAZCluster,
		matches: func(d types.ResourceDescriptor) bool { return d.MultiAZCluster },
	},
}

// Classify decides whether the cluster's topology permits start/stop at all.
// It ignores lifecycle state and the requested action.
func Classify(d types.ResourceDescriptor) Eligibility {
	for _, rule := range exclusionRules {
		if rule.matches(d) {
			return Eligibility{Rule: rule.name, Reason: rule.reason}
		}
	}
	return Eligibility{Eligible: true}
}
