package scheduler

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/constants"
	internalerrors "github.com/mpz/devops/tools/rds-cluster-scheduler/internal/errors"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

func newTestEngine(fleet Fleet) *Engine {
	return NewEngine(EngineConfig{
		Fleets:         StaticFleet(fleet),
		Logger:         discardLogger(),
		Retry:          fastRetry(),
		MaxConcurrency: 4,
		ActionTimeout:  time.Second,
		RunTimeout:     10 * time.Second,
	})
}

func reasonsByID(outcomes []types.ActionOutcome) map[string]string {
	out := make(map[string]string, len(outcomes))
	for _, o := range outcomes {
		out[o.ResourceID] = o.Reason
	}
	return out
}

func TestEngineRun_MixedFleetScenario(t *testing.T) {
	fleet := newFakeFleet(
		cluster("serverless", types.EngineModeServerlessV1, types.LifecycleAvailable),
		cluster("already-stopped", types.EngineModeStandard, types.LifecycleStopped),
		cluster("standard", types.EngineModeStandard, types.LifecycleAvailable),
	)

	result, err := newTestEngine(fleet).Run(context.Background(), types.ActionRequest{
		Action: types.ActionStop,
		TagKey: "Schedule",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := types.RunReport{
		ProcessedClusters: []string{"standard"},
		SkippedClusters:   []string{"serverless", "already-stopped"},
		FailedClusters:    []string{},
	}
	if !reflect.DeepEqual(result.Report, want) {
		t.Errorf("Report = %+v, want %+v", result.Report, want)
	}

	reasons := reasonsByID(result.Outcomes)
	if reasons["serverless"] != constants.ReasonServerlessV1 {
		t.Errorf("serverless reason = %q, want %q", reasons["serverless"], constants.ReasonServerlessV1)
	}
	if reasons["already-stopped"] != constants.ReasonAlreadyStopped {
		t.Errorf("already-stopped reason = %q, want %q", reasons["already-stopped"], constants.ReasonAlreadyStopped)
	}
	if fleet.callCount("stop:serverless") != 0 {
		t.Error("stop issued for ineligible cluster")
	}
}

func TestEngineRun_DiscoveryFailure(t *testing.T) {
	fleet := newFakeFleet(cluster("c1", types.EngineModeStandard, types.LifecycleAvailable))
	fleet.listErr = errors.New("AccessDenied: not authorized to perform rds:DescribeDBClusters")

	result, err := newTestEngine(fleet).Run(context.Background(), types.ActionRequest{Action: types.ActionStop})
	if err == nil {
		t.Fatal("Run() error = nil, want discovery error")
	}
	if !internalerrors.IsDiscovery(err) {
		t.Errorf("Run() error = %v, want ErrDiscovery mark", err)
	}
	if result == nil {
		t.Fatal("Run() result = nil, want empty report")
	}
	if result.Report.Total() != 0 {
		t.Errorf("Report = %+v, want all lists empty", result.Report)
	}
	if result.Error == "" {
		t.Error("result.Error is empty, want discovery failure text")
	}
}

func TestEngineRun_ZeroCandidatesIsNotAnError(t *testing.T) {
	untagged := cluster("c1", types.EngineModeStandard, types.LifecycleAvailable)
	untagged.Tags = map[string]string{"Owner": "team-a"}
	fleet := newFakeFleet(untagged)

	result, err := newTestEngine(fleet).Run(context.Background(), types.ActionRequest{Action: types.ActionStop})
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if result.Report.Total() != 0 || result.Error != "" {
		t.Errorf("result = %+v, want empty report without error", result)
	}
}

func TestEngineRun_Isolation(t *testing.T) {
	fleet := newFakeFleet(
		cluster("a", types.EngineModeStandard, types.LifecycleAvailable),
		cluster("b", types.EngineModeStandard, types.LifecycleAvailable),
	)
	fleet.actionErrs["a"] = []error{permanentErr("InvalidDBClusterStateFault: DbCluster a is not in a valid state")}

	result, err := newTestEngine(fleet).Run(context.Background(), types.ActionRequest{Action: types.ActionStop})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !reflect.DeepEqual(result.Report.FailedClusters, []string{"a"}) {
		t.Errorf("FailedClusters = %v, want [a]", result.Report.FailedClusters)
	}
	if !reflect.DeepEqual(result.Report.ProcessedClusters, []string{"b"}) {
		t.Errorf("ProcessedClusters = %v, want [b]", result.Report.ProcessedClusters)
	}
	if fleet.callCount("stop:a") != 1 {
		t.Errorf("stop:a calls = %d, want 1 (permanent errors are not retried)", fleet.callCount("stop:a"))
	}
}

func TestEngineRun_RetryThenSuccess(t *testing.T) {
	fleet := newFakeFleet(cluster("c1", types.EngineModeStandard, types.LifecycleStopped))
	fleet.actionErrs["c1"] = []error{transientErr("ThrottlingException"), transientErr("ThrottlingException")}

	result, err := newTestEngine(fleet).Run(context.Background(), types.ActionRequest{Action: types.ActionStart})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !reflect.DeepEqual(result.Report.ProcessedClusters, []string{"c1"}) {
		t.Errorf("Report = %+v, want c1 processed", result.Report)
	}
	if result.Outcomes[0].Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Outcomes[0].Attempts)
	}
}

func TestEngineRun_StartTwiceIsIdempotent(t *testing.T) {
	fleet := newFakeFleet(cluster("c1", types.EngineModeStandard, types.LifecycleStopped))
	engine := newTestEngine(fleet)
	req := types.ActionRequest{Action: types.ActionStart}

	first, err := engine.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if !reflect.DeepEqual(first.Report.ProcessedClusters, []string{"c1"}) {
		t.Fatalf("first Report = %+v, want c1 processed", first.Report)
	}

	second, err := engine.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if len(second.Report.ProcessedClusters) != 0 {
		t.Errorf("second ProcessedClusters = %v, want none", second.Report.ProcessedClusters)
	}
	if got := reasonsByID(second.Outcomes)["c1"]; got != constants.ReasonAlreadyRunning {
		t.Errorf("second reason = %q, want %q", got, constants.ReasonAlreadyRunning)
	}
	if fleet.callCount("start:c1") != 1 {
		t.Errorf("start calls = %d, want 1", fleet.callCount("start:c1"))
	}
}

func TestEngineRun_ServerlessV1AlwaysSkipped(t *testing.T) {
	states := []types.LifecycleState{
		types.LifecycleAvailable, types.LifecycleStopped, types.LifecycleStarting,
		types.LifecycleStopping, types.LifecycleOther,
	}
	for _, action := range []types.Action{types.ActionStart, types.ActionStop} {
		for _, state := range states {
			t.Run(fmt.Sprintf("%s/%s", action, state), func(t *testing.T) {
				fleet := newFakeFleet(cluster("sv1", types.EngineModeServerlessV1, state))
				result, err := newTestEngine(fleet).Run(context.Background(), types.ActionRequest{Action: action})
				if err != nil {
					t.Fatalf("Run() error = %v", err)
				}
				if !reflect.DeepEqual(result.Report.SkippedClusters, []string{"sv1"}) {
					t.Errorf("Report = %+v, want sv1 skipped", result.Report)
				}
				if got := reasonsByID(result.Outcomes)["sv1"]; got != constants.ReasonServerlessV1 {
					t.Errorf("reason = %q, want %q", got, constants.ReasonServerlessV1)
				}
			})
		}
	}
}

func TestEngineRun_TagResolution(t *testing.T) {
	noTags := func(id string) types.ResourceDescriptor {
		d := cluster(id, types.EngineModeStandard, types.LifecycleAvailable)
		d.Tags = nil
		return d
	}
	fleet := newFakeFleet(noTags("opted-in"), noTags("not-opted-in"), noTags("tag-error"))
	fleet.separateTag["opted-in"] = map[string]string{"Schedule": ""}
	fleet.separateTag["not-opted-in"] = map[string]string{"Owner": "x"}
	fleet.tagErrs["tag-error"] = errors.New("ThrottlingException: rate exceeded")

	result, err := newTestEngine(fleet).Run(context.Background(), types.ActionRequest{Action: types.ActionStop})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := types.RunReport{
		ProcessedClusters: []string{"opted-in"},
		SkippedClusters:   []string{},
		FailedClusters:    []string{"tag-error"},
	}
	if !reflect.DeepEqual(result.Report, want) {
		t.Errorf("Report = %+v, want %+v", result.Report, want)
	}
	if got := reasonsByID(result.Outcomes)["tag-error"]; got != constants.ReasonTagLookupError {
		t.Errorf("tag-error reason = %q, want %q", got, constants.ReasonTagLookupError)
	}
	if fleet.callCount("stop:not-opted-in") != 0 {
		t.Error("stop issued for cluster without the opt-in tag")
	}
}

func TestEngineRun_KnownTagsSkipResolver(t *testing.T) {
	fleet := newFakeFleet(cluster("c1", types.EngineModeStandard, types.LifecycleAvailable))

	if _, err := newTestEngine(fleet).Run(context.Background(), types.ActionRequest{Action: types.ActionStop}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if fleet.callCount("tags:c1") != 0 {
		t.Errorf("ListTags calls = %d, want 0 when listing returned tags", fleet.callCount("tags:c1"))
	}
}

func TestEngineRun_CancelledRunOmitsUnresolvedClusters(t *testing.T) {
	untagged := cluster("not-opted-in", types.EngineModeStandard, types.LifecycleAvailable)
	untagged.Tags = nil
	fleet := newFakeFleet(
		cluster("opted", types.EngineModeStandard, types.LifecycleAvailable),
		untagged,
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newTestEngine(fleet).Run(ctx, types.ActionRequest{Action: types.ActionStop})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := types.RunReport{
		ProcessedClusters: []string{},
		SkippedClusters:   []string{},
		FailedClusters:    []string{"opted"},
	}
	if !reflect.DeepEqual(result.Report, want) {
		t.Errorf("Report = %+v, want %+v", result.Report, want)
	}
	if got := reasonsByID(result.Outcomes)["opted"]; got != constants.ReasonRunCancelled {
		t.Errorf("opted reason = %q, want %q", got, constants.ReasonRunCancelled)
	}
	if fleet.callCount("tags:not-opted-in") != 0 {
		t.Error("tag lookup issued after cancellation")
	}
}

func TestEngineRun_DiscoveredCountsOptedInClustersOnly(t *testing.T) {
	noTags := cluster("no-tags", types.EngineModeStandard, types.LifecycleAvailable)
	noTags.Tags = nil
	fleet := newFakeFleet(
		cluster("opted", types.EngineModeStandard, types.LifecycleAvailable),
		noTags,
	)
	fleet.separateTag["no-tags"] = map[string]string{"Owner": "x"}

	result, err := newTestEngine(fleet).Run(context.Background(), types.ActionRequest{Action: types.ActionStop})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Listed != 2 {
		t.Errorf("Listed = %d, want 2", result.Listed)
	}
	if result.Discovered != 1 || result.Discovered != result.Report.Total() {
		t.Errorf("Discovered = %d, report total = %d, want 1", result.Discovered, result.Report.Total())
	}
}

func TestEngineRun_StateLookupError(t *testing.T) {
	fleet := newFakeFleet(
		cluster("a", types.EngineModeStandard, types.LifecycleAvailable),
		cluster("b", types.EngineModeStandard, types.LifecycleAvailable),
	)
	fleet.stateErrs["a"] = errors.New("DBClusterNotFoundFault")

	result, err := newTestEngine(fleet).Run(context.Background(), types.ActionRequest{Action: types.ActionStop})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := reasonsByID(result.Outcomes)["a"]; got != constants.ReasonStateLookupError {
		t.Errorf("reason = %q, want %q", got, constants.ReasonStateLookupError)
	}
	if !reflect.DeepEqual(result.Report.ProcessedClusters, []string{"b"}) {
		t.Errorf("ProcessedClusters = %v, want [b]", result.Report.ProcessedClusters)
	}
}

func TestEngineRun_PartitionInvariant(t *testing.T) {
	modes := []types.EngineMode{
		types.EngineModeStandard, types.EngineModeServerlessV1, types.EngineModeMultiMaster,
		types.EngineModeParallelQuery, types.EngineModeGlobal,
	}
	states := []types.LifecycleState{
		types.LifecycleAvailable, types.LifecycleStopped, types.LifecycleStarting,
		types.LifecycleStopping, types.LifecycleOther,
	}

	var clusters []types.ResourceDescriptor
	for i := 0; i < 60; i++ {
		d := cluster(fmt.Sprintf("c%02d", i), modes[i%len(modes)], states[(i/len(modes))%len(states)])
		d.MultiAZCluster = i%7 == 0
		clusters = append(clusters, d)
	}
	fleet := newFakeFleet(clusters...)
	for i := 0; i < 60; i += 4 {
		fleet.actionErrs[fmt.Sprintf("c%02d", i)] = []error{permanentErr("AccessDenied")}
	}
	for i := 1; i < 60; i += 6 {
		fleet.actionErrs[fmt.Sprintf("c%02d", i)] = []error{transientErr("Throttling")}
	}

	result, err := newTestEngine(fleet).Run(context.Background(), types.ActionRequest{Action: types.ActionStop})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	seen := map[string]int{}
	for _, list := range [][]string{result.Report.ProcessedClusters, result.Report.SkippedClusters, result.Report.FailedClusters} {
		for _, id := range list {
			seen[id]++
		}
	}
	if len(seen) != len(clusters) {
		t.Errorf("report covers %d clusters, want %d", len(seen), len(clusters))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("cluster %s appears %d times, want 1", id, n)
		}
	}
	for _, o := range result.Outcomes {
		if o.Kind != types.OutcomeProcessed && o.Reason == "" {
			t.Errorf("%s outcome %s has no reason", o.ResourceID, o.Kind)
		}
	}
}

func TestEngineRun_DeterministicOrder(t *testing.T) {
	var clusters []types.ResourceDescriptor
	for i := 0; i < 20; i++ {
		clusters = append(clusters, cluster(fmt.Sprintf("c%02d", i), types.EngineModeStandard, types.LifecycleAvailable))
	}

	var want []string
	for _, c := range clusters {
		want = append(want, c.ID)
	}

	result, err := newTestEngine(newFakeFleet(clusters...)).Run(context.Background(), types.ActionRequest{Action: types.ActionStop})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !reflect.DeepEqual(result.Report.ProcessedClusters, want) {
		t.Errorf("ProcessedClusters = %v, want discovery order %v", result.Report.ProcessedClusters, want)
	}
}

func TestEngineRun_InvalidAction(t *testing.T) {
	fleet := newFakeFleet(cluster("c1", types.EngineModeStandard, types.LifecycleAvailable))

	result, err := newTestEngine(fleet).Run(context.Background(), types.ActionRequest{Action: "Reboot"})
	if !errors.Is(err, internalerrors.ErrInvalidAction) {
		t.Fatalf("Run() error = %v, want ErrInvalidAction", err)
	}
	if result != nil {
		t.Errorf("Run() result = %+v, want nil", result)
	}
}

func TestEngineRun_DefaultTagKeyAndCaseInsensitiveAction(t *testing.T) {
	fleet := newFakeFleet(cluster("c1", types.EngineModeStandard, types.LifecycleAvailable))

	result, err := newTestEngine(fleet).Run(context.Background(), types.ActionRequest{Action: "stop"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.TagKey != constants.DefaultScheduleTagKey {
		t.Errorf("TagKey = %q, want %q", result.TagKey, constants.DefaultScheduleTagKey)
	}
	if result.Action != types.ActionStop {
		t.Errorf("Action = %q, want %q", result.Action, types.ActionStop)
	}
	if !reflect.DeepEqual(result.Report.ProcessedClusters, []string{"c1"}) {
		t.Errorf("Report = %+v, want c1 processed", result.Report)
	}
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed []*types.RunResult
	failed    []*types.RunResult
}

func (n *recordingNotifier) NotifyRunCompleted(_ context.Context, r *types.RunResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, r)
	return nil
}

func (n *recordingNotifier) NotifyRunFailed(_ context.Context, r *types.RunResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, r)
	return errors.New("slack unavailable")
}

func TestEngineRun_Notifications(t *testing.T) {
	fleet := newFakeFleet(cluster("c1", types.EngineModeStandard, types.LifecycleAvailable))
	notifier := &recordingNotifier{}
	engine := NewEngine(EngineConfig{
		Fleets:   StaticFleet(fleet),
		Logger:   discardLogger(),
		Notifier: notifier,
		Retry:    fastRetry(),
	})

	if _, err := engine.Run(context.Background(), types.ActionRequest{Action: types.ActionStop}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	fleet.listErr = errors.New("service unavailable")
	if _, err := engine.Run(context.Background(), types.ActionRequest{Action: types.ActionStop}); err == nil {
		t.Fatal("Run() error = nil, want discovery error")
	}

	if len(notifier.completed) != 1 || len(notifier.failed) != 1 {
		t.Errorf("notifications completed=%d failed=%d, want 1 and 1", len(notifier.completed), len(notifier.failed))
	}
}

func TestEngineRun_FleetResolverFailureIsDiscoveryError(t *testing.T) {
	engine := NewEngine(EngineConfig{
		Fleets: func(context.Context, []string) (Fleet, error) {
			return nil, errors.New("describe regions: UnauthorizedOperation")
		},
		Logger: discardLogger(),
	})

	result, err := engine.Run(context.Background(), types.ActionRequest{Action: types.ActionStart, Regions: []string{"all"}})
	if !internalerrors.IsDiscovery(err) {
		t.Fatalf("Run() error = %v, want discovery error", err)
	}
	if result.Report.Total() != 0 {
		t.Errorf("Report = %+v, want empty", result.Report)
	}
}

func TestEnginePlan(t *testing.T) {
	fleet := newFakeFleet(
		cluster("serverless", types.EngineModeServerlessV1, types.LifecycleAvailable),
		cluster("stopped", types.EngineModeStandard, types.LifecycleStopped),
		cluster("running", types.EngineModeStandard, types.LifecycleAvailable),
	)

	plan, err := newTestEngine(fleet).Plan(context.Background(), types.ActionRequest{Action: types.ActionStop})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(plan) != 3 {
		t.Fatalf("len(plan) = %d, want 3", len(plan))
	}

	tests := []struct {
		id       string
		wouldAct bool
		reason   string
	}{
		{"serverless", false, constants.ReasonServerlessV1},
		{"stopped", false, constants.ReasonAlreadyStopped},
		{"running", true, ""},
	}
	for i, tt := range tests {
		got := plan[i]
		if got.ResourceID != tt.id || got.WouldAct != tt.wouldAct || got.Reason != tt.reason {
			t.Errorf("plan[%d] = %+v, want id=%s wouldAct=%v reason=%q", i, got, tt.id, tt.wouldAct, tt.reason)
		}
	}

	if fleet.callCount("stop:running") != 0 {
		t.Error("Plan() issued a stop")
	}
}
