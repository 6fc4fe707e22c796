package scheduler

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	internalerrors "github.com/mpz/devops/tools/rds-cluster-scheduler/internal/errors"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

// fakeFleet is an in-memory Fleet. Start and Stop move clusters straight to
// their target state so a second run observes the result of the first.
type fakeFleet struct {
	mu       sync.Mutex
	clusters []types.ResourceDescriptor

	listErr     error
	tagErrs     map[string]error
	separateTag map[string]map[string]string // tags returned only by ListTags
	stateErrs   map[string]error
	// actionErrs is consumed one entry per call for a cluster.
	actionErrs map[string][]error

	calls map[string]int
}

func newFakeFleet(clusters ...types.ResourceDescriptor) *fakeFleet {
	return &fakeFleet{
		clusters:    clusters,
		tagErrs:     map[string]error{},
		separateTag: map[string]map[string]string{},
		stateErrs:   map[string]error{},
		actionErrs:  map[string][]error{},
		calls:       map[string]int{},
	}
}

func (f *fakeFleet) ListClusters(ctx context.Context) ([]types.ResourceDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]types.ResourceDescriptor, len(f.clusters))
	copy(out, f.clusters)
	return out, nil
}

func (f *fakeFleet) ListTags(ctx context.Context, d types.ResourceDescriptor) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["tags:"+d.ID]++
	if err := f.tagErrs[d.ID]; err != nil {
		return nil, err
	}
	return f.separateTag[d.ID], nil
}

func (f *fakeFleet) DescribeState(ctx context.Context, d types.ResourceDescriptor) (types.ClusterState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.stateErrs[d.ID]; err != nil {
		return types.ClusterState{}, err
	}
	for _, c := range f.clusters {
		if c.ID == d.ID {
			return types.ClusterState{State: c.State, Status: string(c.State)}, nil
		}
	}
	return types.ClusterState{}, internalerrors.ErrClusterNotFound
}

func (f *fakeFleet) Start(ctx context.Context, d types.ResourceDescriptor) error {
	return f.act(ctx, "start", d, types.LifecycleAvailable)
}

func (f *fakeFleet) Stop(ctx context.Context, d types.ResourceDescriptor) error {
	return f.act(ctx, "stop", d, types.LifecycleStopped)
}

func (f *fakeFleet) act(ctx context.Context, verb string, d types.ResourceDescriptor, target types.LifecycleState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[verb+":"+d.ID]++

	if errs := f.actionErrs[d.ID]; len(errs) > 0 {
		err := errs[0]
		f.actionErrs[d.ID] = errs[1:]
		if err != nil {
			return err
		}
	}
	for i := range f.clusters {
		if f.clusters[i].ID == d.ID {
			f.clusters[i].State = target
			return nil
		}
	}
	return internalerrors.Permanent(errors.Newf("DBClusterNotFoundFault: %s", d.ID))
}

func (f *fakeFleet) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func cluster(id string, mode types.EngineMode, state types.LifecycleState) types.ResourceDescriptor {
	return types.ResourceDescriptor{
		ID:         id,
		ARN:        "arn:aws:rds:us-east-1:123456789012:cluster:" + id,
		Region:     "us-east-1",
		Engine:     "aurora-postgresql",
		EngineMode: mode,
		State:      state,
		Status:     string(state),
		Tags:       map[string]string{"Schedule": "office-hours"},
	}
}

func transientErr(msg string) error {
	return internalerrors.Transient(errors.New(msg))
}

func permanentErr(msg string) error {
	return internalerrors.Permanent(errors.New(msg))
}
