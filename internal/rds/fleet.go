package rds

import (
	"context"

	"github.com/cockroachdb/errors"

	internalerrors "github.com/mpz/devops/tools/rds-cluster-scheduler/internal/errors"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

// RegionalFleet presents the clusters of several regions as one fleet.
// Listing walks the regions in order; per-cluster calls go to the region
// recorded on the descriptor.
type RegionalFleet struct {
	order   []string
	clients map[string]*Client
}

// NewRegionalFleet creates a fleet over the given regional clients.
func NewRegionalFleet(clients ...*Client) *RegionalFleet {
	f := &RegionalFleet{clients: make(map[string]*Client, len(clients))}
	for _, c := range clients {
		if _, ok := f.clients[c.Region()]; ok {
			continue
		}
		f.order = append(f.order, c.Region())
		f.clients[c.Region()] = c
	}
	return f
}

// Regions returns the regions covered by the fleet, in listing order.
func (f *RegionalFleet) Regions() []string {
	return f.order
}

// ListClusters lists every region sequentially. A failure in any region
// fails the whole listing.
func (f *RegionalFleet) ListClusters(ctx context.Context) ([]types.ResourceDescriptor, error) {
	var all []types.ResourceDescriptor
	for _, region := range f.order {
		clusters, err := f.clients[region].ListClusters(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, clusters...)
	}
	return all, nil
}

func (f *RegionalFleet) client(d types.ResourceDescriptor) (*Client, error) {
	if c, ok := f.clients[d.Region]; ok {
		return c, nil
	}
	// A single-region fleet serves descriptors without a region.
	if d.Region == "" && len(f.order) == 1 {
		return f.clients[f.order[0]], nil
	}
	return nil, internalerrors.Permanent(errors.Wrapf(internalerrors.ErrInvalidParameter, "no client for region %q of cluster %s", d.Region, d.ID))
}

// ListTags returns the tags of a cluster from its owning region.
func (f *RegionalFleet) ListTags(ctx context.Context, d types.ResourceDescriptor) (map[string]string, error) {
	c, err := f.client(d)
	if err != nil {
		return nil, err
	}
	return c.ListTags(ctx, d)
}

// DescribeState returns the status of a cluster from its owning region.
func (f *RegionalFleet) DescribeState(ctx context.Context, d types.ResourceDescriptor) (types.ClusterState, error) {
	c, err := f.client(d)
	if err != nil {
		return types.ClusterState{}, err
	}
	return c.DescribeState(ctx, d)
}

// Start starts a cluster in its owning region.
func (f *RegionalFleet) Start(ctx context.Context, d types.ResourceDescriptor) error {
	c, err := f.client(d)
	if err != nil {
		return err
	}
	return c.Start(ctx, d)
}

// Stop stops a cluster in its owning region.
func (f *RegionalFleet) Stop(ctx context.Context, d types.ResourceDescriptor) error {
	c, err := f.client(d)
	if err != nil {
		return err
	}
	return c.Stop(ctx, d)
}
