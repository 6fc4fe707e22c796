package scheduler

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	internalerrors "github.com/mpz/devops/tools/rds-cluster-scheduler/internal/errors"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

// discover lists the fleet once and keeps the clusters that carry tagKey or
// whose tags were not returned by the listing. Any listing error is fatal.
func discover(ctx context.Context, fleet Fleet, tagKey string) ([]types.ResourceDescriptor, error) {
	clusters, err := fleet.ListClusters(ctx)
	if err != nil {
		return nil, internalerrors.Discovery(errors.Wrap(err, "list clusters"))
	}

	candidates := make([]types.ResourceDescriptor, 0, len(clusters))
	for _, c := range clusters {
		if c.TagsKnown() && !c.HasTag(tagKey) {
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// resolveTags confirms opt-in for a candidate. It returns matched=false when
// the cluster does not carry tagKey, in which case it is not part of the run.
func resolveTags(ctx context.Context, fleet Fleet, d types.ResourceDescriptor, tagKey string, logger *slog.Logger) (types.ResourceDescriptor, bool, error) {
	if d.TagsKnown() {
		return d, d.HasTag(tagKey), nil
	}

	tags, err := fleet.ListTags(ctx, d)
	if err != nil {
		return d, false, internalerrors.Discovery(errors.Wrapf(err, "list tags for %s", d.ID))
	}
	if tags == nil {
		tags = map[string]string{}
	}
	d.Tags = tags

	matched := d.HasTag(tagKey)
	if !matched {
		logger.Debug("cluster not opted in", slog.String("cluster_id", d.ID), slog.String("tag_key", tagKey))
	}
	return d, matched, nil
}
