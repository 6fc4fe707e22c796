// Package rds implements the scheduler fleet over the AWS RDS API.
package rds

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/constants"
	internalerrors "github.com/mpz/devops/tools/rds-cluster-scheduler/internal/errors"
	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

// API is the subset of the RDS SDK client used by the scheduler.
type API interface {
	rds.DescribeDBClustersAPIClient
	ListTagsForResource(ctx context.Context, params *rds.ListTagsForResourceInput, optFns ...func(*rds.Options)) (*rds.ListTagsForResourceOutput, error)
	StartDBCluster(ctx context.Context, params *rds.StartDBClusterInput, optFns ...func(*rds.Options)) (*rds.StartDBClusterOutput, error)
	StopDBCluster(ctx context.Context, params *rds.StopDBClusterInput, optFns ...func(*rds.Options)) (*rds.StopDBClusterOutput, error)
}

// Client serves the clusters of one region.
type Client struct {
	api     API
	region  string
	limiter *rate.Limiter // nil means unlimited
}

// ClientConfig contains configuration for the RDS client.
type ClientConfig struct {
	AWSConfig aws.Config
	BaseURL   string  // optional, for testing
	RateLimit float64 // API calls per second, 0 = unlimited
}

// NewClient creates a new RDS client.
func NewClient(cfg ClientConfig) *Client {
	opts := []func(*rds.Options){}
	if cfg.BaseURL != "" {
		opts = append(opts, func(o *rds.Options) {
			o.BaseEndpoint = aws.String(cfg.BaseURL)
		})
	}

	return NewClientWithAPI(rds.NewFromConfig(cfg.AWSConfig, opts...), cfg.AWSConfig.Region, cfg.RateLimit)
}

// NewClientWithAPI creates a client over an existing API implementation.
func NewClientWithAPI(api API, region string, rateLimit float64) *Client {
	c := &Client{api: api, region: region}
	if rateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(rateLimit), max(1, int(rateLimit)))
	}
	return c
}

// Region returns the region this client serves.
func (c *Client) Region() string {
	return c.region
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// ListClusters returns every DB cluster in the region, following pagination.
func (c *Client) ListClusters(ctx context.Context) ([]types.ResourceDescriptor, error) {
	var clusters []types.ResourceDescriptor

	paginator := rds.NewDescribeDBClustersPaginator(c.api, &rds.DescribeDBClustersInput{
		MaxRecords: aws.Int32(constants.DescribeClustersPageSize),
	})
	for paginator.HasMorePages() {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "describe clusters in %s", c.region)
		}

		for _, cluster := range out.DBClusters {
			clusters = append(clusters, c.descriptor(cluster))
		}
	}

	return clusters, nil
}

// ListTags returns the tag set of a cluster, looked up by ARN.
func (c *Client) ListTags(ctx context.Context, d types.ResourceDescriptor) (map[string]string, error) {
	if d.ARN == "" {
		return nil, errors.Wrapf(internalerrors.ErrInvalidParameter, "cluster %s has no ARN", d.ID)
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	out, err := c.api.ListTagsForResource(ctx, &rds.ListTagsForResourceInput{
		ResourceName: aws.String(d.ARN),
	})
	if err != nil {
		return nil, ClassifyError(errors.Wrapf(err, "list tags for %s", d.ID))
	}
	return tagMap(out.TagList), nil
}

// DescribeState returns the current status of a cluster.
func (c *Client) DescribeState(ctx context.Context, d types.ResourceDescriptor) (types.ClusterState, error) {
	cluster, err := c.DescribeCluster(ctx, d.ID)
	if err != nil {
		return types.ClusterState{}, err
	}
	return types.ClusterState{State: cluster.State, Status: cluster.Status}, nil
}

// DescribeCluster retrieves a single cluster by identifier.
func (c *Client) DescribeCluster(ctx context.Context, clusterID string) (types.ResourceDescriptor, error) {
	if err := c.wait(ctx); err != nil {
		return types.ResourceDescriptor{}, err
	}

	out, err := c.api.DescribeDBClusters(ctx, &rds.DescribeDBClustersInput{
		DBClusterIdentifier: aws.String(clusterID),
	})
	if err != nil {
		if IsClusterNotFound(err) {
			return types.ResourceDescriptor{}, internalerrors.Permanent(errors.Wrap(internalerrors.ErrClusterNotFound, clusterID))
		}
		return types.ResourceDescriptor{}, ClassifyError(errors.Wrapf(err, "describe cluster %s", clusterID))
	}

	if len(out.DBClusters) == 0 {
		return types.ResourceDescriptor{}, internalerrors.Permanent(errors.Wrap(internalerrors.ErrClusterNotFound, clusterID))
	}

	return c.descriptor(out.DBClusters[0]), nil
}

// singleAttempt turns off SDK retries for start and stop. The executor owns
// those retries, so each executor attempt is exactly one API call.
func singleAttempt(o *rds.Options) {
	o.RetryMaxAttempts = 1
}

// Start issues StartDBCluster.
func (c *Client) Start(ctx context.Context, d types.ResourceDescriptor) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err := c.api.StartDBCluster(ctx, &rds.StartDBClusterInput{
		DBClusterIdentifier: aws.String(d.ID),
	}, singleAttempt)
	if err != nil {
		return ClassifyError(errors.Wrap(err, "start cluster"))
	}
	return nil
}

// Stop issues StopDBCluster.
func (c *Client) Stop(ctx context.Context, d types.ResourceDescriptor) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err := c.api.StopDBCluster(ctx, &rds.StopDBClusterInput{
		DBClusterIdentifier: aws.String(d.ID),
	}, singleAttempt)
	if err != nil {
		return ClassifyError(errors.Wrap(err, "stop cluster"))
	}
	return nil
}

func (c *Client) descriptor(cluster rdstypes.DBCluster) types.ResourceDescriptor {
	engine := aws.ToString(cluster.Engine)
	instanceClass := aws.ToString(cluster.DBClusterInstanceClass)
	status := aws.ToString(cluster.Status)

	d := types.ResourceDescriptor{
		ID:             aws.ToString(cluster.DBClusterIdentifier),
		ARN:            aws.ToString(cluster.DBClusterArn),
		Region:         c.region,
		Engine:         engine,
		EngineMode:     types.ParseEngineMode(aws.ToString(cluster.EngineMode)),
		InstanceClass:  instanceClass,
		MultiAZCluster: IsMultiAZCluster(engine, instanceClass),
		State:          ClusterStatus(status).Lifecycle(),
		Status:         status,
	}
	// An empty TagList is indistinguishable from tags not being returned,
	// so leave Tags nil and let the resolver ask.
	if len(cluster.TagList) > 0 {
		d.Tags = tagMap(cluster.TagList)
	}
	return d
}

// IsMultiAZCluster reports whether a cluster is the non-Aurora Multi-AZ DB
// cluster variant: a MySQL or PostgreSQL engine with a cluster-level
// instance class.
func IsMultiAZCluster(engine, instanceClass string) bool {
	if instanceClass == "" {
		return false
	}
	engine = strings.ToLower(engine)
	return strings.HasPrefix(engine, "mysql") || strings.HasPrefix(engine, "postgres")
}

func tagMap(tags []rdstypes.Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, tag := range tags {
		if tag.Key != nil {
			m[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
		}
	}
	return m
}
